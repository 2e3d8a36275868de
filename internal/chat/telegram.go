package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"poupa/internal/ports"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramNotifier sends messages as a Telegram bot. Addresses are chat IDs.
type TelegramNotifier struct {
	bot *tgbotapi.BotAPI
}

var _ ports.Notifier = (*TelegramNotifier)(nil)

func NewTelegramNotifier(token string) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot}, nil
}

// NewTelegramNotifierWithEndpoint targets a custom Bot API endpoint, in the
// "https://host/bot%s/%s" form tgbotapi expects.
func NewTelegramNotifierWithEndpoint(token, endpoint string, client *http.Client) (*TelegramNotifier, error) {
	if client == nil {
		client = http.DefaultClient
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot}, nil
}

func (n *TelegramNotifier) Send(ctx context.Context, address, text string) error {
	chatID, err := strconv.ParseInt(address, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := n.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	slog.DebugContext(ctx, "Telegram message sent", "chat_id", chatID)
	return nil
}

// ParseTelegramUpdate decodes a webhook update. Bot commands lose their
// leading slash so "/resumo 2025-01" reads like "resumo 2025-01".
func ParseTelegramUpdate(r io.Reader) (IncomingMessage, error) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r).Decode(&update); err != nil {
		return IncomingMessage{}, fmt.Errorf("decode telegram update: %w", err)
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return IncomingMessage{}, ErrNoMessage
	}

	text := strings.TrimSpace(msg.Text)
	if msg.IsCommand() {
		text = strings.TrimSpace(msg.Command() + " " + msg.CommandArguments())
	}
	if text == "" {
		return IncomingMessage{}, ErrNoMessage
	}

	return IncomingMessage{
		Channel: ports.ChannelTelegram,
		Address: strconv.FormatInt(msg.Chat.ID, 10),
		Text:    text,
	}, nil
}
