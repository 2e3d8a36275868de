package http

import (
	"errors"
	"net/http"
	"strconv"

	"poupa/internal/chat"
	applog "poupa/internal/log"
)

const chatFailureReply = "Desculpe, não consegui processar sua mensagem agora. Tente novamente em instantes."

// handleWhatsAppWebhook answers a Twilio inbound message with TwiML.
func (s *Server) handleWhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	msg, err := chat.ParseTwilioForm(r)
	switch {
	case errors.Is(err, chat.ErrNoMessage):
		chat.WriteTwiML(w, "")
		return
	case err != nil:
		s.logger.WarnContext(r.Context(), "Rejected WhatsApp webhook", applog.FieldError, err)
		BadRequestError("invalid webhook payload").Write(w)
		return
	}

	chat.WriteTwiML(w, s.reply(r, msg))
}

// handleTelegramWebhook always answers 200 once the update is understood,
// otherwise Telegram keeps redelivering it. The reply goes out through the
// bot when one is configured, or inline as a sendMessage webhook response.
func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	msg, err := chat.ParseTelegramUpdate(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	switch {
	case errors.Is(err, chat.ErrNoMessage):
		w.WriteHeader(http.StatusOK)
		return
	case err != nil:
		s.logger.WarnContext(r.Context(), "Rejected Telegram webhook", applog.FieldError, err)
		BadRequestError("invalid webhook payload").Write(w)
		return
	}

	reply := s.reply(r, msg)

	if s.deps.Telegram != nil {
		if err := s.deps.Telegram.Send(r.Context(), msg.Address, reply); err != nil {
			s.logger.ErrorContext(r.Context(), "Failed to send Telegram reply",
				applog.FieldChannel, msg.Channel,
				applog.FieldError, err)
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	chatID, _ := strconv.ParseInt(msg.Address, 10, 64)
	NewJSONResponse().Body(map[string]any{
		"method":  "sendMessage",
		"chat_id": chatID,
		"text":    reply,
	}).Write(w)
}

func (s *Server) reply(r *http.Request, msg chat.IncomingMessage) string {
	s.countChatMessage()
	if s.deps.Chat == nil {
		return chatFailureReply
	}

	reply, err := s.deps.Chat.Handle(r.Context(), msg.Channel, msg.Address, msg.Text)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Chat message failed",
			applog.FieldChannel, msg.Channel,
			applog.FieldError, err)
		return chatFailureReply
	}
	return reply
}
