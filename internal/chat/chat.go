// Package chat adapts the WhatsApp (Twilio) and Telegram transports to the
// chat service: inbound messages are normalised into IncomingMessage and
// replies go out through ports.Notifier implementations.
package chat

import (
	"errors"
)

var (
	// ErrNoMessage is returned for webhook payloads that carry no text.
	ErrNoMessage = errors.New("no message text")
	// ErrInvalidAddress is returned when the sender address cannot be parsed.
	ErrInvalidAddress = errors.New("invalid sender address")
)

// IncomingMessage is a text message received on a chat channel.
type IncomingMessage struct {
	Channel string
	Address string
	Text    string
}
