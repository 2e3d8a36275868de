// Package ports declares the outbound interfaces the services depend on.
package ports

import (
	"context"

	"poupa/internal/core"
)

//go:generate mockgen -destination=mocks/mock_ports.go -source=ports.go -package=mocks

type (
	TransactionWriter interface {
		// Create assigns an ID and audit timestamps and returns the stored row.
		Create(ctx context.Context, tx core.Transaction) (core.Transaction, error)
		Update(ctx context.Context, tx core.Transaction) error
		Delete(ctx context.Context, userID, id string) error
	}

	TransactionReader interface {
		Get(ctx context.Context, userID, id string) (core.Transaction, error)
		// List returns the user's transactions newest first, restricted to rng
		// unless rng is the zero range.
		List(ctx context.Context, userID string, rng core.DateRange) ([]core.Transaction, error)
		// FindLatestByName returns the most recent transaction whose name
		// matches case-insensitively.
		FindLatestByName(ctx context.Context, userID, name string) (core.Transaction, error)
	}

	TransactionStore interface {
		TransactionReader
		TransactionWriter
	}

	// UserDirectory maps a chat identity (channel + address) to a user ID.
	UserDirectory interface {
		FindOrCreateUser(ctx context.Context, channel, address string) (string, error)
	}

	// Exporter mirrors transactions to an external spreadsheet.
	Exporter interface {
		Export(ctx context.Context, tx core.Transaction) error
		Remove(ctx context.Context, id string) error
	}

	// TextGenerator produces natural-language text from a prompt.
	TextGenerator interface {
		Generate(ctx context.Context, system, prompt string) (string, error)
	}

	EventPublisher interface {
		PublishTransactionEvent(ctx context.Context, userID, id, action string) error
		PublishReportRequest(ctx context.Context, req ReportRequest) error
	}

	// Notifier delivers a text message to a chat address.
	Notifier interface {
		Send(ctx context.Context, address, text string) error
	}
)

// ReportRequest asks for a report to be generated and delivered over a chat
// channel.
type ReportRequest struct {
	UserID  string
	Channel string
	Address string
	Range   core.DateRange
}

// Chat channels.
const (
	ChannelWhatsApp = "whatsapp"
	ChannelTelegram = "telegram"
)
