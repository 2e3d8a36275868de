package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"poupa/internal/amqp"
	"poupa/internal/core"
	applog "poupa/internal/log"
	"poupa/internal/ports"
)

// ChangeListener is told after any write to a user's transactions.
type ChangeListener func(ctx context.Context, userID string)

// TransactionService orchestrates transaction writes across the store and
// the event publisher.
type TransactionService struct {
	store     ports.TransactionStore
	publisher ports.EventPublisher
	logger    *applog.StructuredLogger
	listeners []ChangeListener
	now       func() time.Time
}

// NewTransactionService wires the store and an optional publisher (nil when
// AMQP is not configured).
func NewTransactionService(store ports.TransactionStore, publisher ports.EventPublisher, logger *applog.Logger) *TransactionService {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &TransactionService{
		store:     store,
		publisher: publisher,
		logger:    applog.NewStructuredLogger(logger),
		now:       time.Now,
	}
}

// OnChange registers fn to run after every successful write.
func (s *TransactionService) OnChange(fn ChangeListener) {
	s.listeners = append(s.listeners, fn)
}

func (s *TransactionService) Create(ctx context.Context, userID string, in core.TransactionInput) (core.Transaction, error) {
	if strings.TrimSpace(userID) == "" {
		return core.Transaction{}, core.ErrMissingUser
	}
	if err := in.Validate(); err != nil {
		return core.Transaction{}, err
	}

	created, err := s.store.Create(ctx, in.ToTransaction(userID))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	s.logger.LogTransactionCreated(ctx, userID, created.ID, string(created.Type), string(created.Category), core.LogCents(created.Amount))
	s.changed(ctx, userID, created.ID, amqp.ActionCreated)
	return created, nil
}

func (s *TransactionService) Get(ctx context.Context, userID, id string) (core.Transaction, error) {
	if strings.TrimSpace(userID) == "" {
		return core.Transaction{}, core.ErrMissingUser
	}
	tx, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

// List returns the user's transactions in rng, newest first. Store failures
// surface as core.ErrStorageUnavailable.
func (s *TransactionService) List(ctx context.Context, userID string, rng core.DateRange) ([]core.Transaction, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, core.ErrMissingUser
	}
	txs, err := s.store.List(ctx, userID, rng)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrStorageUnavailable, err)
	}
	return txs, nil
}

func (s *TransactionService) Update(ctx context.Context, userID, id string, patch core.TransactionPatch) (core.Transaction, error) {
	if strings.TrimSpace(userID) == "" {
		return core.Transaction{}, core.ErrMissingUser
	}
	if err := patch.Validate(); err != nil {
		return core.Transaction{}, err
	}

	current, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	if patch.IsEmpty() {
		return current, nil
	}

	updated := patch.Apply(current, s.now())
	if err := s.store.Update(ctx, updated); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction updated", applog.FieldUserID, userID, applog.FieldTransactionID, id)
	s.changed(ctx, userID, id, amqp.ActionUpdated)
	return updated, nil
}

func (s *TransactionService) Delete(ctx context.Context, userID, id string) error {
	if strings.TrimSpace(userID) == "" {
		return core.ErrMissingUser
	}
	if err := s.store.Delete(ctx, userID, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction deleted", applog.FieldUserID, userID, applog.FieldTransactionID, id)
	s.changed(ctx, userID, id, amqp.ActionDeleted)
	return nil
}

// DeleteByName removes the most recent transaction with the given name and
// returns it.
func (s *TransactionService) DeleteByName(ctx context.Context, userID, name string) (core.Transaction, error) {
	if strings.TrimSpace(name) == "" {
		return core.Transaction{}, core.ErrEmptyName
	}
	if strings.TrimSpace(userID) == "" {
		return core.Transaction{}, core.ErrMissingUser
	}

	tx, err := s.store.FindLatestByName(ctx, userID, name)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("find transaction %q: %w", name, err)
	}
	if err := s.Delete(ctx, userID, tx.ID); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

// changed notifies listeners and publishes the event. Publishing is best
// effort: the write already succeeded and the export sweep catches up.
func (s *TransactionService) changed(ctx context.Context, userID, id, action string) {
	for _, fn := range s.listeners {
		fn(ctx, userID)
	}

	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not available, skipping transaction event")
		return
	}
	if err := s.publisher.PublishTransactionEvent(ctx, userID, id, action); err != nil {
		level := slog.LevelError
		if errors.Is(err, amqp.ErrCircuitOpen) {
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "Failed to publish transaction event",
			applog.FieldTransactionID, id,
			"action", action,
			applog.FieldError, err)
	}
}
