// Package memory is an in-process transaction store for development and
// tests.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"poupa/internal/core"

	"github.com/google/uuid"
)

const seedFile = "seed_transactions.json"

type Store struct {
	mu    sync.Mutex
	items map[string]core.Transaction
	users map[string]string // channel+"|"+address -> user ID
	now   func() time.Time
}

func New() *Store {
	return &Store{
		items: make(map[string]core.Transaction),
		users: make(map[string]string),
		now:   time.Now,
	}
}

// NewFromFiles loads base/seed_transactions.json when present. Invalid seed
// rows are reported as an error rather than silently dropped.
func NewFromFiles(base string) (*Store, error) {
	s := New()
	raw, err := os.ReadFile(filepath.Join(base, seedFile))
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var seed []core.Transaction
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	for i, tx := range seed {
		if err := tx.Validate(); err != nil {
			return nil, fmt.Errorf("seed row %d: %w", i, err)
		}
		if tx.ID == "" {
			tx.ID = uuid.NewString()
		}
		if tx.CreatedAt.IsZero() {
			tx.CreatedAt = tx.Date
		}
		if tx.UpdatedAt.IsZero() {
			tx.UpdatedAt = tx.CreatedAt
		}
		s.items[tx.ID] = tx
	}
	return s, nil
}

// Len returns the number of live transactions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) Create(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	tx.ID = uuid.NewString()
	tx.CreatedAt = now
	tx.UpdatedAt = now
	s.items[tx.ID] = tx
	return tx, nil
}

func (s *Store) Update(_ context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.items[tx.ID]
	if !ok || cur.UserID != tx.UserID {
		return core.ErrNotFound
	}
	if tx.UpdatedAt.IsZero() {
		tx.UpdatedAt = s.now().UTC()
	}
	tx.CreatedAt = cur.CreatedAt
	s.items[tx.ID] = tx
	return nil
}

func (s *Store) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.items[id]
	if !ok || cur.UserID != userID {
		return core.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *Store) Get(_ context.Context, userID, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.items[id]
	if !ok || tx.UserID != userID {
		return core.Transaction{}, core.ErrNotFound
	}
	return tx, nil
}

// List returns the user's transactions newest first; ties fall back to
// creation time.
func (s *Store) List(_ context.Context, userID string, rng core.DateRange) ([]core.Transaction, error) {
	s.mu.Lock()
	out := make([]core.Transaction, 0)
	for _, tx := range s.items {
		if tx.UserID == userID && rng.Contains(tx.Date) {
			out = append(out, tx)
		}
	}
	s.mu.Unlock()

	sortNewestFirst(out)
	return out, nil
}

func (s *Store) FindLatestByName(ctx context.Context, userID, name string) (core.Transaction, error) {
	all, _ := s.List(ctx, userID, core.DateRange{})
	key := strings.TrimSpace(name)
	for _, tx := range all {
		if strings.EqualFold(strings.TrimSpace(tx.Name), key) {
			return tx, nil
		}
	}
	return core.Transaction{}, core.ErrNotFound
}

func (s *Store) FindOrCreateUser(_ context.Context, channel, address string) (string, error) {
	channel, address = strings.TrimSpace(channel), strings.TrimSpace(address)
	if channel == "" || address == "" {
		return "", core.ErrMissingUser
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := channel + "|" + address
	if id, ok := s.users[key]; ok {
		return id, nil
	}
	id := uuid.NewString()
	s.users[key] = id
	return id, nil
}

func sortNewestFirst(txs []core.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.After(txs[j].Date)
		}
		if !txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].CreatedAt.After(txs[j].CreatedAt)
		}
		return txs[i].ID < txs[j].ID
	})
}
