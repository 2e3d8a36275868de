// Package memory is an in-process stand-in for the Google Sheets exporter.
// Rows keep their first position; removing a row blanks it like clearing a
// sheet range does.
package memory

import (
	"context"
	"errors"
	"sync"

	"poupa/internal/core"
	"poupa/internal/ports"
)

var _ ports.Exporter = (*Sheet)(nil)

type Sheet struct {
	mu   sync.Mutex
	rows []core.Transaction
	// FailWith, when set, is returned by every call.
	FailWith error
}

func New() *Sheet {
	return &Sheet{}
}

// Export writes tx to its row, appending one the first time the ID is seen.
func (s *Sheet) Export(_ context.Context, tx core.Transaction) error {
	if tx.ID == "" {
		return errors.New("transaction without id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	if i := s.indexOf(tx.ID); i >= 0 {
		s.rows[i] = tx
		return nil
	}
	s.rows = append(s.rows, tx)
	return nil
}

// Remove blanks the row holding id. A missing row is not an error.
func (s *Sheet) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	if i := s.indexOf(id); i >= 0 {
		s.rows[i] = core.Transaction{}
	}
	return nil
}

// Rows returns the non-blank rows in sheet order.
func (s *Sheet) Rows() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0, len(s.rows))
	for _, r := range s.rows {
		if r.ID != "" {
			out = append(out, r)
		}
	}
	return out
}

func (s *Sheet) indexOf(id string) int {
	for i, r := range s.rows {
		if r.ID == id {
			return i
		}
	}
	return -1
}
