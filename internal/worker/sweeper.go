package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	applog "poupa/internal/log"
)

// Sweeper runs ProcessPendingExports on a fixed interval. It backs up the
// event path in case messages are lost or the broker is unavailable.
type Sweeper struct {
	worker   *Worker
	interval time.Duration

	mu      sync.Mutex
	running bool
}

func NewSweeper(w *Worker, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{worker: w, interval: interval}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("export sweeper is already running")
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	slog.InfoContext(ctx, "Export sweeper started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Export sweeper stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sweeper) tick(ctx context.Context) {
	if err := s.worker.ProcessPendingExports(ctx); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Export sweep failed", applog.FieldError, err)
	}
}
