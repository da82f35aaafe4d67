// ABOUTME: Periodic housekeeping for long-expired session and token rows
// ABOUTME: Pure cleanup; expiry is enforced lazily on every validate/touch regardless

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/2389/asf-auth/internal/store"
)

// retention keeps expired rows around briefly so operators can inspect
// recent activity before the sweeper removes them.
const retention = 24 * time.Hour

// Sweeper deletes long-expired session and action token rows on an
// interval. Correctness never depends on it running.
type Sweeper struct {
	store    store.Store
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a sweeper. Interval zero disables it.
func NewSweeper(st store.Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:    st,
		interval: interval,
		logger:   logger.With("component", "sweeper"),
	}
}

// Run blocks, sweeping on the configured interval until the context is
// cancelled. Callers run it in a goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-retention)

	sessions, err := s.store.DeleteExpiredSessions(ctx, cutoff)
	if err != nil {
		s.logger.Warn("sweeping sessions failed", "error", err)
	}

	tokens, err := s.store.DeleteExpiredActionTokens(ctx, cutoff)
	if err != nil {
		s.logger.Warn("sweeping action tokens failed", "error", err)
	}

	if sessions > 0 || tokens > 0 {
		s.logger.Info("swept expired rows", "sessions", sessions, "action_tokens", tokens)
	}
}
