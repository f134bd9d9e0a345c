package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/kmantas/sesame/core"
)

// Sweeper eagerly deletes expired sessions and login states. It is strictly
// optional: validation already rejects and lazily deletes expired records,
// the sweeper just keeps storage from accumulating dead rows. It only runs
// when the integrator calls Run.
type Sweeper struct {
	storage  core.Storage
	interval time.Duration
	logger   *slog.Logger
}

func NewSweeper(storage core.Storage, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{storage: storage, interval: interval, logger: logger}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs a single cleanup pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	sessions, err := s.storage.DeleteExpiredSessions(ctx)
	if err != nil {
		s.logger.Warn("expired session sweep failed", "err", err)
	}

	states, err := s.storage.DeleteExpiredStates(ctx)
	if err != nil {
		s.logger.Warn("expired login state sweep failed", "err", err)
	}

	if sessions > 0 || states > 0 {
		s.logger.Info("swept expired auth records",
			"sessions", sessions, "loginStates", states)
	}
}
