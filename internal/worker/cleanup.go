package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/lucasmonteiro/triageflow/internal/queue"
)

// CleanupScheduler periodically reclaims in-flight markers abandoned by
// crashed consumers, so stuck-processing detection stays accurate.
type CleanupScheduler struct {
	queue      queue.Queue
	logger     *slog.Logger
	interval   time.Duration
	staleAfter time.Duration
}

func NewCleanupScheduler(q queue.Queue, logger *slog.Logger, interval, staleAfter time.Duration) *CleanupScheduler {
	return &CleanupScheduler{queue: q, logger: logger, interval: interval, staleAfter: staleAfter}
}

// Run blocks until ctx is cancelled. One sweep runs immediately on start so a
// restart after a crash reclaims markers without waiting a full interval.
func (s *CleanupScheduler) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("cleanup scheduler stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *CleanupScheduler) sweep(ctx context.Context) {
	removed, err := s.queue.CleanupProcessing(ctx, s.staleAfter)
	if err != nil {
		s.logger.Error("processing cleanup failed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Warn("reclaimed stale processing markers", "count", removed)
	}
}
