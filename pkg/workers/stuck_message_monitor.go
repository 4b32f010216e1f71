package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/dskvich/recipe-stream/pkg/domain"
	"github.com/dskvich/recipe-stream/pkg/logger"
)

type RunningMessageLister interface {
	ListRunningSince(ctx context.Context, before time.Time) ([]domain.RunningMessage, error)
}

// stuckMessageMonitor reports assistant placeholders that were never finalized,
// for example because the store was unreachable or the process died mid round.
type stuckMessageMonitor struct {
	messages  RunningMessageLister
	threshold time.Duration
	interval  time.Duration
	now       func() time.Time
}

func NewStuckMessageMonitor(messages RunningMessageLister, threshold, interval time.Duration) *stuckMessageMonitor {
	return &stuckMessageMonitor{
		messages:  messages,
		threshold: threshold,
		interval:  interval,
		now:       time.Now,
	}
}

func (s *stuckMessageMonitor) Name() string { return "stuck_message_monitor" }

func (s *stuckMessageMonitor) Start(ctx context.Context) error {
	slog.Info("Starting worker", "name", s.Name(), "threshold", s.threshold, "interval", s.interval)
	defer slog.Info("Worker stopped", "name", s.Name())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.scan(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *stuckMessageMonitor) scan(ctx context.Context) int {
	now := s.now()
	stuck, err := s.messages.ListRunningSince(ctx, now.Add(-s.threshold))
	if err != nil {
		if ctx.Err() == nil {
			slog.WarnContext(ctx, "Listing running messages failed", logger.Err(err))
		}
		return 0
	}

	for _, msg := range stuck {
		slog.ErrorContext(ctx, "Assistant message stuck in running state",
			"messageId", msg.ID,
			"age", now.Sub(msg.StartedAt).Round(time.Second),
		)
	}
	return len(stuck)
}
