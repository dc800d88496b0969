package anchor

import (
	"context"
	"time"

	"tradeproof/pkg/types"

	"github.com/sirupsen/logrus"
)

// PendingSource lists evidence still waiting for a proof across all owners.
type PendingSource interface {
	UnanchoredEvidence(ctx context.Context, createdBefore time.Time, limit int) ([]types.PendingAnchor, error)
}

type Enqueuer interface {
	Enqueue(task Task) bool
}

// Sweeper periodically hands pending evidence back to the queue so failed
// submissions are retried without user action.
type Sweeper struct {
	source   PendingSource
	queue    Enqueuer
	interval time.Duration
	grace    time.Duration
	batch    int
	logger   logrus.FieldLogger
	now      func() time.Time
}

func NewSweeper(source PendingSource, queue Enqueuer, interval, grace time.Duration, batch int, logger logrus.FieldLogger) *Sweeper {
	if batch < 1 {
		batch = 100
	}

	return &Sweeper{
		source:   source,
		queue:    queue,
		interval: interval,
		grace:    grace,
		batch:    batch,
		logger:   logger,
		now:      time.Now,
	}
}

// Run sweeps every interval until ctx is cancelled. A zero interval disables
// the sweeper.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("anchor sweeper disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.WithError(err).Error("anchor sweep failed")
			}
		}
	}
}

// Sweep enqueues one batch of evidence older than the grace period and
// returns how many tasks were accepted.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	pending, err := s.source.UnanchoredEvidence(ctx, s.now().Add(-s.grace), s.batch)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, p := range pending {
		if !s.queue.Enqueue(Task{EvidenceID: p.EvidenceID, UserID: p.UserID}) {
			break
		}
		queued++
	}

	if len(pending) > 0 {
		s.logger.WithFields(logrus.Fields{
			"pending": len(pending),
			"queued":  queued,
		}).Info("anchor sweep complete")
	}

	return queued, nil
}
