package anchor

import (
	"context"
	"sync"
	"time"

	"tradeproof/pkg/types"

	"github.com/sirupsen/logrus"
)

// Task asks the queue to anchor one evidence item on behalf of its owner.
type Task struct {
	EvidenceID string
	UserID     string
}

type Anchorer interface {
	Anchor(ctx context.Context, scope types.Scope, evidenceID string) (*Result, error)
}

// Queue runs anchoring off the request path. Enqueue never blocks; a task
// that does not fit is dropped and left for the sweeper.
type Queue struct {
	anchorer Anchorer
	tasks    chan Task
	workers  int
	timeout  time.Duration
	logger   logrus.FieldLogger

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func NewQueue(anchorer Anchorer, size, workers int, timeout time.Duration, logger logrus.FieldLogger) *Queue {
	if size < 1 {
		size = 1
	}
	if workers < 1 {
		workers = 1
	}

	return &Queue{
		anchorer: anchorer,
		tasks:    make(chan Task, size),
		workers:  workers,
		timeout:  timeout,
		logger:   logger,
	}
}

// Start launches the workers. They exit when ctx is cancelled or Close is
// called and the backlog is drained.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(ctx)
	}
}

// Enqueue reports whether the task was accepted. After Close it always
// returns false.
func (q *Queue) Enqueue(task Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.logger.WithField("evidence_id", task.EvidenceID).Warn("anchor queue closed, evidence left pending")
		return false
	}

	select {
	case q.tasks <- task:
		return true
	default:
		q.logger.WithFields(logrus.Fields{
			"evidence_id": task.EvidenceID,
			"user_id":     task.UserID,
		}).Warn("anchor queue full, evidence left pending")
		return false
	}
}

// Close stops accepting tasks and waits for the workers to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	q.wg.Wait()
}

func (q *Queue) work(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-q.tasks:
			if !ok {
				return
			}
			q.run(ctx, task)
		}
	}
}

func (q *Queue) run(ctx context.Context, task Task) {
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	entry := q.logger.WithFields(logrus.Fields{
		"evidence_id": task.EvidenceID,
		"user_id":     task.UserID,
	})

	result, err := q.anchorer.Anchor(ctx, types.NewScope(task.UserID), task.EvidenceID)
	if err != nil {
		entry.WithError(err).WithField("kind", types.KindOf(err).String()).Error("failed to anchor evidence")
		return
	}

	entry.WithField("status", result.Status).Debug("anchor task complete")
}
