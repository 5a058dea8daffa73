package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dsrph/registry_backend/models"
	"github.com/sirupsen/logrus"
)

// RetryQueue schedules automatic retries of FAILED records with exponential
// backoff. It is an explicit, bounded queue: a record enters only through
// Enqueue, waits out its backoff, and is retried through the coordinator,
// which enforces the retry limit. Pending timers are dropped on Stop.
type RetryQueue struct {
	coordinator *BatchCoordinator
	cfg         PipelineConfig
	logger      *logrus.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewRetryQueue(coordinator *BatchCoordinator, cfg PipelineConfig, logger *logrus.Logger) *RetryQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &RetryQueue{
		coordinator: coordinator,
		cfg:         cfg,
		logger:      logger,
		timers:      make(map[string]*time.Timer),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Enqueue schedules a retry for a failed record. attempt is the retry the
// record is about to make, starting at 1; the wait doubles per attempt.
// A record already waiting is not scheduled twice.
func (q *RetryQueue) Enqueue(recordID string, attempt int) bool {
	if attempt < 1 || attempt > q.cfg.MaxRetries {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, waiting := q.timers[recordID]; waiting {
		return false
	}

	delay := q.Backoff(attempt)
	q.wg.Add(1)
	q.timers[recordID] = time.AfterFunc(delay, func() {
		defer q.wg.Done()
		q.mu.Lock()
		delete(q.timers, recordID)
		q.mu.Unlock()

		if q.ctx.Err() != nil {
			return
		}
		q.run(recordID, attempt)
	})
	return true
}

// Backoff returns the wait before the given attempt: base * 2^(attempt-1).
func (q *RetryQueue) Backoff(attempt int) time.Duration {
	return q.cfg.RetryBackoff * time.Duration(1<<(attempt-1))
}

func (q *RetryQueue) run(recordID string, attempt int) {
	status, err := q.coordinator.RetryRecord(q.ctx, recordID)
	switch {
	case errors.Is(err, ErrRetryExhausted):
		q.logger.WithFields(logrus.Fields{"record_id": recordID}).
			Warn("record retries exhausted, manual intervention required")
	case err != nil:
		q.logger.WithFields(logrus.Fields{"record_id": recordID, "attempt": attempt}).
			WithError(err).Error("record retry failed")
	case status == models.RecordStatusFailed:
		if !q.Enqueue(recordID, attempt+1) {
			q.logger.WithFields(logrus.Fields{"record_id": recordID}).
				Warn("record still failing after final retry")
		}
	default:
		q.logger.WithFields(logrus.Fields{"record_id": recordID, "status": status, "attempt": attempt}).
			Info("record retry settled")
	}
}

// Stop cancels pending timers and waits for in-flight retries.
func (q *RetryQueue) Stop() {
	q.cancel()
	q.mu.Lock()
	for id, timer := range q.timers {
		if timer.Stop() {
			q.wg.Done()
		}
		delete(q.timers, id)
	}
	q.mu.Unlock()
	q.wg.Wait()
}
