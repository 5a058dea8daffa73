package workflow

import (
	"testing"
	"time"
)

func TestRetryBackoffDoubles(t *testing.T) {
	cfg := DefaultPipelineConfig()
	cfg.RetryBackoff = 2 * time.Second
	q := NewRetryQueue(nil, cfg, testLogger())
	defer q.Stop()

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
	}
	for _, tc := range cases {
		if got := q.Backoff(tc.attempt); got != tc.want {
			t.Errorf("Backoff(%d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}
}

func TestRetryQueueBounds(t *testing.T) {
	cfg := DefaultPipelineConfig()
	cfg.MaxRetries = 3
	cfg.RetryBackoff = time.Hour
	q := NewRetryQueue(nil, cfg, testLogger())
	defer q.Stop()

	if q.Enqueue("rec-1", 0) {
		t.Error("attempt 0 accepted")
	}
	if q.Enqueue("rec-1", 4) {
		t.Error("attempt beyond the limit accepted")
	}
	if !q.Enqueue("rec-1", 1) {
		t.Error("first attempt rejected")
	}
	if q.Enqueue("rec-1", 2) {
		t.Error("record double-scheduled while waiting")
	}
	if !q.Enqueue("rec-2", 3) {
		t.Error("final attempt rejected")
	}
}

func TestRetryQueueStopDropsPending(t *testing.T) {
	cfg := DefaultPipelineConfig()
	cfg.RetryBackoff = time.Hour
	q := NewRetryQueue(nil, cfg, testLogger())
	q.Enqueue("rec-1", 1)

	done := make(chan struct{})
	go func() {
		q.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on a pending timer")
	}
}
