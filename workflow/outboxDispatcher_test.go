package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dsrph/registry_backend/models"
)

type recordingPublisher struct {
	published []string
	fail      error
}

func (p *recordingPublisher) Publish(ctx context.Context, event *models.RegistryEventRecord) error {
	if p.fail != nil {
		return p.fail
	}
	p.published = append(p.published, event.EventType)
	return nil
}

func TestDispatchOncePublishesPendingEvents(t *testing.T) {
	stores, state := newMemStores()
	publisher := &recordingPublisher{}
	dispatcher := NewOutboxDispatcher(stores.Outbox, publisher, testLogger())
	ctx := context.Background()

	for _, eventType := range []string{models.EventBatchSubmitted, models.EventBatchCompleted} {
		if err := stores.Outbox.Append(ctx, eventType, "INGESTION_BATCH", "batch-1", "LIST-2026-001", nil); err != nil {
			t.Fatal(err)
		}
	}

	published, err := dispatcher.DispatchOnce(ctx)
	if err != nil {
		t.Fatalf("DispatchOnce: %v", err)
	}
	if published != 2 {
		t.Errorf("published %d events, want 2", published)
	}
	if len(publisher.published) != 2 {
		t.Errorf("publisher saw %v", publisher.published)
	}

	state.mu.Lock()
	for _, event := range state.events {
		if event.PublishStatus != models.OutboxPublishStatusPublished {
			t.Errorf("event %d status = %s, want PUBLISHED", event.ID, event.PublishStatus)
		}
	}
	state.mu.Unlock()

	// Nothing left to claim.
	if published, _ := dispatcher.DispatchOnce(ctx); published != 0 {
		t.Errorf("second pass published %d events, want 0", published)
	}
}

func TestDispatchOnceBacksOffAndDeadLetters(t *testing.T) {
	stores, state := newMemStores()
	publisher := &recordingPublisher{fail: errors.New("topic unavailable")}
	dispatcher := NewOutboxDispatcher(stores.Outbox, publisher, testLogger())
	ctx := context.Background()

	if err := stores.Outbox.Append(ctx, models.EventBatchCompleted, "INGESTION_BATCH", "batch-1", "LIST-2026-002", nil); err != nil {
		t.Fatal(err)
	}

	if _, err := dispatcher.DispatchOnce(ctx); err != nil {
		t.Fatalf("DispatchOnce: %v", err)
	}

	state.mu.Lock()
	event := state.events[0]
	state.mu.Unlock()
	if event.PublishStatus != models.OutboxPublishStatusFailed {
		t.Fatalf("status = %s, want FAILED after first attempt", event.PublishStatus)
	}
	if event.PublishAttempts != 1 {
		t.Errorf("attempts = %d, want 1", event.PublishAttempts)
	}
	if event.NextAttemptAt == nil || !event.NextAttemptAt.After(time.Now().UTC()) {
		t.Error("failed event not scheduled for a later attempt")
	}
	if event.LastPublishError == nil || *event.LastPublishError != "topic unavailable" {
		t.Errorf("LastPublishError = %v", event.LastPublishError)
	}

	// A failed row is not due again until its backoff elapses.
	if published, _ := dispatcher.DispatchOnce(ctx); published != 0 {
		t.Errorf("published %d events while backing off, want 0", published)
	}

	// Drive the row to the attempt limit.
	state.mu.Lock()
	state.events[0].PublishAttempts = outboxMaxAttempts - 1
	state.events[0].NextAttemptAt = nil
	state.mu.Unlock()

	if _, err := dispatcher.DispatchOnce(ctx); err != nil {
		t.Fatalf("DispatchOnce: %v", err)
	}
	state.mu.Lock()
	event = state.events[0]
	state.mu.Unlock()
	if event.PublishStatus != models.OutboxPublishStatusDead {
		t.Errorf("status = %s, want DEAD after %d attempts", event.PublishStatus, outboxMaxAttempts)
	}
}
