package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/dsrph/registry_backend/config"
	"github.com/dsrph/registry_backend/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	outboxPollInterval = 5 * time.Second
	outboxClaimLimit   = 100
	outboxMaxAttempts  = 8
)

// EventPublisher is the downstream side of the outbox. The production
// implementation publishes to Pub/Sub; tests substitute a recorder.
type EventPublisher interface {
	Publish(ctx context.Context, event *models.RegistryEventRecord) error
}

// PubSubPublisher publishes outbox rows to the registry events topic with
// ordering per batch id.
type PubSubPublisher struct {
	topic *pubsub.Topic
}

func NewPubSubPublisher(ctx context.Context) (*PubSubPublisher, error) {
	client, err := config.GetPubSubClient(ctx)
	if err != nil {
		return nil, err
	}
	topic := client.Topic(config.RegistryEventsTopic())
	topic.EnableMessageOrdering = true
	return &PubSubPublisher{topic: topic}, nil
}

func (p *PubSubPublisher) Publish(ctx context.Context, event *models.RegistryEventRecord) error {
	wire := config.RegistryEvent{
		ID:            event.ID,
		EventType:     event.EventType,
		EntityType:    event.EntityType,
		EntityID:      event.EntityID,
		BatchID:       event.BatchID,
		OccurredAt:    event.OccurredAt,
		Payload:       event.Payload,
		CorrelationId: event.CorrelationId,
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return err
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_type":  event.EventType,
			"entity_type": event.EntityType,
		},
	}
	if event.BatchID != "" {
		msg.OrderingKey = event.BatchID
	}
	_, err = p.topic.Publish(ctx, msg).Get(ctx)
	return err
}

// OutboxDispatcher drains pending outbox rows to the publisher. Rows are
// claimed with SKIP LOCKED so multiple dispatcher instances can run; a row
// that keeps failing moves to DEAD after outboxMaxAttempts and waits for an
// operator.
type OutboxDispatcher struct {
	outbox    EventOutbox
	publisher EventPublisher
	logger    *logrus.Logger
	workerID  string
}

func NewOutboxDispatcher(outbox EventOutbox, publisher EventPublisher, logger *logrus.Logger) *OutboxDispatcher {
	host, _ := os.Hostname()
	return &OutboxDispatcher{
		outbox:    outbox,
		publisher: publisher,
		logger:    logger,
		workerID:  fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
	}
}

// Run polls until the context is cancelled.
func (d *OutboxDispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(outboxPollInterval)
	defer ticker.Stop()
	for {
		if _, err := d.DispatchOnce(ctx); err != nil {
			d.logger.WithError(err).Error("outbox dispatch pass failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// DispatchOnce claims and publishes one page of due events. Returns the
// number published.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) (int, error) {
	events, err := d.outbox.ClaimPending(ctx, d.workerID, outboxClaimLimit)
	if err != nil {
		return 0, err
	}

	published := 0
	for i := range events {
		event := events[i]
		if err := d.publisher.Publish(ctx, &event); err != nil {
			attempts := event.PublishAttempts + 1
			dead := attempts >= outboxMaxAttempts
			backoff := time.Duration(1<<min(attempts, 6)) * time.Second
			if markErr := d.outbox.MarkFailed(ctx, event.ID, err.Error(), time.Now().UTC().Add(backoff), dead); markErr != nil {
				d.logger.WithError(markErr).Error("failed to mark outbox event failed")
			}
			if dead {
				d.logger.WithFields(logrus.Fields{"event_id": event.ID, "event_type": event.EventType}).
					WithError(err).Error("outbox event moved to dead letter")
			} else {
				d.logger.WithFields(logrus.Fields{"event_id": event.ID, "attempts": attempts}).
					WithError(err).Warn("outbox publish failed, will retry")
			}
			continue
		}
		if err := d.outbox.MarkPublished(ctx, event.ID); err != nil {
			d.logger.WithError(err).Error("failed to mark outbox event published")
			continue
		}
		published++
	}
	return published, nil
}
