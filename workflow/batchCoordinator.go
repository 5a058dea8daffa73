package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/dsrph/registry_backend/config"
	"github.com/dsrph/registry_backend/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// BatchSubmission is the input to Submit: an externally assigned batch id,
// provenance, and the raw record payloads.
type BatchSubmission struct {
	BatchID      string
	SourceSystem models.SourceSystem
	DataType     models.DataType
	Priority     models.ProcessingPriority
	SubmittedBy  string
	FilePath     string
	Records      []models.Metadata
}

// BatchReport is the Status answer: the batch aggregate plus per-record
// outcomes.
type BatchReport struct {
	Batch   *models.IngestionBatch
	Records []models.IngestionRecord
}

// BatchCoordinator owns batch lifecycle: submission, parallel dispatch,
// completion, cancellation, and explicit record retries. Records run on a
// shared bounded worker pool; batches submitted concurrently share workers.
type BatchCoordinator struct {
	stores    *Stores
	processor *RecordProcessor
	pool      pond.Pool
	cfg       PipelineConfig
	logger    *logrus.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewBatchCoordinator(stores *Stores, processor *RecordProcessor, cfg PipelineConfig, logger *logrus.Logger) *BatchCoordinator {
	return &BatchCoordinator{
		stores:    stores,
		processor: processor,
		pool:      pond.NewPool(cfg.WorkerCount, pond.WithQueueSize(cfg.WorkerCount*100)),
		cfg:       cfg,
		logger:    logger,
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Submit validates the envelope, persists the batch with one PENDING record
// per payload, emits BATCH_SUBMITTED, and runs the records to completion.
// Re-submitting an already-known batch id returns the existing batch without
// reprocessing anything.
func (c *BatchCoordinator) Submit(ctx context.Context, sub BatchSubmission) (*models.IngestionBatch, error) {
	if err := validateSubmission(sub); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	batch := &models.IngestionBatch{
		ID:           uuid.NewString(),
		BatchID:      sub.BatchID,
		SourceSystem: sub.SourceSystem,
		DataType:     sub.DataType,
		Status:       models.BatchStatusProcessing,
		TotalRecords: len(sub.Records),
		SubmittedBy:  sub.SubmittedBy,
		FilePath:     sub.FilePath,
		Priority:     sub.Priority,
		StartedAt:    &now,
	}
	if batch.Priority == "" {
		batch.Priority = models.PriorityNormal
	}

	records := make([]*models.IngestionRecord, 0, len(sub.Records))
	for i, raw := range sub.Records {
		record := &models.IngestionRecord{
			ID:          uuid.NewString(),
			BatchID:     batch.ID,
			RecordIndex: i,
			Status:      models.RecordStatusPending,
			RawData:     raw,
		}
		if sourceID, ok := raw.GetString("source_record_id"); ok {
			record.SourceRecordID = sourceID
		}
		records = append(records, record)
	}

	if err := c.stores.Batches.Create(ctx, batch, records); err != nil {
		if errors.Is(err, ErrBatchExists) {
			existing, lookupErr := c.stores.Batches.GetByBatchID(ctx, sub.BatchID)
			if lookupErr != nil {
				return nil, lookupErr
			}
			c.logger.WithFields(logrus.Fields{"batch_id": sub.BatchID}).
				Info("batch already submitted, returning existing")
			return existing, nil
		}
		return nil, err
	}

	if err := c.stores.Outbox.Append(ctx, models.EventBatchSubmitted, "INGESTION_BATCH", batch.ID, batch.BatchID,
		map[string]any{"total_records": batch.TotalRecords, "source_system": batch.SourceSystem, "data_type": batch.DataType}); err != nil {
		c.logger.WithError(err).Error("failed to append batch submitted event")
	}

	c.runBatch(ctx, batch, records)
	return c.stores.Batches.Get(ctx, batch.ID)
}

func (c *BatchCoordinator) runBatch(ctx context.Context, batch *models.IngestionBatch, records []*models.IngestionRecord) {
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.cancels[batch.BatchID] = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.cancels, batch.BatchID)
		c.mu.Unlock()
	}()

	group := c.pool.NewGroupContext(batchCtx)
	for _, record := range records {
		record := record
		group.Submit(func() {
			if batchCtx.Err() != nil {
				return
			}
			if _, err := c.processor.Process(batchCtx, batch, record); err != nil {
				c.logger.WithFields(logrus.Fields{
					"batch_id":  batch.BatchID,
					"record_id": record.ID,
				}).WithError(err).Error("record processing failed")
			}
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, pond.ErrGroupStopped) && !errors.Is(err, context.Canceled) {
		c.logger.WithFields(logrus.Fields{"batch_id": batch.BatchID}).
			WithError(err).Error("batch group wait failed")
	}

	cancelled := batchCtx.Err() != nil && ctx.Err() == nil
	c.finishBatch(context.WithoutCancel(ctx), batch.ID, cancelled)
}

// finishBatch skips records a cancellation left unprocessed, settles the
// terminal status from actual record outcomes, and emits the completion event.
func (c *BatchCoordinator) finishBatch(ctx context.Context, id string, cancelled bool) {
	if cancelled {
		pending, err := c.stores.Records.ListPending(ctx, id)
		if err != nil {
			c.logger.WithError(err).Error("failed to list pending records at completion")
		}
		for i := range pending {
			record := pending[i]
			record.ErrorMessage = "batch cancelled"
			if err := c.stores.Records.Finish(ctx, &record, models.RecordStatusSkipped); err != nil {
				continue
			}
			if err := c.stores.Batches.IncrementCounter(ctx, id, models.RecordStatusSkipped); err != nil {
				c.logger.WithError(err).Error("failed to count skipped record")
			}
		}
	}

	batch, err := c.stores.Batches.Get(ctx, id)
	if err != nil {
		c.logger.WithError(err).Error("failed to load batch for completion")
		return
	}

	// Skipped records are not failures, but they are not successes either:
	// any skip keeps the batch out of SUCCESS.
	var status models.BatchStatus
	var message string
	switch {
	case batch.FailedRecords == 0 && batch.SkippedRecords == 0:
		status = models.BatchStatusSuccess
	case batch.SuccessRecords > 0 || batch.DuplicateRecords > 0 || batch.SkippedRecords > 0:
		status = models.BatchStatusPartial
		if batch.FailedRecords > 0 {
			message = fmt.Sprintf("%d of %d records failed", batch.FailedRecords, batch.TotalRecords)
		} else {
			message = fmt.Sprintf("%d of %d records skipped", batch.SkippedRecords, batch.TotalRecords)
		}
	default:
		status = models.BatchStatusFailed
		message = "all records failed"
	}
	if cancelled && status != models.BatchStatusSuccess {
		message = "batch cancelled"
	}

	completed, err := c.stores.Batches.Complete(ctx, id, status, message)
	if err != nil {
		if !errors.Is(err, ErrBatchTerminal) {
			c.logger.WithError(err).Error("failed to complete batch")
		}
		return
	}

	eventType := models.EventBatchCompleted
	if cancelled {
		eventType = models.EventBatchCancelled
	}
	if err := c.stores.Outbox.Append(ctx, eventType, "INGESTION_BATCH", completed.ID, completed.BatchID,
		map[string]any{
			"status":            completed.Status,
			"total_records":     completed.TotalRecords,
			"success_records":   completed.SuccessRecords,
			"failed_records":    completed.FailedRecords,
			"duplicate_records": completed.DuplicateRecords,
			"skipped_records":   completed.SkippedRecords,
		}); err != nil {
		c.logger.WithError(err).Error("failed to append batch completion event")
	}

	c.logger.WithFields(logrus.Fields{
		"batch_id":     completed.BatchID,
		"status":       completed.Status,
		"success":      completed.SuccessRecords,
		"failed":       completed.FailedRecords,
		"duplicates":   completed.DuplicateRecords,
		"skipped":      completed.SkippedRecords,
		"success_rate": fmt.Sprintf("%.1f%%", completed.SuccessRate()),
	}).Info("batch completed")
}

// Status returns the batch aggregate and per-record outcomes by external
// batch id. Terminal batches are immutable, so their reports are served from
// the Redis cache once built.
func (c *BatchCoordinator) Status(ctx context.Context, batchID string) (*BatchReport, error) {
	cacheKey := batchReportCacheKey(batchID)
	var cached BatchReport
	if found, err := config.GetRedisObject(cacheKey, &cached); err == nil && found {
		return &cached, nil
	}

	batch, err := c.stores.Batches.GetByBatchID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	records, err := c.stores.Records.ListByBatch(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	report := &BatchReport{Batch: batch, Records: records}
	if batch.IsCompleted() {
		if err := config.SetRedisObject(cacheKey, report, time.Hour); err != nil {
			config.LogWarn(c.logger, "workflow", "Status", "batch report cache", err.Error())
		}
	}
	return report, nil
}

func batchReportCacheKey(batchID string) string {
	return "registry:batch-report:" + batchID
}

// Cancel requests cooperative cancellation of an in-flight batch. In-flight
// records finish; unstarted records are skipped. Completed batches cannot be
// cancelled.
func (c *BatchCoordinator) Cancel(ctx context.Context, batchID string) error {
	batch, err := c.stores.Batches.GetByBatchID(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.IsCompleted() {
		return ErrBatchTerminal
	}

	c.mu.Lock()
	cancel, ok := c.cancels[batchID]
	c.mu.Unlock()
	if !ok {
		return ErrBatchNotFound
	}
	cancel()
	return nil
}

// RetryRecord re-runs one FAILED record. The retry bound is explicit; beyond
// it the caller gets ErrRetryExhausted and the record needs manual handling.
func (c *BatchCoordinator) RetryRecord(ctx context.Context, recordID string) (models.RecordStatus, error) {
	record, err := c.stores.Records.Get(ctx, recordID)
	if err != nil {
		return "", err
	}
	if record.Status != models.RecordStatusFailed {
		return record.Status, fmt.Errorf("record %s is %s, only FAILED records can be retried", recordID, record.Status)
	}
	if !record.CanRetry(c.cfg.MaxRetries) {
		return record.Status, ErrRetryExhausted
	}

	batch, err := c.stores.Batches.Get(ctx, record.BatchID)
	if err != nil {
		return record.Status, err
	}

	record, err = c.stores.Records.MarkForRetry(ctx, recordID)
	if err != nil {
		return "", err
	}
	if err := c.stores.Batches.DecrementFailed(ctx, batch.ID); err != nil {
		c.logger.WithError(err).Error("failed to release failed counter for retry")
	}
	// The retry changes record outcomes, the cached report is stale.
	if err := config.RemoveRedisKey(batchReportCacheKey(batch.BatchID)); err != nil {
		config.LogWarn(c.logger, "workflow", "RetryRecord", "batch report cache", err.Error())
	}

	return c.processor.Process(ctx, batch, record)
}

func validateSubmission(sub BatchSubmission) error {
	var ferrs []FieldError
	if sub.BatchID == "" {
		ferrs = append(ferrs, FieldError{Field: "batch_id", Rule: "required", Message: "batch id is required"})
	}
	if !sub.SourceSystem.IsValid() {
		ferrs = append(ferrs, FieldError{Field: "source_system", Rule: "enum", Message: fmt.Sprintf("unknown source system %q", sub.SourceSystem)})
	}
	if !sub.DataType.IsValid() {
		ferrs = append(ferrs, FieldError{Field: "data_type", Rule: "enum", Message: fmt.Sprintf("unknown data type %q", sub.DataType)})
	}
	if len(sub.Records) == 0 {
		ferrs = append(ferrs, FieldError{Field: "records", Rule: "required", Message: "batch must contain at least one record"})
	}
	if len(ferrs) > 0 {
		return &ValidationFailedError{Errors: ferrs}
	}
	return nil
}
