package models

import (
	"time"
)

// IngestionRecord is one unit of per-record work, owned by exactly one
// IngestionBatch (FK only, no back-reference). Only the record processor
// mutates it.
type IngestionRecord struct {
	ID               string       `gorm:"primaryKey;size:36" json:"id"`
	BatchID          string       `gorm:"size:36;not null;index" json:"batch_id"`
	RecordIndex      int          `gorm:"not null" json:"record_index"`
	Status           RecordStatus `gorm:"size:20;not null;index" json:"status"`
	EntityID         *string      `gorm:"size:36" json:"entity_id"`
	EntityType       string       `gorm:"size:50" json:"entity_type"`
	SourceRecordID   string       `gorm:"size:100" json:"source_record_id"`
	RawData          Metadata     `gorm:"type:json" json:"raw_data"`
	ProcessedData    Metadata     `gorm:"type:json" json:"processed_data"`
	ValidationErrors Metadata     `gorm:"type:json" json:"validation_errors"`
	Warnings         Metadata     `gorm:"type:json" json:"warnings"`
	DuplicateOf      *string      `gorm:"size:36" json:"duplicate_of"`
	SimilarityScore  *float64     `json:"similarity_score"`
	ProcessingTimeMs *int64       `json:"processing_time_ms"`
	ErrorMessage     string       `gorm:"type:text" json:"error_message"`
	RetryCount       int          `gorm:"not null;default:0" json:"retry_count"`
	LastRetryAt      *time.Time   `json:"last_retry_at"`
	CreatedAt        time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
	ProcessedAt      *time.Time   `json:"processed_at"`
}

func (r *IngestionRecord) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// CanRetry reports whether the record is eligible for an explicit retry.
func (r *IngestionRecord) CanRetry(maxRetries int) bool {
	return r.Status == RecordStatusFailed && r.RetryCount < maxRetries
}
