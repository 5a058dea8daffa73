package models

import (
	"time"
)

// IngestionBatch is the aggregate root for one submitted unit of ingestion
// work. Only the batch coordinator mutates it; it is never hard-deleted, only
// archived per retention policy.
type IngestionBatch struct {
	ID               string             `gorm:"primaryKey;size:36" json:"id"`
	BatchID          string             `gorm:"size:100;not null;uniqueIndex" json:"batch_id"`
	SourceSystem     SourceSystem       `gorm:"size:50;not null" json:"source_system"`
	DataType         DataType           `gorm:"size:50;not null" json:"data_type"`
	Status           BatchStatus        `gorm:"size:20;not null;index" json:"status"`
	TotalRecords     int                `gorm:"not null;default:0" json:"total_records"`
	SuccessRecords   int                `gorm:"not null;default:0" json:"successful_records"`
	FailedRecords    int                `gorm:"not null;default:0" json:"failed_records"`
	DuplicateRecords int                `gorm:"not null;default:0" json:"duplicate_records"`
	SkippedRecords   int                `gorm:"not null;default:0" json:"skipped_records"`
	ProcessingTimeMs *int64             `json:"processing_time_ms"`
	FilePath         string             `gorm:"size:500" json:"file_path"`
	FileSizeBytes    *int64             `json:"file_size_bytes"`
	SubmittedBy      string             `gorm:"size:100" json:"submitted_by"`
	Priority         ProcessingPriority `gorm:"size:10;default:'NORMAL'" json:"processing_priority"`
	ErrorMessage     string             `gorm:"type:text" json:"error_message"`
	Warnings         Metadata           `gorm:"type:json" json:"warnings"`
	Extra            Metadata           `gorm:"type:json" json:"metadata"`
	CreatedAt        time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
	StartedAt        *time.Time         `json:"started_at"`
	CompletedAt      *time.Time         `json:"completed_at"`
}

func (b *IngestionBatch) IsCompleted() bool {
	return b.Status.IsTerminal()
}

// SuccessRate in percent; zero when nothing was submitted.
func (b *IngestionBatch) SuccessRate() float64 {
	if b.TotalRecords == 0 {
		return 0
	}
	return float64(b.SuccessRecords) / float64(b.TotalRecords) * 100.0
}

// CountersConsistent reports the aggregate invariant
// successful + failed + duplicate + skipped <= total.
func (b *IngestionBatch) CountersConsistent() bool {
	return b.SuccessRecords+b.FailedRecords+b.DuplicateRecords+b.SkippedRecords <= b.TotalRecords
}
