package models

import "time"

// Event types emitted through the transactional outbox.
const (
	EventBatchSubmitted  = "BATCH_SUBMITTED"
	EventBatchCompleted  = "BATCH_COMPLETED"
	EventBatchCancelled  = "BATCH_CANCELLED"
	EventEntityArchived  = "ENTITY_ARCHIVED"
	EventEntityRestored  = "ENTITY_RESTORED"
	EventArchiveExpired  = "ARCHIVE_EXPIRED"
	EventReviewFlagged   = "DUPLICATE_REVIEW_FLAGGED"
)

// RegistryEventRecord implements the transactional outbox: event rows are
// written inside the caller's DB transaction and published asynchronously by
// the outbox dispatcher after commit.
type RegistryEventRecord struct {
	ID               uint                `gorm:"primaryKey" json:"id"`
	EventType        string              `gorm:"size:50;not null;index" json:"event_type"`
	EntityType       string              `gorm:"size:50" json:"entity_type"`
	EntityID         string              `gorm:"size:36" json:"entity_id"`
	BatchID          string              `gorm:"size:100;index" json:"batch_id"`
	OccurredAt       time.Time           `gorm:"not null" json:"occurred_at"`
	Payload          []byte              `gorm:"type:json" json:"payload"`
	CorrelationId    string              `gorm:"size:64" json:"correlation_id"`
	IsProcessed      bool                `gorm:"not null;default:false;index" json:"is_processed"`
	PublishStatus    OutboxPublishStatus `gorm:"size:20;not null;default:'PENDING';index" json:"publish_status"`
	PublishAttempts  int                 `gorm:"not null;default:0" json:"publish_attempts"`
	LastPublishError *string             `gorm:"type:text" json:"last_publish_error"`
	NextAttemptAt    *time.Time          `json:"next_attempt_at"`
	LockedAt         *time.Time          `json:"locked_at"`
	LockedBy         *string             `gorm:"size:64" json:"locked_by"`
	CreatedAt        time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// DuplicateReviewFlag marks a pair of live entities the nightly audit found
// suspiciously similar. Reconciliation is manual-only; the pipeline never
// auto-merges.
type DuplicateReviewFlag struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	EntityType      string    `gorm:"size:50;not null" json:"entity_type"`
	EntityID        string    `gorm:"size:36;not null;index:uniq_review_pair,unique" json:"entity_id"`
	CandidateID     string    `gorm:"size:36;not null;index:uniq_review_pair,unique" json:"candidate_id"`
	SimilarityScore float64   `gorm:"not null" json:"similarity_score"`
	Resolved        bool      `gorm:"not null;default:false;index" json:"resolved"`
	ResolvedBy      string    `gorm:"size:100" json:"resolved_by"`
	Notes           string    `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
