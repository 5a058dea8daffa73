package workflow

import (
	"time"

	"github.com/shopspring/decimal"
)

// PipelineConfig carries every tunable the pipeline components need. It is
// injected at construction so tests can vary thresholds per case; components
// never read ambient globals for behaviour.
type PipelineConfig struct {
	// Deduplication thresholds, both in [0,1]. Scores at or above
	// DuplicateThreshold are confirmed duplicates; scores in
	// [ReviewThreshold, DuplicateThreshold) go to manual review.
	DuplicateThreshold float64
	ReviewThreshold    float64

	// Regionally configured poverty line, per capita per month.
	PovertyThreshold decimal.Decimal

	// Worker pool size for batch dispatch.
	WorkerCount int

	// Per-record processing budget; exceeding it fails the record.
	RecordTimeout time.Duration

	// Explicit retry bound for FAILED records.
	MaxRetries int

	// Backoff base for the retry queue.
	RetryBackoff time.Duration

	// When the identity verification service is down, proceed with a
	// warning instead of failing validation.
	AllowDegradedVerification bool

	// Retention scan page size.
	ArchiveBatchSize int

	// How long a retention scan may hold the per-entity-type lease.
	ScanLockTTL time.Duration
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		DuplicateThreshold:        0.90,
		ReviewThreshold:           0.70,
		PovertyThreshold:          decimal.NewFromInt(12030),
		WorkerCount:               10,
		RecordTimeout:             30 * time.Second,
		MaxRetries:                3,
		RetryBackoff:              5 * time.Second,
		AllowDegradedVerification: true,
		ArchiveBatchSize:          1000,
		ScanLockTTL:               10 * time.Minute,
	}
}
