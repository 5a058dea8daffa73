package workflow

import (
	"errors"
	"fmt"
	"strings"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

var (
	// ErrPersistenceConflict means another writer touched the same entity;
	// the operation is retryable.
	ErrPersistenceConflict = errors.New("persistence conflict")

	// ErrPolicyNotFound means no retention policy is active for the entity
	// type; automatic action is skipped, this is not surfaced to callers.
	ErrPolicyNotFound = errors.New("no active retention policy")

	// ErrBatchNotFound / ErrRecordNotFound for status and retry lookups.
	ErrBatchNotFound  = errors.New("batch not found")
	ErrRecordNotFound = errors.New("ingestion record not found")

	// ErrBatchTerminal means the batch already reached a terminal status.
	ErrBatchTerminal = errors.New("batch already completed")

	// ErrBatchExists means a batch with the same external batch id was
	// already submitted; re-submission returns the existing batch.
	ErrBatchExists = errors.New("batch already submitted")

	// ErrRetryExhausted means the record reached its retry limit and needs
	// manual intervention.
	ErrRetryExhausted = errors.New("record retries exhausted")

	// ErrVerifierUnavailable means the identity verification service could
	// not be reached.
	ErrVerifierUnavailable = errors.New("identity verification service unavailable")
)

// FieldError is one structured validation violation.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationFailedError carries the full list of violations for a record.
// It is recoverable by caller correction and never partially persists.
type ValidationFailedError struct {
	Errors []FieldError
}

func (e *ValidationFailedError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// IntegrityError means an archive checksum did not match its snapshot.
// Fatal for that restore; never silently proceeds.
type IntegrityError struct {
	ArchiveID string
	Expected  string
	Actual    string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("archive %s failed integrity check: checksum %s does not match %s",
		e.ArchiveID, e.Actual, e.Expected)
}

// TimeoutError marks a record that exceeded its per-record processing budget.
type TimeoutError struct {
	RecordID string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("record %s exceeded processing timeout", e.RecordID)
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
