package models

import "fmt"

type SourceSystem string

const (
	SourceSystemListahanan  SourceSystem = "LISTAHANAN"
	SourceSystemIRegistro   SourceSystem = "I_REGISTRO"
	SourceSystemManualEntry SourceSystem = "MANUAL_ENTRY"
)

func (s SourceSystem) IsValid() bool {
	switch s {
	case SourceSystemListahanan, SourceSystemIRegistro, SourceSystemManualEntry:
		return true
	}
	return false
}

type DataType string

const (
	DataTypeHousehold       DataType = "HOUSEHOLD"
	DataTypeIndividual      DataType = "INDIVIDUAL"
	DataTypeEconomicProfile DataType = "ECONOMIC_PROFILE"
)

func (d DataType) IsValid() bool {
	switch d {
	case DataTypeHousehold, DataTypeIndividual, DataTypeEconomicProfile:
		return true
	}
	return false
}

type ProcessingPriority string

const (
	PriorityHigh   ProcessingPriority = "HIGH"
	PriorityNormal ProcessingPriority = "NORMAL"
	PriorityLow    ProcessingPriority = "LOW"
)

type BatchStatus string

const (
	BatchStatusProcessing BatchStatus = "PROCESSING"
	BatchStatusSuccess    BatchStatus = "SUCCESS"
	BatchStatusPartial    BatchStatus = "PARTIAL"
	BatchStatusFailed     BatchStatus = "FAILED"
)

func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusSuccess || s == BatchStatusPartial || s == BatchStatusFailed
}

// TransitionBatchStatus is the single place batch status transitions are
// checked. PROCESSING may move to any terminal state; terminal states are
// frozen.
func TransitionBatchStatus(from, to BatchStatus) (BatchStatus, error) {
	if from.IsTerminal() {
		return from, fmt.Errorf("batch status %s is terminal, cannot transition to %s", from, to)
	}
	if from != BatchStatusProcessing {
		return from, fmt.Errorf("unknown batch status %s", from)
	}
	if !to.IsTerminal() {
		return from, fmt.Errorf("invalid batch transition %s -> %s", from, to)
	}
	return to, nil
}

type RecordStatus string

const (
	RecordStatusPending   RecordStatus = "PENDING"
	RecordStatusSuccess   RecordStatus = "SUCCESS"
	RecordStatusFailed    RecordStatus = "FAILED"
	RecordStatusDuplicate RecordStatus = "DUPLICATE"
	RecordStatusSkipped   RecordStatus = "SKIPPED"
)

func (s RecordStatus) IsTerminal() bool {
	switch s {
	case RecordStatusSuccess, RecordStatusFailed, RecordStatusDuplicate, RecordStatusSkipped:
		return true
	}
	return false
}

// TransitionRecordStatus is the single place record status transitions are
// checked. PENDING moves to any terminal state; FAILED may return to PENDING
// for an explicit retry; every other terminal state is frozen.
func TransitionRecordStatus(from, to RecordStatus) (RecordStatus, error) {
	switch {
	case from == RecordStatusPending && to.IsTerminal():
		return to, nil
	case from == RecordStatusFailed && to == RecordStatusPending:
		return to, nil
	default:
		return from, fmt.Errorf("invalid record transition %s -> %s", from, to)
	}
}

type ArchiveStatus string

const (
	ArchiveStatusActive   ArchiveStatus = "ACTIVE"
	ArchiveStatusRestored ArchiveStatus = "RESTORED"
	ArchiveStatusExpired  ArchiveStatus = "EXPIRED"
	ArchiveStatusDeleted  ArchiveStatus = "DELETED"
)

type VerificationStatus string

const (
	VerificationStatusPending  VerificationStatus = "PENDING"
	VerificationStatusVerified VerificationStatus = "VERIFIED"
	VerificationStatusRejected VerificationStatus = "REJECTED"
)

type AssessmentMethod string

const (
	AssessmentMethodSurvey         AssessmentMethod = "SURVEY"
	AssessmentMethodAdministrative AssessmentMethod = "ADMINISTRATIVE"
	AssessmentMethodHybrid         AssessmentMethod = "HYBRID"
)

type HouseholdStatus string

const (
	HouseholdStatusActive   HouseholdStatus = "ACTIVE"
	HouseholdStatusInactive HouseholdStatus = "INACTIVE"
	HouseholdStatusArchived HouseholdStatus = "ARCHIVED"
)

type OutboxPublishStatus string

const (
	OutboxPublishStatusPending    OutboxPublishStatus = "PENDING"
	OutboxPublishStatusProcessing OutboxPublishStatus = "PROCESSING"
	OutboxPublishStatusPublished  OutboxPublishStatus = "PUBLISHED"
	OutboxPublishStatusFailed     OutboxPublishStatus = "FAILED"
	OutboxPublishStatusDead       OutboxPublishStatus = "DEAD"
)
