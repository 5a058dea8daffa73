package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dsrph/registry_backend/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BatchStore persists ingestion batches. Counter updates and completion go
// through here so the status transition check cannot be bypassed.
type BatchStore interface {
	Create(ctx context.Context, batch *models.IngestionBatch, records []*models.IngestionRecord) error
	Get(ctx context.Context, id string) (*models.IngestionBatch, error)
	GetByBatchID(ctx context.Context, batchID string) (*models.IngestionBatch, error)
	IncrementCounter(ctx context.Context, id string, status models.RecordStatus) error
	DecrementFailed(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, to models.BatchStatus, errorMessage string) (*models.IngestionBatch, error)
}

// RecordStore persists per-record state. Terminal transitions go through
// Finish; retry re-arming goes through MarkForRetry.
type RecordStore interface {
	Get(ctx context.Context, id string) (*models.IngestionRecord, error)
	ListByBatch(ctx context.Context, batchID string) ([]models.IngestionRecord, error)
	ListPending(ctx context.Context, batchID string) ([]models.IngestionRecord, error)
	Finish(ctx context.Context, record *models.IngestionRecord, to models.RecordStatus) error
	MarkForRetry(ctx context.Context, id string) (*models.IngestionRecord, error)
}

// HouseholdStore persists live households and members and serves dedup
// candidate lookups.
type HouseholdStore interface {
	CandidateIndex
	Create(ctx context.Context, hh *models.Household) error
	Get(ctx context.Context, id string) (*models.Household, error)
	GetByNumber(ctx context.Context, householdNumber string) (*models.Household, error)
	Update(ctx context.Context, hh *models.Household) error
	AddMember(ctx context.Context, member *models.HouseholdMember) error
	ListMembers(ctx context.Context, householdID string) ([]models.HouseholdMember, error)
	MemberByPsn(ctx context.Context, psn string) (*models.HouseholdMember, error)
	ListActive(ctx context.Context, offset, limit int) ([]models.Household, error)
	ListArchivable(ctx context.Context, cutoff time.Time, limit int) ([]models.Household, error)
	Delete(ctx context.Context, id string) error
}

// ProfileStore persists economic assessments. Profiles are append-only;
// a new assessment supersedes the previous one by date.
type ProfileStore interface {
	Create(ctx context.Context, profile *models.EconomicProfile) error
	LatestForHousehold(ctx context.Context, householdID string) (*models.EconomicProfile, error)
	ListForHousehold(ctx context.Context, householdID string) ([]models.EconomicProfile, error)
}

// ArchiveStore persists archive snapshots.
type ArchiveStore interface {
	Create(ctx context.Context, archived *models.ArchivedData) error
	Get(ctx context.Context, id string) (*models.ArchivedData, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.ArchivedData, error)
	ListDeletable(ctx context.Context, limit int) ([]models.ArchivedData, error)
	SetStatus(ctx context.Context, id string, status models.ArchiveStatus) error
	MarkDeleted(ctx context.Context, id string) error
	MarkRestored(ctx context.Context, id, restoredBy, reason string, at time.Time) error
}

// PolicyStore resolves the active retention policy per entity type.
type PolicyStore interface {
	Create(ctx context.Context, policy *models.RetentionPolicy) error
	ActiveFor(ctx context.Context, entityType string, now time.Time) (*models.RetentionPolicy, error)
}

// EventOutbox appends registry events in the caller's transaction and hands
// pending rows to the dispatcher.
type EventOutbox interface {
	Append(ctx context.Context, eventType, entityType, entityID, batchID string, payload any) error
	ClaimPending(ctx context.Context, workerID string, limit int) ([]models.RegistryEventRecord, error)
	MarkPublished(ctx context.Context, id uint) error
	MarkFailed(ctx context.Context, id uint, publishErr string, nextAttempt time.Time, dead bool) error
}

// ReviewStore records near-duplicate pairs for manual reconciliation.
type ReviewStore interface {
	Flag(ctx context.Context, flag *models.DuplicateReviewFlag) error
	ListUnresolved(ctx context.Context, limit int) ([]models.DuplicateReviewFlag, error)
}

// Stores bundles every persistence interface over one *gorm.DB. InTx yields a
// Stores view bound to a transaction so a record's entity, status and outbox
// event commit or roll back together.
type Stores struct {
	db *gorm.DB

	Batches    BatchStore
	Records    RecordStore
	Households HouseholdStore
	Profiles   ProfileStore
	Archives   ArchiveStore
	Policies   PolicyStore
	Outbox     EventOutbox
	Reviews    ReviewStore
}

func NewStores(db *gorm.DB) *Stores {
	return &Stores{
		db:         db,
		Batches:    &gormBatchStore{db: db},
		Records:    &gormRecordStore{db: db},
		Households: &gormHouseholdStore{db: db},
		Profiles:   &gormProfileStore{db: db},
		Archives:   &gormArchiveStore{db: db},
		Policies:   &gormPolicyStore{db: db},
		Outbox:     &gormEventOutbox{db: db},
		Reviews:    &gormReviewStore{db: db},
	}
}

func (s *Stores) InTx(ctx context.Context, fn func(tx *Stores) error) error {
	if s.db == nil {
		// Memory-backed stores have no transaction boundary.
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStores(tx))
	})
}

type gormBatchStore struct{ db *gorm.DB }

func (s *gormBatchStore) Create(ctx context.Context, batch *models.IngestionBatch, records []*models.IngestionRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(batch).Error; err != nil {
			if isDuplicateKeyErr(err) {
				return ErrBatchExists
			}
			return err
		}
		for _, record := range records {
			if err := tx.Create(record).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *gormBatchStore) Get(ctx context.Context, id string) (*models.IngestionBatch, error) {
	var batch models.IngestionBatch
	err := s.db.WithContext(ctx).First(&batch, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (s *gormBatchStore) GetByBatchID(ctx context.Context, batchID string) (*models.IngestionBatch, error) {
	var batch models.IngestionBatch
	err := s.db.WithContext(ctx).First(&batch, "batch_id = ?", batchID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// IncrementCounter bumps the aggregate counter matching a record's terminal
// status. Atomic at the SQL level so concurrent workers never lose updates.
func (s *gormBatchStore) IncrementCounter(ctx context.Context, id string, status models.RecordStatus) error {
	var column string
	switch status {
	case models.RecordStatusSuccess:
		column = "success_records"
	case models.RecordStatusFailed:
		column = "failed_records"
	case models.RecordStatusSkipped:
		column = "skipped_records"
	case models.RecordStatusDuplicate:
		column = "duplicate_records"
	default:
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.IngestionBatch{}).
		Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + 1")).Error
}

// DecrementFailed releases one failed-record count when a record is re-armed
// for retry, keeping the aggregate invariant intact across the rerun.
func (s *gormBatchStore) DecrementFailed(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&models.IngestionBatch{}).
		Where("id = ? AND failed_records > 0", id).
		UpdateColumn("failed_records", gorm.Expr("failed_records - 1")).Error
}

func (s *gormBatchStore) Complete(ctx context.Context, id string, to models.BatchStatus, errorMessage string) (*models.IngestionBatch, error) {
	var batch models.IngestionBatch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&batch, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBatchNotFound
			}
			return err
		}
		next, err := models.TransitionBatchStatus(batch.Status, to)
		if err != nil {
			return ErrBatchTerminal
		}
		now := time.Now().UTC()
		batch.Status = next
		batch.CompletedAt = &now
		batch.ErrorMessage = errorMessage
		if batch.StartedAt != nil {
			elapsed := now.Sub(*batch.StartedAt).Milliseconds()
			batch.ProcessingTimeMs = &elapsed
		}
		return tx.Save(&batch).Error
	})
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

type gormRecordStore struct{ db *gorm.DB }

func (s *gormRecordStore) Get(ctx context.Context, id string) (*models.IngestionRecord, error) {
	var record models.IngestionRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *gormRecordStore) ListByBatch(ctx context.Context, batchID string) ([]models.IngestionRecord, error) {
	var records []models.IngestionRecord
	err := s.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("record_index asc").
		Find(&records).Error
	return records, err
}

func (s *gormRecordStore) ListPending(ctx context.Context, batchID string) ([]models.IngestionRecord, error) {
	var records []models.IngestionRecord
	err := s.db.WithContext(ctx).
		Where("batch_id = ? AND status = ?", batchID, models.RecordStatusPending).
		Order("record_index asc").
		Find(&records).Error
	return records, err
}

// Finish applies a terminal transition and persists the record's outcome
// fields in one write. The transition guard keeps already-terminal records
// frozen even under concurrent workers.
func (s *gormRecordStore) Finish(ctx context.Context, record *models.IngestionRecord, to models.RecordStatus) error {
	next, err := models.TransitionRecordStatus(record.Status, to)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	record.Status = next
	record.ProcessedAt = &now

	result := s.db.WithContext(ctx).Model(&models.IngestionRecord{}).
		Where("id = ? AND status = ?", record.ID, models.RecordStatusPending).
		Updates(map[string]any{
			"status":            record.Status,
			"entity_id":         record.EntityID,
			"processed_data":    record.ProcessedData,
			"validation_errors": record.ValidationErrors,
			"warnings":          record.Warnings,
			"duplicate_of":      record.DuplicateOf,
			"similarity_score":  record.SimilarityScore,
			"processing_time_ms": record.ProcessingTimeMs,
			"error_message":     record.ErrorMessage,
			"processed_at":      record.ProcessedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPersistenceConflict
	}
	return nil
}

// MarkForRetry re-arms a FAILED record as PENDING and bumps its retry count.
func (s *gormRecordStore) MarkForRetry(ctx context.Context, id string) (*models.IngestionRecord, error) {
	record, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := models.TransitionRecordStatus(record.Status, models.RecordStatusPending)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&models.IngestionRecord{}).
		Where("id = ? AND status = ?", id, models.RecordStatusFailed).
		Updates(map[string]any{
			"status":        next,
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_retry_at": now,
			"error_message": "",
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrPersistenceConflict
	}
	record.Status = next
	record.RetryCount++
	record.LastRetryAt = &now
	record.ErrorMessage = ""
	return record, nil
}

type gormHouseholdStore struct{ db *gorm.DB }

func (s *gormHouseholdStore) Create(ctx context.Context, hh *models.Household) error {
	err := s.db.WithContext(ctx).Create(hh).Error
	if isDuplicateKeyErr(err) {
		return ErrPersistenceConflict
	}
	return err
}

func (s *gormHouseholdStore) Get(ctx context.Context, id string) (*models.Household, error) {
	var hh models.Household
	err := s.db.WithContext(ctx).First(&hh, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &hh, nil
}

func (s *gormHouseholdStore) GetByNumber(ctx context.Context, householdNumber string) (*models.Household, error) {
	var hh models.Household
	err := s.db.WithContext(ctx).First(&hh, "household_number = ?", householdNumber).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &hh, nil
}

// Update writes through the optimistic lock: the row must still carry the
// version the caller read, otherwise another writer won and the caller gets
// ErrPersistenceConflict.
func (s *gormHouseholdStore) Update(ctx context.Context, hh *models.Household) error {
	currentVersion := hh.Version
	hh.Version++
	result := s.db.WithContext(ctx).Model(&models.Household{}).
		Where("id = ? AND version = ?", hh.ID, currentVersion).
		Select("*").Omit("id", "created_at").
		Updates(hh)
	if result.Error != nil {
		hh.Version = currentVersion
		return result.Error
	}
	if result.RowsAffected == 0 {
		hh.Version = currentVersion
		return ErrPersistenceConflict
	}
	return nil
}

func (s *gormHouseholdStore) AddMember(ctx context.Context, member *models.HouseholdMember) error {
	return s.db.WithContext(ctx).Create(member).Error
}

func (s *gormHouseholdStore) ListMembers(ctx context.Context, householdID string) ([]models.HouseholdMember, error) {
	var members []models.HouseholdMember
	err := s.db.WithContext(ctx).
		Where("household_id = ?", householdID).
		Order("created_at asc").
		Find(&members).Error
	return members, err
}

func (s *gormHouseholdStore) MemberByPsn(ctx context.Context, psn string) (*models.HouseholdMember, error) {
	var member models.HouseholdMember
	err := s.db.WithContext(ctx).First(&member, "psn = ?", psn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// Candidates serves the dedup probe. The blocking key is the barangay plus
// the PSN index; a missing barangay widens to the municipality.
func (s *gormHouseholdStore) Candidates(ctx context.Context, probe DedupCandidate) ([]DedupCandidate, error) {
	query := s.db.WithContext(ctx).Model(&models.Household{}).
		Where("status = ?", models.HouseholdStatusActive)
	switch {
	case probe.Psn != "":
		query = query.Where("head_of_household_psn = ? OR barangay = ?", probe.Psn, probe.Barangay)
	case probe.Barangay != "":
		query = query.Where("barangay = ?", probe.Barangay)
	case probe.Municipality != "":
		query = query.Where("municipality = ?", probe.Municipality)
	}

	var households []models.Household
	if err := query.Limit(500).Find(&households).Error; err != nil {
		return nil, err
	}
	candidates := make([]DedupCandidate, 0, len(households))
	for _, hh := range households {
		candidates = append(candidates, householdCandidate(&hh))
	}
	return candidates, nil
}

// householdCandidate projects a household onto the fields the similarity
// scorer compares. Name and birth date must come through, or near-duplicates
// in the same barangay collapse onto the address signal alone.
func householdCandidate(hh *models.Household) DedupCandidate {
	cand := DedupCandidate{
		EntityID:     hh.ID,
		Psn:          hh.HeadOfHouseholdPsn,
		FullName:     hh.HeadOfHouseholdName,
		Region:       hh.Region,
		Province:     hh.Province,
		Municipality: hh.Municipality,
		Barangay:     hh.Barangay,
	}
	if hh.HeadOfHouseholdDob != nil {
		cand.DateOfBirth = hh.HeadOfHouseholdDob.Format("2006-01-02")
	}
	return cand
}

func (s *gormHouseholdStore) ListActive(ctx context.Context, offset, limit int) ([]models.Household, error) {
	var households []models.Household
	err := s.db.WithContext(ctx).
		Where("status = ?", models.HouseholdStatusActive).
		Order("id asc").
		Offset(offset).
		Limit(limit).
		Find(&households).Error
	return households, err
}

// ListArchivable returns households untouched since the cutoff. Status does
// not matter here: an ACTIVE household nobody has updated through the
// retention window ages out the same as an inactive one.
func (s *gormHouseholdStore) ListArchivable(ctx context.Context, cutoff time.Time, limit int) ([]models.Household, error) {
	var households []models.Household
	err := s.db.WithContext(ctx).
		Where("updated_at < ?", cutoff).
		Limit(limit).
		Find(&households).Error
	return households, err
}

// Delete removes the whole aggregate: members and assessment history go with
// the household. Archival snapshots them first.
func (s *gormHouseholdStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("household_id = ?", id).Delete(&models.HouseholdMember{}).Error; err != nil {
			return err
		}
		if err := tx.Where("household_id = ?", id).Delete(&models.EconomicProfile{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Household{}, "id = ?", id).Error
	})
}

type gormProfileStore struct{ db *gorm.DB }

func (s *gormProfileStore) Create(ctx context.Context, profile *models.EconomicProfile) error {
	return s.db.WithContext(ctx).Create(profile).Error
}

func (s *gormProfileStore) LatestForHousehold(ctx context.Context, householdID string) (*models.EconomicProfile, error) {
	var profile models.EconomicProfile
	err := s.db.WithContext(ctx).
		Where("household_id = ?", householdID).
		Order("assessment_date desc").
		First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *gormProfileStore) ListForHousehold(ctx context.Context, householdID string) ([]models.EconomicProfile, error) {
	var profiles []models.EconomicProfile
	err := s.db.WithContext(ctx).
		Where("household_id = ?", householdID).
		Order("assessment_date asc").
		Find(&profiles).Error
	return profiles, err
}

type gormArchiveStore struct{ db *gorm.DB }

func (s *gormArchiveStore) Create(ctx context.Context, archived *models.ArchivedData) error {
	return s.db.WithContext(ctx).Create(archived).Error
}

func (s *gormArchiveStore) Get(ctx context.Context, id string) (*models.ArchivedData, error) {
	var archived models.ArchivedData
	err := s.db.WithContext(ctx).First(&archived, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &archived, nil
}

func (s *gormArchiveStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.ArchivedData, error) {
	var archived []models.ArchivedData
	err := s.db.WithContext(ctx).
		Where("status = ? AND retention_until < ?", models.ArchiveStatusActive, now).
		Limit(limit).
		Find(&archived).Error
	return archived, err
}

func (s *gormArchiveStore) ListDeletable(ctx context.Context, limit int) ([]models.ArchivedData, error) {
	var archived []models.ArchivedData
	err := s.db.WithContext(ctx).
		Where("status = ?", models.ArchiveStatusExpired).
		Limit(limit).
		Find(&archived).Error
	return archived, err
}

func (s *gormArchiveStore) SetStatus(ctx context.Context, id string, status models.ArchiveStatus) error {
	return s.db.WithContext(ctx).Model(&models.ArchivedData{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// MarkDeleted finalizes an expired archive: the snapshot payload is purged,
// only the audit stub of the row remains.
func (s *gormArchiveStore) MarkDeleted(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&models.ArchivedData{}).
		Where("id = ? AND status = ?", id, models.ArchiveStatusExpired).
		Updates(map[string]any{
			"status":   models.ArchiveStatusDeleted,
			"snapshot": "",
			"checksum": "",
		}).Error
}

func (s *gormArchiveStore) MarkRestored(ctx context.Context, id, restoredBy, reason string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.ArchivedData{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":         models.ArchiveStatusRestored,
			"restored_at":    at,
			"restored_by":    restoredBy,
			"restore_reason": reason,
		}).Error
}

type gormPolicyStore struct{ db *gorm.DB }

func (s *gormPolicyStore) Create(ctx context.Context, policy *models.RetentionPolicy) error {
	if policy.ID == "" {
		policy.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(policy).Error
}

func (s *gormPolicyStore) ActiveFor(ctx context.Context, entityType string, now time.Time) (*models.RetentionPolicy, error) {
	var policies []models.RetentionPolicy
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND is_active = ?", entityType, true).
		Find(&policies).Error
	if err != nil {
		return nil, err
	}
	for i := range policies {
		if policies[i].IsCurrentlyActive(now) {
			return &policies[i], nil
		}
	}
	return nil, ErrPolicyNotFound
}

type gormEventOutbox struct{ db *gorm.DB }

func (s *gormEventOutbox) Append(ctx context.Context, eventType, entityType, entityID, batchID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	event := models.RegistryEventRecord{
		EventType:     eventType,
		EntityType:    entityType,
		EntityID:      entityID,
		BatchID:       batchID,
		OccurredAt:    time.Now().UTC(),
		Payload:       raw,
		CorrelationId: uuid.NewString(),
		PublishStatus: models.OutboxPublishStatusPending,
	}
	return s.db.WithContext(ctx).Create(&event).Error
}

// ClaimPending locks a page of due events for this worker. SKIP LOCKED keeps
// concurrent dispatchers from contending on the same rows.
func (s *gormEventOutbox) ClaimPending(ctx context.Context, workerID string, limit int) ([]models.RegistryEventRecord, error) {
	var events []models.RegistryEventRecord
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Also reclaims PROCESSING rows whose worker died mid-publish.
		stale := now.Add(-5 * time.Minute)
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("(publish_status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)) OR (publish_status = ? AND locked_at < ?)",
				[]models.OutboxPublishStatus{models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed}, now,
				models.OutboxPublishStatusProcessing, stale).
			Order("id asc").
			Limit(limit).
			Find(&events).Error; err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		ids := make([]uint, 0, len(events))
		for i := range events {
			ids = append(ids, events[i].ID)
		}
		return tx.Model(&models.RegistryEventRecord{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"publish_status": models.OutboxPublishStatusProcessing,
				"locked_at":      now,
				"locked_by":      workerID,
			}).Error
	})
	return events, err
}

func (s *gormEventOutbox) MarkPublished(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&models.RegistryEventRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"publish_status": models.OutboxPublishStatusPublished,
			"is_processed":   true,
			"locked_at":      nil,
			"locked_by":      nil,
		}).Error
}

func (s *gormEventOutbox) MarkFailed(ctx context.Context, id uint, publishErr string, nextAttempt time.Time, dead bool) error {
	status := models.OutboxPublishStatusFailed
	if dead {
		status = models.OutboxPublishStatusDead
	}
	return s.db.WithContext(ctx).Model(&models.RegistryEventRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"publish_status":     status,
			"publish_attempts":   gorm.Expr("publish_attempts + 1"),
			"last_publish_error": publishErr,
			"next_attempt_at":    nextAttempt,
			"locked_at":          nil,
			"locked_by":          nil,
		}).Error
}

type gormReviewStore struct{ db *gorm.DB }

// Flag records a suspicious pair. Re-flagging an already-known pair is a
// no-op so nightly runs stay idempotent.
func (s *gormReviewStore) Flag(ctx context.Context, flag *models.DuplicateReviewFlag) error {
	err := s.db.WithContext(ctx).Create(flag).Error
	if isDuplicateKeyErr(err) {
		return nil
	}
	return err
}

func (s *gormReviewStore) ListUnresolved(ctx context.Context, limit int) ([]models.DuplicateReviewFlag, error) {
	var flags []models.DuplicateReviewFlag
	err := s.db.WithContext(ctx).
		Where("resolved = ?", false).
		Order("similarity_score desc").
		Limit(limit).
		Find(&flags).Error
	return flags, err
}
