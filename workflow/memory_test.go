package workflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dsrph/registry_backend/models"
)

// memState backs the in-memory store fakes used by the processor and
// coordinator tests. Every method honours context cancellation so timeout
// behaviour can be exercised without a database.
type memState struct {
	mu sync.Mutex

	batches    map[string]*models.IngestionBatch
	records    map[string]*models.IngestionRecord
	households map[string]*models.Household
	byNumber   map[string]string
	members    map[string][]models.HouseholdMember
	profiles   map[string][]models.EconomicProfile
	archives   map[string]*models.ArchivedData
	policies   []models.RetentionPolicy
	events     []models.RegistryEventRecord
	flags      []models.DuplicateReviewFlag

	// createGate, when set, blocks household creation until closed. Used by
	// the cancellation test; createEntered signals the block was reached.
	createGate    chan struct{}
	createEntered chan struct{}

	// failHouseholdCreate, when set, makes household creation fail with this
	// error, standing in for a store outage.
	failHouseholdCreate error
}

func newMemStores() (*Stores, *memState) {
	state := &memState{
		batches:    make(map[string]*models.IngestionBatch),
		records:    make(map[string]*models.IngestionRecord),
		households: make(map[string]*models.Household),
		byNumber:   make(map[string]string),
		members:    make(map[string][]models.HouseholdMember),
		profiles:   make(map[string][]models.EconomicProfile),
		archives:   make(map[string]*models.ArchivedData),
	}
	return &Stores{
		Batches:    &memBatchStore{state},
		Records:    &memRecordStore{state},
		Households: &memHouseholdStore{state},
		Profiles:   &memProfileStore{state},
		Archives:   &memArchiveStore{state},
		Policies:   &memPolicyStore{state},
		Outbox:     &memOutbox{state},
		Reviews:    &memReviewStore{state},
	}, state
}

func (s *memState) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, 0, len(s.events))
	for _, e := range s.events {
		types = append(types, e.EventType)
	}
	return types
}

type memBatchStore struct{ s *memState }

func (m *memBatchStore) Create(ctx context.Context, batch *models.IngestionBatch, records []*models.IngestionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.batches {
		if existing.BatchID == batch.BatchID {
			return ErrBatchExists
		}
	}
	clone := *batch
	m.s.batches[batch.ID] = &clone
	for _, record := range records {
		rc := *record
		m.s.records[record.ID] = &rc
	}
	return nil
}

func (m *memBatchStore) Get(ctx context.Context, id string) (*models.IngestionBatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	batch, ok := m.s.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	clone := *batch
	return &clone, nil
}

func (m *memBatchStore) GetByBatchID(ctx context.Context, batchID string) (*models.IngestionBatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, batch := range m.s.batches {
		if batch.BatchID == batchID {
			clone := *batch
			return &clone, nil
		}
	}
	return nil, ErrBatchNotFound
}

func (m *memBatchStore) IncrementCounter(ctx context.Context, id string, status models.RecordStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	batch, ok := m.s.batches[id]
	if !ok {
		return ErrBatchNotFound
	}
	switch status {
	case models.RecordStatusSuccess:
		batch.SuccessRecords++
	case models.RecordStatusFailed:
		batch.FailedRecords++
	case models.RecordStatusSkipped:
		batch.SkippedRecords++
	case models.RecordStatusDuplicate:
		batch.DuplicateRecords++
	}
	return nil
}

func (m *memBatchStore) DecrementFailed(ctx context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if batch, ok := m.s.batches[id]; ok && batch.FailedRecords > 0 {
		batch.FailedRecords--
	}
	return nil
}

func (m *memBatchStore) Complete(ctx context.Context, id string, to models.BatchStatus, errorMessage string) (*models.IngestionBatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	batch, ok := m.s.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	next, err := models.TransitionBatchStatus(batch.Status, to)
	if err != nil {
		return nil, ErrBatchTerminal
	}
	now := time.Now().UTC()
	batch.Status = next
	batch.CompletedAt = &now
	batch.ErrorMessage = errorMessage
	clone := *batch
	return &clone, nil
}

type memRecordStore struct{ s *memState }

func (m *memRecordStore) Get(ctx context.Context, id string) (*models.IngestionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	record, ok := m.s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	clone := *record
	return &clone, nil
}

func (m *memRecordStore) listByBatch(batchID string, pendingOnly bool) []models.IngestionRecord {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []models.IngestionRecord
	for _, record := range m.s.records {
		if record.BatchID != batchID {
			continue
		}
		if pendingOnly && record.Status != models.RecordStatusPending {
			continue
		}
		out = append(out, *record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordIndex < out[j].RecordIndex })
	return out
}

func (m *memRecordStore) ListByBatch(ctx context.Context, batchID string) ([]models.IngestionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.listByBatch(batchID, false), nil
}

func (m *memRecordStore) ListPending(ctx context.Context, batchID string) ([]models.IngestionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.listByBatch(batchID, true), nil
}

func (m *memRecordStore) Finish(ctx context.Context, record *models.IngestionRecord, to models.RecordStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next, err := models.TransitionRecordStatus(record.Status, to)
	if err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stored, ok := m.s.records[record.ID]
	if !ok {
		return ErrRecordNotFound
	}
	if stored.Status != models.RecordStatusPending {
		return ErrPersistenceConflict
	}
	now := time.Now().UTC()
	record.Status = next
	record.ProcessedAt = &now
	clone := *record
	clone.RetryCount = stored.RetryCount
	clone.LastRetryAt = stored.LastRetryAt
	m.s.records[record.ID] = &clone
	return nil
}

func (m *memRecordStore) MarkForRetry(ctx context.Context, id string) (*models.IngestionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	record, ok := m.s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	next, err := models.TransitionRecordStatus(record.Status, models.RecordStatusPending)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	record.Status = next
	record.RetryCount++
	record.LastRetryAt = &now
	record.ErrorMessage = ""
	clone := *record
	return &clone, nil
}

type memHouseholdStore struct{ s *memState }

func (m *memHouseholdStore) Create(ctx context.Context, hh *models.Household) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	gate, entered := m.s.createGate, m.s.createEntered
	m.s.mu.Unlock()
	if gate != nil {
		if entered != nil {
			select {
			case entered <- struct{}{}:
			default:
			}
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.failHouseholdCreate; err != nil {
		return err
	}
	if _, taken := m.s.byNumber[hh.HouseholdNumber]; taken {
		return ErrPersistenceConflict
	}
	clone := *hh
	m.s.households[hh.ID] = &clone
	m.s.byNumber[hh.HouseholdNumber] = hh.ID
	return nil
}

func (m *memHouseholdStore) Get(ctx context.Context, id string) (*models.Household, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	hh, ok := m.s.households[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	clone := *hh
	return &clone, nil
}

func (m *memHouseholdStore) GetByNumber(ctx context.Context, householdNumber string) (*models.Household, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	id, ok := m.s.byNumber[householdNumber]
	if !ok {
		return nil, ErrRecordNotFound
	}
	clone := *m.s.households[id]
	return &clone, nil
}

func (m *memHouseholdStore) Update(ctx context.Context, hh *models.Household) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stored, ok := m.s.households[hh.ID]
	if !ok {
		return ErrRecordNotFound
	}
	if stored.Version != hh.Version {
		return ErrPersistenceConflict
	}
	hh.Version++
	clone := *hh
	m.s.households[hh.ID] = &clone
	return nil
}

func (m *memHouseholdStore) AddMember(ctx context.Context, member *models.HouseholdMember) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.members[member.HouseholdID] = append(m.s.members[member.HouseholdID], *member)
	return nil
}

func (m *memHouseholdStore) ListMembers(ctx context.Context, householdID string) ([]models.HouseholdMember, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return append([]models.HouseholdMember(nil), m.s.members[householdID]...), nil
}

func (m *memHouseholdStore) ListActive(ctx context.Context, offset, limit int) ([]models.Household, error) {
	all := m.allActive()
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *memHouseholdStore) allActive() []models.Household {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []models.Household
	for _, hh := range m.s.households {
		if hh.Status == models.HouseholdStatusActive {
			out = append(out, *hh)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memHouseholdStore) Candidates(ctx context.Context, probe DedupCandidate) ([]DedupCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []DedupCandidate
	for _, hh := range m.allActive() {
		out = append(out, householdCandidate(&hh))
	}
	return out, nil
}

func (m *memHouseholdStore) MemberByPsn(ctx context.Context, psn string) (*models.HouseholdMember, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, members := range m.s.members {
		for i := range members {
			if members[i].Psn == psn {
				clone := members[i]
				return &clone, nil
			}
		}
	}
	return nil, ErrRecordNotFound
}

func (m *memHouseholdStore) ListArchivable(ctx context.Context, cutoff time.Time, limit int) ([]models.Household, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []models.Household
	for _, hh := range m.s.households {
		if hh.UpdatedAt.Before(cutoff) {
			out = append(out, *hh)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memHouseholdStore) Delete(ctx context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if hh, ok := m.s.households[id]; ok {
		delete(m.s.byNumber, hh.HouseholdNumber)
		delete(m.s.households, id)
		delete(m.s.members, id)
		delete(m.s.profiles, id)
	}
	return nil
}

type memProfileStore struct{ s *memState }

func (m *memProfileStore) Create(ctx context.Context, profile *models.EconomicProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.profiles[profile.HouseholdID] = append(m.s.profiles[profile.HouseholdID], *profile)
	return nil
}

func (m *memProfileStore) LatestForHousehold(ctx context.Context, householdID string) (*models.EconomicProfile, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	profiles := m.s.profiles[householdID]
	if len(profiles) == 0 {
		return nil, ErrRecordNotFound
	}
	clone := profiles[len(profiles)-1]
	return &clone, nil
}

func (m *memProfileStore) ListForHousehold(ctx context.Context, householdID string) ([]models.EconomicProfile, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return append([]models.EconomicProfile(nil), m.s.profiles[householdID]...), nil
}

type memArchiveStore struct{ s *memState }

func (m *memArchiveStore) Create(ctx context.Context, archived *models.ArchivedData) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	clone := *archived
	m.s.archives[archived.ID] = &clone
	return nil
}

func (m *memArchiveStore) Get(ctx context.Context, id string) (*models.ArchivedData, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	archived, ok := m.s.archives[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	clone := *archived
	return &clone, nil
}

func (m *memArchiveStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.ArchivedData, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []models.ArchivedData
	for _, archived := range m.s.archives {
		if archived.Status == models.ArchiveStatusActive && archived.IsExpired(now) {
			out = append(out, *archived)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memArchiveStore) ListDeletable(ctx context.Context, limit int) ([]models.ArchivedData, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []models.ArchivedData
	for _, archived := range m.s.archives {
		if archived.Status == models.ArchiveStatusExpired {
			out = append(out, *archived)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memArchiveStore) MarkDeleted(ctx context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if archived, ok := m.s.archives[id]; ok && archived.Status == models.ArchiveStatusExpired {
		archived.Status = models.ArchiveStatusDeleted
		archived.Snapshot = ""
		archived.Checksum = ""
	}
	return nil
}

func (m *memArchiveStore) SetStatus(ctx context.Context, id string, status models.ArchiveStatus) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if archived, ok := m.s.archives[id]; ok {
		archived.Status = status
	}
	return nil
}

func (m *memArchiveStore) MarkRestored(ctx context.Context, id, restoredBy, reason string, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if archived, ok := m.s.archives[id]; ok {
		archived.Status = models.ArchiveStatusRestored
		archived.RestoredAt = &at
		archived.RestoredBy = restoredBy
		archived.RestoreReason = reason
	}
	return nil
}

type memPolicyStore struct{ s *memState }

func (m *memPolicyStore) Create(ctx context.Context, policy *models.RetentionPolicy) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.policies = append(m.s.policies, *policy)
	return nil
}

func (m *memPolicyStore) ActiveFor(ctx context.Context, entityType string, now time.Time) (*models.RetentionPolicy, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for i := range m.s.policies {
		if m.s.policies[i].EntityType == entityType && m.s.policies[i].IsCurrentlyActive(now) {
			clone := m.s.policies[i]
			return &clone, nil
		}
	}
	return nil, ErrPolicyNotFound
}

type memOutbox struct{ s *memState }

func (m *memOutbox) Append(ctx context.Context, eventType, entityType, entityID, batchID string, payload any) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.events = append(m.s.events, models.RegistryEventRecord{
		ID:            uint(len(m.s.events) + 1),
		EventType:     eventType,
		EntityType:    entityType,
		EntityID:      entityID,
		BatchID:       batchID,
		OccurredAt:    time.Now().UTC(),
		PublishStatus: models.OutboxPublishStatusPending,
	})
	return nil
}

func (m *memOutbox) ClaimPending(ctx context.Context, workerID string, limit int) ([]models.RegistryEventRecord, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []models.RegistryEventRecord
	now := time.Now().UTC()
	for i := range m.s.events {
		event := &m.s.events[i]
		if event.PublishStatus != models.OutboxPublishStatusPending && event.PublishStatus != models.OutboxPublishStatusFailed {
			continue
		}
		if event.NextAttemptAt != nil && event.NextAttemptAt.After(now) {
			continue
		}
		event.PublishStatus = models.OutboxPublishStatusProcessing
		event.LockedBy = &workerID
		event.LockedAt = &now
		out = append(out, *event)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memOutbox) MarkPublished(ctx context.Context, id uint) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for i := range m.s.events {
		if m.s.events[i].ID == id {
			m.s.events[i].PublishStatus = models.OutboxPublishStatusPublished
			m.s.events[i].IsProcessed = true
		}
	}
	return nil
}

func (m *memOutbox) MarkFailed(ctx context.Context, id uint, publishErr string, nextAttempt time.Time, dead bool) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for i := range m.s.events {
		if m.s.events[i].ID == id {
			if dead {
				m.s.events[i].PublishStatus = models.OutboxPublishStatusDead
			} else {
				m.s.events[i].PublishStatus = models.OutboxPublishStatusFailed
			}
			m.s.events[i].PublishAttempts++
			m.s.events[i].LastPublishError = &publishErr
			at := nextAttempt
			m.s.events[i].NextAttemptAt = &at
		}
	}
	return nil
}

type memReviewStore struct{ s *memState }

func (m *memReviewStore) Flag(ctx context.Context, flag *models.DuplicateReviewFlag) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.flags {
		if existing.EntityID == flag.EntityID && existing.CandidateID == flag.CandidateID {
			return nil
		}
	}
	m.s.flags = append(m.s.flags, *flag)
	return nil
}

func (m *memReviewStore) ListUnresolved(ctx context.Context, limit int) ([]models.DuplicateReviewFlag, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []models.DuplicateReviewFlag
	for _, flag := range m.s.flags {
		if !flag.Resolved {
			out = append(out, flag)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
