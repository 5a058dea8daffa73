package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dsrph/registry_backend/config"
	"github.com/dsrph/registry_backend/models"
	"github.com/dsrph/registry_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RecordProcessor runs one ingestion record through the pipeline stages:
// clean, validate, deduplicate, persist, assess. Each record is independent;
// a failure here never affects sibling records.
type RecordProcessor struct {
	cleaner    *FieldCleaner
	validator  *Validator
	dedup      *DeduplicationEngine
	assessment *AssessmentEngine
	stores     *Stores
	cfg        PipelineConfig
	logger     *logrus.Logger
}

func NewRecordProcessor(stores *Stores, verifier PSNVerifier, cfg PipelineConfig, logger *logrus.Logger) *RecordProcessor {
	return &RecordProcessor{
		cleaner:    NewFieldCleaner(),
		validator:  NewValidator(verifier, cfg, logger),
		dedup:      NewDeduplicationEngine(stores.Households, cfg),
		assessment: NewAssessmentEngine(cfg),
		stores:     stores,
		cfg:        cfg,
		logger:     logger,
	}
}

// Process takes a PENDING record to a terminal status and returns that
// status. The record gets a processing budget of cfg.RecordTimeout; blowing
// it fails the record, not the batch.
func (p *RecordProcessor) Process(ctx context.Context, batch *models.IngestionBatch, record *models.IngestionRecord) (models.RecordStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.RecordTimeout)
	defer cancel()

	started := time.Now()
	status, err := p.process(ctx, batch, record)
	elapsed := time.Since(started).Milliseconds()
	record.ProcessingTimeMs = &elapsed

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		timeoutErr := &TimeoutError{RecordID: record.ID}
		record.ErrorMessage = timeoutErr.Error()
		status, err = models.RecordStatusFailed, nil
	case errors.Is(err, context.Canceled):
		// Batch cancellation: the record stays PENDING for the completion
		// sweep to skip.
		return record.Status, err
	case err != nil:
		// Infrastructure failure on this record. It must land FAILED with
		// the real error, not linger PENDING to be mislabeled later.
		record.ErrorMessage = err.Error()
		status, err = models.RecordStatusFailed, nil
	}

	if finishErr := p.stores.Records.Finish(ctx, record, status); finishErr != nil {
		if errors.Is(finishErr, context.DeadlineExceeded) {
			// The budget expired mid-write; persist the failure outside it.
			record.ErrorMessage = (&TimeoutError{RecordID: record.ID}).Error()
			detached, detachedCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer detachedCancel()
			if err := p.stores.Records.Finish(detached, record, models.RecordStatusFailed); err != nil {
				return record.Status, err
			}
			status = models.RecordStatusFailed
		} else {
			return record.Status, finishErr
		}
	}

	if err := p.stores.Batches.IncrementCounter(context.WithoutCancel(ctx), batch.ID, status); err != nil {
		config.LogError(p.logger, "workflow", "Process", "increment batch counter",
			map[string]any{"batch_id": batch.ID, "record_id": record.ID}, err)
	}
	return status, nil
}

func (p *RecordProcessor) process(ctx context.Context, batch *models.IngestionBatch, record *models.IngestionRecord) (models.RecordStatus, error) {
	cleaned := p.cleaner.CleanPayload(record.RawData, batch.DataType)
	record.ProcessedData = cleaned

	payload, warnings, ferrs := p.validator.ValidateRecord(ctx, batch.DataType, cleaned)
	if len(ferrs) > 0 {
		vErr := &ValidationFailedError{Errors: ferrs}
		record.ValidationErrors = FieldErrorsMetadata(ferrs)
		record.ErrorMessage = vErr.Error()
		return models.RecordStatusFailed, nil
	}
	if len(warnings) > 0 {
		record.Warnings = warningsMetadata(warnings)
	}

	switch batch.DataType {
	case models.DataTypeHousehold:
		return p.processHousehold(ctx, batch, record, payload.(*HouseholdPayload))
	case models.DataTypeIndividual:
		return p.processIndividual(ctx, record, payload.(*IndividualPayload))
	case models.DataTypeEconomicProfile:
		return p.processEconomicProfile(ctx, batch, record, payload.(*EconomicProfilePayload))
	}
	record.ErrorMessage = fmt.Sprintf("unsupported data type %s", batch.DataType)
	return models.RecordStatusFailed, nil
}

func (p *RecordProcessor) processHousehold(ctx context.Context, batch *models.IngestionBatch, record *models.IngestionRecord, payload *HouseholdPayload) (models.RecordStatus, error) {
	probe := DedupCandidate{
		Psn:          payload.HeadOfHouseholdPsn,
		FullName:     payload.HeadOfHouseholdName,
		Region:       payload.Region,
		Province:     payload.Province,
		Municipality: payload.Municipality,
		Barangay:     payload.Barangay,
	}
	match, err := p.dedup.FindMatch(ctx, probe)
	if err != nil {
		return models.RecordStatusPending, err
	}
	switch match.Outcome {
	case MatchOutcomeDuplicate:
		record.DuplicateOf = &match.MatchedEntityID
		record.SimilarityScore = &match.SimilarityScore
		return models.RecordStatusDuplicate, nil
	case MatchOutcomeReview:
		record.DuplicateOf = &match.MatchedEntityID
		record.SimilarityScore = &match.SimilarityScore
		record.ErrorMessage = fmt.Sprintf("similarity %.2f to entity %s requires manual review", match.SimilarityScore, match.MatchedEntityID)
		return models.RecordStatusSkipped, nil
	}

	hh := &models.Household{
		ID:                  uuid.NewString(),
		HouseholdNumber:     payload.HouseholdNumber,
		HeadOfHouseholdPsn:  payload.HeadOfHouseholdPsn,
		HeadOfHouseholdName: payload.HeadOfHouseholdName,
		Status:              models.HouseholdStatusActive,
		SourceSystem:        batch.SourceSystem,
		TotalMembers:        payload.TotalMembers,
		MonthlyIncome:       payload.MonthlyIncome,
		Region:              payload.Region,
		Province:            payload.Province,
		Municipality:        payload.Municipality,
		Barangay:            payload.Barangay,
		IsIndigenous:        &payload.IsIndigenous,
		IsPwdHousehold:      &payload.IsPwdHousehold,
		IsSeniorHousehold:   &payload.IsSeniorHousehold,
		IsSoloParent:        &payload.IsSoloParent,
		HousingType:         payload.HousingType,
		HousingTenure:       payload.HousingTenure,
		WaterSource:         payload.WaterSource,
		ToiletFacility:      payload.ToiletFacility,
		ElectricitySource:   payload.ElectricitySource,
		RegistrationDate:    time.Now().UTC(),
	}
	if err := p.stores.Households.Create(ctx, hh); err != nil {
		if errors.Is(err, ErrPersistenceConflict) {
			// Household number already taken: same logical entity arriving
			// twice, treat as an exact duplicate.
			existing, lookupErr := p.stores.Households.GetByNumber(ctx, payload.HouseholdNumber)
			if lookupErr == nil {
				one := 1.0
				record.DuplicateOf = &existing.ID
				record.SimilarityScore = &one
				return models.RecordStatusDuplicate, nil
			}
		}
		return models.RecordStatusPending, err
	}
	record.EntityID = &hh.ID
	record.EntityType = "HOUSEHOLD"
	return models.RecordStatusSuccess, nil
}

func (p *RecordProcessor) processIndividual(ctx context.Context, record *models.IngestionRecord, payload *IndividualPayload) (models.RecordStatus, error) {
	hh, err := p.stores.Households.GetByNumber(ctx, payload.HouseholdNumber)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			record.ErrorMessage = fmt.Sprintf("household %s does not exist", payload.HouseholdNumber)
			return models.RecordStatusFailed, nil
		}
		return models.RecordStatusPending, err
	}

	// A PSN identifies exactly one person; a member already registered under
	// it is the same individual arriving again.
	if payload.Psn != "" {
		existing, err := p.stores.Households.MemberByPsn(ctx, payload.Psn)
		if err != nil && !errors.Is(err, ErrRecordNotFound) {
			return models.RecordStatusPending, err
		}
		if existing != nil {
			one := 1.0
			record.DuplicateOf = &existing.ID
			record.SimilarityScore = &one
			return models.RecordStatusDuplicate, nil
		}
	}

	member := &models.HouseholdMember{
		ID:            uuid.NewString(),
		HouseholdID:   hh.ID,
		Psn:           payload.Psn,
		FirstName:     payload.FirstName,
		MiddleName:    payload.MiddleName,
		LastName:      payload.LastName,
		Relationship:  payload.Relationship,
		MonthlyIncome: payload.MonthlyIncome,
		IsHead:        &payload.IsHead,
	}
	if payload.DateOfBirth != "" {
		if dob, err := time.Parse("2006-01-02", payload.DateOfBirth); err == nil {
			member.DateOfBirth = &dob
		}
	}

	err = p.stores.InTx(ctx, func(tx *Stores) error {
		if err := tx.Households.AddMember(ctx, member); err != nil {
			return err
		}
		hh.TotalMembers++
		if payload.IsHead {
			if payload.Psn != "" {
				hh.HeadOfHouseholdPsn = payload.Psn
			}
			hh.HeadOfHouseholdName = member.FullName()
			hh.HeadOfHouseholdDob = member.DateOfBirth
		}
		return tx.Households.Update(ctx, hh)
	})
	if err != nil {
		if errors.Is(err, ErrPersistenceConflict) {
			record.ErrorMessage = "household changed concurrently, retry the record"
			return models.RecordStatusFailed, nil
		}
		return models.RecordStatusPending, err
	}
	record.EntityID = &member.ID
	record.EntityType = "HOUSEHOLD_MEMBER"
	return models.RecordStatusSuccess, nil
}

func (p *RecordProcessor) processEconomicProfile(ctx context.Context, batch *models.IngestionBatch, record *models.IngestionRecord, payload *EconomicProfilePayload) (models.RecordStatus, error) {
	hh, err := p.stores.Households.GetByNumber(ctx, payload.HouseholdNumber)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			record.ErrorMessage = fmt.Sprintf("household %s does not exist", payload.HouseholdNumber)
			return models.RecordStatusFailed, nil
		}
		return models.RecordStatusPending, err
	}

	size := hh.TotalMembers
	if size <= 0 {
		size = payload.HouseholdSize
	}
	profile := p.assessment.Assess(payload, hh.ID, size, batch.SourceSystem)
	if err := p.stores.Profiles.Create(ctx, profile); err != nil {
		return models.RecordStatusPending, err
	}
	record.EntityID = &profile.ID
	record.EntityType = "ECONOMIC_PROFILE"
	return models.RecordStatusSuccess, nil
}

func warningsMetadata(warnings []string) models.Metadata {
	m := models.NewMetadata()
	list := make([]any, 0, len(warnings))
	for _, w := range utils.UniqueSlice(warnings) {
		list = append(list, w)
	}
	m["warnings"] = list
	return m
}
