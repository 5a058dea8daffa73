package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dsrph/registry_backend/models"
	"github.com/dsrph/registry_backend/utils"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// HouseholdPayload is the typed shape of a cleaned HOUSEHOLD record.
type HouseholdPayload struct {
	HouseholdNumber     string          `json:"household_number" validate:"required"`
	HeadOfHouseholdPsn  string          `json:"head_of_household_psn" validate:"omitempty,psn"`
	HeadOfHouseholdName string          `json:"head_of_household_name"`
	PhoneNumber         string          `json:"phone_number" validate:"omitempty,e164"`
	MonthlyIncome       decimal.Decimal `json:"monthly_income"`
	TotalMembers        int             `json:"total_members" validate:"omitempty,gte=1"`
	Region              string          `json:"region" validate:"required"`
	Province            string          `json:"province"`
	Municipality        string          `json:"municipality"`
	Barangay            string          `json:"barangay"`
	HousingType         string          `json:"housing_type"`
	HousingTenure       string          `json:"housing_tenure"`
	WaterSource         string          `json:"water_source"`
	ToiletFacility      string          `json:"toilet_facility"`
	ElectricitySource   string          `json:"electricity_source"`
	IsIndigenous        bool            `json:"is_indigenous"`
	IsPwdHousehold      bool            `json:"is_pwd_household"`
	IsSeniorHousehold   bool            `json:"is_senior_citizen_household"`
	IsSoloParent        bool            `json:"is_solo_parent_household"`
}

// IndividualPayload is the typed shape of a cleaned INDIVIDUAL record.
type IndividualPayload struct {
	Psn             string          `json:"psn" validate:"omitempty,psn"`
	FirstName       string          `json:"first_name" validate:"required"`
	MiddleName      string          `json:"middle_name"`
	LastName        string          `json:"last_name" validate:"required"`
	DateOfBirth     string          `json:"date_of_birth"`
	HouseholdNumber string          `json:"household_number" validate:"required"`
	Relationship    string          `json:"relationship"`
	PhoneNumber     string          `json:"phone_number" validate:"omitempty,e164"`
	MonthlyIncome   decimal.Decimal `json:"monthly_income"`
	IsHead          bool            `json:"is_head_of_household"`
}

// EconomicProfilePayload is the typed shape of a cleaned ECONOMIC_PROFILE
// record.
type EconomicProfilePayload struct {
	HouseholdNumber      string           `json:"household_number" validate:"required"`
	TotalHouseholdIncome *decimal.Decimal `json:"total_household_income"`
	HouseholdSize        int              `json:"household_size" validate:"omitempty,gte=0"`

	FoodExpenses           *decimal.Decimal `json:"food_expenses"`
	HousingExpenses        *decimal.Decimal `json:"housing_expenses"`
	EducationExpenses      *decimal.Decimal `json:"education_expenses"`
	HealthExpenses         *decimal.Decimal `json:"health_expenses"`
	TransportationExpenses *decimal.Decimal `json:"transportation_expenses"`
	OtherExpenses          *decimal.Decimal `json:"other_expenses"`

	HasSalaryIncome       bool `json:"has_salary_income"`
	HasBusinessIncome     bool `json:"has_business_income"`
	HasAgriculturalIncome bool `json:"has_agricultural_income"`
	HasRemittanceIncome   bool `json:"has_remittance_income"`
	HasPensionIncome      bool `json:"has_pension_income"`
	HasOtherIncome        bool `json:"has_other_income"`

	OwnsHouse     bool `json:"owns_house"`
	OwnsLand      bool `json:"owns_land"`
	OwnsVehicle   bool `json:"owns_vehicle"`
	OwnsLivestock bool `json:"owns_livestock"`
	HasSavings    bool `json:"has_savings"`
	HasAppliances bool `json:"has_appliances"`

	DebtToIncomeRatio    *decimal.Decimal `json:"debt_to_income_ratio"`
	FoodSecurityScore    *decimal.Decimal `json:"food_security_score"`
	HousingAdequacyScore *decimal.Decimal `json:"housing_adequacy_score"`

	AssessmentMethod string `json:"assessment_method"`
	AssessorID       string `json:"assessor_id"`
}

// Validator runs structural validation over cleaned payloads and, where a PSN
// is present, verifies it against the identity service. When the service is
// unavailable and AllowDegradedVerification is set, validation proceeds with a
// warning instead of failing.
type Validator struct {
	validate *validator.Validate
	verifier PSNVerifier
	cfg      PipelineConfig
	logger   *logrus.Logger
}

func NewValidator(verifier PSNVerifier, cfg PipelineConfig, logger *logrus.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("psn", func(fl validator.FieldLevel) bool {
		return psnPattern.MatchString(fl.Field().String())
	})
	return &Validator{validate: v, verifier: verifier, cfg: cfg, logger: logger}
}

// ValidateRecord decodes the cleaned map into the payload type for dataType
// and validates it. Returns the typed payload, any warnings, and the list of
// violations (empty when valid).
func (v *Validator) ValidateRecord(ctx context.Context, dataType models.DataType, cleaned models.Metadata) (any, []string, []FieldError) {
	var payload any
	switch dataType {
	case models.DataTypeHousehold:
		payload = &HouseholdPayload{}
	case models.DataTypeIndividual:
		payload = &IndividualPayload{}
	case models.DataTypeEconomicProfile:
		payload = &EconomicProfilePayload{}
	default:
		return nil, nil, []FieldError{{Field: "data_type", Rule: "enum", Message: fmt.Sprintf("unsupported data type %s", dataType)}}
	}

	if ferr := decodePayload(cleaned, payload); ferr != nil {
		return nil, nil, []FieldError{*ferr}
	}

	ferrs := v.structuralErrors(payload)
	ferrs = append(ferrs, v.domainErrors(payload)...)

	var warnings []string
	if len(ferrs) == 0 {
		warnings = v.verifyIdentity(ctx, payload, &ferrs)
	}
	return payload, warnings, ferrs
}

func decodePayload(cleaned models.Metadata, into any) *FieldError {
	raw, err := json.Marshal(map[string]any(cleaned))
	if err != nil {
		return &FieldError{Field: "payload", Rule: "decode", Message: err.Error()}
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return &FieldError{Field: "payload", Rule: "decode", Message: err.Error()}
	}
	return nil
}

func (v *Validator) structuralErrors(payload any) []FieldError {
	err := v.validate.Struct(payload)
	if err == nil {
		return nil
	}
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return []FieldError{{Field: "payload", Rule: "struct", Message: invalid.Error()}}
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "payload", Rule: "unknown", Message: err.Error()}}
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: fmt.Sprintf("failed rule %q", fe.Tag()),
		})
	}
	return out
}

// domainErrors covers checks the tag language cannot express: non-negative
// money, parseable non-future birth dates, expense itemization sanity.
func (v *Validator) domainErrors(payload any) []FieldError {
	var out []FieldError

	nonNegative := func(field string, d *decimal.Decimal) {
		if d != nil && d.IsNegative() {
			out = append(out, FieldError{Field: field, Rule: "gte=0", Message: "must not be negative"})
		}
	}

	checkPhone := func(phone string) {
		if phone == "" {
			return
		}
		if err := utils.ValidatePhoneNumber(phone, utils.CountryCode); err != nil {
			out = append(out, FieldError{Field: "phone_number", Rule: "phone", Message: "not a valid Philippine phone number"})
		}
	}

	switch p := payload.(type) {
	case *HouseholdPayload:
		income := p.MonthlyIncome
		nonNegative("monthly_income", &income)
		checkPhone(p.PhoneNumber)
	case *IndividualPayload:
		income := p.MonthlyIncome
		nonNegative("monthly_income", &income)
		checkPhone(p.PhoneNumber)
		if p.DateOfBirth != "" {
			dob, err := time.Parse("2006-01-02", p.DateOfBirth)
			if err != nil {
				out = append(out, FieldError{Field: "date_of_birth", Rule: "date", Message: "not a valid ISO date"})
			} else if dob.After(time.Now()) {
				out = append(out, FieldError{Field: "date_of_birth", Rule: "past", Message: "must not be in the future"})
			}
		}
	case *EconomicProfilePayload:
		nonNegative("total_household_income", p.TotalHouseholdIncome)
		nonNegative("food_expenses", p.FoodExpenses)
		nonNegative("housing_expenses", p.HousingExpenses)
		nonNegative("education_expenses", p.EducationExpenses)
		nonNegative("health_expenses", p.HealthExpenses)
		nonNegative("transportation_expenses", p.TransportationExpenses)
		nonNegative("other_expenses", p.OtherExpenses)
	}
	return out
}

// verifyIdentity checks the payload's PSN against the identity service.
// An unreachable service either degrades to a warning or fails the field,
// depending on configuration.
func (v *Validator) verifyIdentity(ctx context.Context, payload any, ferrs *[]FieldError) []string {
	psn := payloadPsn(payload)
	if psn == "" || v.verifier == nil {
		return nil
	}

	result, err := v.verifier.Verify(ctx, psn)
	if err != nil {
		if errors.Is(err, ErrVerifierUnavailable) && v.cfg.AllowDegradedVerification {
			if v.logger != nil {
				v.logger.WithFields(logrus.Fields{"psn": psn}).Warn("identity verification unavailable, proceeding in degraded mode")
			}
			return []string{"identity verification skipped: service unavailable"}
		}
		*ferrs = append(*ferrs, FieldError{Field: "psn", Rule: "verified", Message: err.Error()})
		return nil
	}
	if !result.Valid {
		*ferrs = append(*ferrs, FieldError{Field: "psn", Rule: "verified", Message: "identifier rejected by identity service"})
	}
	return nil
}

func payloadPsn(payload any) string {
	switch p := payload.(type) {
	case *HouseholdPayload:
		return p.HeadOfHouseholdPsn
	case *IndividualPayload:
		return p.Psn
	}
	return ""
}

// FieldErrorsMetadata converts violations to the JSON shape stored on the
// ingestion record.
func FieldErrorsMetadata(ferrs []FieldError) models.Metadata {
	if len(ferrs) == 0 {
		return nil
	}
	list := make([]any, 0, len(ferrs))
	for _, fe := range ferrs {
		list = append(list, map[string]any{"field": fe.Field, "rule": fe.Rule, "message": fe.Message})
	}
	m := models.NewMetadata()
	m["errors"] = list
	return m
}
