package workflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/dsrph/registry_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type fakeVerifier struct {
	result VerificationResult
	err    error
	calls  int
}

func (f *fakeVerifier) Verify(ctx context.Context, psn string) (VerificationResult, error) {
	f.calls++
	return f.result, f.err
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func hasFieldError(ferrs []FieldError, field string) bool {
	for _, fe := range ferrs {
		if fe.Field == field {
			return true
		}
	}
	return false
}

func TestValidateRecordHouseholdValid(t *testing.T) {
	v := NewValidator(nil, DefaultPipelineConfig(), testLogger())
	payload, _, ferrs := v.ValidateRecord(context.Background(), models.DataTypeHousehold, models.Metadata{
		"household_number":      "HH-2024-0001",
		"head_of_household_psn": "1234-5678-9012",
		"region":                "Region IV-A",
		"monthly_income":        "15000",
		"total_members":         float64(4),
	})
	if len(ferrs) != 0 {
		t.Fatalf("unexpected violations: %v", ferrs)
	}
	hh, ok := payload.(*HouseholdPayload)
	if !ok {
		t.Fatalf("payload type %T", payload)
	}
	if hh.HouseholdNumber != "HH-2024-0001" || hh.TotalMembers != 4 {
		t.Errorf("decoded payload %+v", hh)
	}
	if !hh.MonthlyIncome.Equal(decimal.NewFromInt(15000)) {
		t.Errorf("monthly income = %v", hh.MonthlyIncome)
	}
}

func TestValidateRecordMissingRequired(t *testing.T) {
	v := NewValidator(nil, DefaultPipelineConfig(), testLogger())
	_, _, ferrs := v.ValidateRecord(context.Background(), models.DataTypeHousehold, models.Metadata{
		"monthly_income": "5000",
	})
	if !hasFieldError(ferrs, "HouseholdNumber") {
		t.Errorf("missing household number not flagged: %v", ferrs)
	}
	if !hasFieldError(ferrs, "Region") {
		t.Errorf("missing region not flagged: %v", ferrs)
	}
}

func TestValidateRecordBadPsnFormat(t *testing.T) {
	v := NewValidator(nil, DefaultPipelineConfig(), testLogger())
	_, _, ferrs := v.ValidateRecord(context.Background(), models.DataTypeIndividual, models.Metadata{
		"first_name":       "Juan",
		"last_name":        "Dela Cruz",
		"household_number": "HH-1",
		"psn":              "123456789012",
	})
	if !hasFieldError(ferrs, "Psn") {
		t.Errorf("unformatted psn not flagged: %v", ferrs)
	}
}

func TestValidateRecordNegativeIncome(t *testing.T) {
	v := NewValidator(nil, DefaultPipelineConfig(), testLogger())
	_, _, ferrs := v.ValidateRecord(context.Background(), models.DataTypeIndividual, models.Metadata{
		"first_name":       "Juan",
		"last_name":        "Dela Cruz",
		"household_number": "HH-1",
		"monthly_income":   "-100",
	})
	if !hasFieldError(ferrs, "monthly_income") {
		t.Errorf("negative income not flagged: %v", ferrs)
	}
}

func TestValidateRecordFutureBirthDate(t *testing.T) {
	v := NewValidator(nil, DefaultPipelineConfig(), testLogger())
	_, _, ferrs := v.ValidateRecord(context.Background(), models.DataTypeIndividual, models.Metadata{
		"first_name":       "Juan",
		"last_name":        "Dela Cruz",
		"household_number": "HH-1",
		"date_of_birth":    "2999-01-01",
	})
	if !hasFieldError(ferrs, "date_of_birth") {
		t.Errorf("future birth date not flagged: %v", ferrs)
	}
}

func TestVerifyIdentityRejected(t *testing.T) {
	verifier := &fakeVerifier{result: VerificationResult{Valid: false}}
	v := NewValidator(verifier, DefaultPipelineConfig(), testLogger())
	_, _, ferrs := v.ValidateRecord(context.Background(), models.DataTypeIndividual, models.Metadata{
		"first_name":       "Juan",
		"last_name":        "Dela Cruz",
		"household_number": "HH-1",
		"psn":              "1234-5678-9012",
	})
	if !hasFieldError(ferrs, "psn") {
		t.Errorf("rejected psn not flagged: %v", ferrs)
	}
	if verifier.calls != 1 {
		t.Errorf("verifier called %d times", verifier.calls)
	}
}

func TestVerifyIdentityDegradedMode(t *testing.T) {
	verifier := &fakeVerifier{err: fmt.Errorf("%w: dial tcp: connection refused", ErrVerifierUnavailable)}
	cfg := DefaultPipelineConfig()
	cfg.AllowDegradedVerification = true
	v := NewValidator(verifier, cfg, testLogger())

	_, warnings, ferrs := v.ValidateRecord(context.Background(), models.DataTypeIndividual, models.Metadata{
		"first_name":       "Juan",
		"last_name":        "Dela Cruz",
		"household_number": "HH-1",
		"psn":              "1234-5678-9012",
	})
	if len(ferrs) != 0 {
		t.Fatalf("degraded mode must not fail validation: %v", ferrs)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected one degraded-mode warning, got %v", warnings)
	}
}

func TestVerifyIdentityStrictMode(t *testing.T) {
	verifier := &fakeVerifier{err: fmt.Errorf("%w: dial tcp: connection refused", ErrVerifierUnavailable)}
	cfg := DefaultPipelineConfig()
	cfg.AllowDegradedVerification = false
	v := NewValidator(verifier, cfg, testLogger())

	_, _, ferrs := v.ValidateRecord(context.Background(), models.DataTypeIndividual, models.Metadata{
		"first_name":       "Juan",
		"last_name":        "Dela Cruz",
		"household_number": "HH-1",
		"psn":              "1234-5678-9012",
	})
	if !hasFieldError(ferrs, "psn") {
		t.Errorf("strict mode must fail the field: %v", ferrs)
	}
}

func TestValidationFailedErrorMessage(t *testing.T) {
	err := &ValidationFailedError{Errors: []FieldError{
		{Field: "region", Rule: "required", Message: "required"},
	}}
	if err.Error() != "validation failed: region: required" {
		t.Errorf("message = %q", err.Error())
	}
}
