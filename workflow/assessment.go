package workflow

import (
	"time"

	"github.com/dsrph/registry_backend/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AssessmentEngine derives the economic indicators of a profile: per-capita
// income, poverty classification and gap, the vulnerability index, and the
// income diversification score. All money math is decimal, rounded to 2
// places half-up; floats never touch monetary values.
type AssessmentEngine struct {
	cfg PipelineConfig
}

func NewAssessmentEngine(cfg PipelineConfig) *AssessmentEngine {
	return &AssessmentEngine{cfg: cfg}
}

// Vulnerability factor weights. Only house, land, vehicle and savings carry
// asset sub-weights; the remaining asset flags are descriptive.
var (
	vulnWeightDebt    = decimal.NewFromFloat(0.30)
	vulnWeightFood    = decimal.NewFromFloat(0.25)
	vulnWeightHousing = decimal.NewFromFloat(0.25)
	vulnWeightAssets  = decimal.NewFromFloat(0.20)

	assetWeightHouse   = decimal.NewFromFloat(0.30)
	assetWeightLand    = decimal.NewFromFloat(0.20)
	assetWeightVehicle = decimal.NewFromFloat(0.15)
	assetWeightSavings = decimal.NewFromFloat(0.15)
)

// Assess builds a fully derived EconomicProfile from a validated payload.
// householdID links the profile to its household; householdSize drives the
// per-capita computation and falls back to the payload's own size field.
func (e *AssessmentEngine) Assess(payload *EconomicProfilePayload, householdID string, householdSize int, source models.SourceSystem) *models.EconomicProfile {
	if householdSize <= 0 {
		householdSize = payload.HouseholdSize
	}

	profile := &models.EconomicProfile{
		ID:             uuid.NewString(),
		HouseholdID:    householdID,
		AssessmentDate: time.Now().UTC(),

		TotalHouseholdIncome:   payload.TotalHouseholdIncome,
		FoodExpenses:           payload.FoodExpenses,
		HousingExpenses:        payload.HousingExpenses,
		EducationExpenses:      payload.EducationExpenses,
		HealthExpenses:         payload.HealthExpenses,
		TransportationExpenses: payload.TransportationExpenses,
		OtherExpenses:          payload.OtherExpenses,

		HasSalaryIncome:       &payload.HasSalaryIncome,
		HasBusinessIncome:     &payload.HasBusinessIncome,
		HasAgriculturalIncome: &payload.HasAgriculturalIncome,
		HasRemittanceIncome:   &payload.HasRemittanceIncome,
		HasPensionIncome:      &payload.HasPensionIncome,
		HasOtherIncome:        &payload.HasOtherIncome,

		OwnsHouse:     &payload.OwnsHouse,
		OwnsLand:      &payload.OwnsLand,
		OwnsVehicle:   &payload.OwnsVehicle,
		OwnsLivestock: &payload.OwnsLivestock,
		HasSavings:    &payload.HasSavings,
		HasAppliances: &payload.HasAppliances,

		DebtToIncomeRatio:    payload.DebtToIncomeRatio,
		FoodSecurityScore:    payload.FoodSecurityScore,
		HousingAdequacyScore: payload.HousingAdequacyScore,

		SourceSystem:       source,
		AssessmentMethod:   models.AssessmentMethod(payload.AssessmentMethod),
		AssessorID:         payload.AssessorID,
		VerificationStatus: models.VerificationStatusPending,
	}
	if profile.AssessmentMethod == "" {
		profile.AssessmentMethod = models.AssessmentMethodSurvey
	}

	profile.TotalMonthlyExpenses = sumExpenses(payload)
	profile.PerCapitaIncome = PerCapitaIncome(payload.TotalHouseholdIncome, householdSize)

	threshold := e.cfg.PovertyThreshold
	profile.PovertyThreshold = &threshold
	isPoor, gap := ClassifyPoverty(profile.PerCapitaIncome, threshold)
	profile.IsPoor = &isPoor
	profile.PovertyGap = gap

	profile.VulnerabilityIndex = VulnerabilityIndex(profile)
	profile.IncomeDiversificationScore = profile.IncomeSourceCount()

	return profile
}

// PerCapitaIncome divides total income by household size, 2 places half-up.
// Nil income or a non-positive size yields nil rather than a misleading zero.
func PerCapitaIncome(income *decimal.Decimal, size int) *decimal.Decimal {
	if income == nil || size <= 0 {
		return nil
	}
	perCapita := income.DivRound(decimal.NewFromInt(int64(size)), 2)
	return &perCapita
}

// ClassifyPoverty compares per-capita income against the threshold; a
// household at or below the line counts as poor. The gap is threshold minus
// per-capita income, floored at zero, and is only set for households
// classified poor. Unknown per-capita income means not classified.
func ClassifyPoverty(perCapita *decimal.Decimal, threshold decimal.Decimal) (bool, *decimal.Decimal) {
	if perCapita == nil {
		return false, nil
	}
	if perCapita.GreaterThan(threshold) {
		return false, nil
	}
	gap := threshold.Sub(*perCapita).Round(2)
	if gap.IsNegative() {
		gap = decimal.Zero
	}
	return true, &gap
}

// VulnerabilityIndex combines weighted factors into a score: debt burden
// (0.30), food security (0.25), housing adequacy (0.25), and asset poverty
// (0.20, one minus the ownership score since assets reduce vulnerability).
// Debt, food and housing only contribute when reported; the asset factor is
// always counted, so every profile gets an index. The weighted sum is divided
// by the number of contributing factors, 2 places half-up.
func VulnerabilityIndex(p *models.EconomicProfile) *decimal.Decimal {
	var score decimal.Decimal
	factors := 0

	if p.DebtToIncomeRatio != nil {
		score = score.Add(p.DebtToIncomeRatio.Mul(vulnWeightDebt))
		factors++
	}
	if p.FoodSecurityScore != nil {
		score = score.Add(p.FoodSecurityScore.Mul(vulnWeightFood))
		factors++
	}
	if p.HousingAdequacyScore != nil {
		score = score.Add(p.HousingAdequacyScore.Mul(vulnWeightHousing))
		factors++
	}
	assetPoverty := decimal.NewFromInt(1).Sub(assetScore(p))
	score = score.Add(assetPoverty.Mul(vulnWeightAssets))
	factors++

	idx := score.DivRound(decimal.NewFromInt(int64(factors)), 2)
	return &idx
}

func assetScore(p *models.EconomicProfile) decimal.Decimal {
	var score decimal.Decimal
	add := func(flag *bool, weight decimal.Decimal) {
		if flag != nil && *flag {
			score = score.Add(weight)
		}
	}
	add(p.OwnsHouse, assetWeightHouse)
	add(p.OwnsLand, assetWeightLand)
	add(p.OwnsVehicle, assetWeightVehicle)
	add(p.HasSavings, assetWeightSavings)
	return score
}

func sumExpenses(payload *EconomicProfilePayload) *decimal.Decimal {
	var total decimal.Decimal
	seen := false
	for _, d := range []*decimal.Decimal{
		payload.FoodExpenses, payload.HousingExpenses, payload.EducationExpenses,
		payload.HealthExpenses, payload.TransportationExpenses, payload.OtherExpenses,
	} {
		if d != nil {
			total = total.Add(*d)
			seen = true
		}
	}
	if !seen {
		return nil
	}
	total = total.Round(2)
	return &total
}
