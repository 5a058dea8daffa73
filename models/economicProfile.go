package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EconomicProfile holds the economic assessment for a household. Derived
// fields (per-capita income, poverty flag/gap, vulnerability index) are
// computed by the assessment engine, never by callers.
type EconomicProfile struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	HouseholdID    string    `gorm:"size:36;not null;index" json:"household_id"`
	AssessmentDate time.Time `gorm:"not null" json:"assessment_date"`

	TotalHouseholdIncome *decimal.Decimal `gorm:"type:decimal(12,2)" json:"total_household_income"`
	PerCapitaIncome      *decimal.Decimal `gorm:"type:decimal(12,2)" json:"per_capita_income"`
	TotalMonthlyExpenses *decimal.Decimal `gorm:"type:decimal(12,2)" json:"total_monthly_expenses"`

	FoodExpenses           *decimal.Decimal `gorm:"type:decimal(10,2)" json:"food_expenses"`
	HousingExpenses        *decimal.Decimal `gorm:"type:decimal(10,2)" json:"housing_expenses"`
	EducationExpenses      *decimal.Decimal `gorm:"type:decimal(10,2)" json:"education_expenses"`
	HealthExpenses         *decimal.Decimal `gorm:"type:decimal(10,2)" json:"health_expenses"`
	TransportationExpenses *decimal.Decimal `gorm:"type:decimal(10,2)" json:"transportation_expenses"`
	OtherExpenses          *decimal.Decimal `gorm:"type:decimal(10,2)" json:"other_expenses"`

	// Income sources
	HasSalaryIncome       *bool `gorm:"default:false" json:"has_salary_income"`
	HasBusinessIncome     *bool `gorm:"default:false" json:"has_business_income"`
	HasAgriculturalIncome *bool `gorm:"default:false" json:"has_agricultural_income"`
	HasRemittanceIncome   *bool `gorm:"default:false" json:"has_remittance_income"`
	HasPensionIncome      *bool `gorm:"default:false" json:"has_pension_income"`
	HasOtherIncome        *bool `gorm:"default:false" json:"has_other_income"`

	// Assets
	OwnsHouse     *bool `gorm:"default:false" json:"owns_house"`
	OwnsLand      *bool `gorm:"default:false" json:"owns_land"`
	OwnsVehicle   *bool `gorm:"default:false" json:"owns_vehicle"`
	OwnsLivestock *bool `gorm:"default:false" json:"owns_livestock"`
	HasSavings    *bool `gorm:"default:false" json:"has_savings"`
	HasAppliances *bool `gorm:"default:false" json:"has_appliances"`

	// Vulnerability indicators
	DebtToIncomeRatio    *decimal.Decimal `gorm:"type:decimal(5,2)" json:"debt_to_income_ratio"`
	FoodSecurityScore    *decimal.Decimal `gorm:"type:decimal(5,2)" json:"food_security_score"`
	HousingAdequacyScore *decimal.Decimal `gorm:"type:decimal(5,2)" json:"housing_adequacy_score"`
	VulnerabilityIndex   *decimal.Decimal `gorm:"type:decimal(5,2)" json:"economic_vulnerability_score"`

	PovertyThreshold *decimal.Decimal `gorm:"type:decimal(10,2)" json:"poverty_threshold"`
	IsPoor           *bool            `gorm:"default:false" json:"is_poor"`
	PovertyGap       *decimal.Decimal `gorm:"type:decimal(10,2)" json:"poverty_gap"`

	IncomeDiversificationScore int `gorm:"not null;default:0" json:"income_diversification_score"`

	SourceSystem       SourceSystem       `gorm:"size:50" json:"source_system"`
	AssessmentMethod   AssessmentMethod   `gorm:"size:50" json:"assessment_method"`
	AssessorID         string             `gorm:"size:100" json:"assessor_id"`
	VerificationStatus VerificationStatus `gorm:"size:20;default:'PENDING'" json:"verification_status"`
	VerificationDate   *time.Time         `json:"verification_date"`
	Extra              Metadata           `gorm:"type:json" json:"additional_data"`

	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	ArchivedAt *time.Time `json:"archived_at"`
}

// IncomeSourceCount returns the number of distinct active income sources.
func (p *EconomicProfile) IncomeSourceCount() int {
	count := 0
	for _, flag := range []*bool{
		p.HasSalaryIncome, p.HasBusinessIncome, p.HasAgriculturalIncome,
		p.HasRemittanceIncome, p.HasPensionIncome, p.HasOtherIncome,
	} {
		if flag != nil && *flag {
			count++
		}
	}
	return count
}
