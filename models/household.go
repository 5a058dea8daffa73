package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Household is the live registry entity produced by successful ingestion.
// Members reference the household by FK; there is no in-memory member slice
// on the parent, lookups go through the store.
type Household struct {
	ID                 string          `gorm:"primaryKey;size:36" json:"id"`
	HouseholdNumber    string          `gorm:"size:50;not null;uniqueIndex" json:"household_number"`
	HeadOfHouseholdPsn string          `gorm:"size:20;index" json:"head_of_household_psn"`
	// Head name and birth date feed the similarity scoring of later records;
	// they must survive on the entity, not just on the ingestion payload.
	HeadOfHouseholdName string     `gorm:"size:200" json:"head_of_household_name"`
	HeadOfHouseholdDob  *time.Time `json:"head_of_household_dob"`
	Status             HouseholdStatus `gorm:"size:20;not null;default:'ACTIVE';index" json:"status"`
	SourceSystem       SourceSystem    `gorm:"size:50" json:"source_system"`
	TotalMembers       int             `gorm:"not null;default:0" json:"total_members"`
	MonthlyIncome      decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"monthly_income"`
	Region             string          `gorm:"size:100" json:"region"`
	Province           string          `gorm:"size:100" json:"province"`
	Municipality       string          `gorm:"size:100" json:"municipality"`
	Barangay           string          `gorm:"size:100" json:"barangay"`
	IsIndigenous       *bool           `gorm:"default:false" json:"is_indigenous"`
	IsPwdHousehold     *bool           `gorm:"default:false" json:"is_pwd_household"`
	IsSeniorHousehold  *bool           `gorm:"default:false" json:"is_senior_citizen_household"`
	IsSoloParent       *bool           `gorm:"default:false" json:"is_solo_parent_household"`
	HousingType        string          `gorm:"size:50" json:"housing_type"`
	HousingTenure      string          `gorm:"size:50" json:"housing_tenure"`
	WaterSource        string          `gorm:"size:50" json:"water_source"`
	ToiletFacility     string          `gorm:"size:50" json:"toilet_facility"`
	ElectricitySource  string          `gorm:"size:50" json:"electricity_source"`
	Notes              string          `gorm:"type:text" json:"notes"`
	Extra              Metadata        `gorm:"type:json" json:"metadata"`
	// Version implements optimistic locking; concurrent writers to the same
	// household must not both succeed silently.
	Version          int        `gorm:"not null;default:0" json:"version"`
	RegistrationDate time.Time  `gorm:"not null" json:"registration_date"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	ArchivedAt       *time.Time `json:"archived_at"`
}

type HouseholdMember struct {
	ID            string          `gorm:"primaryKey;size:36" json:"id"`
	HouseholdID   string          `gorm:"size:36;not null;index" json:"household_id"`
	Psn           string          `gorm:"size:20;index" json:"psn"`
	FirstName     string          `gorm:"size:100" json:"first_name"`
	MiddleName    string          `gorm:"size:100" json:"middle_name"`
	LastName      string          `gorm:"size:100" json:"last_name"`
	DateOfBirth   *time.Time      `json:"date_of_birth"`
	Relationship  string          `gorm:"size:50" json:"relationship"`
	MonthlyIncome decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"monthly_income"`
	IsHead        *bool           `gorm:"default:false" json:"is_head_of_household"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (m *HouseholdMember) FullName() string {
	name := m.FirstName
	if m.MiddleName != "" {
		name += " " + m.MiddleName
	}
	if m.LastName != "" {
		name += " " + m.LastName
	}
	return name
}
