package models

import (
	"time"
)

// RetentionPolicy governs when live data of one entity type is archived and
// when archived data is permanently deleted. Exactly one policy per entity
// type may be active at an instant, determined by the effective window.
type RetentionPolicy struct {
	ID                 string     `gorm:"primaryKey;size:36" json:"policy_id"`
	EntityType         string     `gorm:"size:50;not null;index" json:"entity_type"`
	RetentionDays      int        `gorm:"not null" json:"retention_days"`
	ArchiveAfterDays   *int       `json:"archive_after_days"`
	DeleteAfterDays    *int       `json:"delete_after_days"`
	AutoArchiveEnabled *bool      `gorm:"not null;default:false" json:"auto_archive_enabled"`
	AutoDeleteEnabled  *bool      `gorm:"not null;default:false" json:"auto_delete_enabled"`
	Description        string     `gorm:"size:500" json:"policy_description"`
	CreatedBy          string     `gorm:"size:100;not null" json:"created_by"`
	UpdatedBy          string     `gorm:"size:100" json:"updated_by"`
	IsActive           *bool      `gorm:"not null;default:true" json:"is_active"`
	EffectiveFrom      *time.Time `json:"effective_from"`
	EffectiveUntil     *time.Time `json:"effective_until"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsCurrentlyActive reports whether the effective window contains now.
func (p *RetentionPolicy) IsCurrentlyActive(now time.Time) bool {
	if p.IsActive == nil || !*p.IsActive {
		return false
	}
	if p.EffectiveFrom != nil && now.Before(*p.EffectiveFrom) {
		return false
	}
	if p.EffectiveUntil != nil && now.After(*p.EffectiveUntil) {
		return false
	}
	return true
}

// WindowConsistent reports the invariant archiveAfterDays <= deleteAfterDays
// when both are set.
func (p *RetentionPolicy) WindowConsistent() bool {
	if p.ArchiveAfterDays == nil || p.DeleteAfterDays == nil {
		return true
	}
	return *p.ArchiveAfterDays <= *p.DeleteAfterDays
}

func (p *RetentionPolicy) CalculateArchiveDate(entityCreatedAt time.Time) *time.Time {
	if p.ArchiveAfterDays == nil {
		return nil
	}
	d := entityCreatedAt.AddDate(0, 0, *p.ArchiveAfterDays)
	return &d
}

func (p *RetentionPolicy) CalculateRetentionUntil(archivedAt time.Time) time.Time {
	return archivedAt.AddDate(0, 0, p.RetentionDays)
}
