package models

import (
	"time"
)

// ArchivedData is a terminal, compressed and encrypted snapshot of an entity
// that has left the live tables.
type ArchivedData struct {
	ID               string `gorm:"primaryKey;size:36" json:"archive_id"`
	OriginalEntityID string `gorm:"size:36;not null;index" json:"original_entity_id"`
	EntityType       string `gorm:"size:50;not null;index" json:"entity_type"`
	// Snapshot is the gzip-compressed, AES-GCM-encrypted entity JSON,
	// base64-encoded for storage.
	Snapshot        string        `gorm:"type:longtext" json:"archived_data"`
	ArchiveReason   string        `gorm:"size:500" json:"archive_reason"`
	ArchivedBy      string        `gorm:"size:100" json:"archived_by"`
	Checksum        string        `gorm:"size:64;not null" json:"checksum"`
	EncryptionKeyID string        `gorm:"size:100" json:"encryption_key_id"`
	IsEncrypted     *bool         `gorm:"not null;default:false" json:"is_encrypted"`
	CompressionType string        `gorm:"size:20" json:"compression_type"`
	SnapshotBytes   int64         `json:"file_size_bytes"`
	Status          ArchiveStatus `gorm:"size:20;not null;default:'ACTIVE';index" json:"archive_status"`

	OriginalCreatedAt *time.Time `json:"original_created_at"`
	ArchivedAt        time.Time  `gorm:"autoCreateTime" json:"archived_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	RetentionUntil    time.Time  `gorm:"not null;index" json:"retention_until"`

	RestoredAt    *time.Time `json:"restored_at"`
	RestoredBy    string     `gorm:"size:100" json:"restored_by"`
	RestoreReason string     `gorm:"size:500" json:"restore_reason"`
}

func (a *ArchivedData) IsExpired(now time.Time) bool {
	return now.After(a.RetentionUntil)
}

func (a *ArchivedData) IsRestored() bool {
	return a.Status == ArchiveStatusRestored
}
