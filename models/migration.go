package models

import "gorm.io/gorm"

// Migrate runs AutoMigrate for every pipeline table. Safe to call on startup;
// GORM only applies additive changes.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&IngestionBatch{},
		&IngestionRecord{},
		&Household{},
		&HouseholdMember{},
		&EconomicProfile{},
		&ArchivedData{},
		&RetentionPolicy{},
		&RegistryEventRecord{},
		&DuplicateReviewFlag{},
	)
}
