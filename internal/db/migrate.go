package db

import (
	"mediameter/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Entity{},
		&models.Mention{},
		&models.CollectionRun{},
		&models.CollectorState{},
		&models.DailyAggregate{},
	)
}
