package db

import (
	"tradepool/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Sequence{},
		&models.GoodsCategory{},
		&models.Pool{},
		&models.Block{},
		&models.TradeCycle{},
		&models.CycleDistribution{},
		&models.InsurancePolicy{},
	)
}
