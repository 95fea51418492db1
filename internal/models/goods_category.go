package models

import "time"

// GoodsCategory is a descriptive tag attached to blocks and cycles.
// It carries no allocation semantics; pools fill oldest-first across
// all categories.
type GoodsCategory struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	Code        string `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name        string `gorm:"type:varchar(100);not null"`
	Description string `gorm:"type:text"`
	Active      bool   `gorm:"not null;default:true;index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (GoodsCategory) TableName() string {
	return "goods_categories"
}
