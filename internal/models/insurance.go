package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	InsurancePending = "pending"
	InsuranceActive  = "active"
	InsuranceExpired = "expired"
)

// InsurancePolicy covers one block. Created pending at purchase and
// activated the moment the block's pool fills.
type InsurancePolicy struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	CertificateID string `gorm:"type:varchar(60);not null;uniqueIndex"`
	BlockID       uint64 `gorm:"not null;index"`

	Provider     string          `gorm:"type:varchar(100);not null"`
	CoverageRate decimal.Decimal `gorm:"type:numeric(20,10);not null;default:1"`
	Premium      decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	Status   string     `gorm:"type:varchar(20);not null;default:'pending';index"`
	IssuedAt time.Time  `gorm:"type:timestamptz;not null"`
	ActiveAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (InsurancePolicy) TableName() string {
	return "insurance_policies"
}
