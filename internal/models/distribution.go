package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CycleDistribution is one row of the per-block distribution ledger
// written when a cycle's profit is paid out. The reporting job and the
// distributions API read these.
type CycleDistribution struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	CycleID     uint64 `gorm:"not null;index;uniqueIndex:idx_cycle_block,priority:1"`
	BlockID     uint64 `gorm:"not null;uniqueIndex:idx_cycle_block,priority:2"`
	BlockNumber int64  `gorm:"not null"`
	OwnerID     string `gorm:"type:varchar(100);not null;index"`

	PayoutMode string          `gorm:"type:varchar(20);not null"`
	Share      decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	// Settled reports whether the share actually reached the owner:
	// compounding rows settle with the distribution transaction,
	// withdrawal rows only after the wallet credit succeeds. Unsettled
	// rows are the reconciliation queue for failed payouts.
	Settled   bool       `gorm:"not null;default:false;index"`
	SettledAt *time.Time `gorm:"type:timestamptz"`

	AppliedAt time.Time `gorm:"type:timestamptz;not null"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (CycleDistribution) TableName() string {
	return "cycle_distributions"
}
