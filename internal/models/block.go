package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Payout modes decide what DistributeProfits does with a block's share.
const (
	PayoutCompounding = "compounding"
	PayoutWithdrawal  = "withdrawal"
)

// Block lifecycle statuses. Blocks are never hard-deleted; liquidation
// is a status.
const (
	BlockPending    = "pending"
	BlockActive     = "active"
	BlockMatured    = "matured"
	BlockSuspended  = "suspended"
	BlockLiquidated = "liquidated"
)

// Block is one fixed-price capital unit owned by a partner and assigned
// to exactly one pool. Profit fields mutate only through cycle
// distribution.
type Block struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	BlockNumber int64  `gorm:"not null;uniqueIndex"`
	OwnerID     string `gorm:"type:varchar(100);not null;index"`

	PoolID         uint64 `gorm:"not null;index"`
	PositionInPool int    `gorm:"not null"`

	GoodsCategory string `gorm:"type:varchar(50);index"`

	PurchasePrice     decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	CurrentValue      decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	CompoundedValue   decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	TotalProfitEarned decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	LastCycleProfit   decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	LastCycleAt       *time.Time      `gorm:"type:timestamptz"`

	PayoutMode string `gorm:"type:varchar(20);not null;default:'compounding'"`
	Status     string `gorm:"type:varchar(20);not null;default:'pending';index"`

	CurrentCycleID  *uint64 `gorm:"index"`
	CyclesCompleted int     `gorm:"not null;default:0"`

	InsuranceCertID string `gorm:"type:varchar(60)"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Block) TableName() string {
	return "blocks"
}

// Ref is the human-readable identifier used in ledger references and logs.
func (b Block) Ref() string {
	return fmt.Sprintf("BLK-%06d", b.BlockNumber)
}

func ValidPayoutMode(mode string) bool {
	return mode == PayoutCompounding || mode == PayoutWithdrawal
}
