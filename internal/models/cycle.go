package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Cycle statuses move strictly forward:
// scheduled -> active -> processing -> completed, with failed and
// cancelled as terminal abnormal exits (no distribution).
const (
	CycleScheduled  = "scheduled"
	CycleActive     = "active"
	CycleProcessing = "processing"
	CycleCompleted  = "completed"
	CycleFailed     = "failed"
	CycleCancelled  = "cancelled"
)

// Performance bands assigned at completion from the actual profit rate.
const (
	PerformanceExcellent = "excellent"
	PerformanceGood      = "good"
	PerformanceAverage   = "average"
	PerformancePoor      = "poor"
)

// TradeCycle is one fixed-duration trading round over a pool's full
// block set. BlockIDs is an immutable snapshot taken at creation;
// membership changes after creation do not affect a running cycle.
type TradeCycle struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	PoolID      uint64 `gorm:"not null;index;uniqueIndex:idx_pool_cycle_number,priority:1"`
	CycleNumber int    `gorm:"not null;uniqueIndex:idx_pool_cycle_number,priority:2"`
	PoolNumber  int64  `gorm:"not null"`

	BlockIDs   datatypes.JSON `gorm:"type:jsonb;not null"`
	BlockCount int            `gorm:"not null"`

	GoodsCategory string          `gorm:"type:varchar(50);index"`
	GoodsQty      decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	StartDate    time.Time `gorm:"type:timestamptz;not null;index"`
	EndDate      time.Time `gorm:"type:timestamptz;not null;index"`
	DurationDays int       `gorm:"not null;default:37"`

	Status string `gorm:"type:varchar(20);not null;default:'scheduled';index"`

	TotalCapital         decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	TargetProfitRate     decimal.Decimal `gorm:"type:numeric(20,10);not null;default:5"`
	ActualProfitRate     decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`
	TotalProfitGenerated decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	PurchaseCost         decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	SalePrice            decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	TradingCosts         decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	ROI                  decimal.Decimal `gorm:"column:roi;type:numeric(20,10);not null;default:0"`

	Performance  string `gorm:"type:varchar(20)"`
	AutoExecuted bool   `gorm:"not null;default:false"`

	// ProfitDistributed is a one-way latch; it is claimed atomically with
	// the transition out of processing so repeated distribution attempts
	// cannot double-pay.
	ProfitDistributed bool       `gorm:"not null;default:false"`
	DistributedAt     *time.Time `gorm:"type:timestamptz"`

	FailureReason string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (TradeCycle) TableName() string {
	return "trade_cycles"
}

func (c TradeCycle) Ref() string {
	return fmt.Sprintf("CYC-%d-%d", c.PoolNumber, c.CycleNumber)
}

// PerformanceBand maps an actual profit rate (percent) to its band.
func PerformanceBand(rate decimal.Decimal) string {
	switch {
	case rate.GreaterThanOrEqual(decimal.NewFromInt(5)):
		return PerformanceExcellent
	case rate.GreaterThanOrEqual(decimal.NewFromInt(3)):
		return PerformanceGood
	case rate.GreaterThanOrEqual(decimal.NewFromInt(1)):
		return PerformanceAverage
	default:
		return PerformancePoor
	}
}
