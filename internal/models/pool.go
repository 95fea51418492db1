package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PoolForming   = "forming"
	PoolReady     = "ready"
	PoolActive    = "active"
	PoolCompleted = "completed"
	PoolSuspended = "suspended"
)

// Pool is a fixed-capacity cluster of blocks that trade together.
// Pool numbers advance by the capacity step, so block numbers derived
// from (PoolNumber - step) + position form a gap-free global sequence.
type Pool struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	PoolNumber int64  `gorm:"not null;uniqueIndex"`

	Capacity    int    `gorm:"not null;default:10"`
	CurrentFill int    `gorm:"not null;default:0"`
	Status      string `gorm:"type:varchar(20);not null;default:'forming';index"`

	CurrentCycleID  *uint64 `gorm:"index"`
	CyclesCompleted int     `gorm:"not null;default:0"`
	// CycleSeq is the per-pool cycle number source, advanced under the
	// pool row lock so concurrent creators cannot collide.
	CycleSeq int `gorm:"not null;default:0"`

	TotalCapital decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	TotalProfit  decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	AverageROI   decimal.Decimal `gorm:"column:average_roi;type:numeric(20,10);not null;default:0"`

	NextCycleStartAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Pool) TableName() string {
	return "pools"
}

func (p Pool) Ref() string {
	return fmt.Sprintf("POOL-%d", p.PoolNumber)
}

func (p Pool) IsFull() bool {
	return p.Capacity > 0 && p.CurrentFill >= p.Capacity
}

// BlockNumberAt derives the global block number for a position (1-based)
// in this pool: (poolNumber - step) + position, step == capacity.
func (p Pool) BlockNumberAt(position int) int64 {
	return p.PoolNumber - int64(p.Capacity) + int64(position)
}
