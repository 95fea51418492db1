package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tradepool/internal/models"
)

// Repository is the single persistence surface shared by the allocator,
// the cycle engine, the scheduler jobs, and the handlers. Tx-suffixed
// methods run on the transaction handed out by InTx so multi-entity
// workflows commit or roll back as a unit.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Sequences. NextPoolNumberTx advances the pool-number counter by
	// step atomically and returns the new value; concurrent creators
	// serialize on the counter row.
	NextPoolNumberTx(ctx context.Context, tx *gorm.DB, step int64) (int64, error)

	// Pools. LockOpenPoolTx returns the oldest forming, not-full pool
	// with its row locked for the rest of the transaction, or nil when
	// no pool has room. LockPoolTx locks one pool by id.
	CreatePoolTx(ctx context.Context, tx *gorm.DB, item *models.Pool) error
	SavePoolTx(ctx context.Context, tx *gorm.DB, item *models.Pool) error
	LockOpenPoolTx(ctx context.Context, tx *gorm.DB) (*models.Pool, error)
	LockPoolTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.Pool, error)
	GetPoolByID(ctx context.Context, id uint64) (*models.Pool, error)
	ListPools(ctx context.Context, params ListPoolsParams) ([]models.Pool, error)
	CountPools(ctx context.Context, params ListPoolsParams) (int64, error)
	ListReplenishablePools(ctx context.Context, limit int) ([]models.Pool, error)
	UpdatePool(ctx context.Context, id uint64, updates map[string]any) error

	// Blocks.
	CreateBlockTx(ctx context.Context, tx *gorm.DB, item *models.Block) error
	GetBlockByID(ctx context.Context, id uint64) (*models.Block, error)
	ListBlocks(ctx context.Context, params ListBlocksParams) ([]models.Block, error)
	CountBlocks(ctx context.Context, params ListBlocksParams) (int64, error)
	ListBlocksByIDs(ctx context.Context, ids []uint64) ([]models.Block, error)
	ListBlocksByPoolTx(ctx context.Context, tx *gorm.DB, poolID uint64) ([]models.Block, error)
	UpdateBlockTx(ctx context.Context, tx *gorm.DB, id uint64, updates map[string]any) error
	UpdateBlocksTx(ctx context.Context, tx *gorm.DB, ids []uint64, updates map[string]any) error
	SetBlockPayoutMode(ctx context.Context, id uint64, mode string) error

	// Cycles. ClaimCycleStatus performs the forward transition from ->
	// to plus updates in one guarded UPDATE and reports whether this
	// caller won the claim. ClaimCycleDistributionTx sets the one-way
	// distribution latch and moves the cycle to completed in the same
	// guarded UPDATE, valid only from processing; it runs on the
	// caller's transaction so a rolled-back distribution also rolls the
	// latch back.
	CreateCycleTx(ctx context.Context, tx *gorm.DB, item *models.TradeCycle) error
	GetCycleByID(ctx context.Context, id uint64) (*models.TradeCycle, error)
	ListCycles(ctx context.Context, params ListCyclesParams) ([]models.TradeCycle, error)
	CountCycles(ctx context.Context, params ListCyclesParams) (int64, error)
	ListDueCycles(ctx context.Context, status string, due time.Time, limit int) ([]models.TradeCycle, error)
	ClaimCycleStatus(ctx context.Context, id uint64, from, to string, updates map[string]any) (bool, error)
	ClaimCycleDistributionTx(ctx context.Context, tx *gorm.DB, id uint64, at time.Time) (bool, error)
	UpdateCycleTx(ctx context.Context, tx *gorm.DB, id uint64, updates map[string]any) error
	AverageCycleROITx(ctx context.Context, tx *gorm.DB, poolID uint64) (decimal.Decimal, error)

	// Distribution ledger. MarkDistributionSettled flips the settled
	// flag once a withdrawal share actually reached the owner's wallet.
	InsertDistributionTx(ctx context.Context, tx *gorm.DB, item *models.CycleDistribution) error
	ListDistributionsByCycle(ctx context.Context, cycleID uint64) ([]models.CycleDistribution, error)
	MarkDistributionSettled(ctx context.Context, cycleID, blockID uint64, at time.Time) error

	// Insurance.
	CreateInsuranceTx(ctx context.Context, tx *gorm.DB, item *models.InsurancePolicy) error
	ListInsuranceByBlockIDs(ctx context.Context, blockIDs []uint64) ([]models.InsurancePolicy, error)
	ActivateInsuranceForBlocksTx(ctx context.Context, tx *gorm.DB, blockIDs []uint64, at time.Time) error

	// Goods categories (admin lookup surface).
	UpsertGoodsCategory(ctx context.Context, item *models.GoodsCategory) error
	GetGoodsCategoryByCode(ctx context.Context, code string) (*models.GoodsCategory, error)
	ListGoodsCategories(ctx context.Context, activeOnly bool) ([]models.GoodsCategory, error)
	DeleteGoodsCategory(ctx context.Context, code string) error

	// Reporting (read-only aggregates).
	CycleSummarySince(ctx context.Context, since time.Time) (CycleSummary, error)
}

type ListPoolsParams struct {
	Status  *string
	Full    *bool
	Limit   int
	Offset  int
	OrderBy string
	Asc     *bool
}

type ListBlocksParams struct {
	OwnerID *string
	PoolID  *uint64
	Status  *string
	Limit   int
	Offset  int
	OrderBy string
	Asc     *bool
}

type ListCyclesParams struct {
	PoolID  *uint64
	Status  *string
	Limit   int
	Offset  int
	OrderBy string
	Asc     *bool
}

// CycleSummary aggregates completed cycles for the reporting job.
type CycleSummary struct {
	CompletedCycles int64           `json:"completed_cycles"`
	TotalProfit     decimal.Decimal `json:"total_profit"`
	TotalCapital    decimal.Decimal `json:"total_capital"`
	AverageROI      decimal.Decimal `json:"average_roi"`
	DistributedRows int64           `json:"distributed_rows"`
}
