package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradepool/internal/models"
	"tradepool/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// handle picks the transaction when one is in flight, otherwise the
// root connection. Tx-suffixed methods accept nil so read paths can
// reuse them outside a transaction.
func (s *Store) handle(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}

// --- sequences --------------------------------------------------------------

func (s *Store) NextPoolNumberTx(ctx context.Context, tx *gorm.DB, step int64) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if step <= 0 {
		step = 1
	}
	var value int64
	err := s.handle(ctx, tx).Raw(`
		INSERT INTO sequences (name, value) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET value = sequences.value + ?
		RETURNING value`,
		models.SeqPoolNumber, step, step,
	).Scan(&value).Error
	return value, err
}

// --- pools ------------------------------------------------------------------

func (s *Store) CreatePoolTx(ctx context.Context, tx *gorm.DB, item *models.Pool) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.handle(ctx, tx).Create(item).Error
}

func (s *Store) SavePoolTx(ctx context.Context, tx *gorm.DB, item *models.Pool) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.handle(ctx, tx).Save(item).Error
}

func (s *Store) LockOpenPoolTx(ctx context.Context, tx *gorm.DB) (*models.Pool, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Pool
	err := s.handle(ctx, tx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("status = ?", models.PoolForming).
		Where("current_fill < capacity").
		Order("pool_number asc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) LockPoolTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.Pool, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Pool
	err := s.handle(ctx, tx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetPoolByID(ctx context.Context, id uint64) (*models.Pool, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Pool
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) poolQuery(ctx context.Context, params repository.ListPoolsParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Pool{})
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Full != nil {
		if *params.Full {
			query = query.Where("current_fill >= capacity")
		} else {
			query = query.Where("current_fill < capacity")
		}
	}
	return query
}

func (s *Store) ListPools(ctx context.Context, params repository.ListPoolsParams) ([]models.Pool, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrder(s.poolQuery(ctx, params), params.OrderBy, params.Asc, "pool_number")
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.Pool
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountPools(ctx context.Context, params repository.ListPoolsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.poolQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListReplenishablePools(ctx context.Context, limit int) ([]models.Pool, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 100)
	var items []models.Pool
	err := s.db.WithContext(ctx).
		Model(&models.Pool{}).
		Where("status = ?", models.PoolReady).
		Where("current_fill >= capacity").
		Where("current_cycle_id IS NULL").
		Order("pool_number asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdatePool(ctx context.Context, id uint64, updates map[string]any) error {
	if s == nil || s.db == nil || len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Pool{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// --- blocks -----------------------------------------------------------------

func (s *Store) CreateBlockTx(ctx context.Context, tx *gorm.DB, item *models.Block) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.handle(ctx, tx).Create(item).Error
}

func (s *Store) GetBlockByID(ctx context.Context, id uint64) (*models.Block, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Block
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) blockQuery(ctx context.Context, params repository.ListBlocksParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Block{})
	if params.OwnerID != nil && strings.TrimSpace(*params.OwnerID) != "" {
		query = query.Where("owner_id = ?", strings.TrimSpace(*params.OwnerID))
	}
	if params.PoolID != nil && *params.PoolID > 0 {
		query = query.Where("pool_id = ?", *params.PoolID)
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	return query
}

func (s *Store) ListBlocks(ctx context.Context, params repository.ListBlocksParams) ([]models.Block, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrder(s.blockQuery(ctx, params), params.OrderBy, params.Asc, "block_number")
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.Block
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountBlocks(ctx context.Context, params repository.ListBlocksParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.blockQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListBlocksByIDs(ctx context.Context, ids []uint64) ([]models.Block, error) {
	if s == nil || s.db == nil || len(ids) == 0 {
		return nil, nil
	}
	var items []models.Block
	err := s.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("block_number asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListBlocksByPoolTx(ctx context.Context, tx *gorm.DB, poolID uint64) ([]models.Block, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Block
	err := s.handle(ctx, tx).
		Where("pool_id = ?", poolID).
		Order("position_in_pool asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdateBlockTx(ctx context.Context, tx *gorm.DB, id uint64, updates map[string]any) error {
	if s == nil || s.db == nil || len(updates) == 0 {
		return nil
	}
	return s.handle(ctx, tx).
		Model(&models.Block{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (s *Store) UpdateBlocksTx(ctx context.Context, tx *gorm.DB, ids []uint64, updates map[string]any) error {
	if s == nil || s.db == nil || len(ids) == 0 || len(updates) == 0 {
		return nil
	}
	return s.handle(ctx, tx).
		Model(&models.Block{}).
		Where("id IN ?", ids).
		Updates(updates).Error
}

func (s *Store) SetBlockPayoutMode(ctx context.Context, id uint64, mode string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Block{}).
		Where("id = ?", id).
		Update("payout_mode", mode).Error
}

// --- cycles -----------------------------------------------------------------

func (s *Store) CreateCycleTx(ctx context.Context, tx *gorm.DB, item *models.TradeCycle) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.handle(ctx, tx).Create(item).Error
}

func (s *Store) GetCycleByID(ctx context.Context, id uint64) (*models.TradeCycle, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.TradeCycle
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) cycleQuery(ctx context.Context, params repository.ListCyclesParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.TradeCycle{})
	if params.PoolID != nil && *params.PoolID > 0 {
		query = query.Where("pool_id = ?", *params.PoolID)
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	return query
}

func (s *Store) ListCycles(ctx context.Context, params repository.ListCyclesParams) ([]models.TradeCycle, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrder(s.cycleQuery(ctx, params), params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.TradeCycle
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountCycles(ctx context.Context, params repository.ListCyclesParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.cycleQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListDueCycles(ctx context.Context, status string, due time.Time, limit int) ([]models.TradeCycle, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 200)
	dateColumn := "start_date"
	if status == models.CycleActive {
		dateColumn = "end_date"
	}
	var items []models.TradeCycle
	err := s.db.WithContext(ctx).
		Model(&models.TradeCycle{}).
		Where("status = ?", status).
		Where(dateColumn+" <= ?", due).
		Order(dateColumn + " asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ClaimCycleStatus(ctx context.Context, id uint64, from, to string, updates map[string]any) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to
	res := s.db.WithContext(ctx).
		Model(&models.TradeCycle{}).
		Where("id = ?", id).
		Where("status = ?", from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) ClaimCycleDistributionTx(ctx context.Context, tx *gorm.DB, id uint64, at time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	res := s.handle(ctx, tx).
		Model(&models.TradeCycle{}).
		Where("id = ?", id).
		Where("status = ?", models.CycleProcessing).
		Where("profit_distributed = ?", false).
		Updates(map[string]any{
			"status":             models.CycleCompleted,
			"profit_distributed": true,
			"distributed_at":     at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) UpdateCycleTx(ctx context.Context, tx *gorm.DB, id uint64, updates map[string]any) error {
	if s == nil || s.db == nil || len(updates) == 0 {
		return nil
	}
	return s.handle(ctx, tx).
		Model(&models.TradeCycle{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (s *Store) AverageCycleROITx(ctx context.Context, tx *gorm.DB, poolID uint64) (decimal.Decimal, error) {
	if s == nil || s.db == nil {
		return decimal.Zero, nil
	}
	var avg *decimal.Decimal
	err := s.handle(ctx, tx).
		Model(&models.TradeCycle{}).
		Select("AVG(roi)").
		Where("pool_id = ?", poolID).
		Where("status = ?", models.CycleCompleted).
		Scan(&avg).Error
	if err != nil {
		return decimal.Zero, err
	}
	if avg == nil {
		return decimal.Zero, nil
	}
	return *avg, nil
}

// --- distributions ----------------------------------------------------------

func (s *Store) InsertDistributionTx(ctx context.Context, tx *gorm.DB, item *models.CycleDistribution) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.handle(ctx, tx).Create(item).Error
}

func (s *Store) ListDistributionsByCycle(ctx context.Context, cycleID uint64) ([]models.CycleDistribution, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.CycleDistribution
	err := s.db.WithContext(ctx).
		Where("cycle_id = ?", cycleID).
		Order("block_number asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) MarkDistributionSettled(ctx context.Context, cycleID, blockID uint64, at time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.CycleDistribution{}).
		Where("cycle_id = ?", cycleID).
		Where("block_id = ?", blockID).
		Updates(map[string]any{
			"settled":    true,
			"settled_at": at,
		}).Error
}

// --- insurance --------------------------------------------------------------

func (s *Store) CreateInsuranceTx(ctx context.Context, tx *gorm.DB, item *models.InsurancePolicy) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.handle(ctx, tx).Create(item).Error
}

func (s *Store) ListInsuranceByBlockIDs(ctx context.Context, blockIDs []uint64) ([]models.InsurancePolicy, error) {
	if s == nil || s.db == nil || len(blockIDs) == 0 {
		return nil, nil
	}
	var items []models.InsurancePolicy
	err := s.db.WithContext(ctx).
		Where("block_id IN ?", blockIDs).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ActivateInsuranceForBlocksTx(ctx context.Context, tx *gorm.DB, blockIDs []uint64, at time.Time) error {
	if s == nil || s.db == nil || len(blockIDs) == 0 {
		return nil
	}
	return s.handle(ctx, tx).
		Model(&models.InsurancePolicy{}).
		Where("block_id IN ?", blockIDs).
		Where("status = ?", models.InsurancePending).
		Updates(map[string]any{
			"status":    models.InsuranceActive,
			"active_at": at,
		}).Error
}

// --- goods categories -------------------------------------------------------

func (s *Store) UpsertGoodsCategory(ctx context.Context, item *models.GoodsCategory) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Code) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name",
			"description",
			"active",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetGoodsCategoryByCode(ctx context.Context, code string) (*models.GoodsCategory, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.GoodsCategory
	err := s.db.WithContext(ctx).Where("code = ?", strings.TrimSpace(code)).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListGoodsCategories(ctx context.Context, activeOnly bool) ([]models.GoodsCategory, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.GoodsCategory{})
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	var items []models.GoodsCategory
	if err := query.Order("code asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) DeleteGoodsCategory(ctx context.Context, code string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("code = ?", strings.TrimSpace(code)).
		Delete(&models.GoodsCategory{}).Error
}

// --- reporting --------------------------------------------------------------

func (s *Store) CycleSummarySince(ctx context.Context, since time.Time) (repository.CycleSummary, error) {
	out := repository.CycleSummary{
		TotalProfit:  decimal.Zero,
		TotalCapital: decimal.Zero,
		AverageROI:   decimal.Zero,
	}
	if s == nil || s.db == nil {
		return out, nil
	}
	row := struct {
		Cycles  int64
		Profit  *decimal.Decimal
		Capital *decimal.Decimal
		AvgROI  *decimal.Decimal
	}{}
	err := s.db.WithContext(ctx).
		Model(&models.TradeCycle{}).
		Select("COUNT(*) AS cycles, SUM(total_profit_generated) AS profit, SUM(total_capital) AS capital, AVG(roi) AS avg_roi").
		Where("status = ?", models.CycleCompleted).
		Where("distributed_at >= ?", since).
		Scan(&row).Error
	if err != nil {
		return out, err
	}
	out.CompletedCycles = row.Cycles
	if row.Profit != nil {
		out.TotalProfit = *row.Profit
	}
	if row.Capital != nil {
		out.TotalCapital = *row.Capital
	}
	if row.AvgROI != nil {
		out.AverageROI = *row.AvgROI
	}
	err = s.db.WithContext(ctx).
		Model(&models.CycleDistribution{}).
		Where("applied_at >= ?", since).
		Count(&out.DistributedRows).Error
	return out, err
}

// --- helpers ----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
