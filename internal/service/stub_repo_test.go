package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tradepool/internal/ledger"
	"tradepool/internal/models"
	"tradepool/internal/repository"
)

// stubRepo is a test-only in-memory implementation of
// repository.Repository. Writes apply immediately; InTx snapshots the
// whole state up front and restores it when the callback fails, which
// approximates transactional rollback closely enough for the engine's
// commit-or-retry semantics.
type stubRepo struct {
	mu sync.Mutex

	poolCounter int64
	nextID      uint64

	pools         map[uint64]*models.Pool
	blocks        map[uint64]*models.Block
	cycles        map[uint64]*models.TradeCycle
	distributions []models.CycleDistribution
	insurance     map[uint64]*models.InsurancePolicy
	categories    map[string]*models.GoodsCategory

	// failCreateBlockAt / failUpdateBlockAt make the nth call of the
	// respective method fail (1-based).
	failCreateBlockAt int
	createBlockCalls  int
	failUpdateBlockAt int
	updateBlockCalls  int
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		pools:      map[uint64]*models.Pool{},
		blocks:     map[uint64]*models.Block{},
		cycles:     map[uint64]*models.TradeCycle{},
		insurance:  map[uint64]*models.InsurancePolicy{},
		categories: map[string]*models.GoodsCategory{},
	}
}

func (s *stubRepo) id() uint64 {
	s.nextID++
	return s.nextID
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	snap := s.snapshot()
	if err := fn(nil); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type stubSnapshot struct {
	poolCounter   int64
	nextID        uint64
	pools         map[uint64]*models.Pool
	blocks        map[uint64]*models.Block
	cycles        map[uint64]*models.TradeCycle
	distributions []models.CycleDistribution
	insurance     map[uint64]*models.InsurancePolicy
	categories    map[string]*models.GoodsCategory
}

func (s *stubRepo) snapshot() stubSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := stubSnapshot{
		poolCounter:   s.poolCounter,
		nextID:        s.nextID,
		pools:         map[uint64]*models.Pool{},
		blocks:        map[uint64]*models.Block{},
		cycles:        map[uint64]*models.TradeCycle{},
		distributions: append([]models.CycleDistribution(nil), s.distributions...),
		insurance:     map[uint64]*models.InsurancePolicy{},
		categories:    map[string]*models.GoodsCategory{},
	}
	for id, p := range s.pools {
		cp := *p
		snap.pools[id] = &cp
	}
	for id, b := range s.blocks {
		cp := *b
		snap.blocks[id] = &cp
	}
	for id, c := range s.cycles {
		cp := *c
		snap.cycles[id] = &cp
	}
	for id, p := range s.insurance {
		cp := *p
		snap.insurance[id] = &cp
	}
	for code, c := range s.categories {
		cp := *c
		snap.categories[code] = &cp
	}
	return snap
}

func (s *stubRepo) restore(snap stubSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poolCounter = snap.poolCounter
	s.nextID = snap.nextID
	s.pools = snap.pools
	s.blocks = snap.blocks
	s.cycles = snap.cycles
	s.distributions = snap.distributions
	s.insurance = snap.insurance
	s.categories = snap.categories
}

func (s *stubRepo) NextPoolNumberTx(ctx context.Context, tx *gorm.DB, step int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poolCounter += step
	return s.poolCounter, nil
}

func (s *stubRepo) CreatePoolTx(ctx context.Context, tx *gorm.DB, item *models.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ID = s.id()
	cp := *item
	s.pools[item.ID] = &cp
	return nil
}

func (s *stubRepo) SavePoolTx(ctx context.Context, tx *gorm.DB, item *models.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *item
	s.pools[item.ID] = &cp
	return nil
}

func (s *stubRepo) LockOpenPoolTx(ctx context.Context, tx *gorm.DB) (*models.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.Pool
	for _, p := range s.pools {
		if p.Status != models.PoolForming || p.CurrentFill >= p.Capacity {
			continue
		}
		if best == nil || p.PoolNumber < best.PoolNumber {
			best = p
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (s *stubRepo) LockPoolTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.Pool, error) {
	return s.GetPoolByID(ctx, id)
}

func (s *stubRepo) GetPoolByID(ctx context.Context, id uint64) (*models.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *stubRepo) ListPools(ctx context.Context, params repository.ListPoolsParams) ([]models.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Pool
	for _, p := range s.pools {
		if params.Status != nil && p.Status != *params.Status {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PoolNumber < out[j].PoolNumber })
	return out, nil
}

func (s *stubRepo) CountPools(ctx context.Context, params repository.ListPoolsParams) (int64, error) {
	items, _ := s.ListPools(ctx, params)
	return int64(len(items)), nil
}

func (s *stubRepo) ListReplenishablePools(ctx context.Context, limit int) ([]models.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Pool
	for _, p := range s.pools {
		if p.Status != models.PoolReady || p.CurrentFill < p.Capacity || p.CurrentCycleID != nil {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PoolNumber < out[j].PoolNumber })
	return out, nil
}

func (s *stubRepo) UpdatePool(ctx context.Context, id uint64, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[id]
	if !ok {
		return fmt.Errorf("pool %d not found", id)
	}
	if v, ok := updates["status"]; ok {
		p.Status = v.(string)
	}
	return nil
}

func (s *stubRepo) CreateBlockTx(ctx context.Context, tx *gorm.DB, item *models.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createBlockCalls++
	if s.failCreateBlockAt > 0 && s.createBlockCalls == s.failCreateBlockAt {
		return fmt.Errorf("stub: create block forced failure")
	}
	item.ID = s.id()
	cp := *item
	s.blocks[item.ID] = &cp
	return nil
}

func (s *stubRepo) GetBlockByID(ctx context.Context, id uint64) (*models.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (s *stubRepo) ListBlocks(ctx context.Context, params repository.ListBlocksParams) ([]models.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Block
	for _, b := range s.blocks {
		if params.OwnerID != nil && b.OwnerID != *params.OwnerID {
			continue
		}
		if params.PoolID != nil && b.PoolID != *params.PoolID {
			continue
		}
		if params.Status != nil && b.Status != *params.Status {
			continue
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockNumber < out[j].BlockNumber })
	return out, nil
}

func (s *stubRepo) CountBlocks(ctx context.Context, params repository.ListBlocksParams) (int64, error) {
	items, _ := s.ListBlocks(ctx, params)
	return int64(len(items)), nil
}

func (s *stubRepo) ListBlocksByIDs(ctx context.Context, ids []uint64) ([]models.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Block, 0, len(ids))
	for _, id := range ids {
		if b, ok := s.blocks[id]; ok {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *stubRepo) ListBlocksByPoolTx(ctx context.Context, tx *gorm.DB, poolID uint64) ([]models.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Block
	for _, b := range s.blocks {
		if b.PoolID == poolID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PositionInPool < out[j].PositionInPool })
	return out, nil
}

func applyBlockUpdates(b *models.Block, updates map[string]any) {
	for key, raw := range updates {
		switch key {
		case "status":
			b.Status = raw.(string)
		case "payout_mode":
			b.PayoutMode = raw.(string)
		case "current_cycle_id":
			if raw == nil {
				b.CurrentCycleID = nil
			} else {
				v := raw.(uint64)
				b.CurrentCycleID = &v
			}
		case "cycles_completed":
			b.CyclesCompleted = raw.(int)
		case "total_profit_earned":
			b.TotalProfitEarned = raw.(decimal.Decimal)
		case "last_cycle_profit":
			b.LastCycleProfit = raw.(decimal.Decimal)
		case "last_cycle_at":
			v := raw.(time.Time)
			b.LastCycleAt = &v
		case "current_value":
			b.CurrentValue = raw.(decimal.Decimal)
		case "compounded_value":
			b.CompoundedValue = raw.(decimal.Decimal)
		}
	}
}

func (s *stubRepo) UpdateBlockTx(ctx context.Context, tx *gorm.DB, id uint64, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateBlockCalls++
	if s.failUpdateBlockAt > 0 && s.updateBlockCalls == s.failUpdateBlockAt {
		return fmt.Errorf("stub: update block forced failure")
	}
	b, ok := s.blocks[id]
	if !ok {
		return fmt.Errorf("block %d not found", id)
	}
	applyBlockUpdates(b, updates)
	return nil
}

func (s *stubRepo) UpdateBlocksTx(ctx context.Context, tx *gorm.DB, ids []uint64, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if b, ok := s.blocks[id]; ok {
			applyBlockUpdates(b, updates)
		}
	}
	return nil
}

func (s *stubRepo) SetBlockPayoutMode(ctx context.Context, id uint64, mode string) error {
	return s.UpdateBlockTx(ctx, nil, id, map[string]any{"payout_mode": mode})
}

func (s *stubRepo) CreateCycleTx(ctx context.Context, tx *gorm.DB, item *models.TradeCycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cycles {
		if c.PoolID == item.PoolID && c.CycleNumber == item.CycleNumber {
			return fmt.Errorf("duplicate cycle number %d for pool %d", item.CycleNumber, item.PoolID)
		}
	}
	item.ID = s.id()
	cp := *item
	s.cycles[item.ID] = &cp
	return nil
}

func (s *stubRepo) GetCycleByID(ctx context.Context, id uint64) (*models.TradeCycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cycles[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *stubRepo) ListCycles(ctx context.Context, params repository.ListCyclesParams) ([]models.TradeCycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TradeCycle
	for _, c := range s.cycles {
		if params.PoolID != nil && c.PoolID != *params.PoolID {
			continue
		}
		if params.Status != nil && c.Status != *params.Status {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubRepo) CountCycles(ctx context.Context, params repository.ListCyclesParams) (int64, error) {
	items, _ := s.ListCycles(ctx, params)
	return int64(len(items)), nil
}

func (s *stubRepo) ListDueCycles(ctx context.Context, status string, due time.Time, limit int) ([]models.TradeCycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TradeCycle
	for _, c := range s.cycles {
		if c.Status != status {
			continue
		}
		deadline := c.StartDate
		if status == models.CycleActive {
			deadline = c.EndDate
		}
		if deadline.After(due) {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func applyCycleUpdates(c *models.TradeCycle, updates map[string]any) {
	for key, raw := range updates {
		switch key {
		case "status":
			c.Status = raw.(string)
		case "start_date":
			c.StartDate = raw.(time.Time)
		case "end_date":
			c.EndDate = raw.(time.Time)
		case "sale_price":
			c.SalePrice = raw.(decimal.Decimal)
		case "trading_costs":
			c.TradingCosts = raw.(decimal.Decimal)
		case "total_profit_generated":
			c.TotalProfitGenerated = raw.(decimal.Decimal)
		case "actual_profit_rate":
			c.ActualProfitRate = raw.(decimal.Decimal)
		case "roi":
			c.ROI = raw.(decimal.Decimal)
		case "performance":
			c.Performance = raw.(string)
		case "auto_executed":
			c.AutoExecuted = raw.(bool)
		case "failure_reason":
			c.FailureReason = raw.(string)
		}
	}
}

func (s *stubRepo) ClaimCycleStatus(ctx context.Context, id uint64, from, to string, updates map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cycles[id]
	if !ok || c.Status != from {
		return false, nil
	}
	applyCycleUpdates(c, updates)
	c.Status = to
	return true, nil
}

func (s *stubRepo) ClaimCycleDistributionTx(ctx context.Context, tx *gorm.DB, id uint64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cycles[id]
	if !ok || c.Status != models.CycleProcessing || c.ProfitDistributed {
		return false, nil
	}
	c.Status = models.CycleCompleted
	c.ProfitDistributed = true
	c.DistributedAt = &at
	return true, nil
}

func (s *stubRepo) UpdateCycleTx(ctx context.Context, tx *gorm.DB, id uint64, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cycles[id]
	if !ok {
		return fmt.Errorf("cycle %d not found", id)
	}
	applyCycleUpdates(c, updates)
	return nil
}

func (s *stubRepo) AverageCycleROITx(ctx context.Context, tx *gorm.DB, poolID uint64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := decimal.Zero
	n := 0
	for _, c := range s.cycles {
		if c.PoolID != poolID || c.Status != models.CycleCompleted {
			continue
		}
		sum = sum.Add(c.ROI)
		n++
	}
	if n == 0 {
		return decimal.Zero, nil
	}
	return sum.Div(decimal.NewFromInt(int64(n))), nil
}

func (s *stubRepo) InsertDistributionTx(ctx context.Context, tx *gorm.DB, item *models.CycleDistribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.distributions {
		if d.CycleID == item.CycleID && d.BlockID == item.BlockID {
			return fmt.Errorf("duplicate distribution for cycle %d block %d", item.CycleID, item.BlockID)
		}
	}
	item.ID = s.id()
	s.distributions = append(s.distributions, *item)
	return nil
}

func (s *stubRepo) ListDistributionsByCycle(ctx context.Context, cycleID uint64) ([]models.CycleDistribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CycleDistribution
	for _, d := range s.distributions {
		if d.CycleID == cycleID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *stubRepo) MarkDistributionSettled(ctx context.Context, cycleID, blockID uint64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.distributions {
		d := &s.distributions[i]
		if d.CycleID == cycleID && d.BlockID == blockID {
			d.Settled = true
			t := at
			d.SettledAt = &t
		}
	}
	return nil
}

func (s *stubRepo) CreateInsuranceTx(ctx context.Context, tx *gorm.DB, item *models.InsurancePolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ID = s.id()
	cp := *item
	s.insurance[item.ID] = &cp
	return nil
}

func (s *stubRepo) ListInsuranceByBlockIDs(ctx context.Context, blockIDs []uint64) ([]models.InsurancePolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := map[uint64]bool{}
	for _, id := range blockIDs {
		want[id] = true
	}
	var out []models.InsurancePolicy
	for _, p := range s.insurance {
		if want[p.BlockID] {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubRepo) ActivateInsuranceForBlocksTx(ctx context.Context, tx *gorm.DB, blockIDs []uint64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := map[uint64]bool{}
	for _, id := range blockIDs {
		want[id] = true
	}
	for _, p := range s.insurance {
		if want[p.BlockID] && p.Status == models.InsurancePending {
			p.Status = models.InsuranceActive
			t := at
			p.ActiveAt = &t
		}
	}
	return nil
}

func (s *stubRepo) UpsertGoodsCategory(ctx context.Context, item *models.GoodsCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.categories[item.Code]; ok {
		item.ID = existing.ID
	} else {
		item.ID = s.id()
	}
	cp := *item
	s.categories[item.Code] = &cp
	return nil
}

func (s *stubRepo) GetGoodsCategoryByCode(ctx context.Context, code string) (*models.GoodsCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[code]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *stubRepo) ListGoodsCategories(ctx context.Context, activeOnly bool) ([]models.GoodsCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.GoodsCategory
	for _, c := range s.categories {
		if activeOnly && !c.Active {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *stubRepo) DeleteGoodsCategory(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.categories, code)
	return nil
}

func (s *stubRepo) CycleSummarySince(ctx context.Context, since time.Time) (repository.CycleSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := repository.CycleSummary{
		TotalProfit:  decimal.Zero,
		TotalCapital: decimal.Zero,
		AverageROI:   decimal.Zero,
	}
	roiSum := decimal.Zero
	for _, c := range s.cycles {
		if c.Status != models.CycleCompleted || c.DistributedAt == nil || c.DistributedAt.Before(since) {
			continue
		}
		out.CompletedCycles++
		out.TotalProfit = out.TotalProfit.Add(c.TotalProfitGenerated)
		out.TotalCapital = out.TotalCapital.Add(c.TotalCapital)
		roiSum = roiSum.Add(c.ROI)
	}
	if out.CompletedCycles > 0 {
		out.AverageROI = roiSum.Div(decimal.NewFromInt(out.CompletedCycles))
	}
	for _, d := range s.distributions {
		if !d.AppliedAt.Before(since) {
			out.DistributedRows++
		}
	}
	return out, nil
}

// stubLedger records balance movements; Debit and Credit can be forced
// to fail.
type stubLedger struct {
	mu        sync.Mutex
	debitErr  error
	creditErr error

	debits  []decimal.Decimal
	credits []decimal.Decimal
	entries []ledger.Entry
}

func (l *stubLedger) Debit(ctx context.Context, ownerID string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.debitErr != nil {
		return l.debitErr
	}
	l.debits = append(l.debits, amount)
	return nil
}

func (l *stubLedger) Credit(ctx context.Context, ownerID string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.creditErr != nil {
		return l.creditErr
	}
	l.credits = append(l.credits, amount)
	return nil
}

func (l *stubLedger) RecordTransaction(ctx context.Context, entry ledger.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *stubLedger) netMovement() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	net := decimal.Zero
	for _, d := range l.debits {
		net = net.Sub(d)
	}
	for _, c := range l.credits {
		net = net.Add(c)
	}
	return net
}
