package service

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/shopspring/decimal"

	"tradepool/internal/apperr"
	"tradepool/internal/config"
	"tradepool/internal/identity"
	"tradepool/internal/ledger"
	"tradepool/internal/models"
	"tradepool/internal/repository"
)

type stubIdentity struct {
	err error
}

func (s *stubIdentity) ResolveOwner(ctx context.Context, ownerID string) (*identity.Owner, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &identity.Owner{ID: ownerID}, nil
}

func newAllocator(repo *stubRepo, led *stubLedger) *PoolAllocator {
	return &PoolAllocator{
		Repo:   repo,
		Ledger: led,
		Engine: &CycleEngine{Repo: repo, Ledger: led},
		Purchase: config.PurchaseConfig{
			UnitPrice:    1000000,
			PoolCapacity: 10,
			MaxQuantity:  10,
		},
		Insurance: config.InsuranceConfig{
			Prefix:       "INS",
			Provider:     "Pool Trade Assurance",
			CoverageRate: 1.0,
			PremiumRate:  0.02,
		},
	}
}

func TestPurchaseBlocksSequentialNumbering(t *testing.T) {
	repo := newStubRepo()
	led := &stubLedger{}
	alloc := newAllocator(repo, led)

	blocks, err := alloc.PurchaseBlocks(context.Background(), PurchaseRequest{
		OwnerID:    "owner-1",
		PayoutMode: models.PayoutCompounding,
		Quantity:   3,
	})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}
	for i, b := range blocks {
		if b.BlockNumber != int64(i+1) {
			t.Errorf("block %d: number = %d, want %d", i, b.BlockNumber, i+1)
		}
		if b.PositionInPool != i+1 {
			t.Errorf("block %d: position = %d, want %d", i, b.PositionInPool, i+1)
		}
		if !b.PurchasePrice.Equal(decimal.NewFromInt(1000000)) {
			t.Errorf("block %d: price = %s", i, b.PurchasePrice)
		}
		if b.Status != models.BlockPending {
			t.Errorf("block %d: status = %q, want pending", i, b.Status)
		}
	}
	if blocks[0].PoolID != blocks[2].PoolID {
		t.Errorf("blocks split across pools: %d vs %d", blocks[0].PoolID, blocks[2].PoolID)
	}

	pool, _ := repo.GetPoolByID(context.Background(), blocks[0].PoolID)
	if pool == nil {
		t.Fatal("pool missing")
	}
	if pool.PoolNumber != 10 {
		t.Errorf("pool number = %d, want 10", pool.PoolNumber)
	}
	if pool.CurrentFill != 3 || pool.Status != models.PoolForming {
		t.Errorf("pool fill/status = %d/%q, want 3/forming", pool.CurrentFill, pool.Status)
	}
	if !pool.TotalCapital.Equal(decimal.NewFromInt(3000000)) {
		t.Errorf("pool capital = %s, want 3000000", pool.TotalCapital)
	}

	if len(led.debits) != 1 || !led.debits[0].Equal(decimal.NewFromInt(3000000)) {
		t.Errorf("debits = %v, want one of 3000000", led.debits)
	}
	if len(led.entries) != 1 || led.entries[0].Type != ledger.EntryBlockPurchase {
		t.Errorf("entries = %v, want one purchase entry", led.entries)
	}
	if led.entries[0].Reference == "" {
		t.Error("purchase entry has empty reference")
	}
}

func TestPurchaseBlocksFillsPoolAndSchedulesCycle(t *testing.T) {
	repo := newStubRepo()
	led := &stubLedger{}
	alloc := newAllocator(repo, led)

	blocks, err := alloc.PurchaseBlocks(context.Background(), PurchaseRequest{
		OwnerID:    "owner-1",
		PayoutMode: models.PayoutCompounding,
		Quantity:   10,
	})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if len(blocks) != 10 {
		t.Fatalf("expected 10 blocks, got %d", len(blocks))
	}

	pool, _ := repo.GetPoolByID(context.Background(), blocks[0].PoolID)
	if !pool.IsFull() {
		t.Fatalf("pool fill = %d, want full", pool.CurrentFill)
	}
	if pool.Status != models.PoolActive {
		t.Errorf("pool status = %q, want active", pool.Status)
	}
	if pool.CurrentCycleID == nil {
		t.Fatal("full pool has no current cycle")
	}

	cycle, _ := repo.GetCycleByID(context.Background(), *pool.CurrentCycleID)
	if cycle == nil {
		t.Fatal("cycle missing")
	}
	if cycle.CycleNumber != 1 {
		t.Errorf("cycle number = %d, want 1", cycle.CycleNumber)
	}
	if cycle.BlockCount != 10 {
		t.Errorf("cycle block count = %d, want 10", cycle.BlockCount)
	}
	if !cycle.TotalCapital.Equal(decimal.NewFromInt(10000000)) {
		t.Errorf("cycle capital = %s, want 10000000", cycle.TotalCapital)
	}
	if cycle.Status != models.CycleScheduled {
		t.Errorf("cycle status = %q, want scheduled", cycle.Status)
	}
	if cycle.DurationDays != 37 {
		t.Errorf("cycle duration = %d, want 37", cycle.DurationDays)
	}

	for _, b := range blocks {
		if b.Status != models.BlockActive {
			t.Errorf("block %s status = %q, want active", b.Ref(), b.Status)
		}
		if b.CurrentCycleID == nil || *b.CurrentCycleID != cycle.ID {
			t.Errorf("block %s not assigned to cycle", b.Ref())
		}
	}

	blockIDs := make([]uint64, 0, len(blocks))
	for _, b := range blocks {
		blockIDs = append(blockIDs, b.ID)
	}
	policies, _ := repo.ListInsuranceByBlockIDs(context.Background(), blockIDs)
	if len(policies) != 10 {
		t.Fatalf("expected 10 policies, got %d", len(policies))
	}
	for _, p := range policies {
		if p.Status != models.InsuranceActive {
			t.Errorf("policy %s status = %q, want active", p.CertificateID, p.Status)
		}
		if !p.Premium.Equal(decimal.NewFromInt(20000)) {
			t.Errorf("policy %s premium = %s, want 20000", p.CertificateID, p.Premium)
		}
	}
}

func TestPurchaseBlocksOverflowsToNextPool(t *testing.T) {
	repo := newStubRepo()
	led := &stubLedger{}
	alloc := newAllocator(repo, led)
	ctx := context.Background()

	first, err := alloc.PurchaseBlocks(ctx, PurchaseRequest{
		OwnerID:    "owner-1",
		PayoutMode: models.PayoutCompounding,
		Quantity:   10,
	})
	if err != nil {
		t.Fatalf("first purchase: %v", err)
	}
	second, err := alloc.PurchaseBlocks(ctx, PurchaseRequest{
		OwnerID:    "owner-2",
		PayoutMode: models.PayoutWithdrawal,
		Quantity:   1,
	})
	if err != nil {
		t.Fatalf("second purchase: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("expected 1 block, got %d", len(second))
	}

	b := second[0]
	if b.BlockNumber != 11 {
		t.Errorf("block number = %d, want 11", b.BlockNumber)
	}
	if b.PositionInPool != 1 {
		t.Errorf("position = %d, want 1", b.PositionInPool)
	}
	if b.PoolID == first[0].PoolID {
		t.Error("overflow block landed in the filled pool")
	}
	pool, _ := repo.GetPoolByID(ctx, b.PoolID)
	if pool.PoolNumber != 20 {
		t.Errorf("second pool number = %d, want 20", pool.PoolNumber)
	}
}

func TestPurchaseBlocksInsufficientFunds(t *testing.T) {
	repo := newStubRepo()
	led := &stubLedger{debitErr: ledger.ErrInsufficientFunds}
	alloc := newAllocator(repo, led)

	_, err := alloc.PurchaseBlocks(context.Background(), PurchaseRequest{
		OwnerID:    "owner-1",
		PayoutMode: models.PayoutCompounding,
		Quantity:   5,
	})
	if !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want insufficient funds", err)
	}
	if len(repo.blocks) != 0 {
		t.Errorf("blocks created despite failed debit: %d", len(repo.blocks))
	}
	if len(led.credits) != 0 {
		t.Errorf("unexpected compensating credit: %v", led.credits)
	}
}

func TestPurchaseBlocksMidBatchFailureRefunds(t *testing.T) {
	repo := newStubRepo()
	repo.failCreateBlockAt = 2
	led := &stubLedger{}
	alloc := newAllocator(repo, led)

	_, err := alloc.PurchaseBlocks(context.Background(), PurchaseRequest{
		OwnerID:    "owner-1",
		PayoutMode: models.PayoutCompounding,
		Quantity:   3,
	})
	if err == nil {
		t.Fatal("expected mid-batch failure")
	}
	if !led.netMovement().IsZero() {
		t.Errorf("net ledger movement = %s, want 0 after refund", led.netMovement())
	}
	if len(led.credits) != 1 || !led.credits[0].Equal(decimal.NewFromInt(3000000)) {
		t.Errorf("credits = %v, want one full refund of 3000000", led.credits)
	}
	if len(repo.blocks) != 0 {
		t.Errorf("blocks survived the rolled-back batch: %d", len(repo.blocks))
	}
}

func TestRetirePool(t *testing.T) {
	repo := newStubRepo()
	led := &stubLedger{}
	alloc := newAllocator(repo, led)
	ctx := context.Background()

	blocks, err := alloc.PurchaseBlocks(ctx, PurchaseRequest{
		OwnerID:    "owner-1",
		PayoutMode: models.PayoutCompounding,
		Quantity:   10,
	})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	poolID := blocks[0].PoolID

	// A cycle is running; the pool cannot leave rotation yet.
	if _, err := alloc.RetirePool(ctx, poolID); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("retire with running cycle err = %v, want invalid transition", err)
	}

	pool, _ := repo.GetPoolByID(ctx, poolID)
	if _, err := alloc.Engine.CancelCycle(ctx, *pool.CurrentCycleID, "winding down"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	retired, err := alloc.RetirePool(ctx, poolID)
	if err != nil {
		t.Fatalf("retire: %v", err)
	}
	if retired.Status != models.PoolCompleted {
		t.Errorf("pool status = %q, want completed", retired.Status)
	}
	fresh, _ := repo.ListBlocks(ctx, repository.ListBlocksParams{PoolID: &poolID})
	for _, b := range fresh {
		if b.Status != models.BlockMatured {
			t.Errorf("block %s status = %q, want matured", b.Ref(), b.Status)
		}
	}

	// Out of rotation for good: no replenish pickup, no second retire.
	if pools, _ := repo.ListReplenishablePools(ctx, 10); len(pools) != 0 {
		t.Errorf("retired pool still replenishable: %d", len(pools))
	}
	if _, err := alloc.RetirePool(ctx, poolID); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("second retire err = %v, want invalid transition", err)
	}
	if _, err := alloc.RetirePool(ctx, 9999); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing pool err = %v, want not found", err)
	}
}

func TestPurchaseBlocksValidation(t *testing.T) {
	repo := newStubRepo()
	led := &stubLedger{}
	alloc := newAllocator(repo, led)
	ctx := context.Background()

	cases := []PurchaseRequest{
		{OwnerID: "owner-1", PayoutMode: models.PayoutCompounding, Quantity: 0},
		{OwnerID: "owner-1", PayoutMode: models.PayoutCompounding, Quantity: 11},
		{OwnerID: "owner-1", PayoutMode: "weekly", Quantity: 1},
		{OwnerID: "", PayoutMode: models.PayoutCompounding, Quantity: 1},
		{OwnerID: "owner-1", PayoutMode: models.PayoutCompounding, Quantity: 1, GoodsCategory: "unknown"},
	}
	for i, req := range cases {
		if _, err := alloc.PurchaseBlocks(ctx, req); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("case %d: err = %v, want validation error", i, err)
		}
	}
	if len(led.debits) != 0 {
		t.Errorf("debits issued for invalid requests: %v", led.debits)
	}
}

func TestPurchaseBlocksUnknownOwner(t *testing.T) {
	repo := newStubRepo()
	led := &stubLedger{}
	alloc := newAllocator(repo, led)
	alloc.Identity = &stubIdentity{err: identity.ErrOwnerNotFound}

	_, err := alloc.PurchaseBlocks(context.Background(), PurchaseRequest{
		OwnerID:    "ghost",
		PayoutMode: models.PayoutCompounding,
		Quantity:   1,
	})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if len(led.debits) != 0 {
		t.Errorf("debit issued for unknown owner: %v", led.debits)
	}
}

func TestPurchaseBlocksCertificateFormat(t *testing.T) {
	repo := newStubRepo()
	led := &stubLedger{}
	alloc := newAllocator(repo, led)

	blocks, err := alloc.PurchaseBlocks(context.Background(), PurchaseRequest{
		OwnerID:    "owner-1",
		PayoutMode: models.PayoutWithdrawal,
		Quantity:   1,
	})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	pattern := regexp.MustCompile(`^INS-1-\d{13}$`)
	if !pattern.MatchString(blocks[0].InsuranceCertID) {
		t.Errorf("certificate id %q does not match %s", blocks[0].InsuranceCertID, pattern)
	}
}

func TestSwitchPayoutMode(t *testing.T) {
	repo := newStubRepo()
	led := &stubLedger{}
	alloc := newAllocator(repo, led)
	ctx := context.Background()

	blocks, err := alloc.PurchaseBlocks(ctx, PurchaseRequest{
		OwnerID:    "owner-1",
		PayoutMode: models.PayoutCompounding,
		Quantity:   1,
	})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	id := blocks[0].ID

	updated, err := alloc.SwitchPayoutMode(ctx, id, models.PayoutWithdrawal)
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if updated.PayoutMode != models.PayoutWithdrawal {
		t.Errorf("mode = %q, want withdrawal", updated.PayoutMode)
	}
	stored, _ := repo.GetBlockByID(ctx, id)
	if stored.PayoutMode != models.PayoutWithdrawal {
		t.Errorf("stored mode = %q, want withdrawal", stored.PayoutMode)
	}

	if _, err := alloc.SwitchPayoutMode(ctx, id, "quarterly"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("invalid mode err = %v, want validation error", err)
	}
	if _, err := alloc.SwitchPayoutMode(ctx, 9999, models.PayoutCompounding); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing block err = %v, want not found", err)
	}

	repo.blocks[id].Status = models.BlockLiquidated
	if _, err := alloc.SwitchPayoutMode(ctx, id, models.PayoutCompounding); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("liquidated err = %v, want invalid transition", err)
	}
}

func TestPurchaseBlocksGoodsCategory(t *testing.T) {
	repo := newStubRepo()
	led := &stubLedger{}
	alloc := newAllocator(repo, led)
	ctx := context.Background()

	if err := repo.UpsertGoodsCategory(ctx, &models.GoodsCategory{
		Code:   "electronics",
		Name:   "Electronics",
		Active: true,
	}); err != nil {
		t.Fatalf("seed category: %v", err)
	}

	blocks, err := alloc.PurchaseBlocks(ctx, PurchaseRequest{
		OwnerID:       "owner-1",
		GoodsCategory: "electronics",
		PayoutMode:    models.PayoutCompounding,
		Quantity:      1,
	})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if blocks[0].GoodsCategory != "electronics" {
		t.Errorf("category = %q, want electronics", blocks[0].GoodsCategory)
	}

	repo.categories["electronics"].Active = false
	if _, err := alloc.PurchaseBlocks(ctx, PurchaseRequest{
		OwnerID:       "owner-1",
		GoodsCategory: "electronics",
		PayoutMode:    models.PayoutCompounding,
		Quantity:      1,
	}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("inactive category err = %v, want validation error", err)
	}
}
