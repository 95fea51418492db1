package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tradepool/internal/apperr"
	"tradepool/internal/config"
	"tradepool/internal/ledger"
	"tradepool/internal/models"
	"tradepool/internal/repository"
)

// CycleEngine owns the trading-cycle state machine. Every status
// transition is a guarded UPDATE (claim), so concurrent scheduler
// passes and manual admin calls cannot move a cycle twice.
type CycleEngine struct {
	Repo   repository.Repository
	Ledger ledger.Gateway
	Logger *zap.Logger
	Config config.CycleConfig
}

type CreateCycleInput struct {
	PoolID           uint64          `json:"pool_id"`
	GoodsCategory    string          `json:"goods_category"`
	GoodsQty         decimal.Decimal `json:"goods_qty"`
	PurchaseCost     decimal.Decimal `json:"purchase_cost"`
	TargetProfitRate decimal.Decimal `json:"target_profit_rate"`
	StartDate        *time.Time      `json:"start_date"`
}

func (e *CycleEngine) durationDays() int {
	if e.Config.DurationDays > 0 {
		return e.Config.DurationDays
	}
	return 37
}

func (e *CycleEngine) targetRate() decimal.Decimal {
	if e.Config.TargetProfitRate > 0 {
		return decimal.NewFromFloat(e.Config.TargetProfitRate)
	}
	return decimal.NewFromInt(5)
}

// CreateCycle creates the next cycle for a full pool and moves the pool
// (and its member blocks) to active. The pool row stays locked for the
// whole transaction, which also serializes per-pool cycle numbering.
func (e *CycleEngine) CreateCycle(ctx context.Context, input CreateCycleInput) (*models.TradeCycle, error) {
	if e == nil || e.Repo == nil {
		return nil, nil
	}
	var out *models.TradeCycle
	err := e.Repo.InTx(ctx, func(tx *gorm.DB) error {
		cycle, err := e.createCycleTx(ctx, tx, input)
		if err != nil {
			return err
		}
		out = cycle
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *CycleEngine) createCycleTx(ctx context.Context, tx *gorm.DB, input CreateCycleInput) (*models.TradeCycle, error) {
	pool, err := e.Repo.LockPoolTx(ctx, tx, input.PoolID)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, apperr.NotFoundf("pool %d", input.PoolID)
	}
	if pool.Status == models.PoolSuspended {
		return nil, apperr.Transitionf("pool "+pool.Ref(), pool.Status, "create cycle")
	}
	if !pool.IsFull() {
		return nil, apperr.Transitionf("pool "+pool.Ref(), pool.Status, "create cycle before it is full")
	}
	if pool.CurrentCycleID != nil {
		return nil, apperr.Transitionf("pool "+pool.Ref(), pool.Status, "create a second concurrent cycle")
	}

	blocks, err := e.Repo.ListBlocksByPoolTx(ctx, tx, pool.ID)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, apperr.NotFoundf("blocks for pool %s", pool.Ref())
	}

	totalCapital := decimal.Zero
	blockIDs := make([]uint64, 0, len(blocks))
	for _, b := range blocks {
		totalCapital = totalCapital.Add(b.CurrentValue)
		blockIDs = append(blockIDs, b.ID)
	}
	idsJSON, err := json.Marshal(blockIDs)
	if err != nil {
		return nil, err
	}

	start := time.Now().UTC()
	if input.StartDate != nil && !input.StartDate.IsZero() {
		start = input.StartDate.UTC()
	}
	days := e.durationDays()
	end := start.Add(time.Duration(days) * 24 * time.Hour)

	target := input.TargetProfitRate
	if target.LessThanOrEqual(decimal.Zero) {
		target = e.targetRate()
	}
	purchaseCost := input.PurchaseCost
	if purchaseCost.LessThanOrEqual(decimal.Zero) {
		purchaseCost = totalCapital
	}

	pool.CycleSeq++
	cycle := models.TradeCycle{
		PoolID:           pool.ID,
		CycleNumber:      pool.CycleSeq,
		PoolNumber:       pool.PoolNumber,
		BlockIDs:         idsJSON,
		BlockCount:       len(blocks),
		GoodsCategory:    input.GoodsCategory,
		GoodsQty:         input.GoodsQty,
		StartDate:        start,
		EndDate:          end,
		DurationDays:     days,
		Status:           models.CycleScheduled,
		TotalCapital:     totalCapital,
		TargetProfitRate: target,
		PurchaseCost:     purchaseCost,
	}
	if err := e.Repo.CreateCycleTx(ctx, tx, &cycle); err != nil {
		return nil, err
	}

	pool.CurrentCycleID = &cycle.ID
	pool.Status = models.PoolActive
	pool.NextCycleStartAt = &end
	if err := e.Repo.SavePoolTx(ctx, tx, pool); err != nil {
		return nil, err
	}

	if err := e.Repo.UpdateBlocksTx(ctx, tx, blockIDs, map[string]any{
		"status":           models.BlockActive,
		"current_cycle_id": cycle.ID,
	}); err != nil {
		return nil, err
	}

	if e.Logger != nil {
		e.Logger.Info("cycle created",
			zap.String("cycle", cycle.Ref()),
			zap.String("pool", pool.Ref()),
			zap.Int("blocks", cycle.BlockCount),
			zap.String("capital", totalCapital.String()),
			zap.Time("start", start),
		)
	}
	return &cycle, nil
}

// StartCycle moves a scheduled cycle to active, re-stamping its start
// and recomputing its end.
func (e *CycleEngine) StartCycle(ctx context.Context, id uint64) (*models.TradeCycle, error) {
	if e == nil || e.Repo == nil {
		return nil, nil
	}
	cycle, err := e.Repo.GetCycleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, apperr.NotFoundf("cycle %d", id)
	}

	now := time.Now().UTC()
	end := now.Add(time.Duration(cycle.DurationDays) * 24 * time.Hour)
	claimed, err := e.Repo.ClaimCycleStatus(ctx, id, models.CycleScheduled, models.CycleActive, map[string]any{
		"start_date": now,
		"end_date":   end,
	})
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, e.transitionErr(ctx, id, cycle, "start")
	}
	if e.Logger != nil {
		e.Logger.Info("cycle started", zap.String("cycle", cycle.Ref()), zap.Time("end", end))
	}
	return e.Repo.GetCycleByID(ctx, id)
}

// CompleteCycle records the financial result and moves the cycle to
// processing. Distribution is a separate step.
func (e *CycleEngine) CompleteCycle(ctx context.Context, id uint64, salePrice, tradingCosts decimal.Decimal) (*models.TradeCycle, error) {
	if e == nil || e.Repo == nil {
		return nil, nil
	}
	if salePrice.LessThanOrEqual(decimal.Zero) {
		return nil, apperr.Validationf("sale price must be positive, got %s", salePrice.String())
	}
	if tradingCosts.IsNegative() {
		return nil, apperr.Validationf("trading costs cannot be negative, got %s", tradingCosts.String())
	}
	cycle, err := e.Repo.GetCycleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, apperr.NotFoundf("cycle %d", id)
	}

	profit := salePrice.Sub(cycle.PurchaseCost.Add(tradingCosts))
	rate := decimal.Zero
	if cycle.TotalCapital.GreaterThan(decimal.Zero) {
		rate = profit.Div(cycle.TotalCapital).Mul(decimal.NewFromInt(100))
	}

	claimed, err := e.Repo.ClaimCycleStatus(ctx, id, models.CycleActive, models.CycleProcessing, map[string]any{
		"sale_price":             salePrice,
		"trading_costs":          tradingCosts,
		"total_profit_generated": profit,
		"actual_profit_rate":     rate,
		"roi":                    rate,
		"performance":            models.PerformanceBand(rate),
	})
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, e.transitionErr(ctx, id, cycle, "complete")
	}
	if e.Logger != nil {
		e.Logger.Info("cycle completed",
			zap.String("cycle", cycle.Ref()),
			zap.String("profit", profit.String()),
			zap.String("rate", rate.StringFixed(4)),
		)
	}
	return e.Repo.GetCycleByID(ctx, id)
}

// errDistributionNotClaimed aborts the distribution transaction when
// the guarded latch UPDATE matched no row.
var errDistributionNotClaimed = errors.New("cycle distribution not claimed")

// DistributeProfits splits the cycle's profit equally across its member
// blocks exactly once. Shares floor at 2 decimal places; the last block
// takes the remainder so the sum equals the cycle profit.
func (e *CycleEngine) DistributeProfits(ctx context.Context, id uint64) error {
	if e == nil || e.Repo == nil {
		return nil
	}
	cycle, err := e.Repo.GetCycleByID(ctx, id)
	if err != nil {
		return err
	}
	if cycle == nil {
		return apperr.NotFoundf("cycle %d", id)
	}

	var blockIDs []uint64
	if err := json.Unmarshal(cycle.BlockIDs, &blockIDs); err != nil {
		return err
	}
	blocks, err := e.Repo.ListBlocksByIDs(ctx, blockIDs)
	if err != nil {
		return err
	}
	if len(blocks) == 0 {
		return apperr.NotFoundf("blocks for cycle %s", cycle.Ref())
	}

	// A loss stays on the cycle record: block capital never drops below
	// purchase price and no negative amount reaches the wallet.
	distributable := cycle.TotalProfitGenerated
	if distributable.IsNegative() {
		distributable = decimal.Zero
		if e.Logger != nil {
			e.Logger.Warn("loss cycle distributes nothing",
				zap.String("cycle", cycle.Ref()),
				zap.String("loss", cycle.TotalProfitGenerated.String()),
			)
		}
	}
	shares := equalShares(distributable, len(blocks))

	type payout struct {
		blockID uint64
		ownerID string
		ref     string
		share   decimal.Decimal
	}
	var payouts []payout

	now := time.Now().UTC()
	err = e.Repo.InTx(ctx, func(tx *gorm.DB) error {
		// The latch, the transition to completed, and all bookkeeping
		// share one transaction; a failure below rolls the latch back so
		// the cycle stays in processing and the next pass can retry.
		claimed, err := e.Repo.ClaimCycleDistributionTx(ctx, tx, id, now)
		if err != nil {
			return err
		}
		if !claimed {
			return errDistributionNotClaimed
		}

		for i, block := range blocks {
			share := shares[i]
			updates := map[string]any{
				"cycles_completed":    block.CyclesCompleted + 1,
				"total_profit_earned": block.TotalProfitEarned.Add(share),
				"last_cycle_profit":   share,
				"last_cycle_at":       now,
				"current_cycle_id":    nil,
			}
			if block.PayoutMode == models.PayoutCompounding {
				updates["current_value"] = block.CurrentValue.Add(share)
				updates["compounded_value"] = block.CompoundedValue.Add(share)
			}
			// Zero shares owe nothing, so they settle immediately even
			// in withdrawal mode.
			settled := block.PayoutMode == models.PayoutCompounding || !share.IsPositive()
			if !settled {
				payouts = append(payouts, payout{
					blockID: block.ID,
					ownerID: block.OwnerID,
					ref:     block.Ref(),
					share:   share,
				})
			}
			if err := e.Repo.UpdateBlockTx(ctx, tx, block.ID, updates); err != nil {
				return err
			}
			dist := models.CycleDistribution{
				CycleID:     cycle.ID,
				BlockID:     block.ID,
				BlockNumber: block.BlockNumber,
				OwnerID:     block.OwnerID,
				PayoutMode:  block.PayoutMode,
				Share:       share,
				Settled:     settled,
				AppliedAt:   now,
			}
			if settled {
				at := now
				dist.SettledAt = &at
			}
			if err := e.Repo.InsertDistributionTx(ctx, tx, &dist); err != nil {
				return err
			}
		}

		pool, err := e.Repo.LockPoolTx(ctx, tx, cycle.PoolID)
		if err != nil {
			return err
		}
		if pool == nil {
			return apperr.NotFoundf("pool %d", cycle.PoolID)
		}
		avgROI, err := e.Repo.AverageCycleROITx(ctx, tx, pool.ID)
		if err != nil {
			return err
		}
		pool.CyclesCompleted++
		pool.TotalProfit = pool.TotalProfit.Add(cycle.TotalProfitGenerated)
		pool.CurrentCycleID = nil
		pool.AverageROI = avgROI
		pool.Status = models.PoolReady
		return e.Repo.SavePoolTx(ctx, tx, pool)
	})
	if errors.Is(err, errDistributionNotClaimed) {
		fresh, ferr := e.Repo.GetCycleByID(ctx, id)
		if ferr != nil {
			return ferr
		}
		if fresh != nil && fresh.ProfitDistributed {
			return apperr.AlreadyDistributedf(fresh.Ref())
		}
		return e.transitionErr(ctx, id, cycle, "distribute profits")
	}
	if err != nil {
		return err
	}

	// Withdrawal payouts go out after the bookkeeping commits. Each
	// successful credit settles its distribution row; rows left
	// unsettled are the reconciliation queue for operators.
	unsettled := 0
	if e.Ledger != nil {
		for _, p := range payouts {
			if err := e.Ledger.Credit(ctx, p.ownerID, p.share); err != nil {
				unsettled++
				if e.Logger != nil {
					e.Logger.Error("profit payout credit failed",
						zap.String("cycle", cycle.Ref()),
						zap.String("block", p.ref),
						zap.String("owner_id", p.ownerID),
						zap.String("share", p.share.String()),
						zap.Error(err),
					)
				}
				continue
			}
			if err := e.Repo.MarkDistributionSettled(ctx, cycle.ID, p.blockID, time.Now().UTC()); err != nil && e.Logger != nil {
				e.Logger.Warn("distribution settle mark failed",
					zap.String("cycle", cycle.Ref()),
					zap.String("block", p.ref),
					zap.Error(err),
				)
			}
			entry := ledger.Entry{
				OwnerID:   p.ownerID,
				Type:      ledger.EntryProfitPayout,
				Amount:    p.share,
				Reference: cycle.Ref() + "/" + p.ref,
				Metadata: map[string]any{
					"cycle_id": cycle.ID,
					"pool_id":  cycle.PoolID,
				},
			}
			if err := e.Ledger.RecordTransaction(ctx, entry); err != nil && e.Logger != nil {
				e.Logger.Warn("payout transaction record failed",
					zap.String("reference", entry.Reference),
					zap.Error(err),
				)
			}
		}
	} else if len(payouts) > 0 {
		unsettled = len(payouts)
	}

	if e.Logger != nil {
		e.Logger.Info("cycle profits distributed",
			zap.String("cycle", cycle.Ref()),
			zap.Int("blocks", len(blocks)),
			zap.Int("withdrawals", len(payouts)),
			zap.String("profit", cycle.TotalProfitGenerated.String()),
		)
	}
	if unsettled > 0 {
		return fmt.Errorf("cycle %s: %d withdrawal payout(s) unsettled, see cycle_distributions", cycle.Ref(), unsettled)
	}
	return nil
}

// AutoCompleteCycle is the scheduler path: it assumes the target rate
// was hit exactly, completes, then distributes.
func (e *CycleEngine) AutoCompleteCycle(ctx context.Context, id uint64) (*models.TradeCycle, error) {
	if e == nil || e.Repo == nil {
		return nil, nil
	}
	cycle, err := e.Repo.GetCycleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, apperr.NotFoundf("cycle %d", id)
	}

	estimated := cycle.PurchaseCost.Add(
		cycle.TotalCapital.Mul(cycle.TargetProfitRate).Div(decimal.NewFromInt(100)),
	)
	if _, err := e.CompleteCycle(ctx, id, estimated, decimal.Zero); err != nil {
		return nil, err
	}
	if err := e.Repo.UpdateCycleTx(ctx, nil, id, map[string]any{"auto_executed": true}); err != nil {
		return nil, err
	}
	if err := e.DistributeProfits(ctx, id); err != nil {
		return nil, err
	}
	return e.Repo.GetCycleByID(ctx, id)
}

// CancelCycle is a terminal abnormal exit with no distribution; the
// pool and its blocks are released for the next cycle.
func (e *CycleEngine) CancelCycle(ctx context.Context, id uint64, reason string) (*models.TradeCycle, error) {
	return e.terminate(ctx, id, models.CycleCancelled, reason)
}

// FailCycle mirrors CancelCycle with the failed status.
func (e *CycleEngine) FailCycle(ctx context.Context, id uint64, reason string) (*models.TradeCycle, error) {
	return e.terminate(ctx, id, models.CycleFailed, reason)
}

func (e *CycleEngine) terminate(ctx context.Context, id uint64, to string, reason string) (*models.TradeCycle, error) {
	if e == nil || e.Repo == nil {
		return nil, nil
	}
	cycle, err := e.Repo.GetCycleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, apperr.NotFoundf("cycle %d", id)
	}

	claimed := false
	for _, from := range []string{models.CycleScheduled, models.CycleActive, models.CycleProcessing} {
		ok, err := e.Repo.ClaimCycleStatus(ctx, id, from, to, map[string]any{
			"failure_reason": reason,
		})
		if err != nil {
			return nil, err
		}
		if ok {
			claimed = true
			break
		}
	}
	if !claimed {
		return nil, e.transitionErr(ctx, id, cycle, to)
	}

	var blockIDs []uint64
	_ = json.Unmarshal(cycle.BlockIDs, &blockIDs)
	err = e.Repo.InTx(ctx, func(tx *gorm.DB) error {
		pool, err := e.Repo.LockPoolTx(ctx, tx, cycle.PoolID)
		if err != nil || pool == nil {
			return err
		}
		if pool.CurrentCycleID != nil && *pool.CurrentCycleID == cycle.ID {
			pool.CurrentCycleID = nil
			pool.Status = models.PoolReady
			if err := e.Repo.SavePoolTx(ctx, tx, pool); err != nil {
				return err
			}
		}
		return e.Repo.UpdateBlocksTx(ctx, tx, blockIDs, map[string]any{
			"current_cycle_id": nil,
		})
	})
	if err != nil {
		return nil, err
	}
	if e.Logger != nil {
		e.Logger.Warn("cycle terminated",
			zap.String("cycle", cycle.Ref()),
			zap.String("status", to),
			zap.String("reason", reason),
		)
	}
	return e.Repo.GetCycleByID(ctx, id)
}

// transitionErr re-reads the cycle so the error names the status that
// actually blocked the claim, not a stale snapshot.
func (e *CycleEngine) transitionErr(ctx context.Context, id uint64, stale *models.TradeCycle, attempted string) error {
	current := stale.Status
	if fresh, err := e.Repo.GetCycleByID(ctx, id); err == nil && fresh != nil {
		current = fresh.Status
	}
	return apperr.Transitionf("cycle "+stale.Ref(), current, attempted)
}

// equalShares splits profit into n shares floored at 2 decimal places,
// assigning the division remainder to the last share.
func equalShares(profit decimal.Decimal, n int) []decimal.Decimal {
	shares := make([]decimal.Decimal, n)
	if n == 0 {
		return shares
	}
	base := profit.Div(decimal.NewFromInt(int64(n))).RoundDown(2)
	sum := decimal.Zero
	for i := 0; i < n-1; i++ {
		shares[i] = base
		sum = sum.Add(base)
	}
	shares[n-1] = profit.Sub(sum)
	return shares
}
