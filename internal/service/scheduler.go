package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradepool/internal/config"
	"tradepool/internal/models"
	"tradepool/internal/repository"
)

// Scheduler holds the four timer-driven jobs. Each job scans for due
// entities and processes them one at a time; a single item's failure is
// logged and the pass continues. The engine's guarded transitions make
// a stale scan harmless: an item advanced by someone else between scan
// and action just fails its claim.
type Scheduler struct {
	Repo   repository.Repository
	Engine *CycleEngine
	Logger *zap.Logger
	Config config.CycleConfig
}

const dueScanLimit = 200

// StartDueCycles starts every scheduled cycle whose start date has
// passed.
func (s *Scheduler) StartDueCycles(ctx context.Context) error {
	if s == nil || s.Repo == nil || s.Engine == nil {
		return nil
	}
	due, err := s.Repo.ListDueCycles(ctx, models.CycleScheduled, time.Now().UTC(), dueScanLimit)
	if err != nil {
		return err
	}
	started := 0
	for _, cycle := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.Engine.StartCycle(ctx, cycle.ID); err != nil {
			if s.Logger != nil {
				s.Logger.Warn("start-due job skipped cycle",
					zap.String("cycle", cycle.Ref()),
					zap.Error(err),
				)
			}
			continue
		}
		started++
	}
	if started > 0 && s.Logger != nil {
		s.Logger.Info("start-due job done", zap.Int("started", started), zap.Int("due", len(due)))
	}
	return nil
}

// CompleteDueCycles auto-completes every active cycle past its end
// date, assuming the target rate, and distributes the result.
func (s *Scheduler) CompleteDueCycles(ctx context.Context) error {
	if s == nil || s.Repo == nil || s.Engine == nil {
		return nil
	}
	due, err := s.Repo.ListDueCycles(ctx, models.CycleActive, time.Now().UTC(), dueScanLimit)
	if err != nil {
		return err
	}
	completed := 0
	for _, cycle := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.Engine.AutoCompleteCycle(ctx, cycle.ID); err != nil {
			if s.Logger != nil {
				s.Logger.Warn("complete-due job skipped cycle",
					zap.String("cycle", cycle.Ref()),
					zap.Error(err),
				)
			}
			continue
		}
		completed++
	}
	if completed > 0 && s.Logger != nil {
		s.Logger.Info("complete-due job done", zap.Int("completed", completed), zap.Int("due", len(due)))
	}
	return nil
}

// ReplenishPools spawns the next cycle for every ready, full pool that
// has none, starting after the configured lead with purchase cost at
// the configured share of pool capital.
func (s *Scheduler) ReplenishPools(ctx context.Context) error {
	if s == nil || s.Repo == nil || s.Engine == nil {
		return nil
	}
	pools, err := s.Repo.ListReplenishablePools(ctx, dueScanLimit)
	if err != nil {
		return err
	}
	lead := s.Config.ReplenishLead
	if lead <= 0 {
		lead = 24 * time.Hour
	}
	ratio := s.Config.ReplenishCapitalRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.95
	}
	spawned := 0
	for _, pool := range pools {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		start := time.Now().UTC().Add(lead)
		cost := pool.TotalCapital.Mul(decimal.NewFromFloat(ratio))
		if _, err := s.Engine.CreateCycle(ctx, CreateCycleInput{
			PoolID:       pool.ID,
			PurchaseCost: cost,
			StartDate:    &start,
		}); err != nil {
			if s.Logger != nil {
				s.Logger.Warn("replenish job skipped pool",
					zap.String("pool", pool.Ref()),
					zap.Error(err),
				)
			}
			continue
		}
		spawned++
	}
	if spawned > 0 && s.Logger != nil {
		s.Logger.Info("replenish job done", zap.Int("spawned", spawned), zap.Int("candidates", len(pools)))
	}
	return nil
}

// Report aggregates recently completed cycles. Read-only.
func (s *Scheduler) Report(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	lookback := s.Config.ReportLookbackDays
	if lookback <= 0 {
		lookback = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -lookback)
	summary, err := s.Repo.CycleSummarySince(ctx, since)
	if err != nil {
		return err
	}
	if s.Logger != nil {
		s.Logger.Info("cycle report",
			zap.Int("lookback_days", lookback),
			zap.Int64("completed_cycles", summary.CompletedCycles),
			zap.String("total_profit", summary.TotalProfit.String()),
			zap.String("total_capital", summary.TotalCapital.String()),
			zap.String("average_roi", summary.AverageROI.StringFixed(4)),
			zap.Int64("distributed_rows", summary.DistributedRows),
		)
	}
	return nil
}
