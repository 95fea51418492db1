package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tradepool/internal/apperr"
	"tradepool/internal/config"
	"tradepool/internal/identity"
	"tradepool/internal/ledger"
	"tradepool/internal/models"
	"tradepool/internal/repository"
)

// PoolAllocator orchestrates block purchases: one up-front ledger debit
// for the whole batch, then all entity writes inside one transaction so
// a mid-batch failure leaves no orphaned blocks.
type PoolAllocator struct {
	Repo      repository.Repository
	Ledger    ledger.Gateway
	Identity  identity.Resolver
	Engine    *CycleEngine
	Logger    *zap.Logger
	Purchase  config.PurchaseConfig
	Insurance config.InsuranceConfig
}

type PurchaseRequest struct {
	OwnerID       string `json:"owner_id"`
	GoodsCategory string `json:"goods_category"`
	PayoutMode    string `json:"payout_mode"`
	Quantity      int    `json:"quantity"`
}

func (a *PoolAllocator) PurchaseBlocks(ctx context.Context, req PurchaseRequest) ([]models.Block, error) {
	if a == nil || a.Repo == nil {
		return nil, nil
	}
	maxQty := a.Purchase.MaxQuantity
	if maxQty <= 0 {
		maxQty = 10
	}
	if req.Quantity < 1 || req.Quantity > maxQty {
		return nil, apperr.Validationf("quantity must be between 1 and %d, got %d", maxQty, req.Quantity)
	}
	if !models.ValidPayoutMode(req.PayoutMode) {
		return nil, apperr.Validationf("unknown payout mode %q", req.PayoutMode)
	}
	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		return nil, apperr.Validationf("owner id is required")
	}
	category := strings.TrimSpace(req.GoodsCategory)
	if category != "" {
		cat, err := a.Repo.GetGoodsCategoryByCode(ctx, category)
		if err != nil {
			return nil, err
		}
		if cat == nil || !cat.Active {
			return nil, apperr.Validationf("unknown goods category %q", category)
		}
	}

	if a.Identity != nil {
		if _, err := a.Identity.ResolveOwner(ctx, ownerID); err != nil {
			if err == identity.ErrOwnerNotFound {
				return nil, apperr.NotFoundf("owner %q", ownerID)
			}
			return nil, err
		}
	}

	unitPrice := decimal.NewFromFloat(a.Purchase.UnitPrice)
	total := unitPrice.Mul(decimal.NewFromInt(int64(req.Quantity)))
	if a.Ledger != nil {
		if err := a.Ledger.Debit(ctx, ownerID, total); err != nil {
			if err == ledger.ErrInsufficientFunds {
				return nil, apperr.InsufficientFundsf("owner %s needs %s for %d block(s)", ownerID, total.String(), req.Quantity)
			}
			return nil, err
		}
	}

	capacity := a.Purchase.PoolCapacity
	if capacity <= 0 {
		capacity = 10
	}

	now := time.Now().UTC()
	created := make([]models.Block, 0, req.Quantity)
	filledPools := make([]uint64, 0, 1)

	err := a.Repo.InTx(ctx, func(tx *gorm.DB) error {
		for i := 0; i < req.Quantity; i++ {
			pool, err := a.Repo.LockOpenPoolTx(ctx, tx)
			if err != nil {
				return err
			}
			if pool == nil {
				number, err := a.Repo.NextPoolNumberTx(ctx, tx, int64(capacity))
				if err != nil {
					return err
				}
				pool = &models.Pool{
					PoolNumber:   number,
					Capacity:     capacity,
					Status:       models.PoolForming,
					TotalCapital: decimal.Zero,
					TotalProfit:  decimal.Zero,
					AverageROI:   decimal.Zero,
				}
				if err := a.Repo.CreatePoolTx(ctx, tx, pool); err != nil {
					return err
				}
			}

			position := pool.CurrentFill + 1
			block := models.Block{
				BlockNumber:     pool.BlockNumberAt(position),
				OwnerID:         ownerID,
				PoolID:          pool.ID,
				PositionInPool:  position,
				GoodsCategory:   category,
				PurchasePrice:   unitPrice,
				CurrentValue:    unitPrice,
				CompoundedValue: unitPrice,
				PayoutMode:      req.PayoutMode,
				Status:          models.BlockPending,
			}
			block.InsuranceCertID = a.certificateID(block.BlockNumber)
			if err := a.Repo.CreateBlockTx(ctx, tx, &block); err != nil {
				return err
			}

			policy := models.InsurancePolicy{
				CertificateID: block.InsuranceCertID,
				BlockID:       block.ID,
				Provider:      a.Insurance.Provider,
				CoverageRate:  decimal.NewFromFloat(a.Insurance.CoverageRate),
				Premium:       unitPrice.Mul(decimal.NewFromFloat(a.Insurance.PremiumRate)),
				Status:        models.InsurancePending,
				IssuedAt:      now,
			}
			if err := a.Repo.CreateInsuranceTx(ctx, tx, &policy); err != nil {
				return err
			}

			pool.CurrentFill = position
			pool.TotalCapital = pool.TotalCapital.Add(unitPrice)
			if pool.IsFull() {
				pool.Status = models.PoolReady
				filledPools = append(filledPools, pool.ID)
			}
			if err := a.Repo.SavePoolTx(ctx, tx, pool); err != nil {
				return err
			}

			// Pool-full side effects: first cycle for this fill,
			// member blocks and their insurance go active.
			if pool.IsFull() && pool.CurrentCycleID == nil {
				if a.Engine != nil {
					if _, err := a.Engine.createCycleTx(ctx, tx, CreateCycleInput{
						PoolID:        pool.ID,
						GoodsCategory: category,
					}); err != nil {
						return err
					}
				}
				members, err := a.Repo.ListBlocksByPoolTx(ctx, tx, pool.ID)
				if err != nil {
					return err
				}
				memberIDs := make([]uint64, 0, len(members))
				for _, m := range members {
					memberIDs = append(memberIDs, m.ID)
				}
				if err := a.Repo.ActivateInsuranceForBlocksTx(ctx, tx, memberIDs, now); err != nil {
					return err
				}
			}

			created = append(created, block)
		}
		return nil
	})
	if err != nil {
		// The debit already happened; hand the funds back before
		// surfacing the failure.
		if a.Ledger != nil {
			if cerr := a.Ledger.Credit(ctx, ownerID, total); cerr != nil && a.Logger != nil {
				a.Logger.Error("compensating credit failed after purchase rollback",
					zap.String("owner_id", ownerID),
					zap.String("amount", total.String()),
					zap.Error(cerr),
				)
			}
		}
		return nil, err
	}

	reference := uuid.NewString()
	if a.Ledger != nil {
		refs := make([]string, 0, len(created))
		ids := make([]uint64, 0, len(created))
		for _, b := range created {
			refs = append(refs, b.Ref())
			ids = append(ids, b.ID)
		}
		entry := ledger.Entry{
			OwnerID:   ownerID,
			Type:      ledger.EntryBlockPurchase,
			Amount:    total.Neg(),
			Reference: reference,
			Metadata: map[string]any{
				"block_ids":  ids,
				"block_refs": refs,
				"quantity":   req.Quantity,
				"unit_price": unitPrice.String(),
			},
		}
		if err := a.Ledger.RecordTransaction(ctx, entry); err != nil && a.Logger != nil {
			a.Logger.Warn("purchase transaction record failed",
				zap.String("reference", reference),
				zap.Error(err),
			)
		}
	}

	if a.Logger != nil {
		a.Logger.Info("blocks purchased",
			zap.String("owner_id", ownerID),
			zap.Int("quantity", req.Quantity),
			zap.String("total", total.String()),
			zap.String("reference", reference),
			zap.Int("pools_filled", len(filledPools)),
		)
	}
	return a.reloadBlocks(ctx, created)
}

// reloadBlocks refreshes the returned batch so pool-full side effects
// (activation, cycle assignment) are visible to the caller.
func (a *PoolAllocator) reloadBlocks(ctx context.Context, created []models.Block) ([]models.Block, error) {
	ids := make([]uint64, 0, len(created))
	for _, b := range created {
		ids = append(ids, b.ID)
	}
	fresh, err := a.Repo.ListBlocksByIDs(ctx, ids)
	if err != nil || len(fresh) == 0 {
		return created, nil
	}
	return fresh, nil
}

func (a *PoolAllocator) certificateID(blockNumber int64) string {
	prefix := strings.TrimSpace(a.Insurance.Prefix)
	if prefix == "" {
		prefix = "INS"
	}
	return fmt.Sprintf("%s-%d-%013d", prefix, blockNumber, rand.Int64N(1e13))
}

// RetirePool takes an idle pool out of rotation permanently. Its blocks
// mature: they keep their value and history but join no further cycles.
func (a *PoolAllocator) RetirePool(ctx context.Context, poolID uint64) (*models.Pool, error) {
	if a == nil || a.Repo == nil {
		return nil, nil
	}
	var out *models.Pool
	err := a.Repo.InTx(ctx, func(tx *gorm.DB) error {
		pool, err := a.Repo.LockPoolTx(ctx, tx, poolID)
		if err != nil {
			return err
		}
		if pool == nil {
			return apperr.NotFoundf("pool %d", poolID)
		}
		if pool.CurrentCycleID != nil {
			return apperr.Transitionf("pool "+pool.Ref(), pool.Status, "retire while a cycle is running")
		}
		if pool.Status != models.PoolReady {
			return apperr.Transitionf("pool "+pool.Ref(), pool.Status, "retire")
		}
		blocks, err := a.Repo.ListBlocksByPoolTx(ctx, tx, pool.ID)
		if err != nil {
			return err
		}
		ids := make([]uint64, 0, len(blocks))
		for _, b := range blocks {
			ids = append(ids, b.ID)
		}
		if err := a.Repo.UpdateBlocksTx(ctx, tx, ids, map[string]any{
			"status": models.BlockMatured,
		}); err != nil {
			return err
		}
		pool.Status = models.PoolCompleted
		if err := a.Repo.SavePoolTx(ctx, tx, pool); err != nil {
			return err
		}
		out = pool
		return nil
	})
	if err != nil {
		return nil, err
	}
	if a.Logger != nil {
		a.Logger.Info("pool retired", zap.String("pool", out.Ref()))
	}
	return out, nil
}

// SwitchPayoutMode changes how the block's future distributions are
// applied. The mode is read fresh at distribution time, so the switch
// takes effect on the next completed cycle.
func (a *PoolAllocator) SwitchPayoutMode(ctx context.Context, blockID uint64, mode string) (*models.Block, error) {
	if a == nil || a.Repo == nil {
		return nil, nil
	}
	if !models.ValidPayoutMode(mode) {
		return nil, apperr.Validationf("unknown payout mode %q", mode)
	}
	block, err := a.Repo.GetBlockByID(ctx, blockID)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, apperr.NotFoundf("block %d", blockID)
	}
	if block.Status == models.BlockLiquidated {
		return nil, apperr.Transitionf("block "+block.Ref(), block.Status, "switch payout mode")
	}
	if err := a.Repo.SetBlockPayoutMode(ctx, blockID, mode); err != nil {
		return nil, err
	}
	block.PayoutMode = mode
	return block, nil
}
