package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"tradepool/internal/repository"
	"tradepool/internal/service"
)

// CycleHandler exposes the cycle engine 1:1 so the manual admin path
// and the scheduler path cannot diverge in behavior.
type CycleHandler struct {
	Repo   repository.Repository
	Engine *service.CycleEngine
}

func (h *CycleHandler) Register(r *gin.Engine) {
	g := r.Group("/api/cycles")
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.GET("/:id/distributions", h.distributions)
	g.POST("", h.create)
	g.POST("/:id/start", h.start)
	g.POST("/:id/complete", h.complete)
	g.POST("/:id/distribute", h.distribute)
	g.POST("/:id/cancel", h.cancel)
}

// @Summary List trade cycles
// @Tags cycles
// @Param pool_id query int false "pool filter"
// @Param status query string false "status filter"
// @Success 200 {object} map[string]any
// @Router /api/cycles [get]
func (h *CycleHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListCyclesParams{
		PoolID:  uint64QueryPtr(c, "pool_id"),
		Status:  strQueryPtr(c, "status"),
		Limit:   intQuery(c, "limit", 50),
		Offset:  intQuery(c, "offset", 0),
		OrderBy: "created_at",
		Asc:     boolPtr(false),
	}
	items, err := h.Repo.ListCycles(c.Request.Context(), params)
	if err != nil {
		Fail(c, err)
		return
	}
	total, err := h.Repo.CountCycles(c.Request.Context(), params)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, paginationMeta(params.Limit, params.Offset, total))
}

func (h *CycleHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Repo.GetCycleByID(c.Request.Context(), id)
	if err != nil {
		Fail(c, err)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "cycle not found", nil)
		return
	}
	Ok(c, item, nil)
}

func (h *CycleHandler) distributions(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	items, err := h.Repo.ListDistributionsByCycle(c.Request.Context(), id)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, nil)
}

// @Summary Create a cycle for a full pool
// @Tags cycles
// @Accept json
// @Success 200 {object} map[string]any
// @Router /api/cycles [post]
func (h *CycleHandler) create(c *gin.Context) {
	if h.Engine == nil {
		Error(c, http.StatusServiceUnavailable, "engine unavailable", nil)
		return
	}
	var body struct {
		PoolID           uint64          `json:"pool_id"`
		GoodsCategory    string          `json:"goods_category"`
		GoodsQty         decimal.Decimal `json:"goods_qty"`
		PurchaseCost     decimal.Decimal `json:"purchase_cost"`
		TargetProfitRate decimal.Decimal `json:"target_profit_rate"`
		StartDate        *time.Time      `json:"start_date"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if body.PoolID == 0 {
		Error(c, http.StatusBadRequest, "pool_id is required", nil)
		return
	}
	cycle, err := h.Engine.CreateCycle(c.Request.Context(), service.CreateCycleInput{
		PoolID:           body.PoolID,
		GoodsCategory:    body.GoodsCategory,
		GoodsQty:         body.GoodsQty,
		PurchaseCost:     body.PurchaseCost,
		TargetProfitRate: body.TargetProfitRate,
		StartDate:        body.StartDate,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, cycle, nil)
}

// @Summary Start a scheduled cycle
// @Tags cycles
// @Param id path int true "cycle id"
// @Success 200 {object} map[string]any
// @Router /api/cycles/{id}/start [post]
func (h *CycleHandler) start(c *gin.Context) {
	if h.Engine == nil {
		Error(c, http.StatusServiceUnavailable, "engine unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	cycle, err := h.Engine.StartCycle(c.Request.Context(), id)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, cycle, nil)
}

// @Summary Complete an active cycle with its financial result
// @Tags cycles
// @Param id path int true "cycle id"
// @Success 200 {object} map[string]any
// @Router /api/cycles/{id}/complete [post]
func (h *CycleHandler) complete(c *gin.Context) {
	if h.Engine == nil {
		Error(c, http.StatusServiceUnavailable, "engine unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	var body struct {
		SalePrice    decimal.Decimal `json:"sale_price"`
		TradingCosts decimal.Decimal `json:"trading_costs"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	cycle, err := h.Engine.CompleteCycle(c.Request.Context(), id, body.SalePrice, body.TradingCosts)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, cycle, nil)
}

// @Summary Distribute a processed cycle's profits
// @Tags cycles
// @Param id path int true "cycle id"
// @Success 200 {object} map[string]any
// @Router /api/cycles/{id}/distribute [post]
func (h *CycleHandler) distribute(c *gin.Context) {
	if h.Engine == nil {
		Error(c, http.StatusServiceUnavailable, "engine unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	if err := h.Engine.DistributeProfits(c.Request.Context(), id); err != nil {
		Fail(c, err)
		return
	}
	if h.Repo == nil {
		Ok(c, nil, nil)
		return
	}
	cycle, _ := h.Repo.GetCycleByID(c.Request.Context(), id)
	Ok(c, cycle, nil)
}

func (h *CycleHandler) cancel(c *gin.Context) {
	if h.Engine == nil {
		Error(c, http.StatusServiceUnavailable, "engine unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)
	cycle, err := h.Engine.CancelCycle(c.Request.Context(), id, body.Reason)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, cycle, nil)
}
