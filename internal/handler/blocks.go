package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tradepool/internal/repository"
	"tradepool/internal/service"
)

type BlockHandler struct {
	Repo      repository.Repository
	Allocator *service.PoolAllocator
}

func (h *BlockHandler) Register(r *gin.Engine) {
	g := r.Group("/api/blocks")
	g.POST("/purchase", h.purchase)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.GET("/:id/insurance", h.insurance)
	g.POST("/:id/payout-mode", h.switchPayoutMode)
}

// @Summary Purchase investment blocks
// @Tags blocks
// @Accept json
// @Param request body service.PurchaseRequest true "purchase"
// @Success 200 {object} map[string]any
// @Router /api/blocks/purchase [post]
func (h *BlockHandler) purchase(c *gin.Context) {
	if h.Allocator == nil {
		Error(c, http.StatusServiceUnavailable, "allocator unavailable", nil)
		return
	}
	var req service.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	blocks, err := h.Allocator.PurchaseBlocks(c.Request.Context(), req)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, blocks, map[string]any{"count": len(blocks)})
}

// @Summary List blocks
// @Tags blocks
// @Param owner_id query string false "owner filter"
// @Param pool_id query int false "pool filter"
// @Param status query string false "status filter"
// @Success 200 {object} map[string]any
// @Router /api/blocks [get]
func (h *BlockHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListBlocksParams{
		OwnerID: strQueryPtr(c, "owner_id"),
		PoolID:  uint64QueryPtr(c, "pool_id"),
		Status:  strQueryPtr(c, "status"),
		Limit:   intQuery(c, "limit", 50),
		Offset:  intQuery(c, "offset", 0),
		OrderBy: "block_number",
		Asc:     boolPtr(true),
	}
	items, err := h.Repo.ListBlocks(c.Request.Context(), params)
	if err != nil {
		Fail(c, err)
		return
	}
	total, err := h.Repo.CountBlocks(c.Request.Context(), params)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, paginationMeta(params.Limit, params.Offset, total))
}

// @Summary Get one block
// @Tags blocks
// @Param id path int true "block id"
// @Success 200 {object} map[string]any
// @Router /api/blocks/{id} [get]
func (h *BlockHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Repo.GetBlockByID(c.Request.Context(), id)
	if err != nil {
		Fail(c, err)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "block not found", nil)
		return
	}
	Ok(c, item, nil)
}

func (h *BlockHandler) insurance(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	items, err := h.Repo.ListInsuranceByBlockIDs(c.Request.Context(), []uint64{id})
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, nil)
}

// @Summary Switch a block's payout mode
// @Tags blocks
// @Param id path int true "block id"
// @Success 200 {object} map[string]any
// @Router /api/blocks/{id}/payout-mode [post]
func (h *BlockHandler) switchPayoutMode(c *gin.Context) {
	if h.Allocator == nil {
		Error(c, http.StatusServiceUnavailable, "allocator unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	var body struct {
		PayoutMode string `json:"payout_mode"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	item, err := h.Allocator.SwitchPayoutMode(c.Request.Context(), id, strings.TrimSpace(body.PayoutMode))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, item, nil)
}
