package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tradepool/internal/apperr"
	"tradepool/internal/models"
	"tradepool/internal/repository"
	"tradepool/internal/service"
)

type PoolHandler struct {
	Repo      repository.Repository
	Allocator *service.PoolAllocator
}

func (h *PoolHandler) Register(r *gin.Engine) {
	g := r.Group("/api/pools")
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.GET("/:id/blocks", h.blocks)
	g.GET("/:id/cycles", h.cycles)
	g.POST("/:id/suspend", h.suspend)
	g.POST("/:id/resume", h.resume)
	g.POST("/:id/retire", h.retire)
}

// @Summary List pools
// @Tags pools
// @Param status query string false "status filter"
// @Success 200 {object} map[string]any
// @Router /api/pools [get]
func (h *PoolHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListPoolsParams{
		Status:  strQueryPtr(c, "status"),
		Limit:   intQuery(c, "limit", 50),
		Offset:  intQuery(c, "offset", 0),
		OrderBy: "pool_number",
		Asc:     boolPtr(true),
	}
	items, err := h.Repo.ListPools(c.Request.Context(), params)
	if err != nil {
		Fail(c, err)
		return
	}
	total, err := h.Repo.CountPools(c.Request.Context(), params)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, paginationMeta(params.Limit, params.Offset, total))
}

// @Summary Get one pool
// @Tags pools
// @Param id path int true "pool id"
// @Success 200 {object} map[string]any
// @Router /api/pools/{id} [get]
func (h *PoolHandler) get(c *gin.Context) {
	pool, ok := h.fetch(c)
	if !ok {
		return
	}
	Ok(c, pool, nil)
}

func (h *PoolHandler) blocks(c *gin.Context) {
	pool, ok := h.fetch(c)
	if !ok {
		return
	}
	params := repository.ListBlocksParams{
		PoolID:  &pool.ID,
		Limit:   pool.Capacity,
		OrderBy: "position_in_pool",
		Asc:     boolPtr(true),
	}
	items, err := h.Repo.ListBlocks(c.Request.Context(), params)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, nil)
}

func (h *PoolHandler) cycles(c *gin.Context) {
	pool, ok := h.fetch(c)
	if !ok {
		return
	}
	params := repository.ListCyclesParams{
		PoolID:  &pool.ID,
		Limit:   intQuery(c, "limit", 50),
		Offset:  intQuery(c, "offset", 0),
		OrderBy: "cycle_number",
		Asc:     boolPtr(true),
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

// @Summary Suspend a pool
// @Tags pools
// @Param id path int true "pool id"
// @Success 200 {object} map[string]any
// @Router /api/pools/{id}/suspend [post]
func (h *PoolHandler) suspend(c *gin.Context) {
	pool, ok := h.fetch(c)
	if !ok {
		return
	}
	if pool.Status == models.PoolSuspended || pool.Status == models.PoolCompleted {
		Fail(c, apperr.Transitionf("pool "+pool.Ref(), pool.Status, "suspend"))
		return
	}
	if err := h.Repo.UpdatePool(c.Request.Context(), pool.ID, map[string]any{
		"status": models.PoolSuspended,
	}); err != nil {
		Fail(c, err)
		return
	}
	pool.Status = models.PoolSuspended
	Ok(c, pool, nil)
}

// @Summary Resume a suspended pool
// @Tags pools
// @Param id path int true "pool id"
// @Success 200 {object} map[string]any
// @Router /api/pools/{id}/resume [post]
func (h *PoolHandler) resume(c *gin.Context) {
	pool, ok := h.fetch(c)
	if !ok {
		return
	}
	if pool.Status != models.PoolSuspended {
		Fail(c, apperr.Transitionf("pool "+pool.Ref(), pool.Status, "resume"))
		return
	}
	// A full pool with no running cycle goes back to ready so the
	// replenish job can pick it up; a partial pool keeps forming.
	next := models.PoolForming
	if pool.IsFull() {
		next = models.PoolReady
		if pool.CurrentCycleID != nil {
			next = models.PoolActive
		}
	}
	if err := h.Repo.UpdatePool(c.Request.Context(), pool.ID, map[string]any{
		"status": next,
	}); err != nil {
		Fail(c, err)
		return
	}
	pool.Status = next
	Ok(c, pool, nil)
}

// @Summary Retire an idle pool permanently
// @Tags pools
// @Param id path int true "pool id"
// @Success 200 {object} map[string]any
// @Router /api/pools/{id}/retire [post]
func (h *PoolHandler) retire(c *gin.Context) {
	if h.Allocator == nil {
		Error(c, http.StatusServiceUnavailable, "allocator unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	pool, err := h.Allocator.RetirePool(c.Request.Context(), id)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, pool, nil)
}

func (h *PoolHandler) fetch(c *gin.Context) (*models.Pool, bool) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return nil, false
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return nil, false
	}
	pool, err := h.Repo.GetPoolByID(c.Request.Context(), id)
	if err != nil {
		Fail(c, err)
		return nil, false
	}
	if pool == nil {
		Error(c, http.StatusNotFound, "pool not found", nil)
		return nil, false
	}
	return pool, true
}
