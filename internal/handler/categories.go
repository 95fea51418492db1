package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tradepool/internal/models"
	"tradepool/internal/repository"
)

// CategoryHandler is the thin admin CRUD for goods-category lookup
// entries.
type CategoryHandler struct {
	Repo repository.Repository
}

func (h *CategoryHandler) Register(r *gin.Engine) {
	g := r.Group("/api/categories")
	g.GET("", h.list)
	g.GET("/:code", h.get)
	g.PUT("/:code", h.upsert)
	g.DELETE("/:code", h.remove)
}

func (h *CategoryHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	activeOnly := strings.EqualFold(c.Query("active"), "true")
	items, err := h.Repo.ListGoodsCategories(c.Request.Context(), activeOnly)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, nil)
}

func (h *CategoryHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	item, err := h.Repo.GetGoodsCategoryByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		Fail(c, err)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "category not found", nil)
		return
	}
	Ok(c, item, nil)
}

func (h *CategoryHandler) upsert(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		Error(c, http.StatusBadRequest, "invalid code", nil)
		return
	}
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Active      *bool  `json:"active"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	active := true
	if body.Active != nil {
		active = *body.Active
	}
	item := &models.GoodsCategory{
		Code:        code,
		Name:        strings.TrimSpace(body.Name),
		Description: body.Description,
		Active:      active,
	}
	if err := h.Repo.UpsertGoodsCategory(c.Request.Context(), item); err != nil {
		Fail(c, err)
		return
	}
	stored, err := h.Repo.GetGoodsCategoryByCode(c.Request.Context(), code)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, stored, nil)
}

func (h *CategoryHandler) remove(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	if err := h.Repo.DeleteGoodsCategory(c.Request.Context(), c.Param("code")); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, nil, nil)
}
