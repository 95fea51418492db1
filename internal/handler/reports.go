package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tradepool/internal/repository"
)

type ReportHandler struct {
	Repo repository.Repository
}

func (h *ReportHandler) Register(r *gin.Engine) {
	r.GET("/api/reports/summary", h.summary)
}

// @Summary Aggregate profit and ROI over recently completed cycles
// @Tags reports
// @Param days query int false "lookback window in days" default(7)
// @Success 200 {object} map[string]any
// @Router /api/reports/summary [get]
func (h *ReportHandler) summary(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	days := intQuery(c, "days", 7)
	if days <= 0 || days > 365 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	summary, err := h.Repo.CycleSummarySince(c.Request.Context(), since)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, summary, map[string]any{"lookback_days": days, "since": since})
}
