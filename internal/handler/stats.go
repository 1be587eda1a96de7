package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"mediameter/internal/repository"
)

type StatsHandler struct {
	Repo repository.Repository
}

func (h *StatsHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/stats/daily", h.dailyStats)
}

func (h *StatsHandler) dailyStats(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repository unavailable", nil)
		return
	}
	params := repository.ListAggregatesParams{
		EntitySlug: strQueryPtr(c, "entity"),
		FromDate:   dateQuery(c, "from"),
		ToDate:     dateQuery(c, "to"),
		Limit:      intQuery(c, "limit", 100),
		Offset:     intQuery(c, "offset", 0),
	}
	if st := sourceTypeQuery(c); st != nil {
		params.SourceType = st
	}
	items, err := h.Repo.ListDailyAggregates(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

func dateQuery(c *gin.Context, key string) string {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return ""
	}
	if _, err := time.Parse("2006-01-02", raw); err != nil {
		return ""
	}
	return raw
}
