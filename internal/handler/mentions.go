package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mediameter/internal/models"
	"mediameter/internal/repository"
)

type MentionHandler struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (h *MentionHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/mentions")
	group.GET("", h.listMentions)
	group.GET("/:id", h.getMention)
}

func (h *MentionHandler) listMentions(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repository unavailable", nil)
		return
	}
	params := repository.ListMentionsParams{
		EntitySlug: strQueryPtr(c, "entity"),
		SourceName: strQueryPtr(c, "source_name"),
		Query:      strQueryPtr(c, "q"),
		Since:      timeQueryPtr(c, "since"),
		Until:      timeQueryPtr(c, "until"),
		Ambiguous:  boolQueryPtr(c, "ambiguous"),
		Limit:      intQuery(c, "limit", 50),
		Offset:     intQuery(c, "offset", 0),
		OrderBy:    parseOrder(c.Query("order_by"), mentionOrderColumns),
		Asc:        boolQueryPtr(c, "asc"),
	}
	if st := sourceTypeQuery(c); st != nil {
		params.SourceType = st
	} else if c.Query("source_type") != "" {
		Error(c, http.StatusBadRequest, "invalid source_type", nil)
		return
	}

	items, err := h.Repo.ListMentions(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountMentions(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(params.Limit, params.Offset, total))
}

func (h *MentionHandler) getMention(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repository unavailable", nil)
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Repo.GetMentionByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "mention not found", nil)
		return
	}
	Ok(c, item, nil)
}

var mentionOrderColumns = map[string]string{
	"published_at": "published_at",
	"collected_at": "collected_at",
	"last_seen_at": "last_seen_at",
	"id":           "id",
}

func sourceTypeQuery(c *gin.Context) *models.SourceType {
	raw := strings.TrimSpace(c.Query("source_type"))
	if raw == "" {
		return nil
	}
	st := models.SourceType(strings.ToLower(raw))
	if !st.Valid() {
		return nil
	}
	return &st
}

func timeQueryPtr(c *gin.Context, key string) *time.Time {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts
	}
	if ts, err := time.Parse("2006-01-02", raw); err == nil {
		return &ts
	}
	return nil
}
