package handler

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mediameter/internal/models"
	"mediameter/internal/repository"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

type EntityHandler struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (h *EntityHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/entities")
	group.POST("", h.createEntity)
	group.GET("", h.listEntities)
	group.GET("/:slug", h.getEntity)
	group.PUT("/:slug", h.updateEntity)
}

type entityPayload struct {
	Slug         string   `json:"slug"`
	DisplayName  string   `json:"display_name"`
	NameVariants []string `json:"name_variants"`
	MinusWords   []string `json:"minus_words"`
	Topics       []string `json:"topics"`
	Active       *bool    `json:"active"`
}

func (h *EntityHandler) createEntity(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repository unavailable", nil)
		return
	}
	var payload entityPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		Error(c, http.StatusBadRequest, "invalid payload: "+err.Error(), nil)
		return
	}
	slug := strings.TrimSpace(payload.Slug)
	if !slugPattern.MatchString(slug) {
		Error(c, http.StatusBadRequest, "slug must be lowercase letters, digits and hyphens", nil)
		return
	}
	display := strings.TrimSpace(payload.DisplayName)
	if display == "" {
		Error(c, http.StatusBadRequest, "display_name is required", nil)
		return
	}
	existing, err := h.Repo.GetEntityBySlug(c.Request.Context(), slug)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if existing != nil {
		Error(c, http.StatusConflict, "entity already exists", nil)
		return
	}
	active := true
	if payload.Active != nil {
		active = *payload.Active
	}
	item := &models.Entity{
		Slug:         slug,
		DisplayName:  display,
		NameVariants: models.EncodeStrings(payload.NameVariants),
		MinusWords:   models.EncodeStrings(payload.MinusWords),
		Topics:       models.EncodeStrings(payload.Topics),
		Active:       active,
	}
	if err := h.Repo.CreateEntity(c.Request.Context(), item); err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if h.Logger != nil {
		h.Logger.Info("entity created", zap.String("slug", slug))
	}
	Created(c, item)
}

func (h *EntityHandler) listEntities(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repository unavailable", nil)
		return
	}
	params := repository.ListEntitiesParams{
		ActiveOnly: boolQueryDefault(c, "active_only", false),
		Limit:      intQuery(c, "limit", 100),
		Offset:     intQuery(c, "offset", 0),
	}
	items, err := h.Repo.ListEntities(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

func (h *EntityHandler) getEntity(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repository unavailable", nil)
		return
	}
	item, err := h.Repo.GetEntityBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "entity not found", nil)
		return
	}
	Ok(c, item, nil)
}

// updateEntity changes everything but the slug. Deactivation takes effect
// on the next registry snapshot; already persisted mentions stay.
func (h *EntityHandler) updateEntity(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repository unavailable", nil)
		return
	}
	slug := c.Param("slug")
	existing, err := h.Repo.GetEntityBySlug(c.Request.Context(), slug)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if existing == nil {
		Error(c, http.StatusNotFound, "entity not found", nil)
		return
	}
	var payload entityPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		Error(c, http.StatusBadRequest, "invalid payload: "+err.Error(), nil)
		return
	}
	if payload.Slug != "" && payload.Slug != slug {
		Error(c, http.StatusBadRequest, "slug is immutable", nil)
		return
	}
	if display := strings.TrimSpace(payload.DisplayName); display != "" {
		existing.DisplayName = display
	}
	if payload.NameVariants != nil {
		existing.NameVariants = models.EncodeStrings(payload.NameVariants)
	}
	if payload.MinusWords != nil {
		existing.MinusWords = models.EncodeStrings(payload.MinusWords)
	}
	if payload.Topics != nil {
		existing.Topics = models.EncodeStrings(payload.Topics)
	}
	if payload.Active != nil {
		existing.Active = *payload.Active
	}
	if err := h.Repo.UpdateEntity(c.Request.Context(), existing); err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if h.Logger != nil {
		h.Logger.Info("entity updated", zap.String("slug", slug))
	}
	Ok(c, existing, nil)
}
