package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mediameter/internal/pipeline"
	"mediameter/internal/repository"
)

// CollectorHandler exposes adapter health and lets operators force a cycle
// outside the schedule.
type CollectorHandler struct {
	Repo    repository.Repository
	Runners map[string]*pipeline.Runner
	Logger  *zap.Logger

	// BaseCtx outlives the HTTP request so a triggered cycle is not killed
	// when the response is written.
	BaseCtx context.Context
}

func (h *CollectorHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/collectors")
	group.GET("", h.listCollectors)
	group.POST("/:adapter/run", h.triggerRun)

	r.GET("/api/v1/runs", h.listRuns)
}

func (h *CollectorHandler) listCollectors(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repository unavailable", nil)
		return
	}
	states, err := h.Repo.ListCollectorStates(c.Request.Context())
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, states, map[string]any{"count": len(states)})
}

func (h *CollectorHandler) triggerRun(c *gin.Context) {
	adapter := c.Param("adapter")
	runner, ok := h.Runners[adapter]
	if !ok {
		Error(c, http.StatusNotFound, "unknown adapter", nil)
		return
	}
	ctx := h.BaseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		if err := runner.RunOnce(ctx); err != nil && !errors.Is(err, pipeline.ErrCycleInFlight) && h.Logger != nil {
			h.Logger.Warn("manual cycle failed", zap.String("adapter", adapter), zap.Error(err))
		}
	}()
	c.JSON(http.StatusAccepted, apiResponse{Code: 0, Message: "cycle triggered"})
}

func (h *CollectorHandler) listRuns(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repository unavailable", nil)
		return
	}
	params := repository.ListRunsParams{
		Adapter: strQueryPtr(c, "adapter"),
		Status:  strQueryPtr(c, "status"),
		Limit:   intQuery(c, "limit", 50),
		Offset:  intQuery(c, "offset", 0),
	}
	runs, err := h.Repo.ListCollectionRuns(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, runs, map[string]any{"count": len(runs)})
}
