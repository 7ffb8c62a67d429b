package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stockwatch/internal/engine"
	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/scheduler"
	"stockwatch/internal/services"
)

// PipelineHandler exposes the ingestion and evaluation pipeline to operators
// and the Telegram bot. All routes sit behind the X-API-Key middleware.
type PipelineHandler struct {
	catalogService  services.CatalogServicer
	telegramService services.TelegramServicer
	engine          *engine.Engine
	sched           *scheduler.Scheduler
}

// NewPipelineHandler creates a new PipelineHandler. sched may be nil when the
// scheduler is disabled; status then reports only on-demand runs.
func NewPipelineHandler(catalogService services.CatalogServicer, telegramService services.TelegramServicer, eng *engine.Engine, sched *scheduler.Scheduler) *PipelineHandler {
	return &PipelineHandler{
		catalogService:  catalogService,
		telegramService: telegramService,
		engine:          eng,
		sched:           sched,
	}
}

// CompleteLinkRequest represents the bot's link completion callback payload.
type CompleteLinkRequest struct {
	LinkCode string `json:"link_code" binding:"required"`
	ChatID   int64  `json:"chat_id" binding:"required"`
	Username string `json:"username" binding:"max=64"`
}

// SyncCatalog triggers a catalog sync
// @Summary     Run a catalog sync
// @Description Fetch the upstream listing and upsert the instrument catalog. Returns the per-run counters.
// @Tags        pipeline
// @Produce     json
// @Security    ApiKeyAuth
// @Success     200 {object} services.CatalogSyncResult "Sync outcome"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     502 {object} ErrorResponse "Upstream unavailable"
// @Router      /pipeline/catalog/sync [post]
func (h *PipelineHandler) SyncCatalog(c *gin.Context) {
	result, err := h.catalogService.Sync(c.Request.Context())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Evaluate triggers an evaluation cycle
// @Summary     Run an evaluation cycle
// @Description Fetch quotes for all armed rules and evaluate them immediately
// @Tags        pipeline
// @Produce     json
// @Security    ApiKeyAuth
// @Success     200 {object} engine.Result "Cycle outcome"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     502 {object} ErrorResponse "Quote source unavailable"
// @Router      /pipeline/evaluate [post]
func (h *PipelineHandler) Evaluate(c *gin.Context) {
	result, err := h.engine.RunCycle(c.Request.Context())
	if err != nil {
		respondWithError(c, apperrors.Wrap(apperrors.ErrUpstreamUnavailable, err))
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetStatus reports the pipeline status
// @Summary     Get pipeline status
// @Description Report the scheduler state and the most recent catalog sync and evaluation outcomes
// @Tags        pipeline
// @Produce     json
// @Security    ApiKeyAuth
// @Success     200 {object} scheduler.Status "Pipeline status"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Router      /pipeline/status [get]
func (h *PipelineHandler) GetStatus(c *gin.Context) {
	if h.sched == nil {
		c.JSON(http.StatusOK, scheduler.Status{Running: false})
		return
	}
	c.JSON(http.StatusOK, h.sched.Status())
}

// CompleteLink finishes a Telegram link from the bot side
// @Summary     Complete a Telegram link
// @Description Bot callback: match the user's link code with the originating chat
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       request body CompleteLinkRequest true "Link completion data"
// @Success     200 {object} map[string]interface{} "Link completed"
// @Failure     400 {object} ErrorResponse "Invalid or expired link code"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     409 {object} ErrorResponse "Chat linked to another account"
// @Router      /pipeline/telegram/complete-link [post]
func (h *PipelineHandler) CompleteLink(c *gin.Context) {
	var req CompleteLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	if err := h.telegramService.CompleteLink(req.LinkCode, req.ChatID, req.Username); err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"linked": true})
}
