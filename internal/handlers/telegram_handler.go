package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/services"
)

// TelegramHandler handles Telegram account linking for the authenticated user.
type TelegramHandler struct {
	telegramService services.TelegramServicer
	auditService    services.AuditServicer
}

// NewTelegramHandler creates a new TelegramHandler.
func NewTelegramHandler(telegramService services.TelegramServicer, auditService services.AuditServicer) *TelegramHandler {
	return &TelegramHandler{telegramService: telegramService, auditService: auditService}
}

// GenerateLink issues a link code
// @Summary     Generate a Telegram link code
// @Description Issue a short-lived code the user sends to the bot to link their Telegram chat for alert delivery
// @Tags        telegram
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} map[string]interface{} "Link code and expiry"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /telegram/link [post]
func (h *TelegramHandler) GenerateLink(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	link, err := h.telegramService.GenerateLinkCode(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "GENERATE_TELEGRAM_LINK", "telegram_link", link.ID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{
		"link_code":  link.LinkCode,
		"expires_at": link.LinkCodeExpiresAt,
	})
}

// GetStatus returns the linking status
// @Summary     Get Telegram link status
// @Description Report whether the authenticated user has an active Telegram link
// @Tags        telegram
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} map[string]interface{} "Link status"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /telegram/status [get]
func (h *TelegramHandler) GetStatus(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	link, err := h.telegramService.GetLinkByUserID(userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"linked": false})
			return
		}
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"linked":            link.IsActive,
		"telegram_username": link.TelegramUsername,
		"last_delivery_at":  link.LastDeliveryAt,
		"delivery_count":    link.DeliveryCount,
	})
}

// Unlink removes the Telegram link
// @Summary     Unlink Telegram
// @Description Remove the authenticated user's Telegram link; alerts fall back to the log sink
// @Tags        telegram
// @Produce     json
// @Security    BearerAuth
// @Success     204 "Link removed"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "No link to remove"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /telegram/link [delete]
func (h *TelegramHandler) Unlink(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.telegramService.Unlink(userID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "TELEGRAM_UNLINK", "telegram_link", 0, c.ClientIP(), nil)

	c.Status(http.StatusNoContent)
}
