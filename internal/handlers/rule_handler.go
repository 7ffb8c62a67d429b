package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/models"
	"stockwatch/internal/pagination"
	"stockwatch/internal/services"
)

// RuleHandler handles monitor rule requests.
type RuleHandler struct {
	ruleService  services.RuleServicer
	auditService services.AuditServicer
}

// NewRuleHandler creates a new RuleHandler.
func NewRuleHandler(ruleService services.RuleServicer, auditService services.AuditServicer) *RuleHandler {
	return &RuleHandler{ruleService: ruleService, auditService: auditService}
}

// CreateRuleRequest represents the request payload for creating a monitor rule.
type CreateRuleRequest struct {
	InstrumentCode string          `json:"instrument_code" binding:"required,instrument_code"`
	Comparator     string          `json:"comparator" binding:"required,comparator"`
	Threshold      decimal.Decimal `json:"threshold" binding:"required"`
	Recurrence     string          `json:"recurrence" binding:"omitempty,recurrence"`
}

// UpdateRuleRequest represents the request payload for updating a monitor
// rule. Any update re-arms the rule.
type UpdateRuleRequest struct {
	Comparator *string          `json:"comparator" binding:"omitempty,comparator"`
	Threshold  *decimal.Decimal `json:"threshold"`
	Recurrence *string          `json:"recurrence" binding:"omitempty,recurrence"`
}

// ListRules returns the user's monitor rules
// @Summary     List monitor rules
// @Description List the authenticated user's monitor rules, newest first
// @Tags        rules
// @Produce     json
// @Security    BearerAuth
// @Param       page query int false "Page number"
// @Param       page_size query int false "Page size"
// @Success     200 {object} pagination.PageResponse[models.MonitorRule] "Monitor rules"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /rules [get]
func (h *RuleHandler) ListRules(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.ruleService.ListRules(userID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetRule returns one monitor rule
// @Summary     Get a monitor rule
// @Description Get one of the authenticated user's monitor rules
// @Tags        rules
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "Rule ID"
// @Success     200 {object} models.MonitorRule "Monitor rule"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Rule not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /rules/{id} [get]
func (h *RuleHandler) GetRule(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	ruleID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	rule, err := h.ruleService.GetRule(userID, ruleID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rule": rule})
}

// CreateRule creates a monitor rule
// @Summary     Create a monitor rule
// @Description Create an armed monitor rule on an active catalog instrument. Recurrence defaults to once.
// @Tags        rules
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateRuleRequest true "Rule data"
// @Success     201 {object} models.MonitorRule "Created rule"
// @Failure     400 {object} ErrorResponse "Invalid comparator, threshold, or recurrence"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Unknown instrument"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /rules [post]
func (h *RuleHandler) CreateRule(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	recurrence := models.RuleRecurrence(req.Recurrence)
	if req.Recurrence == "" {
		recurrence = models.RecurrenceOnce
	}

	rule, err := h.ruleService.CreateRule(userID, req.InstrumentCode,
		models.RuleComparator(req.Comparator), req.Threshold, recurrence)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CREATE_RULE", "monitor_rule", rule.ID, c.ClientIP(),
		map[string]interface{}{
			"instrument_code": rule.InstrumentCode,
			"comparator":      rule.Comparator,
			"threshold":       rule.Threshold,
		})

	c.JSON(http.StatusCreated, gin.H{"rule": rule})
}

// UpdateRule updates a monitor rule
// @Summary     Update a monitor rule
// @Description Update comparator, threshold, or recurrence. Any update re-arms the rule and resets its debounce history.
// @Tags        rules
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "Rule ID"
// @Param       request body UpdateRuleRequest true "Fields to update"
// @Success     200 {object} models.MonitorRule "Updated rule"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Rule not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /rules/{id} [put]
func (h *RuleHandler) UpdateRule(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	ruleID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	var comparator *models.RuleComparator
	if req.Comparator != nil {
		value := models.RuleComparator(*req.Comparator)
		comparator = &value
	}
	var recurrence *models.RuleRecurrence
	if req.Recurrence != nil {
		value := models.RuleRecurrence(*req.Recurrence)
		recurrence = &value
	}

	rule, err := h.ruleService.UpdateRule(userID, ruleID, comparator, req.Threshold, recurrence)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "UPDATE_RULE", "monitor_rule", ruleID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"rule": rule})
}

// DeleteRule deletes a monitor rule
// @Summary     Delete a monitor rule
// @Description Delete one of the authenticated user's monitor rules
// @Tags        rules
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "Rule ID"
// @Success     204 "Rule deleted"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Rule not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /rules/{id} [delete]
func (h *RuleHandler) DeleteRule(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	ruleID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.ruleService.DeleteRule(userID, ruleID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "DELETE_RULE", "monitor_rule", ruleID, c.ClientIP(), nil)

	c.Status(http.StatusNoContent)
}

// ArmRule re-arms a monitor rule
// @Summary     Arm a monitor rule
// @Description Return a fired or disarmed rule to the armed state
// @Tags        rules
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "Rule ID"
// @Success     200 {object} models.MonitorRule "Armed rule"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Rule not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /rules/{id}/arm [post]
func (h *RuleHandler) ArmRule(c *gin.Context) {
	h.setRuleState(c, true)
}

// DisarmRule disarms a monitor rule
// @Summary     Disarm a monitor rule
// @Description Take a rule out of evaluation until it is re-armed
// @Tags        rules
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "Rule ID"
// @Success     200 {object} models.MonitorRule "Disarmed rule"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Rule not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /rules/{id}/disarm [post]
func (h *RuleHandler) DisarmRule(c *gin.Context) {
	h.setRuleState(c, false)
}

func (h *RuleHandler) setRuleState(c *gin.Context, arm bool) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	ruleID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var rule *models.MonitorRule
	action := "DISARM_RULE"
	if arm {
		action = "ARM_RULE"
		rule, err = h.ruleService.ArmRule(userID, ruleID)
	} else {
		rule, err = h.ruleService.DisarmRule(userID, ruleID)
	}
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, action, "monitor_rule", ruleID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"rule": rule})
}
