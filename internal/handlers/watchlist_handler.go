package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/pagination"
	"stockwatch/internal/services"
)

// WatchlistHandler handles watch group and watch item requests.
type WatchlistHandler struct {
	watchlistService services.WatchlistServicer
	auditService     services.AuditServicer
}

// NewWatchlistHandler creates a new WatchlistHandler.
func NewWatchlistHandler(watchlistService services.WatchlistServicer, auditService services.AuditServicer) *WatchlistHandler {
	return &WatchlistHandler{watchlistService: watchlistService, auditService: auditService}
}

// CreateGroupRequest represents the request payload for creating a watch group.
type CreateGroupRequest struct {
	Name      string `json:"name" binding:"required,min=1,max=50"`
	SortOrder int    `json:"sort_order" binding:"gte=0"`
}

// RenameGroupRequest represents the request payload for renaming a watch group.
type RenameGroupRequest struct {
	Name string `json:"name" binding:"required,min=1,max=50"`
}

// AddItemRequest represents the request payload for adding a watch item.
type AddItemRequest struct {
	InstrumentCode string           `json:"instrument_code" binding:"required,instrument_code"`
	GroupID        *uint            `json:"group_id"`
	CostPrice      *decimal.Decimal `json:"cost_price"`
	Quantity       *int64           `json:"quantity" binding:"omitempty,gte=0"`
}

// UpdateItemRequest represents the request payload for updating position
// annotations on a watch item.
type UpdateItemRequest struct {
	CostPrice *decimal.Decimal `json:"cost_price"`
	Quantity  *int64           `json:"quantity" binding:"omitempty,gte=0"`
}

// MoveItemRequest represents the request payload for moving an item between
// groups. A null group_id moves the item to the ungrouped bucket.
type MoveItemRequest struct {
	GroupID *uint `json:"group_id"`
}

// ListGroups returns the user's watch groups
// @Summary     List watch groups
// @Description List the authenticated user's watch groups with item counts
// @Tags        watchlist
// @Produce     json
// @Security    BearerAuth
// @Success     200 {array} services.GroupSummary "Watch groups"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /watchlist/groups [get]
func (h *WatchlistHandler) ListGroups(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	groups, err := h.watchlistService.ListGroups(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// CreateGroup creates a watch group
// @Summary     Create a watch group
// @Description Create a new watch group for the authenticated user
// @Tags        watchlist
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateGroupRequest true "Group data"
// @Success     201 {object} models.WatchGroup "Created group"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /watchlist/groups [post]
func (h *WatchlistHandler) CreateGroup(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	group, err := h.watchlistService.CreateGroup(userID, req.Name, req.SortOrder)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CREATE_WATCH_GROUP", "watch_group", group.ID, c.ClientIP(),
		map[string]interface{}{"name": group.Name})

	c.JSON(http.StatusCreated, gin.H{"group": group})
}

// RenameGroup renames a watch group
// @Summary     Rename a watch group
// @Description Rename one of the authenticated user's watch groups
// @Tags        watchlist
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "Group ID"
// @Param       request body RenameGroupRequest true "New name"
// @Success     200 {object} models.WatchGroup "Renamed group"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Group not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /watchlist/groups/{id} [put]
func (h *WatchlistHandler) RenameGroup(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	groupID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req RenameGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	group, err := h.watchlistService.RenameGroup(userID, groupID, req.Name)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "RENAME_WATCH_GROUP", "watch_group", groupID, c.ClientIP(),
		map[string]interface{}{"name": req.Name})

	c.JSON(http.StatusOK, gin.H{"group": group})
}

// DeleteGroup deletes a watch group
// @Summary     Delete a watch group
// @Description Delete a watch group. Its items are moved to the ungrouped bucket, never removed.
// @Tags        watchlist
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "Group ID"
// @Success     204 "Group deleted"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Group not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /watchlist/groups/{id} [delete]
func (h *WatchlistHandler) DeleteGroup(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	groupID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.watchlistService.DeleteGroup(userID, groupID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "DELETE_WATCH_GROUP", "watch_group", groupID, c.ClientIP(), nil)

	c.Status(http.StatusNoContent)
}

// ListItems returns the user's watch items
// @Summary     List watch items
// @Description List watch items with instrument details and live valuation. Filter by group_id, or pass ungrouped=true for items outside any group.
// @Tags        watchlist
// @Produce     json
// @Security    BearerAuth
// @Param       group_id query int false "Filter to one group"
// @Param       ungrouped query bool false "Only items outside any group"
// @Param       page query int false "Page number"
// @Param       page_size query int false "Page size"
// @Success     200 {object} pagination.PageResponse[services.WatchItemView] "Watch items"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /watchlist/items [get]
func (h *WatchlistHandler) ListItems(c *gin.Context) {
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

	var filter services.WatchItemFilter
	if raw := c.Query("group_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid group_id"))
			return
		}
		groupID := uint(id)
		filter.GroupID = &groupID
	}
	filter.Ungrouped = c.Query("ungrouped") == "true"

	result, err := h.watchlistService.ListItems(userID, filter, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// AddItem adds an instrument to the watchlist
// @Summary     Add a watch item
// @Description Add an instrument to the authenticated user's watchlist, optionally into a group and with position annotations
// @Tags        watchlist
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body AddItemRequest true "Item data"
// @Success     201 {object} models.WatchItem "Created item"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Unknown instrument or group"
// @Failure     409 {object} ErrorResponse "Already watched"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /watchlist/items [post]
func (h *WatchlistHandler) AddItem(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	item, err := h.watchlistService.AddItem(userID, req.InstrumentCode, req.GroupID, req.CostPrice, req.Quantity)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "ADD_WATCH_ITEM", "watch_item", item.ID, c.ClientIP(),
		map[string]interface{}{"instrument_code": item.InstrumentCode})

	c.JSON(http.StatusCreated, gin.H{"item": item})
}

// UpdateItem updates position annotations
// @Summary     Update a watch item
// @Description Update the cost price and quantity annotations on a watch item
// @Tags        watchlist
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       code path string true "Instrument code"
// @Param       request body UpdateItemRequest true "Annotations"
// @Success     200 {object} models.WatchItem "Updated item"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Not watched"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /watchlist/items/{code} [put]
func (h *WatchlistHandler) UpdateItem(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	item, err := h.watchlistService.UpdateItem(userID, c.Param("code"), req.CostPrice, req.Quantity)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "UPDATE_WATCH_ITEM", "watch_item", item.ID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"item": item})
}

// MoveItem moves an item between groups
// @Summary     Move a watch item
// @Description Move a watch item to another group, or to the ungrouped bucket when group_id is null. The membership itself is unchanged.
// @Tags        watchlist
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       code path string true "Instrument code"
// @Param       request body MoveItemRequest true "Target group"
// @Success     200 {object} models.WatchItem "Moved item"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Not watched or group not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /watchlist/items/{code}/move [put]
func (h *WatchlistHandler) MoveItem(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req MoveItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	item, err := h.watchlistService.MoveItem(userID, c.Param("code"), req.GroupID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "MOVE_WATCH_ITEM", "watch_item", item.ID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"item": item})
}

// RemoveItem removes an instrument from the watchlist
// @Summary     Remove a watch item
// @Description Remove an instrument from the authenticated user's watchlist
// @Tags        watchlist
// @Produce     json
// @Security    BearerAuth
// @Param       code path string true "Instrument code"
// @Success     204 "Item removed"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Not watched"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /watchlist/items/{code} [delete]
func (h *WatchlistHandler) RemoveItem(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	code := c.Param("code")
	if err := h.watchlistService.RemoveItem(userID, code); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "REMOVE_WATCH_ITEM", "watch_item", 0, c.ClientIP(),
		map[string]interface{}{"instrument_code": code})

	c.Status(http.StatusNoContent)
}
