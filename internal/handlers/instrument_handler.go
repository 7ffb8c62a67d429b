package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/pagination"
	"stockwatch/internal/services"
)

// InstrumentHandler serves read-only catalog browsing.
type InstrumentHandler struct {
	catalogService services.CatalogServicer
}

// NewInstrumentHandler creates a new InstrumentHandler.
func NewInstrumentHandler(catalogService services.CatalogServicer) *InstrumentHandler {
	return &InstrumentHandler{catalogService: catalogService}
}

// ListInstruments returns a catalog page
// @Summary     List instruments
// @Description List catalog instruments with optional search over code, symbol, and name. Inactive (delisted) instruments are hidden unless include_inactive is set.
// @Tags        instruments
// @Produce     json
// @Security    BearerAuth
// @Param       search query string false "Search term"
// @Param       include_inactive query bool false "Include delisted instruments"
// @Param       page query int false "Page number"
// @Param       page_size query int false "Page size"
// @Success     200 {object} pagination.PageResponse[models.Instrument] "Catalog page"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /instruments [get]
func (h *InstrumentHandler) ListInstruments(c *gin.Context) {
	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	search := c.Query("search")
	includeInactive := c.Query("include_inactive") == "true"

	result, err := h.catalogService.ListInstruments(search, includeInactive, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetInstrument returns one instrument by code
// @Summary     Get an instrument
// @Description Get one catalog instrument by its exchange-qualified code
// @Tags        instruments
// @Produce     json
// @Security    BearerAuth
// @Param       code path string true "Instrument code, e.g. 600000.SH"
// @Success     200 {object} models.Instrument "Instrument"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Unknown instrument"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /instruments/{code} [get]
func (h *InstrumentHandler) GetInstrument(c *gin.Context) {
	instrument, err := h.catalogService.GetInstrument(c.Param("code"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"instrument": instrument})
}
