package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/logger"
	"stockwatch/internal/models"
	"stockwatch/internal/pagination"
	"stockwatch/internal/provider"
	"stockwatch/internal/uuid"
)

// catalogService owns the instrument catalog: it is the only writer
// (via Sync) and serves catalog browsing for everyone else.
type catalogService struct {
	db       *gorm.DB
	upstream provider.CatalogProvider
}

// NewCatalogService creates a new CatalogServicer.
func NewCatalogService(db *gorm.DB, upstream provider.CatalogProvider) CatalogServicer {
	return &catalogService{db: db, upstream: upstream}
}

// Sync refreshes the catalog from the upstream listing. Each record is
// upserted individually so concurrent readers always see a complete row;
// there is no whole-catalog transaction or lock. Codes present locally but
// absent upstream are deactivated, never deleted, because watch items and
// rules may still reference them.
func (s *catalogService) Sync(ctx context.Context) (*CatalogSyncResult, error) {
	start := time.Now()
	result := &CatalogSyncResult{RunID: uuid.New(), RanAt: start.UTC()}

	records, fetchErrors, err := s.upstream.FetchListing(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrUpstreamUnavailable, err)
	}
	for _, fe := range fetchErrors {
		result.Failed++
		result.Errors = append(result.Errors, fe.Error())
	}
	result.Total = len(records) + len(fetchErrors)

	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrUpstreamUnavailable, err)
		}
		seen[rec.Code] = struct{}{}
		switch outcome, err := s.upsertRecord(rec); {
		case err != nil:
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rec.Code, err))
		case outcome == upsertInserted:
			result.New++
		case outcome == upsertUpdated:
			result.Updated++
		default:
			result.Unchanged++
		}
	}

	deactivated, err := s.deactivateMissing(seen)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("deactivation: %v", err))
	}
	result.Deactivated = deactivated

	result.Duration = time.Since(start)
	logger.Get().Infow("catalog sync finished",
		"run_id", result.RunID,
		"total", result.Total,
		"new", result.New,
		"updated", result.Updated,
		"unchanged", result.Unchanged,
		"deactivated", result.Deactivated,
		"failed", result.Failed,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

type upsertOutcome int

const (
	upsertUnchanged upsertOutcome = iota
	upsertInserted
	upsertUpdated
)

// upsertRecord applies one listing record by fingerprint comparison:
// missing row -> insert, different fingerprint -> update mutable fields,
// equal fingerprint -> no-op.
func (s *catalogService) upsertRecord(rec provider.ListingRecord) (upsertOutcome, error) {
	incoming := models.Instrument{
		Code:     rec.Code,
		Symbol:   rec.Symbol,
		Name:     rec.Name,
		Area:     rec.Area,
		Industry: rec.Industry,
		Market:   rec.Market,
		ListDate: rec.ListDate,
		IsActive: true,
	}
	incoming.Fingerprint = incoming.ComputeFingerprint()

	var existing models.Instrument
	err := s.db.Where("code = ?", rec.Code).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := s.db.Create(&incoming).Error; err != nil {
			return upsertUnchanged, err
		}
		return upsertInserted, nil
	}
	if err != nil {
		return upsertUnchanged, err
	}

	if existing.Fingerprint == incoming.Fingerprint && existing.IsActive {
		return upsertUnchanged, nil
	}

	updates := map[string]interface{}{
		"symbol":      incoming.Symbol,
		"name":        incoming.Name,
		"area":        incoming.Area,
		"industry":    incoming.Industry,
		"market":      incoming.Market,
		"list_date":   incoming.ListDate,
		"is_active":   true,
		"fingerprint": incoming.Fingerprint,
	}
	if err := s.db.Model(&models.Instrument{}).Where("code = ?", rec.Code).Updates(updates).Error; err != nil {
		return upsertUnchanged, err
	}
	return upsertUpdated, nil
}

// deactivateMissing marks active instruments absent from the upstream
// listing as inactive and returns how many rows changed.
func (s *catalogService) deactivateMissing(seen map[string]struct{}) (int, error) {
	var active []models.Instrument
	if err := s.db.Select("id", "code").Where("is_active = ?", true).Find(&active).Error; err != nil {
		return 0, err
	}

	deactivated := 0
	for _, inst := range active {
		if _, ok := seen[inst.Code]; ok {
			continue
		}
		result := s.db.Model(&models.Instrument{}).Where("id = ? AND is_active = ?", inst.ID, true).
			Update("is_active", false)
		if result.Error != nil {
			return deactivated, result.Error
		}
		deactivated += int(result.RowsAffected)
	}
	return deactivated, nil
}

// ListInstruments returns a paginated catalog slice, optionally filtered by
// a case-insensitive code/symbol/name search and restricted to active rows.
func (s *catalogService) ListInstruments(search string, includeInactive bool, page pagination.PageRequest) (*pagination.PageResponse[models.Instrument], error) {
	page.Defaults()

	base := s.db.Model(&models.Instrument{})
	if !includeInactive {
		base = base.Where("is_active = ?", true)
	}
	if search != "" {
		pattern := "%" + search + "%"
		base = base.Where("code LIKE ? OR symbol LIKE ? OR name LIKE ?", pattern, pattern, pattern)
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var instruments []models.Instrument
	if err := base.Order("code ASC").Scopes(pagination.Paginate(page)).Find(&instruments).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(instruments, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetInstrument returns one instrument by exchange-qualified code.
func (s *catalogService) GetInstrument(code string) (*models.Instrument, error) {
	var instrument models.Instrument
	if err := s.db.Where("code = ?", code).First(&instrument).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUnknownInstrument
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &instrument, nil
}
