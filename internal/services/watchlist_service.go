package services

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/models"
	"stockwatch/internal/pagination"
	"stockwatch/internal/prices"
)

// watchlistService handles per-user watch groups and memberships.
type watchlistService struct {
	db     *gorm.DB
	quotes *prices.Store
}

// NewWatchlistService creates a new WatchlistServicer. The price store is
// read-only here; it feeds the live valuation columns on item listings.
func NewWatchlistService(db *gorm.DB, quotes *prices.Store) WatchlistServicer {
	return &watchlistService{db: db, quotes: quotes}
}

// ListGroups returns the user's groups ordered by sort hint, with item counts.
func (s *watchlistService) ListGroups(userID uint) ([]GroupSummary, error) {
	var groups []models.WatchGroup
	if err := s.db.Where("user_id = ?", userID).
		Order("sort_order ASC, id ASC").Find(&groups).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	summaries := make([]GroupSummary, 0, len(groups))
	for _, g := range groups {
		var count int64
		if err := s.db.Model(&models.WatchItem{}).
			Where("user_id = ? AND group_id = ?", userID, g.ID).Count(&count).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		summaries = append(summaries, GroupSummary{WatchGroup: g, ItemCount: count})
	}
	return summaries, nil
}

// CreateGroup creates a watch group for the user.
func (s *watchlistService) CreateGroup(userID uint, name string, sortOrder int) (*models.WatchGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "group name is required")
	}

	group := &models.WatchGroup{UserID: userID, Name: name, SortOrder: sortOrder}
	if err := s.db.Create(group).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return group, nil
}

// RenameGroup updates a group's display name.
func (s *watchlistService) RenameGroup(userID, groupID uint, name string) (*models.WatchGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "group name is required")
	}

	group, err := s.getGroup(userID, groupID)
	if err != nil {
		return nil, err
	}

	group.Name = name
	if err := s.db.Save(group).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return group, nil
}

// DeleteGroup removes a group. Its items are reassigned to the ungrouped
// bucket (group_id set to NULL) in the same transaction; memberships are
// never cascade-deleted.
func (s *watchlistService) DeleteGroup(userID, groupID uint) error {
	if _, err := s.getGroup(userID, groupID); err != nil {
		return err
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.WatchItem{}).
			Where("user_id = ? AND group_id = ?", userID, groupID).
			Update("group_id", nil).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND user_id = ?", groupID, userID).
			Delete(&models.WatchGroup{}).Error
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// ListItems returns the user's watch items joined with instrument display
// fields and live valuation, optionally filtered to one group or to the
// ungrouped bucket.
func (s *watchlistService) ListItems(userID uint, filter WatchItemFilter, page pagination.PageRequest) (*pagination.PageResponse[WatchItemView], error) {
	page.Defaults()

	base := s.db.Model(&models.WatchItem{}).Where("user_id = ?", userID)
	switch {
	case filter.GroupID != nil:
		base = base.Where("group_id = ?", *filter.GroupID)
	case filter.Ungrouped:
		base = base.Where("group_id IS NULL")
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var items []models.WatchItem
	if err := base.Preload("Instrument").Order("created_at ASC, id ASC").
		Scopes(pagination.Paginate(page)).Find(&items).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	views := make([]WatchItemView, 0, len(items))
	for _, item := range items {
		views = append(views, s.buildView(item))
	}

	result := pagination.NewPageResponse(views, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// buildView joins one item with its instrument and the latest cached quote.
func (s *watchlistService) buildView(item models.WatchItem) WatchItemView {
	view := WatchItemView{WatchItem: item}
	if item.Instrument != nil {
		view.InstrumentName = item.Instrument.Name
		view.Industry = item.Instrument.Industry
		view.Market = item.Instrument.Market
	}

	quote, ok := s.quotes.Get(item.InstrumentCode)
	if !ok {
		return view
	}
	price := quote.Price
	view.LastPrice = &price

	if quote.PrevClose.IsPositive() {
		changePct := price.Sub(quote.PrevClose).Div(quote.PrevClose).Mul(decimal.NewFromInt(100)).Round(2)
		view.ChangePercent = &changePct
	}
	if item.Quantity != nil {
		qty := decimal.NewFromInt(*item.Quantity)
		marketValue := price.Mul(qty)
		view.MarketValue = &marketValue
		if item.CostPrice.Valid {
			pl := price.Sub(item.CostPrice.Decimal).Mul(qty)
			view.UnrealizedPL = &pl
		}
	}
	return view
}

// AddItem adds an instrument to the user's watchlist. The code must be in
// the active catalog, and a user watches a given instrument at most once
// regardless of group.
func (s *watchlistService) AddItem(userID uint, code string, groupID *uint, costPrice *decimal.Decimal, quantity *int64) (*models.WatchItem, error) {
	var instrument models.Instrument
	if err := s.db.Where("code = ? AND is_active = ?", code, true).First(&instrument).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUnknownInstrument
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if groupID != nil {
		if _, err := s.getGroup(userID, *groupID); err != nil {
			return nil, err
		}
	}

	var count int64
	if err := s.db.Model(&models.WatchItem{}).
		Where("user_id = ? AND instrument_code = ?", userID, code).Count(&count).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count > 0 {
		return nil, apperrors.ErrAlreadyWatched
	}

	item := &models.WatchItem{
		UserID:         userID,
		InstrumentCode: code,
		GroupID:        groupID,
		Quantity:       quantity,
	}
	if costPrice != nil {
		if costPrice.IsNegative() {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "cost price cannot be negative")
		}
		item.CostPrice = decimal.NewNullDecimal(*costPrice)
	}

	if err := s.db.Create(item).Error; err != nil {
		// The composite unique index backs the at-most-once invariant under
		// concurrent adds; the count check above only gives a friendly path.
		if isUniqueConstraintError(err) {
			return nil, apperrors.ErrAlreadyWatched
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	item.Instrument = &instrument
	return item, nil
}

// UpdateItem updates the position annotations on a membership.
func (s *watchlistService) UpdateItem(userID uint, code string, costPrice *decimal.Decimal, quantity *int64) (*models.WatchItem, error) {
	item, err := s.getItem(userID, code)
	if err != nil {
		return nil, err
	}

	if costPrice != nil {
		if costPrice.IsNegative() {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "cost price cannot be negative")
		}
		item.CostPrice = decimal.NewNullDecimal(*costPrice)
	}
	if quantity != nil {
		item.Quantity = quantity
	}

	if err := s.db.Save(item).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return item, nil
}

// RemoveItem deletes a membership.
func (s *watchlistService) RemoveItem(userID uint, code string) error {
	result := s.db.Where("user_id = ? AND instrument_code = ?", userID, code).
		Delete(&models.WatchItem{})
	if result.Error != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotWatched
	}
	return nil
}

// MoveItem reassigns a membership to another group (or to ungrouped when
// newGroupID is nil) by mutating group_id in place.
func (s *watchlistService) MoveItem(userID uint, code string, newGroupID *uint) (*models.WatchItem, error) {
	item, err := s.getItem(userID, code)
	if err != nil {
		return nil, err
	}

	if newGroupID != nil {
		if _, err := s.getGroup(userID, *newGroupID); err != nil {
			return nil, err
		}
	}

	if err := s.db.Model(item).Update("group_id", newGroupID).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	item.GroupID = newGroupID
	return item, nil
}

func (s *watchlistService) getGroup(userID, groupID uint) (*models.WatchGroup, error) {
	var group models.WatchGroup
	if err := s.db.Where("id = ? AND user_id = ?", groupID, userID).First(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrGroupNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &group, nil
}

func (s *watchlistService) getItem(userID uint, code string) (*models.WatchItem, error) {
	var item models.WatchItem
	if err := s.db.Where("user_id = ? AND instrument_code = ?", userID, code).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotWatched
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &item, nil
}

// isUniqueConstraintError checks if a GORM error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // SQLite
		strings.Contains(msg, "duplicate key value violates unique constraint") // PostgreSQL
}
