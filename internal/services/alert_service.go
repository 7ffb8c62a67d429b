package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"stockwatch/internal/dispatch"
	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/logger"
	"stockwatch/internal/models"
	"stockwatch/internal/pagination"
)

// alertService persists and serves the alert history.
type alertService struct {
	db *gorm.DB
}

// NewAlertService creates a new AlertServicer.
func NewAlertService(db *gorm.DB) AlertServicer {
	return &alertService{db: db}
}

// Record writes one alert history row for a fired event. It is best-effort,
// audit-style: a failed insert is logged and never propagates, because the
// fire transition has already happened and the event may already be out.
func (s *alertService) Record(event dispatch.Event, delivered bool, deliveryErr error) {
	alert := &models.Alert{
		EventID:        event.ID,
		RuleID:         event.RuleID,
		UserID:         event.UserID,
		InstrumentCode: event.InstrumentCode,
		InstrumentName: event.InstrumentName,
		Comparator:     event.Comparator,
		Threshold:      event.Threshold,
		Observed:       event.Observed,
		FiredAt:        event.FiredAt,
		Delivered:      delivered,
	}
	if deliveryErr != nil {
		alert.DeliveryError = deliveryErr.Error()
	}

	if err := s.db.Create(alert).Error; err != nil {
		logger.Get().Errorw("failed to record alert",
			"error", err,
			"event_id", event.ID,
			"rule_id", event.RuleID,
			"user_id", event.UserID,
		)
	}
}

// ListAlerts returns the user's alert history, newest first.
func (s *alertService) ListAlerts(userID uint, unreadOnly bool, page pagination.PageRequest) (*pagination.PageResponse[models.Alert], error) {
	page.Defaults()

	base := s.db.Model(&models.Alert{}).Where("user_id = ?", userID)
	if unreadOnly {
		base = base.Where("read_at IS NULL")
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var alerts []models.Alert
	if err := base.Order("fired_at DESC, id DESC").
		Scopes(pagination.Paginate(page)).Find(&alerts).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(alerts, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// MarkRead stamps an alert as read by its owner.
func (s *alertService) MarkRead(userID, alertID uint) (*models.Alert, error) {
	var alert models.Alert
	if err := s.db.Where("id = ? AND user_id = ?", alertID, userID).First(&alert).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAlertNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if alert.ReadAt == nil {
		now := time.Now()
		if err := s.db.Model(&alert).Update("read_at", now).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		alert.ReadAt = &now
	}
	return &alert, nil
}
