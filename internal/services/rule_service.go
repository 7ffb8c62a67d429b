package services

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/models"
	"stockwatch/internal/pagination"
)

// ruleService handles monitor rule CRUD and the per-rule atomic state
// transitions the evaluation engine relies on.
type ruleService struct {
	db *gorm.DB
}

// NewRuleService creates a new RuleServicer.
func NewRuleService(db *gorm.DB) RuleServicer {
	return &ruleService{db: db}
}

// ListRules returns the user's rules, newest first.
func (s *ruleService) ListRules(userID uint, page pagination.PageRequest) (*pagination.PageResponse[models.MonitorRule], error) {
	page.Defaults()

	var totalItems int64
	base := s.db.Model(&models.MonitorRule{}).Where("user_id = ?", userID)
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var rules []models.MonitorRule
	if err := base.Preload("Instrument").Order("created_at DESC, id DESC").
		Scopes(pagination.Paginate(page)).Find(&rules).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(rules, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetRule returns one rule scoped to its owner.
func (s *ruleService) GetRule(userID, ruleID uint) (*models.MonitorRule, error) {
	var rule models.MonitorRule
	if err := s.db.Preload("Instrument").
		Where("id = ? AND user_id = ?", ruleID, userID).First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrRuleNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &rule, nil
}

// CreateRule creates an armed rule after validating the comparator tag,
// the threshold domain, and that the instrument is in the active catalog.
func (s *ruleService) CreateRule(userID uint, code string, comparator models.RuleComparator, threshold decimal.Decimal, recurrence models.RuleRecurrence) (*models.MonitorRule, error) {
	if _, ok := models.ParseComparator(string(comparator)); !ok {
		return nil, apperrors.ErrInvalidComparator
	}
	if _, ok := models.ParseRecurrence(string(recurrence)); !ok {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "recurrence must be once or recurring")
	}
	if err := validateThreshold(threshold); err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.Model(&models.Instrument{}).
		Where("code = ? AND is_active = ?", code, true).Count(&count).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count == 0 {
		return nil, apperrors.ErrUnknownInstrument
	}

	rule := &models.MonitorRule{
		UserID:         userID,
		InstrumentCode: code,
		Comparator:     comparator,
		Threshold:      threshold,
		Recurrence:     recurrence,
		State:          models.RuleStateArmed,
	}
	if err := s.db.Create(rule).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return rule, nil
}

// UpdateRule changes comparator/threshold/recurrence. Any update re-arms
// the rule and clears last_fired_at so debounce starts from scratch.
func (s *ruleService) UpdateRule(userID, ruleID uint, comparator *models.RuleComparator, threshold *decimal.Decimal, recurrence *models.RuleRecurrence) (*models.MonitorRule, error) {
	rule, err := s.GetRule(userID, ruleID)
	if err != nil {
		return nil, err
	}

	if comparator != nil {
		if _, ok := models.ParseComparator(string(*comparator)); !ok {
			return nil, apperrors.ErrInvalidComparator
		}
		rule.Comparator = *comparator
	}
	if threshold != nil {
		if err := validateThreshold(*threshold); err != nil {
			return nil, err
		}
		rule.Threshold = *threshold
	}
	if recurrence != nil {
		if _, ok := models.ParseRecurrence(string(*recurrence)); !ok {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "recurrence must be once or recurring")
		}
		rule.Recurrence = *recurrence
	}

	if err := s.db.Model(rule).Updates(map[string]interface{}{
		"comparator":    rule.Comparator,
		"threshold":     rule.Threshold,
		"recurrence":    rule.Recurrence,
		"state":         models.RuleStateArmed,
		"last_fired_at": nil,
	}).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	rule.State = models.RuleStateArmed
	rule.LastFiredAt = nil
	return rule, nil
}

// DeleteRule removes a rule.
func (s *ruleService) DeleteRule(userID, ruleID uint) error {
	result := s.db.Where("id = ? AND user_id = ?", ruleID, userID).Delete(&models.MonitorRule{})
	if result.Error != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrRuleNotFound
	}
	return nil
}

// ArmRule returns a fired or disarmed rule to the armed state.
func (s *ruleService) ArmRule(userID, ruleID uint) (*models.MonitorRule, error) {
	return s.setState(userID, ruleID, models.RuleStateArmed)
}

// DisarmRule takes a rule out of evaluation until the user re-arms it.
func (s *ruleService) DisarmRule(userID, ruleID uint) (*models.MonitorRule, error) {
	return s.setState(userID, ruleID, models.RuleStateDisarmed)
}

func (s *ruleService) setState(userID, ruleID uint, state models.RuleState) (*models.MonitorRule, error) {
	rule, err := s.GetRule(userID, ruleID)
	if err != nil {
		return nil, err
	}
	if err := s.db.Model(rule).Update("state", state).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	rule.State = state
	return rule, nil
}

// ListArmed returns every armed rule across all users, with the referenced
// instrument preloaded so the engine can detect stale references.
func (s *ruleService) ListArmed() ([]models.MonitorRule, error) {
	var rules []models.MonitorRule
	if err := s.db.Preload("Instrument").
		Where("state = ?", models.RuleStateArmed).Find(&rules).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return rules, nil
}

// TryFire attempts the fire transition with a per-rule conditional UPDATE,
// so two overlapping evaluation cycles can never both fire the same
// transition. One-shot rules move armed -> fired; recurring rules stay
// armed but only win when last_fired_at is outside the debounce window.
// Returns true only for the winning cycle.
func (s *ruleService) TryFire(rule *models.MonitorRule, firedAt time.Time, debounceWindow time.Duration) (bool, error) {
	var result *gorm.DB
	switch rule.Recurrence {
	case models.RecurrenceOnce:
		result = s.db.Model(&models.MonitorRule{}).
			Where("id = ? AND state = ?", rule.ID, models.RuleStateArmed).
			Updates(map[string]interface{}{
				"state":         models.RuleStateFired,
				"last_fired_at": firedAt,
			})
	case models.RecurrenceRecurring:
		cutoff := firedAt.Add(-debounceWindow)
		result = s.db.Model(&models.MonitorRule{}).
			Where("id = ? AND state = ? AND (last_fired_at IS NULL OR last_fired_at <= ?)",
				rule.ID, models.RuleStateArmed, cutoff).
			Update("last_fired_at", firedAt)
	default:
		return false, apperrors.WithMessage(apperrors.ErrInvalidInput, "unknown recurrence "+string(rule.Recurrence))
	}

	if result.Error != nil {
		return false, apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	rule.LastFiredAt = &firedAt
	if rule.Recurrence == models.RecurrenceOnce {
		rule.State = models.RuleStateFired
	}
	return true, nil
}

// validateThreshold enforces the threshold domain shared by all four
// comparators: a finite, non-negative magnitude. decimal.Decimal cannot
// hold NaN or infinity, so only the sign needs checking.
func validateThreshold(threshold decimal.Decimal) error {
	if threshold.IsNegative() {
		return apperrors.ErrInvalidThreshold
	}
	return nil
}
