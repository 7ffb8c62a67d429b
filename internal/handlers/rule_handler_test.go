package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/models"
	"stockwatch/internal/pagination"
	"stockwatch/internal/services"
)

type mockRuleService struct {
	listRulesFn  func(userID uint, page pagination.PageRequest) (*pagination.PageResponse[models.MonitorRule], error)
	getRuleFn    func(userID, ruleID uint) (*models.MonitorRule, error)
	createRuleFn func(userID uint, code string, comparator models.RuleComparator, threshold decimal.Decimal, recurrence models.RuleRecurrence) (*models.MonitorRule, error)
	updateRuleFn func(userID, ruleID uint, comparator *models.RuleComparator, threshold *decimal.Decimal, recurrence *models.RuleRecurrence) (*models.MonitorRule, error)
	deleteRuleFn func(userID, ruleID uint) error
	armRuleFn    func(userID, ruleID uint) (*models.MonitorRule, error)
	disarmRuleFn func(userID, ruleID uint) (*models.MonitorRule, error)
}

func (m *mockRuleService) ListRules(userID uint, page pagination.PageRequest) (*pagination.PageResponse[models.MonitorRule], error) {
	if m.listRulesFn != nil {
		return m.listRulesFn(userID, page)
	}
	result := pagination.NewPageResponse([]models.MonitorRule{}, 1, 20, 0)
	return &result, nil
}

func (m *mockRuleService) GetRule(userID, ruleID uint) (*models.MonitorRule, error) {
	if m.getRuleFn != nil {
		return m.getRuleFn(userID, ruleID)
	}
	return &models.MonitorRule{}, nil
}

func (m *mockRuleService) CreateRule(userID uint, code string, comparator models.RuleComparator, threshold decimal.Decimal, recurrence models.RuleRecurrence) (*models.MonitorRule, error) {
	if m.createRuleFn != nil {
		return m.createRuleFn(userID, code, comparator, threshold, recurrence)
	}
	return &models.MonitorRule{}, nil
}

func (m *mockRuleService) UpdateRule(userID, ruleID uint, comparator *models.RuleComparator, threshold *decimal.Decimal, recurrence *models.RuleRecurrence) (*models.MonitorRule, error) {
	if m.updateRuleFn != nil {
		return m.updateRuleFn(userID, ruleID, comparator, threshold, recurrence)
	}
	return &models.MonitorRule{}, nil
}

func (m *mockRuleService) DeleteRule(userID, ruleID uint) error {
	if m.deleteRuleFn != nil {
		return m.deleteRuleFn(userID, ruleID)
	}
	return nil
}

func (m *mockRuleService) ArmRule(userID, ruleID uint) (*models.MonitorRule, error) {
	if m.armRuleFn != nil {
		return m.armRuleFn(userID, ruleID)
	}
	return &models.MonitorRule{State: models.RuleStateArmed}, nil
}

func (m *mockRuleService) DisarmRule(userID, ruleID uint) (*models.MonitorRule, error) {
	if m.disarmRuleFn != nil {
		return m.disarmRuleFn(userID, ruleID)
	}
	return &models.MonitorRule{State: models.RuleStateDisarmed}, nil
}

func (m *mockRuleService) ListArmed() ([]models.MonitorRule, error) { return nil, nil }

func (m *mockRuleService) TryFire(_ *models.MonitorRule, _ time.Time, _ time.Duration) (bool, error) {
	return false, nil
}

var _ services.RuleServicer = (*mockRuleService)(nil)

func setupRuleRouter(handler *RuleHandler) *gin.Engine {
	r := gin.New()
	auth := r.Group("/", injectUserID(1))
	auth.GET("/rules", handler.ListRules)
	auth.POST("/rules", handler.CreateRule)
	auth.GET("/rules/:id", handler.GetRule)
	auth.PUT("/rules/:id", handler.UpdateRule)
	auth.DELETE("/rules/:id", handler.DeleteRule)
	auth.POST("/rules/:id/arm", handler.ArmRule)
	auth.POST("/rules/:id/disarm", handler.DisarmRule)
	return r
}

func TestRuleHandler_CreateRule(t *testing.T) {
	t.Run("returns 201 on success", func(t *testing.T) {
		svc := &mockRuleService{
			createRuleFn: func(userID uint, code string, comparator models.RuleComparator, threshold decimal.Decimal, recurrence models.RuleRecurrence) (*models.MonitorRule, error) {
				return &models.MonitorRule{
					Base:           models.Base{ID: 3},
					UserID:         userID,
					InstrumentCode: code,
					Comparator:     comparator,
					Threshold:      threshold,
					Recurrence:     recurrence,
					State:          models.RuleStateArmed,
				}, nil
			},
		}
		handler := NewRuleHandler(svc, &mockAuditService{})
		r := setupRuleRouter(handler)

		rec := doRequest(r, "POST", "/rules",
			`{"instrument_code":"600000.SH","comparator":"price_above","threshold":"10.5","recurrence":"recurring"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		rule := result["rule"].(map[string]interface{})
		if rule["comparator"] != "price_above" {
			t.Errorf("expected price_above, got %v", rule["comparator"])
		}
		if rule["state"] != "armed" {
			t.Errorf("expected armed, got %v", rule["state"])
		}
	})

	t.Run("defaults recurrence to once", func(t *testing.T) {
		var captured models.RuleRecurrence
		svc := &mockRuleService{
			createRuleFn: func(_ uint, _ string, _ models.RuleComparator, _ decimal.Decimal, recurrence models.RuleRecurrence) (*models.MonitorRule, error) {
				captured = recurrence
				return &models.MonitorRule{}, nil
			},
		}
		handler := NewRuleHandler(svc, &mockAuditService{})
		r := setupRuleRouter(handler)

		rec := doRequest(r, "POST", "/rules",
			`{"instrument_code":"600000.SH","comparator":"price_above","threshold":"10.5"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if captured != models.RecurrenceOnce {
			t.Errorf("expected recurrence once, got %q", captured)
		}
	})

	t.Run("returns 400 on unknown comparator", func(t *testing.T) {
		handler := NewRuleHandler(&mockRuleService{}, &mockAuditService{})
		r := setupRuleRouter(handler)

		rec := doRequest(r, "POST", "/rules",
			`{"instrument_code":"600000.SH","comparator":"volume_above","threshold":"10.5"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 400 on invalid threshold", func(t *testing.T) {
		svc := &mockRuleService{
			createRuleFn: func(_ uint, _ string, _ models.RuleComparator, _ decimal.Decimal, _ models.RuleRecurrence) (*models.MonitorRule, error) {
				return nil, apperrors.ErrInvalidThreshold
			},
		}
		handler := NewRuleHandler(svc, &mockAuditService{})
		r := setupRuleRouter(handler)

		rec := doRequest(r, "POST", "/rules",
			`{"instrument_code":"600000.SH","comparator":"price_above","threshold":"-1"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_THRESHOLD")
	})
}

func TestRuleHandler_UpdateRule(t *testing.T) {
	t.Run("passes partial updates through", func(t *testing.T) {
		var gotThreshold *decimal.Decimal
		var gotComparator *models.RuleComparator
		svc := &mockRuleService{
			updateRuleFn: func(_, _ uint, comparator *models.RuleComparator, threshold *decimal.Decimal, _ *models.RuleRecurrence) (*models.MonitorRule, error) {
				gotComparator = comparator
				gotThreshold = threshold
				return &models.MonitorRule{State: models.RuleStateArmed}, nil
			},
		}
		handler := NewRuleHandler(svc, &mockAuditService{})
		r := setupRuleRouter(handler)

		rec := doRequest(r, "PUT", "/rules/3", `{"threshold":"12"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotComparator != nil {
			t.Errorf("expected comparator untouched, got %v", *gotComparator)
		}
		if gotThreshold == nil || !gotThreshold.Equal(decimal.RequireFromString("12")) {
			t.Errorf("expected threshold 12, got %v", gotThreshold)
		}
	})

	t.Run("returns 404 for someone else's rule", func(t *testing.T) {
		svc := &mockRuleService{
			updateRuleFn: func(_, _ uint, _ *models.RuleComparator, _ *decimal.Decimal, _ *models.RuleRecurrence) (*models.MonitorRule, error) {
				return nil, apperrors.ErrRuleNotFound
			},
		}
		handler := NewRuleHandler(svc, &mockAuditService{})
		r := setupRuleRouter(handler)

		rec := doRequest(r, "PUT", "/rules/3", `{"threshold":"12"}`)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestRuleHandler_ArmDisarm(t *testing.T) {
	t.Run("arm returns the armed rule", func(t *testing.T) {
		var armedID uint
		svc := &mockRuleService{
			armRuleFn: func(_, ruleID uint) (*models.MonitorRule, error) {
				armedID = ruleID
				return &models.MonitorRule{Base: models.Base{ID: ruleID}, State: models.RuleStateArmed}, nil
			},
		}
		handler := NewRuleHandler(svc, &mockAuditService{})
		r := setupRuleRouter(handler)

		rec := doRequest(r, "POST", "/rules/9/arm", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if armedID != 9 {
			t.Errorf("expected rule 9 armed, got %d", armedID)
		}
	})

	t.Run("disarm returns the disarmed rule", func(t *testing.T) {
		handler := NewRuleHandler(&mockRuleService{}, &mockAuditService{})
		r := setupRuleRouter(handler)

		rec := doRequest(r, "POST", "/rules/9/disarm", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		result := parseJSON(t, rec)
		rule := result["rule"].(map[string]interface{})
		if rule["state"] != "disarmed" {
			t.Errorf("expected disarmed, got %v", rule["state"])
		}
	})
}

func TestRuleHandler_DeleteRule(t *testing.T) {
	t.Run("returns 204 on success", func(t *testing.T) {
		handler := NewRuleHandler(&mockRuleService{}, &mockAuditService{})
		r := setupRuleRouter(handler)

		rec := doRequest(r, "DELETE", "/rules/3", "")

		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
	})

	t.Run("returns 404 when missing", func(t *testing.T) {
		svc := &mockRuleService{
			deleteRuleFn: func(_, _ uint) error { return apperrors.ErrRuleNotFound },
		}
		handler := NewRuleHandler(svc, &mockAuditService{})
		r := setupRuleRouter(handler)

		rec := doRequest(r, "DELETE", "/rules/3", "")

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}
