// Package dispatch defines the delivery boundary for fired alerts. The
// evaluation engine hands each fired event to a Sink exactly once; retry
// policy, if any, belongs to the delivery side, never to the engine.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stockwatch/internal/models"
)

// Event is a finalized alert produced by one fired rule transition.
type Event struct {
	ID             string                `json:"id"`
	RuleID         uint                  `json:"rule_id"`
	UserID         uint                  `json:"user_id"`
	InstrumentCode string                `json:"instrument_code"`
	InstrumentName string                `json:"instrument_name,omitempty"`
	Comparator     models.RuleComparator `json:"comparator"`
	Threshold      decimal.Decimal       `json:"threshold"`
	Observed       decimal.Decimal       `json:"observed"`
	FiredAt        time.Time             `json:"fired_at"`
}

// Message renders a human-readable one-line summary of the event.
func (e Event) Message() string {
	var condition string
	switch e.Comparator {
	case models.ComparatorPriceAbove:
		condition = fmt.Sprintf("price %s is above %s", e.Observed, e.Threshold)
	case models.ComparatorPriceBelow:
		condition = fmt.Sprintf("price %s is below %s", e.Observed, e.Threshold)
	case models.ComparatorPercentChangeAbove:
		condition = fmt.Sprintf("up %s%% (threshold %s%%)", e.Observed, e.Threshold)
	case models.ComparatorPercentChangeBelow:
		condition = fmt.Sprintf("down to %s%% (threshold %s%%)", e.Observed, e.Threshold)
	default:
		condition = fmt.Sprintf("%s %s (observed %s)", e.Comparator, e.Threshold, e.Observed)
	}
	name := e.InstrumentName
	if name == "" {
		name = e.InstrumentCode
	}
	return fmt.Sprintf("%s (%s): %s", name, e.InstrumentCode, condition)
}

// Sink delivers alert events. Implementations must be safe for concurrent
// use; the engine may dispatch from multiple workers.
type Sink interface {
	Name() string
	Dispatch(ctx context.Context, event Event) error
}

// LogSink writes alert events to the structured log. It is the default sink
// and the fallback when no delivery channel is configured.
type LogSink struct {
	logger *zap.SugaredLogger
}

// NewLogSink creates a LogSink writing to the given logger.
func NewLogSink(logger *zap.SugaredLogger) *LogSink {
	return &LogSink{logger: logger}
}

// Name returns the sink's identifier.
func (s *LogSink) Name() string { return "log" }

// Dispatch logs the event. It never fails.
func (s *LogSink) Dispatch(_ context.Context, event Event) error {
	s.logger.Infow("alert fired",
		"event_id", event.ID,
		"rule_id", event.RuleID,
		"user_id", event.UserID,
		"instrument_code", event.InstrumentCode,
		"comparator", string(event.Comparator),
		"threshold", event.Threshold.String(),
		"observed", event.Observed.String(),
		"message", event.Message(),
	)
	return nil
}
