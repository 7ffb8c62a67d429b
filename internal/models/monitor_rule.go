package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RuleComparator is the closed set of conditions a monitor rule can express.
// Unknown comparator tags are rejected when the rule is created, never at
// evaluation time.
type RuleComparator string

const (
	ComparatorPriceAbove         RuleComparator = "price_above"
	ComparatorPriceBelow         RuleComparator = "price_below"
	ComparatorPercentChangeAbove RuleComparator = "percent_change_above"
	ComparatorPercentChangeBelow RuleComparator = "percent_change_below"
)

// ParseComparator validates a comparator tag against the closed set.
func ParseComparator(s string) (RuleComparator, bool) {
	switch RuleComparator(s) {
	case ComparatorPriceAbove, ComparatorPriceBelow,
		ComparatorPercentChangeAbove, ComparatorPercentChangeBelow:
		return RuleComparator(s), true
	}
	return "", false
}

// IsPercentChange reports whether the comparator needs a previous-close baseline.
func (c RuleComparator) IsPercentChange() bool {
	return c == ComparatorPercentChangeAbove || c == ComparatorPercentChangeBelow
}

// RuleRecurrence controls whether a rule disarms itself after firing.
type RuleRecurrence string

const (
	RecurrenceOnce      RuleRecurrence = "once"
	RecurrenceRecurring RuleRecurrence = "recurring"
)

// ParseRecurrence validates a recurrence tag.
func ParseRecurrence(s string) (RuleRecurrence, bool) {
	switch RuleRecurrence(s) {
	case RecurrenceOnce, RecurrenceRecurring:
		return RuleRecurrence(s), true
	}
	return "", false
}

// RuleState is the lifecycle state of a monitor rule. Only armed rules are
// evaluated; fired and disarmed are terminal until a user action re-arms.
type RuleState string

const (
	RuleStateArmed    RuleState = "armed"
	RuleStateFired    RuleState = "fired"
	RuleStateDisarmed RuleState = "disarmed"
)

// MonitorRule is a user-declared price condition on one instrument.
type MonitorRule struct {
	Base
	UserID         uint            `gorm:"not null;index" json:"user_id"`
	InstrumentCode string          `gorm:"not null;size:16;index" json:"instrument_code"`
	Comparator     RuleComparator  `gorm:"not null;size:24" json:"comparator"`
	Threshold      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"threshold"`
	Recurrence     RuleRecurrence  `gorm:"not null;size:12;default:'once'" json:"recurrence"`
	State          RuleState       `gorm:"not null;size:10;default:'armed';index" json:"state"`
	LastFiredAt    *time.Time      `json:"last_fired_at,omitempty"`
	Instrument     *Instrument     `gorm:"foreignKey:InstrumentCode;references:Code" json:"instrument,omitempty"`
}
