package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Alert is the persisted record of a fired rule transition. One row per
// dispatched event; EventID is the time-ordered event identifier handed to
// the delivery sink, kept unique so a replayed dispatch can never duplicate
// history.
type Alert struct {
	Base
	EventID        string          `gorm:"uniqueIndex;not null;size:36" json:"event_id"`
	RuleID         uint            `gorm:"not null;index" json:"rule_id"`
	UserID         uint            `gorm:"not null;index" json:"user_id"`
	InstrumentCode string          `gorm:"not null;size:16" json:"instrument_code"`
	InstrumentName string          `gorm:"size:100" json:"instrument_name,omitempty"`
	Comparator     RuleComparator  `gorm:"not null;size:24" json:"comparator"`
	Threshold      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"threshold"`
	Observed       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"observed"`
	FiredAt        time.Time       `gorm:"not null;index" json:"fired_at"`
	Delivered      bool            `gorm:"default:false" json:"delivered"`
	DeliveryError  string          `gorm:"size:255" json:"delivery_error,omitempty"`
	ReadAt         *time.Time      `json:"read_at,omitempty"`
}
