package models

import "github.com/shopspring/decimal"

// WatchItem is a user's membership of one instrument in their watchlist.
// A user watches a given instrument at most once regardless of grouping;
// moving an item between groups mutates GroupID in place. CostPrice and
// Quantity are optional position annotations attached to the membership,
// not to the instrument.
type WatchItem struct {
	Base
	UserID         uint                `gorm:"not null;uniqueIndex:uq_watch_items_user_code" json:"user_id"`
	InstrumentCode string              `gorm:"not null;size:16;uniqueIndex:uq_watch_items_user_code" json:"instrument_code"`
	GroupID        *uint               `gorm:"index" json:"group_id,omitempty"`
	CostPrice      decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"cost_price,omitempty"`
	Quantity       *int64              `json:"quantity,omitempty"`
	Instrument     *Instrument         `gorm:"foreignKey:InstrumentCode;references:Code" json:"instrument,omitempty"`
	Group          *WatchGroup         `gorm:"foreignKey:GroupID" json:"group,omitempty"`
}
