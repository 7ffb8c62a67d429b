package models

// WatchGroup is a user-defined bucket for organizing watch items. Items with
// no group belong to the implicit "ungrouped" bucket (a NULL group reference
// on the item, not a group row).
type WatchGroup struct {
	Base
	UserID    uint   `gorm:"not null;index" json:"user_id"`
	Name      string `gorm:"not null;size:50" json:"name"`
	SortOrder int    `gorm:"default:0" json:"sort_order"`
}
