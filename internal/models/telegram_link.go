package models

import "time"

// TelegramLink connects a user to a Telegram chat for alert delivery.
// A pending link has only a short-lived code; the bot completes it with the
// chat details, after which the Telegram sink can deliver alerts to ChatID.
type TelegramLink struct {
	Base
	UserID            uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	ChatID            int64      `gorm:"index" json:"chat_id,omitempty"`
	TelegramUsername  string     `gorm:"size:64" json:"telegram_username,omitempty"`
	LinkCode          string     `gorm:"size:6;index" json:"-"`
	LinkCodeExpiresAt *time.Time `json:"-"`
	IsActive          bool       `gorm:"default:false" json:"is_active"`
	LastDeliveryAt    *time.Time `json:"last_delivery_at,omitempty"`
	DeliveryCount     int64      `gorm:"default:0" json:"delivery_count"`
}
