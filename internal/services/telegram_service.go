package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/models"
)

const (
	linkCodeLength = 6
	linkCodeExpiry = 15 * time.Minute
)

// telegramService handles Telegram linking business logic.
type telegramService struct {
	db *gorm.DB
}

// NewTelegramService creates a new TelegramServicer.
func NewTelegramService(db *gorm.DB) TelegramServicer {
	return &telegramService{db: db}
}

// GetLinkByUserID retrieves a Telegram link by user ID.
func (s *telegramService) GetLinkByUserID(userID uint) (*models.TelegramLink, error) {
	var link models.TelegramLink
	if err := s.db.Where("user_id = ?", userID).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &link, nil
}

// GetActiveLink returns the user's completed link, used by the Telegram
// alert sink to resolve the destination chat.
func (s *telegramService) GetActiveLink(userID uint) (*models.TelegramLink, error) {
	var link models.TelegramLink
	if err := s.db.Where("user_id = ? AND is_active = ?", userID, true).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &link, nil
}

// GenerateLinkCode issues a short-lived code the user sends to the bot to
// complete linking. A pending or completed link row is reused in place.
func (s *telegramService) GenerateLinkCode(userID uint) (*models.TelegramLink, error) {
	code, err := generateRandomCode(linkCodeLength)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	expiresAt := time.Now().Add(linkCodeExpiry)

	var link models.TelegramLink
	dbErr := s.db.Where("user_id = ?", userID).First(&link).Error
	if dbErr != nil {
		if !errors.Is(dbErr, gorm.ErrRecordNotFound) {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, dbErr)
		}
		link = models.TelegramLink{
			UserID:            userID,
			LinkCode:          code,
			LinkCodeExpiresAt: &expiresAt,
			IsActive:          false,
		}
		if err := s.db.Create(&link).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return &link, nil
	}

	link.LinkCode = code
	link.LinkCodeExpiresAt = &expiresAt
	if err := s.db.Save(&link).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &link, nil
}

// CompleteLink finishes linking from the bot side: it matches the code,
// checks expiry, and stores the chat details the alert sink delivers to.
func (s *telegramService) CompleteLink(linkCode string, chatID int64, username string) error {
	var link models.TelegramLink
	if err := s.db.Where("link_code = ?", linkCode).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrInvalidLinkCode
		}
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if link.LinkCodeExpiresAt == nil || time.Now().After(*link.LinkCodeExpiresAt) {
		return apperrors.ErrLinkCodeExpired
	}

	// One chat cannot be linked to two different accounts.
	var existing models.TelegramLink
	err := s.db.Where("chat_id = ? AND user_id != ? AND is_active = ?", chatID, link.UserID, true).
		First(&existing).Error
	if err == nil {
		return apperrors.ErrTelegramAlreadyLinked
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	link.ChatID = chatID
	link.TelegramUsername = username
	link.LinkCode = ""
	link.LinkCodeExpiresAt = nil
	link.IsActive = true

	if err := s.db.Save(&link).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// Unlink removes the user's Telegram link.
func (s *telegramService) Unlink(userID uint) error {
	result := s.db.Where("user_id = ?", userID).Delete(&models.TelegramLink{})
	if result.Error != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// RecordDelivery updates delivery bookkeeping after a successful send.
func (s *telegramService) RecordDelivery(userID uint) error {
	result := s.db.Model(&models.TelegramLink{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Updates(map[string]interface{}{
			"last_delivery_at": time.Now(),
			"delivery_count":   gorm.Expr("delivery_count + 1"),
		})
	if result.Error != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
	}
	return nil
}

// generateRandomCode generates a random alphanumeric code of specified length.
func generateRandomCode(length int) (string, error) {
	bytes := make([]byte, length/2+1)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes)[:length], nil
}
