package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"stockwatch/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// CreateTestUser creates a user with a hashed password and unique email.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	email := fmt.Sprintf("user%d@test.com", nextID())
	return CreateTestUserWithEmail(t, db, email)
}

// CreateTestUserWithEmail creates a user with the given email.
func CreateTestUserWithEmail(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Email:    email,
		Password: string(hash),
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestInstrument creates an active catalog instrument with a unique
// Shanghai-style code.
func CreateTestInstrument(t *testing.T, db *gorm.DB) *models.Instrument {
	t.Helper()
	code := fmt.Sprintf("60%04d.SH", nextID())
	return CreateTestInstrumentWithCode(t, db, code)
}

// CreateTestInstrumentWithCode creates an active instrument with the given code.
func CreateTestInstrumentWithCode(t *testing.T, db *gorm.DB, code string) *models.Instrument {
	t.Helper()

	listDate := time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC)
	instrument := &models.Instrument{
		Code:     code,
		Symbol:   code[:6],
		Name:     fmt.Sprintf("Test Instrument %d", nextID()),
		Area:     "Shanghai",
		Industry: "Banking",
		Market:   "main",
		ListDate: &listDate,
		IsActive: true,
	}
	instrument.Fingerprint = instrument.ComputeFingerprint()
	if err := db.Create(instrument).Error; err != nil {
		t.Fatalf("failed to create test instrument: %v", err)
	}
	return instrument
}

// CreateTestWatchGroup creates a watch group for the user.
func CreateTestWatchGroup(t *testing.T, db *gorm.DB, userID uint) *models.WatchGroup {
	t.Helper()

	group := &models.WatchGroup{
		UserID: userID,
		Name:   fmt.Sprintf("Test Group %d", nextID()),
	}
	if err := db.Create(group).Error; err != nil {
		t.Fatalf("failed to create test watch group: %v", err)
	}
	return group
}

// CreateTestWatchItem adds the instrument to the user's watchlist, ungrouped.
func CreateTestWatchItem(t *testing.T, db *gorm.DB, userID uint, code string) *models.WatchItem {
	t.Helper()

	item := &models.WatchItem{
		UserID:         userID,
		InstrumentCode: code,
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("failed to create test watch item: %v", err)
	}
	return item
}

// CreateTestRule creates an armed monitor rule.
func CreateTestRule(t *testing.T, db *gorm.DB, userID uint, code string, comparator models.RuleComparator, threshold string, recurrence models.RuleRecurrence) *models.MonitorRule {
	t.Helper()

	value, err := decimal.NewFromString(threshold)
	if err != nil {
		t.Fatalf("invalid threshold %q: %v", threshold, err)
	}

	rule := &models.MonitorRule{
		UserID:         userID,
		InstrumentCode: code,
		Comparator:     comparator,
		Threshold:      value,
		Recurrence:     recurrence,
		State:          models.RuleStateArmed,
	}
	if err := db.Create(rule).Error; err != nil {
		t.Fatalf("failed to create test rule: %v", err)
	}
	return rule
}
