package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"stockwatch/internal/dispatch"
	"stockwatch/internal/models"
	"stockwatch/internal/pagination"
)

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	CreateUser(email, password, firstName, lastName string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id uint) (*models.User, error)
	VerifyPassword(user *models.User, password string) bool
	AttemptLogin(email, password string) (*models.User, error)
	StoreRefreshTokenHash(userID uint, tokenHash string) error
	GetRefreshTokenHash(userID uint) (string, error)
}

// CatalogSyncResult is the outcome of one catalog sync run. It is returned
// to the caller and logged, never persisted.
type CatalogSyncResult struct {
	RunID       string        `json:"run_id"`
	Total       int           `json:"total"`
	New         int           `json:"new"`
	Updated     int           `json:"updated"`
	Unchanged   int           `json:"unchanged"`
	Deactivated int           `json:"deactivated"`
	Failed      int           `json:"failed"`
	Errors      []string      `json:"errors,omitempty"`
	RanAt       time.Time     `json:"ran_at"`
	Duration    time.Duration `json:"duration"`
}

// CatalogServicer defines the contract for the instrument catalog: browsing
// and the upstream sync that is its only writer.
type CatalogServicer interface {
	Sync(ctx context.Context) (*CatalogSyncResult, error)
	ListInstruments(search string, includeInactive bool, page pagination.PageRequest) (*pagination.PageResponse[models.Instrument], error)
	GetInstrument(code string) (*models.Instrument, error)
}

// GroupSummary is a watch group with its member count.
type GroupSummary struct {
	models.WatchGroup
	ItemCount int64 `json:"item_count"`
}

// WatchItemFilter narrows a watch item listing. GroupID filters to one
// group; Ungrouped filters to items with no group. Both unset lists all.
type WatchItemFilter struct {
	GroupID   *uint
	Ungrouped bool
}

// WatchItemView is a watch item joined with instrument display fields and
// live valuation from the in-memory price store. Valuation fields are nil
// when no quote has been fetched yet or when the item carries no position.
type WatchItemView struct {
	models.WatchItem
	InstrumentName string           `json:"instrument_name"`
	Industry       string           `json:"industry,omitempty"`
	Market         string           `json:"market,omitempty"`
	LastPrice      *decimal.Decimal `json:"last_price,omitempty"`
	ChangePercent  *decimal.Decimal `json:"change_percent,omitempty"`
	MarketValue    *decimal.Decimal `json:"market_value,omitempty"`
	UnrealizedPL   *decimal.Decimal `json:"unrealized_pl,omitempty"`
}

// WatchlistServicer defines the contract for per-user watch groups and
// memberships. Every operation takes the acting user ID explicitly.
type WatchlistServicer interface {
	ListGroups(userID uint) ([]GroupSummary, error)
	CreateGroup(userID uint, name string, sortOrder int) (*models.WatchGroup, error)
	RenameGroup(userID, groupID uint, name string) (*models.WatchGroup, error)
	DeleteGroup(userID, groupID uint) error
	ListItems(userID uint, filter WatchItemFilter, page pagination.PageRequest) (*pagination.PageResponse[WatchItemView], error)
	AddItem(userID uint, code string, groupID *uint, costPrice *decimal.Decimal, quantity *int64) (*models.WatchItem, error)
	UpdateItem(userID uint, code string, costPrice *decimal.Decimal, quantity *int64) (*models.WatchItem, error)
	RemoveItem(userID uint, code string) error
	MoveItem(userID uint, code string, newGroupID *uint) (*models.WatchItem, error)
}

// RuleServicer defines the contract for monitor rules. Rules are declarative
// facts here; evaluation semantics live in the engine package.
type RuleServicer interface {
	ListRules(userID uint, page pagination.PageRequest) (*pagination.PageResponse[models.MonitorRule], error)
	GetRule(userID, ruleID uint) (*models.MonitorRule, error)
	CreateRule(userID uint, code string, comparator models.RuleComparator, threshold decimal.Decimal, recurrence models.RuleRecurrence) (*models.MonitorRule, error)
	UpdateRule(userID, ruleID uint, comparator *models.RuleComparator, threshold *decimal.Decimal, recurrence *models.RuleRecurrence) (*models.MonitorRule, error)
	DeleteRule(userID, ruleID uint) error
	ArmRule(userID, ruleID uint) (*models.MonitorRule, error)
	DisarmRule(userID, ruleID uint) (*models.MonitorRule, error)

	// Engine-facing operations.
	ListArmed() ([]models.MonitorRule, error)
	TryFire(rule *models.MonitorRule, firedAt time.Time, debounceWindow time.Duration) (bool, error)
}

// AlertServicer defines the contract for the persisted alert history.
type AlertServicer interface {
	Record(event dispatch.Event, delivered bool, deliveryErr error)
	ListAlerts(userID uint, unreadOnly bool, page pagination.PageRequest) (*pagination.PageResponse[models.Alert], error)
	MarkRead(userID, alertID uint) (*models.Alert, error)
}

// TelegramServicer defines the contract for Telegram account linking and
// the chat lookup the Telegram alert sink performs.
type TelegramServicer interface {
	GetLinkByUserID(userID uint) (*models.TelegramLink, error)
	GenerateLinkCode(userID uint) (*models.TelegramLink, error)
	CompleteLink(linkCode string, chatID int64, username string) error
	Unlink(userID uint) error
	GetActiveLink(userID uint) (*models.TelegramLink, error)
	RecordDelivery(userID uint) error
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(userID uint, action, resourceType string, resourceID uint, ipAddress string, changes map[string]interface{})
}
