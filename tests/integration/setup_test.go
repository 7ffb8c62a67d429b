package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"stockwatch/internal/dispatch"
	"stockwatch/internal/engine"
	"stockwatch/internal/handlers"
	"stockwatch/internal/logger"
	"stockwatch/internal/middleware"
	"stockwatch/internal/models"
	"stockwatch/internal/prices"
	"stockwatch/internal/provider"
	"stockwatch/internal/services"
	"stockwatch/internal/validator"
)

const testPipelineKey = "test-pipeline-key"

// testApp holds the full application stack for integration tests. Quotes is
// the stubbed quote source the evaluation pipeline reads; Upstream is the
// fake Tushare endpoint behind catalog sync.
type testApp struct {
	DB       *gorm.DB
	Router   *gin.Engine
	Quotes   *stubQuotes
	Store    *prices.Store
	Upstream *upstreamStub
}

// dbCounter ensures each test gets a unique in-memory database.
var dbCounter atomic.Int64

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	validator.Register()
}

// stubQuotes is a settable in-process quote source.
type stubQuotes struct {
	mu     sync.Mutex
	quotes map[string]provider.Quote
}

func (s *stubQuotes) Name() string { return "stub" }

func (s *stubQuotes) Set(code string, price, prevClose float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quotes == nil {
		s.quotes = make(map[string]provider.Quote)
	}
	s.quotes[code] = provider.Quote{
		Code:      code,
		Price:     decimal.NewFromFloat(price),
		PrevClose: decimal.NewFromFloat(prevClose),
		At:        time.Now().UTC(),
	}
}

func (s *stubQuotes) FetchQuotes(_ context.Context, codes []string) (map[string]provider.Quote, []provider.FetchError, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make(map[string]provider.Quote, len(codes))
	for _, code := range codes {
		if q, ok := s.quotes[code]; ok {
			result[code] = q
		}
	}
	return result, nil, nil
}

// upstreamStub fakes the Tushare stock_basic endpoint. Tests replace Rows to
// change what the next catalog sync sees.
type upstreamStub struct {
	mu     sync.Mutex
	server *httptest.Server
	rows   [][]any
}

func newUpstreamStub() *upstreamStub {
	stub := &upstreamStub{}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.mu.Lock()
		rows := stub.rows
		stub.mu.Unlock()
		resp := map[string]any{
			"code": 0,
			"data": map[string]any{
				"fields": []string{"ts_code", "symbol", "name", "area", "industry", "market", "list_date"},
				"items":  rows,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	return stub
}

func (u *upstreamStub) SetRows(rows [][]any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rows = rows
}

// quoteMap builds a single-entry quote snapshot for the price store.
func quoteMap(code string, price, prevClose float64) map[string]provider.Quote {
	return map[string]provider.Quote{
		code: {
			Code:      code,
			Price:     decimal.NewFromFloat(price),
			PrevClose: decimal.NewFromFloat(prevClose),
			At:        time.Now().UTC(),
		},
	}
}

// listingRow builds one stock_basic row in the stub's field order.
func listingRow(code, name string) []any {
	symbol := code
	if i := strings.Index(code, "."); i > 0 {
		symbol = code[:i]
	}
	return []any{code, symbol, name, "Shanghai", "Banking", "main", "20150601"}
}

// setupIsolatedDB creates an isolated in-memory SQLite database for a single test.
func setupIsolatedDB(t *testing.T) *gorm.DB {
	t.Helper()

	n := dbCounter.Add(1)
	dsn := fmt.Sprintf("file:integdb%d?mode=memory&cache=shared", n)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	allModels := []interface{}{
		&models.User{},
		&models.Instrument{},
		&models.WatchGroup{},
		&models.WatchItem{},
		&models.MonitorRule{},
		&models.Alert{},
		&models.TelegramLink{},
		&models.AuditLog{},
	}
	if err := db.AutoMigrate(allModels...); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// setupApp creates a full application stack backed by an isolated in-memory
// SQLite, a stubbed quote source, and a fake catalog upstream. The scheduler
// is never started; pipeline runs are triggered through the API.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	db := setupIsolatedDB(t)
	quotes := &stubQuotes{}
	store := prices.NewStore()
	upstream := newUpstreamStub()
	t.Cleanup(upstream.server.Close)

	tushare := provider.NewTushareProvider(upstream.server.Client(), upstream.server.URL, "test-token", nil)

	// Services
	userService := services.NewUserService(db)
	auditService := services.NewAuditService(db)
	catalogService := services.NewCatalogService(db, tushare)
	watchlistService := services.NewWatchlistService(db, store)
	ruleService := services.NewRuleService(db)
	alertService := services.NewAlertService(db)
	telegramService := services.NewTelegramService(db)

	eng := engine.New(ruleService, alertService, dispatch.NewLogSink(logger.Get()), quotes, store,
		engine.Config{Workers: 4, DebounceWindow: time.Hour}, logger.Get())

	// Handlers
	authHandler := handlers.NewAuthHandler(userService, auditService)
	instrumentHandler := handlers.NewInstrumentHandler(catalogService)
	watchlistHandler := handlers.NewWatchlistHandler(watchlistService, auditService)
	ruleHandler := handlers.NewRuleHandler(ruleService, auditService)
	alertHandler := handlers.NewAlertHandler(alertService)
	telegramHandler := handlers.NewTelegramHandler(telegramService, auditService)
	pipelineHandler := handlers.NewPipelineHandler(catalogService, telegramService, eng, nil)

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler())

	v1 := router.Group("/api/v1")

	// Public auth routes
	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	protected.GET("/profile", authHandler.GetProfile)

	instruments := protected.Group("/instruments")
	instruments.GET("", instrumentHandler.ListInstruments)
	instruments.GET("/:code", instrumentHandler.GetInstrument)

	watchlist := protected.Group("/watchlist")
	watchlist.GET("/groups", watchlistHandler.ListGroups)
	watchlist.POST("/groups", watchlistHandler.CreateGroup)
	watchlist.PUT("/groups/:id", watchlistHandler.RenameGroup)
	watchlist.DELETE("/groups/:id", watchlistHandler.DeleteGroup)
	watchlist.GET("/items", watchlistHandler.ListItems)
	watchlist.POST("/items", watchlistHandler.AddItem)
	watchlist.PUT("/items/:code", watchlistHandler.UpdateItem)
	watchlist.PUT("/items/:code/move", watchlistHandler.MoveItem)
	watchlist.DELETE("/items/:code", watchlistHandler.RemoveItem)

	rules := protected.Group("/rules")
	rules.GET("", ruleHandler.ListRules)
	rules.POST("", ruleHandler.CreateRule)
	rules.GET("/:id", ruleHandler.GetRule)
	rules.PUT("/:id", ruleHandler.UpdateRule)
	rules.DELETE("/:id", ruleHandler.DeleteRule)
	rules.POST("/:id/arm", ruleHandler.ArmRule)
	rules.POST("/:id/disarm", ruleHandler.DisarmRule)

	alerts := protected.Group("/alerts")
	alerts.GET("", alertHandler.ListAlerts)
	alerts.PUT("/:id/read", alertHandler.MarkRead)

	telegram := protected.Group("/telegram")
	telegram.POST("/link", telegramHandler.GenerateLink)
	telegram.GET("/status", telegramHandler.GetStatus)
	telegram.DELETE("/link", telegramHandler.Unlink)

	pipeline := v1.Group("/pipeline")
	pipeline.Use(middleware.PipelineAuthMiddleware(testPipelineKey))
	pipeline.POST("/catalog/sync", pipelineHandler.SyncCatalog)
	pipeline.POST("/evaluate", pipelineHandler.Evaluate)
	pipeline.GET("/status", pipelineHandler.GetStatus)
	pipeline.POST("/telegram/complete-link", pipelineHandler.CompleteLink)

	return &testApp{DB: db, Router: router, Quotes: quotes, Store: store, Upstream: upstream}
}

// request makes an HTTP request to the test router and returns the recorder.
func (app *testApp) request(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// pipelineRequest makes a request authenticated with the pipeline API key.
func (app *testApp) pipelineRequest(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testPipelineKey)
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// parseJSON parses the response body into a map.
func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

// registerUser registers a new user and returns the access token, refresh token, and user ID.
func (app *testApp) registerUser(t *testing.T, email, password string) (accessToken, refreshToken string, userID float64) {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":%q,"first_name":"Test","last_name":"User"}`, email, password)
	rec := app.request("POST", "/api/v1/auth/register", body, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register failed: %d %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	user := result["user"].(map[string]interface{})
	return result["access_token"].(string), result["refresh_token"].(string), user["id"].(float64)
}

// loginUser logs in and returns the access and refresh tokens.
func (app *testApp) loginUser(t *testing.T, email, password string) (accessToken, refreshToken string) {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":%q}`, email, password)
	rec := app.request("POST", "/api/v1/auth/login", body, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	return result["access_token"].(string), result["refresh_token"].(string)
}

// seedInstrument inserts an active catalog row directly, bypassing the sync.
func (app *testApp) seedInstrument(t *testing.T, code, name string) {
	t.Helper()
	listDate := time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC)
	instrument := models.Instrument{
		Code:     code,
		Symbol:   strings.SplitN(code, ".", 2)[0],
		Name:     name,
		Area:     "Shanghai",
		Industry: "Banking",
		Market:   "main",
		ListDate: &listDate,
		IsActive: true,
	}
	instrument.Fingerprint = instrument.ComputeFingerprint()
	if err := app.DB.Create(&instrument).Error; err != nil {
		t.Fatalf("failed to seed instrument %s: %v", code, err)
	}
}
