package main

import (
	"fmt"
	"net/http"
	"os"

	"stockwatch/internal/config"
	"stockwatch/internal/database"
	"stockwatch/internal/dispatch"
	"stockwatch/internal/engine"
	"stockwatch/internal/handlers"
	"stockwatch/internal/logger"
	"stockwatch/internal/middleware"
	"stockwatch/internal/prices"
	"stockwatch/internal/provider"
	"stockwatch/internal/scheduler"
	"stockwatch/internal/services"
	"stockwatch/internal/validator"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/time/rate"

	_ "stockwatch/internal/docs" // Import swagger docs
)

// @title           Stockwatch API
// @version         1.0
// @description     Stockwatch keeps per-user watchlists over a synced instrument catalog and fires alerts when armed monitor rules trip against live quotes.
// @termsOfService  http://swagger.io/terms/

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description Pipeline API key for operator and bot endpoints.

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Register custom binding validators
	validator.Register()

	// Initialize database configuration
	dbConfig, err := database.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load database configuration: %w", err)
	}

	// Create database manager
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}

	// Run migrations
	if err := dbManager.Migrate(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	// Upstream market data providers. Tushare is always the catalog source;
	// quotes come from Sina by default because it needs no token.
	httpClient := &http.Client{Timeout: appConfig.HTTPTimeout}
	limiter := rate.NewLimiter(rate.Limit(appConfig.ProviderRate), appConfig.ProviderBurst)
	tushare := provider.NewTushareProvider(httpClient, appConfig.TushareURL, appConfig.TushareToken, limiter)

	var quotes provider.QuoteProvider
	switch appConfig.QuoteSource {
	case "tushare":
		quotes = tushare
	default:
		quotes = provider.NewSinaProvider(httpClient, appConfig.SinaQuoteURL, limiter)
	}
	log.Infof("Quote source: %s", quotes.Name())

	// Initialize services
	db := dbManager.DB()
	priceStore := prices.NewStore()
	userService := services.NewUserService(db)
	auditService := services.NewAuditService(db)
	catalogService := services.NewCatalogService(db, tushare)
	watchlistService := services.NewWatchlistService(db, priceStore)
	ruleService := services.NewRuleService(db)
	alertService := services.NewAlertService(db)
	telegramService := services.NewTelegramService(db)

	// Alert dispatch sink
	var sink dispatch.Sink
	switch appConfig.DispatchSink {
	case "telegram":
		sink = dispatch.NewTelegramSink(httpClient, appConfig.TelegramAPIURL, appConfig.TelegramBotToken, telegramService)
	default:
		sink = dispatch.NewLogSink(log)
	}
	log.Infof("Alert dispatch sink: %s", sink.Name())

	// Evaluation engine
	eng := engine.New(ruleService, alertService, sink, quotes, priceStore, engine.Config{
		Workers:        appConfig.EvalWorkers,
		DebounceWindow: appConfig.DebounceWindow,
	}, log)

	// Background scheduler
	var sched *scheduler.Scheduler
	if appConfig.SchedulerEnabled {
		sched = scheduler.New(catalogService, eng, scheduler.Config{
			CatalogSyncAt:   appConfig.CatalogSyncAt,
			EvalInterval:    appConfig.EvalInterval,
			MarketHoursOnly: appConfig.MarketHoursOnly,
			MarketTimezone:  appConfig.MarketTimezone,
		}, log)
		sched.Start()
		defer sched.Stop()
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(userService, auditService)
	instrumentHandler := handlers.NewInstrumentHandler(catalogService)
	watchlistHandler := handlers.NewWatchlistHandler(watchlistService, auditService)
	ruleHandler := handlers.NewRuleHandler(ruleService, auditService)
	alertHandler := handlers.NewAlertHandler(alertService)
	telegramHandler := handlers.NewTelegramHandler(telegramService, auditService)
	pipelineHandler := handlers.NewPipelineHandler(catalogService, telegramService, eng, sched)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 group
	v1 := router.Group("/api/v1")

	// Public routes
	loginLimiter := middleware.NewLoginRateLimiter(1, 5)
	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", loginLimiter.Middleware(), authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	// User profile
	protected.GET("/profile", authHandler.GetProfile)

	// Instrument catalog (read-only; the sync pipeline is its only writer)
	instruments := protected.Group("/instruments")
	instruments.GET("", instrumentHandler.ListInstruments)
	instruments.GET("/:code", instrumentHandler.GetInstrument)

	// Watchlist routes
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

	// Monitor rule routes
	rules := protected.Group("/rules")
	rules.GET("", ruleHandler.ListRules)
	rules.POST("", ruleHandler.CreateRule)
	rules.GET("/:id", ruleHandler.GetRule)
	rules.PUT("/:id", ruleHandler.UpdateRule)
	rules.DELETE("/:id", ruleHandler.DeleteRule)
	rules.POST("/:id/arm", ruleHandler.ArmRule)
	rules.POST("/:id/disarm", ruleHandler.DisarmRule)

	// Alert history routes
	alerts := protected.Group("/alerts")
	alerts.GET("", alertHandler.ListAlerts)
	alerts.PUT("/:id/read", alertHandler.MarkRead)

	// Telegram linking routes
	telegram := protected.Group("/telegram")
	telegram.POST("/link", telegramHandler.GenerateLink)
	telegram.GET("/status", telegramHandler.GetStatus)
	telegram.DELETE("/link", telegramHandler.Unlink)

	// Pipeline routes (operator / bot, X-API-Key)
	pipeline := v1.Group("/pipeline")
	pipeline.Use(middleware.PipelineAuthMiddleware(appConfig.PipelineAPIKey))
	pipeline.POST("/catalog/sync", pipelineHandler.SyncCatalog)
	pipeline.POST("/evaluate", pipelineHandler.Evaluate)
	pipeline.GET("/status", pipelineHandler.GetStatus)
	pipeline.POST("/telegram/complete-link", pipelineHandler.CompleteLink)

	log.Infof("Starting Stockwatch backend server on port %s", appConfig.Port)
	log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
	return router.Run(":" + appConfig.Port)
}
