// Package scheduler runs the background pipeline: the daily catalog sync and
// the periodic rule evaluation cycle during market hours.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"stockwatch/internal/engine"
	"stockwatch/internal/services"
)

// Config carries the scheduler's tunables.
type Config struct {
	CatalogSyncAt   string // "HH:MM" in the market timezone
	EvalInterval    time.Duration
	MarketHoursOnly bool
	MarketTimezone  string
}

// Status is a snapshot of the pipeline's most recent runs, served by the
// pipeline status endpoint.
type Status struct {
	Running          bool                        `json:"running"`
	MarketOpen       bool                        `json:"market_open"`
	LastCatalogSync  *services.CatalogSyncResult `json:"last_catalog_sync,omitempty"`
	LastCatalogError string                      `json:"last_catalog_error,omitempty"`
	LastEvaluation   *engine.Result              `json:"last_evaluation,omitempty"`
	LastEvalError    string                      `json:"last_eval_error,omitempty"`
}

// Scheduler manages the scheduled pipeline jobs.
type Scheduler struct {
	cron    *gocron.Scheduler
	catalog services.CatalogServicer
	engine  *engine.Engine
	cfg     Config
	market  *time.Location
	logger  *zap.SugaredLogger

	mu               sync.Mutex
	running          bool
	lastCatalogSync  *services.CatalogSyncResult
	lastCatalogError string
	lastEvaluation   *engine.Result
	lastEvalError    string
}

// New creates a scheduler. An unknown market timezone falls back to a fixed
// UTC+8 zone rather than failing startup.
func New(catalog services.CatalogServicer, eng *engine.Engine, cfg Config, logger *zap.SugaredLogger) *Scheduler {
	market, err := time.LoadLocation(cfg.MarketTimezone)
	if err != nil {
		logger.Warnw("unknown market timezone, falling back to UTC+8",
			"timezone", cfg.MarketTimezone, "error", err)
		market = time.FixedZone("CST", 8*60*60)
	}

	return &Scheduler{
		cron:    gocron.NewScheduler(market),
		catalog: catalog,
		engine:  eng,
		cfg:     cfg,
		market:  market,
		logger:  logger,
	}
}

// Start registers the jobs and starts them in the background.
func (s *Scheduler) Start() {
	s.logger.Infow("starting scheduler",
		"catalog_sync_at", s.cfg.CatalogSyncAt,
		"eval_interval", s.cfg.EvalInterval,
		"market_hours_only", s.cfg.MarketHoursOnly,
	)

	// Catalog sync once a day after the market closes.
	s.cron.Every(1).Day().At(s.cfg.CatalogSyncAt).Do(func() {
		s.runCatalogSync()
	})

	// Rule evaluation on a fixed interval, gated to the trading session.
	s.cron.Every(s.cfg.EvalInterval).Do(func() {
		if s.cfg.MarketHoursOnly && !s.isMarketOpen(time.Now()) {
			return
		}
		s.runEvaluation()
	})

	s.cron.StartAsync()

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
}

// Stop stops the scheduled jobs. Jobs already in flight finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.logger.Info("scheduler stopped")
}

// Status reports the most recent pipeline outcomes.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:          s.running,
		MarketOpen:       s.isMarketOpen(time.Now()),
		LastCatalogSync:  s.lastCatalogSync,
		LastCatalogError: s.lastCatalogError,
		LastEvaluation:   s.lastEvaluation,
		LastEvalError:    s.lastEvalError,
	}
}

func (s *Scheduler) runCatalogSync() {
	result, err := s.catalog.Sync(context.Background())

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastCatalogError = err.Error()
		s.logger.Errorw("scheduled catalog sync failed", "error", err)
		return
	}
	s.lastCatalogSync = result
	s.lastCatalogError = ""
}

func (s *Scheduler) runEvaluation() {
	result, err := s.engine.RunCycle(context.Background())

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastEvalError = err.Error()
		s.logger.Errorw("scheduled evaluation cycle failed", "error", err)
		return
	}
	s.lastEvaluation = result
	s.lastEvalError = ""
}

// isMarketOpen reports whether t falls inside the mainland trading session:
// Monday through Friday, 09:30-11:30 and 13:00-15:00 market time. Exchange
// holidays are not modeled; a cycle on a holiday just finds unchanged quotes.
func (s *Scheduler) isMarketOpen(t time.Time) bool {
	local := t.In(s.market)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	minutes := local.Hour()*60 + local.Minute()
	morning := minutes >= 9*60+30 && minutes <= 11*60+30
	afternoon := minutes >= 13*60 && minutes <= 15*60
	return morning || afternoon
}
