// Package engine evaluates armed monitor rules against price snapshots and
// drives the fire transitions. Rules are independent, so a cycle fans out
// over a bounded worker pool; the only shared mutable state is each rule's
// state/last_fired_at pair, guarded by the rule store's conditional update.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stockwatch/internal/dispatch"
	"stockwatch/internal/models"
	"stockwatch/internal/prices"
	"stockwatch/internal/provider"
	"stockwatch/internal/services"
	"stockwatch/internal/uuid"
)

// Skip reasons recorded per rule in a cycle result.
const (
	SkipNoQuote         = "no_quote"
	SkipMissingBaseline = "missing_baseline"
	SkipStaleInstrument = "stale_instrument"
)

// Skip records one rule left out of a cycle and why.
type Skip struct {
	RuleID uint   `json:"rule_id"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// Result is the outcome of one evaluation cycle. Partial success is the
// normal mode: per-rule failures are counted here, never aborting the batch.
type Result struct {
	Evaluated        int           `json:"evaluated"`
	Fired            int           `json:"fired"`
	Suppressed       int           `json:"suppressed"`
	Skipped          []Skip        `json:"skipped,omitempty"`
	DispatchFailures int           `json:"dispatch_failures"`
	QuoteErrors      []string      `json:"quote_errors,omitempty"`
	RuleErrors       []string      `json:"rule_errors,omitempty"`
	RanAt            time.Time     `json:"ran_at"`
	Duration         time.Duration `json:"duration"`
}

// Engine evaluates monitor rules and hands fired events to the dispatch sink.
type Engine struct {
	rules          services.RuleServicer
	alerts         services.AlertServicer
	sink           dispatch.Sink
	quotes         provider.QuoteProvider
	store          *prices.Store
	workers        int
	debounceWindow time.Duration
	logger         *zap.SugaredLogger
}

// Config carries the engine's tunables.
type Config struct {
	Workers        int
	DebounceWindow time.Duration
}

// New creates an evaluation engine.
func New(rules services.RuleServicer, alerts services.AlertServicer, sink dispatch.Sink, quotes provider.QuoteProvider, store *prices.Store, cfg Config, logger *zap.SugaredLogger) *Engine {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Engine{
		rules:          rules,
		alerts:         alerts,
		sink:           sink,
		quotes:         quotes,
		store:          store,
		workers:        workers,
		debounceWindow: cfg.DebounceWindow,
		logger:         logger,
	}
}

// RunCycle performs one full evaluation cycle: load armed rules, fetch
// quotes for their instruments, refresh the price store, then evaluate.
func (e *Engine) RunCycle(ctx context.Context) (*Result, error) {
	armed, err := e.rules.ListArmed()
	if err != nil {
		return nil, err
	}

	codes := distinctActiveCodes(armed)
	snapshot := map[string]provider.Quote{}
	var quoteErrors []string

	if len(codes) > 0 {
		fetched, fetchErrors, err := e.quotes.FetchQuotes(ctx, codes)
		if err != nil {
			return nil, err
		}
		snapshot = fetched
		for _, fe := range fetchErrors {
			quoteErrors = append(quoteErrors, fe.Error())
		}
		e.store.Update(fetched)
	}

	result, err := e.EvaluateSnapshot(ctx, snapshot, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	result.QuoteErrors = quoteErrors
	return result, nil
}

// EvaluateSnapshot evaluates every armed rule against the given snapshot.
// Rules whose instrument is absent from the snapshot are skipped, not
// failed; a single rule's error never aborts the batch.
func (e *Engine) EvaluateSnapshot(ctx context.Context, snapshot map[string]provider.Quote, asOf time.Time) (*Result, error) {
	start := time.Now()
	result := &Result{RanAt: asOf}

	armed, err := e.rules.ListArmed()
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	jobs := make(chan models.MonitorRule)

	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rule := range jobs {
				outcome := e.evaluateRule(ctx, rule, snapshot, asOf)
				mu.Lock()
				outcome.mergeInto(result)
				mu.Unlock()
			}
		}()
	}

	for _, rule := range armed {
		jobs <- rule
	}
	close(jobs)
	wg.Wait()

	result.Duration = time.Since(start)
	e.logger.Infow("evaluation cycle finished",
		"evaluated", result.Evaluated,
		"fired", result.Fired,
		"suppressed", result.Suppressed,
		"skipped", len(result.Skipped),
		"dispatch_failures", result.DispatchFailures,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

// ruleOutcome is one rule's contribution to the cycle result.
type ruleOutcome struct {
	evaluated       bool
	fired           bool
	suppressed      bool
	skip            *Skip
	dispatchFailure bool
	ruleError       string
}

func (o ruleOutcome) mergeInto(result *Result) {
	if o.evaluated {
		result.Evaluated++
	}
	if o.fired {
		result.Fired++
	}
	if o.suppressed {
		result.Suppressed++
	}
	if o.skip != nil {
		result.Skipped = append(result.Skipped, *o.skip)
	}
	if o.dispatchFailure {
		result.DispatchFailures++
	}
	if o.ruleError != "" {
		result.RuleErrors = append(result.RuleErrors, o.ruleError)
	}
}

func (e *Engine) evaluateRule(ctx context.Context, rule models.MonitorRule, snapshot map[string]provider.Quote, asOf time.Time) ruleOutcome {
	// A dangling instrument reference after delisting is tolerated but never
	// evaluated; surface it so the user can clean up the rule.
	if rule.Instrument != nil && !rule.Instrument.IsActive {
		return ruleOutcome{skip: &Skip{RuleID: rule.ID, Code: rule.InstrumentCode, Reason: SkipStaleInstrument}}
	}

	quote, ok := snapshot[rule.InstrumentCode]
	if !ok {
		return ruleOutcome{skip: &Skip{RuleID: rule.ID, Code: rule.InstrumentCode, Reason: SkipNoQuote}}
	}

	observed, conditionTrue, skipReason := evaluatePredicate(rule, quote)
	if skipReason != "" {
		return ruleOutcome{skip: &Skip{RuleID: rule.ID, Code: rule.InstrumentCode, Reason: skipReason}}
	}
	if !conditionTrue {
		return ruleOutcome{evaluated: true}
	}

	won, err := e.rules.TryFire(&rule, asOf, e.debounceWindow)
	if err != nil {
		e.logger.Errorw("fire transition failed", "rule_id", rule.ID, "error", err)
		return ruleOutcome{evaluated: true, ruleError: err.Error()}
	}
	if !won {
		// Another cycle already fired this transition, or the recurring rule
		// is still inside its debounce window.
		return ruleOutcome{evaluated: true, suppressed: true}
	}

	event := dispatch.Event{
		ID:             uuid.New(),
		RuleID:         rule.ID,
		UserID:         rule.UserID,
		InstrumentCode: rule.InstrumentCode,
		Comparator:     rule.Comparator,
		Threshold:      rule.Threshold,
		Observed:       observed,
		FiredAt:        asOf,
	}
	if rule.Instrument != nil {
		event.InstrumentName = rule.Instrument.Name
	}

	dispatchErr := e.sink.Dispatch(ctx, event)
	if dispatchErr != nil {
		e.logger.Errorw("alert dispatch failed",
			"event_id", event.ID,
			"rule_id", rule.ID,
			"sink", e.sink.Name(),
			"error", dispatchErr,
		)
	}
	e.alerts.Record(event, dispatchErr == nil, dispatchErr)

	return ruleOutcome{evaluated: true, fired: true, dispatchFailure: dispatchErr != nil}
}

// evaluatePredicate computes the comparator's boolean predicate and the
// observed value carried on the event: the current price for absolute
// comparators, the percent change for relative ones.
func evaluatePredicate(rule models.MonitorRule, quote provider.Quote) (decimal.Decimal, bool, string) {
	switch rule.Comparator {
	case models.ComparatorPriceAbove:
		return quote.Price, quote.Price.GreaterThan(rule.Threshold), ""
	case models.ComparatorPriceBelow:
		return quote.Price, quote.Price.LessThan(rule.Threshold), ""
	case models.ComparatorPercentChangeAbove, models.ComparatorPercentChangeBelow:
		if !quote.PrevClose.IsPositive() {
			return decimal.Zero, false, SkipMissingBaseline
		}
		change := quote.Price.Sub(quote.PrevClose).Div(quote.PrevClose).Mul(decimal.NewFromInt(100))
		if rule.Comparator == models.ComparatorPercentChangeAbove {
			return change, change.GreaterThan(rule.Threshold), ""
		}
		return change, change.LessThan(rule.Threshold), ""
	default:
		// Unknown tags are rejected at creation; a row that still carries one
		// is treated as stale rather than crashing the batch.
		return decimal.Zero, false, SkipStaleInstrument
	}
}

// distinctActiveCodes collects the instrument codes the cycle needs quotes
// for, skipping rules whose instrument is known to be inactive.
func distinctActiveCodes(rules []models.MonitorRule) []string {
	seen := make(map[string]struct{}, len(rules))
	codes := make([]string, 0, len(rules))
	for _, rule := range rules {
		if rule.Instrument != nil && !rule.Instrument.IsActive {
			continue
		}
		if _, ok := seen[rule.InstrumentCode]; ok {
			continue
		}
		seen[rule.InstrumentCode] = struct{}{}
		codes = append(codes, rule.InstrumentCode)
	}
	return codes
}
