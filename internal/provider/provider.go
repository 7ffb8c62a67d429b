// Package provider contains the HTTP clients for upstream market data:
// the instrument listing used by catalog sync and the quote snapshots used
// by rule evaluation.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ListingRecord is one instrument row from the upstream catalog listing.
type ListingRecord struct {
	Code     string // exchange-qualified, e.g. "600000.SH"
	Symbol   string
	Name     string
	Area     string
	Industry string
	Market   string
	ListDate *time.Time
}

// Quote is a point-in-time price snapshot for one instrument. PrevClose is
// zero when the provider does not deliver a previous close; percent-change
// rules treat that as a missing baseline.
type Quote struct {
	Code      string
	Price     decimal.Decimal
	PrevClose decimal.Decimal
	At        time.Time
}

// FetchError is a per-record failure inside an otherwise successful fetch.
type FetchError struct {
	Code string
	Err  error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed for %s: %v", e.Code, e.Err)
}

// CatalogProvider returns the full upstream instrument listing. A returned
// error means the upstream could not be reached at all; per-record parse
// failures are reported alongside the usable records.
type CatalogProvider interface {
	Name() string
	FetchListing(ctx context.Context) ([]ListingRecord, []FetchError, error)
}

// QuoteProvider fetches current quotes for a set of exchange-qualified codes.
// Codes the provider cannot resolve are reported as FetchErrors; the returned
// map contains every quote that was fetched successfully.
type QuoteProvider interface {
	Name() string
	FetchQuotes(ctx context.Context, codes []string) (map[string]Quote, []FetchError, error)
}
