package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	sinaReferer  = "https://finance.sina.com.cn"
	sinaBatchMax = 100
)

// SinaProvider fetches realtime quotes from the Sina hq endpoint. The
// endpoint takes a comma-separated ticker list ("sh600000,sz000001") and
// responds with one JavaScript assignment line per ticker whose value is a
// comma-separated field list: field 1 is today's open, field 2 the previous
// close, field 3 the current price.
type SinaProvider struct {
	httpClient *http.Client
	baseURL    string // overridable for tests
	limiter    *rate.Limiter
}

// NewSinaProvider creates a Sina realtime quote provider.
func NewSinaProvider(httpClient *http.Client, baseURL string, limiter *rate.Limiter) *SinaProvider {
	return &SinaProvider{httpClient: httpClient, baseURL: baseURL, limiter: limiter}
}

// Name returns the provider's display name.
func (p *SinaProvider) Name() string { return "Sina" }

// FetchQuotes fetches current quotes for the given exchange-qualified codes.
func (p *SinaProvider) FetchQuotes(ctx context.Context, codes []string) (map[string]Quote, []FetchError, error) {
	if len(codes) == 0 {
		return map[string]Quote{}, nil, nil
	}

	quotes := make(map[string]Quote, len(codes))
	var fetchErrors []FetchError

	for i := 0; i < len(codes); i += sinaBatchMax {
		end := min(i+sinaBatchMax, len(codes))
		batchQuotes, batchErrors, err := p.fetchBatch(ctx, codes[i:end])
		if err != nil {
			return nil, nil, err
		}
		for code, q := range batchQuotes {
			quotes[code] = q
		}
		fetchErrors = append(fetchErrors, batchErrors...)
	}

	return quotes, fetchErrors, nil
}

func (p *SinaProvider) fetchBatch(ctx context.Context, codes []string) (map[string]Quote, []FetchError, error) {
	tickerToCode := make(map[string]string, len(codes))
	tickers := make([]string, 0, len(codes))
	var fetchErrors []FetchError

	for _, code := range codes {
		ticker, err := sinaTicker(code)
		if err != nil {
			fetchErrors = append(fetchErrors, FetchError{Code: code, Err: err})
			continue
		}
		tickerToCode[ticker] = code
		tickers = append(tickers, ticker)
	}
	if len(tickers) == 0 {
		return map[string]Quote{}, fetchErrors, nil
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}
	}

	url := p.baseURL + "/list=" + strings.Join(tickers, ",")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("building request: %w", err)
	}
	// Sina rejects requests without a finance.sina.com.cn referer.
	req.Header.Set("Referer", sinaReferer)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("quote request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("quote endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading response: %w", err)
	}

	quotes := make(map[string]Quote, len(tickers))
	now := time.Now().UTC()

	for _, line := range strings.Split(string(body), "\n") {
		ticker, fields, ok := parseSinaLine(line)
		if !ok {
			continue
		}
		code, known := tickerToCode[ticker]
		if !known {
			continue
		}
		quote, err := quoteFromSinaFields(code, fields, now)
		if err != nil {
			fetchErrors = append(fetchErrors, FetchError{Code: code, Err: err})
			continue
		}
		quotes[code] = quote
	}

	for ticker, code := range tickerToCode {
		if _, ok := quotes[code]; !ok && !hasFetchError(fetchErrors, code) {
			fetchErrors = append(fetchErrors, FetchError{Code: code, Err: fmt.Errorf("no quote line for %s", ticker)})
		}
	}

	return quotes, fetchErrors, nil
}

// parseSinaLine splits one `var hq_str_sh600000="...";` line into its ticker
// and the comma-separated fields inside the quotes.
func parseSinaLine(line string) (string, []string, bool) {
	line = strings.TrimSpace(line)
	const prefix = "var hq_str_"
	if !strings.HasPrefix(line, prefix) {
		return "", nil, false
	}
	rest := strings.TrimPrefix(line, prefix)
	eq := strings.Index(rest, "=")
	if eq < 0 {
		return "", nil, false
	}
	ticker := rest[:eq]
	value := strings.Trim(strings.TrimSuffix(rest[eq+1:], ";"), `"`)
	if value == "" {
		return ticker, nil, false
	}
	return ticker, strings.Split(value, ","), true
}

func quoteFromSinaFields(code string, fields []string, now time.Time) (Quote, error) {
	if len(fields) < 4 {
		return Quote{}, fmt.Errorf("quote line has %d fields, want at least 4", len(fields))
	}
	price, err := decimal.NewFromString(fields[3])
	if err != nil {
		return Quote{}, fmt.Errorf("bad current price %q: %w", fields[3], err)
	}
	prevClose, err := decimal.NewFromString(fields[2])
	if err != nil {
		prevClose = decimal.Zero
	}
	if price.IsZero() {
		return Quote{}, fmt.Errorf("zero price (suspended or pre-listing)")
	}
	return Quote{Code: code, Price: price, PrevClose: prevClose, At: now}, nil
}

// sinaTicker converts an exchange-qualified code ("600000.SH") to a Sina
// ticker ("sh600000").
func sinaTicker(code string) (string, error) {
	parts := strings.Split(code, ".")
	if len(parts) != 2 {
		return "", fmt.Errorf("malformed instrument code %q", code)
	}
	switch strings.ToUpper(parts[1]) {
	case "SH":
		return "sh" + parts[0], nil
	case "SZ":
		return "sz" + parts[0], nil
	case "BJ":
		return "bj" + parts[0], nil
	default:
		return "", fmt.Errorf("unsupported exchange suffix %q", parts[1])
	}
}

func hasFetchError(errs []FetchError, code string) bool {
	for _, e := range errs {
		if e.Code == code {
			return true
		}
	}
	return false
}
