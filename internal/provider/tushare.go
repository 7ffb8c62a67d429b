package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const listDateLayout = "20060102"

// tushareRequest is the JSON envelope the Tushare API expects.
type tushareRequest struct {
	APIName string            `json:"api_name"`
	Token   string            `json:"token"`
	Params  map[string]string `json:"params,omitempty"`
	Fields  string            `json:"fields,omitempty"`
}

// tushareResponse is the columnar payload Tushare returns: a list of field
// names and a list of rows, each row a list of values in field order.
type tushareResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Fields []string          `json:"fields"`
		Items  [][]any           `json:"items"`
	} `json:"data"`
}

// TushareProvider implements both CatalogProvider (stock_basic listing) and
// QuoteProvider (daily bars, used as a fallback quote source outside trading
// hours).
type TushareProvider struct {
	httpClient *http.Client
	baseURL    string // overridable for tests
	token      string
	limiter    *rate.Limiter
}

// NewTushareProvider creates a Tushare client. The limiter bounds outbound
// request rate; Tushare enforces per-minute quotas on free tokens.
func NewTushareProvider(httpClient *http.Client, baseURL, token string, limiter *rate.Limiter) *TushareProvider {
	return &TushareProvider{httpClient: httpClient, baseURL: baseURL, token: token, limiter: limiter}
}

// Name returns the provider's display name.
func (p *TushareProvider) Name() string { return "Tushare" }

// FetchListing fetches the full stock_basic listing. Rows that cannot be
// parsed are reported as FetchErrors; a transport or API-level failure is
// returned as the error.
func (p *TushareProvider) FetchListing(ctx context.Context) ([]ListingRecord, []FetchError, error) {
	resp, err := p.call(ctx, tushareRequest{
		APIName: "stock_basic",
		Token:   p.token,
		Params:  map[string]string{"list_status": "L"},
		Fields:  "ts_code,symbol,name,area,industry,market,list_date",
	})
	if err != nil {
		return nil, nil, err
	}

	idx := fieldIndex(resp.Data.Fields)
	records := make([]ListingRecord, 0, len(resp.Data.Items))
	var fetchErrors []FetchError

	for _, row := range resp.Data.Items {
		code := stringAt(row, idx, "ts_code")
		if code == "" {
			fetchErrors = append(fetchErrors, FetchError{Code: "?", Err: fmt.Errorf("row missing ts_code")})
			continue
		}
		rec := ListingRecord{
			Code:     code,
			Symbol:   stringAt(row, idx, "symbol"),
			Name:     stringAt(row, idx, "name"),
			Area:     stringAt(row, idx, "area"),
			Industry: stringAt(row, idx, "industry"),
			Market:   stringAt(row, idx, "market"),
		}
		if rec.Name == "" {
			fetchErrors = append(fetchErrors, FetchError{Code: code, Err: fmt.Errorf("row missing name")})
			continue
		}
		if raw := stringAt(row, idx, "list_date"); raw != "" {
			t, err := time.Parse(listDateLayout, raw)
			if err != nil {
				fetchErrors = append(fetchErrors, FetchError{Code: code, Err: fmt.Errorf("bad list_date %q: %w", raw, err)})
				continue
			}
			rec.ListDate = &t
		}
		records = append(records, rec)
	}

	return records, fetchErrors, nil
}

// FetchQuotes fetches the latest daily bar for each code. Close is the
// current price, pre_close the previous-close baseline.
func (p *TushareProvider) FetchQuotes(ctx context.Context, codes []string) (map[string]Quote, []FetchError, error) {
	if len(codes) == 0 {
		return map[string]Quote{}, nil, nil
	}

	resp, err := p.call(ctx, tushareRequest{
		APIName: "daily",
		Token:   p.token,
		Params:  map[string]string{"ts_code": strings.Join(codes, ",")},
		Fields:  "ts_code,trade_date,close,pre_close",
	})
	if err != nil {
		return nil, nil, err
	}

	idx := fieldIndex(resp.Data.Fields)
	quotes := make(map[string]Quote, len(codes))
	var fetchErrors []FetchError
	now := time.Now().UTC()

	// Rows come newest first; keep only the first row per code.
	for _, row := range resp.Data.Items {
		code := stringAt(row, idx, "ts_code")
		if code == "" {
			continue
		}
		if _, seen := quotes[code]; seen {
			continue
		}
		price, err := decimalAt(row, idx, "close")
		if err != nil {
			fetchErrors = append(fetchErrors, FetchError{Code: code, Err: err})
			continue
		}
		prevClose, err := decimalAt(row, idx, "pre_close")
		if err != nil {
			prevClose = decimal.Zero
		}
		quotes[code] = Quote{Code: code, Price: price, PrevClose: prevClose, At: now}
	}

	for _, code := range codes {
		if _, ok := quotes[code]; !ok {
			fetchErrors = append(fetchErrors, FetchError{Code: code, Err: fmt.Errorf("no daily bar returned")})
		}
	}

	return quotes, fetchErrors, nil
}

// call posts one Tushare API request and decodes the envelope.
func (p *TushareProvider) call(ctx context.Context, reqBody tushareRequest) (*tushareResponse, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", reqBody.APIName, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return nil, fmt.Errorf("%s returned status %d: %s", reqBody.APIName, httpResp.StatusCode, string(body))
	}

	var resp tushareResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", reqBody.APIName, err)
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%s API error %d: %s", reqBody.APIName, resp.Code, resp.Msg)
	}

	return &resp, nil
}

func fieldIndex(fields []string) map[string]int {
	idx := make(map[string]int, len(fields))
	for i, f := range fields {
		idx[f] = i
	}
	return idx
}

func stringAt(row []any, idx map[string]int, field string) string {
	i, ok := idx[field]
	if !ok || i >= len(row) || row[i] == nil {
		return ""
	}
	s, _ := row[i].(string)
	return s
}

func decimalAt(row []any, idx map[string]int, field string) (decimal.Decimal, error) {
	i, ok := idx[field]
	if !ok || i >= len(row) || row[i] == nil {
		return decimal.Zero, fmt.Errorf("row missing %s", field)
	}
	switch v := row[i].(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("bad %s %q: %w", field, v, err)
		}
		return d, nil
	default:
		return decimal.Zero, fmt.Errorf("unexpected %s type %T", field, v)
	}
}
