package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newTushareMockServer serves canned columnar responses keyed by api_name.
func newTushareMockServer(t *testing.T, responses map[string]tushareResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req tushareRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		resp, ok := responses[req.APIName]
		if !ok {
			resp = tushareResponse{Code: 2002, Msg: "unknown api_name " + req.APIName}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func listingResponse(items [][]any) tushareResponse {
	var resp tushareResponse
	resp.Data.Fields = []string{"ts_code", "symbol", "name", "area", "industry", "market", "list_date"}
	resp.Data.Items = items
	return resp
}

func dailyResponse(items [][]any) tushareResponse {
	var resp tushareResponse
	resp.Data.Fields = []string{"ts_code", "trade_date", "close", "pre_close"}
	resp.Data.Items = items
	return resp
}

func TestTushareProvider_FetchListing(t *testing.T) {
	t.Run("parses_records_and_list_dates", func(t *testing.T) {
		server := newTushareMockServer(t, map[string]tushareResponse{
			"stock_basic": listingResponse([][]any{
				{"600000.SH", "600000", "浦发银行", "上海", "银行", "主板", "19991110"},
				{"000001.SZ", "000001", "平安银行", "深圳", "银行", "主板", nil},
			}),
		})
		defer server.Close()

		p := NewTushareProvider(server.Client(), server.URL, "test-token", nil)
		records, fetchErrors, err := p.FetchListing(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(fetchErrors) != 0 {
			t.Errorf("expected no fetch errors, got %v", fetchErrors)
		}
		if len(records) != 2 {
			t.Fatalf("expected 2 records, got %d", len(records))
		}
		if records[0].Code != "600000.SH" || records[0].Name != "浦发银行" {
			t.Errorf("unexpected first record: %+v", records[0])
		}
		if records[0].ListDate == nil || records[0].ListDate.Format("20060102") != "19991110" {
			t.Errorf("expected list date 19991110, got %v", records[0].ListDate)
		}
		if records[1].ListDate != nil {
			t.Errorf("expected nil list date for pre-listing row, got %v", records[1].ListDate)
		}
	})

	t.Run("reports_malformed_rows_without_failing", func(t *testing.T) {
		server := newTushareMockServer(t, map[string]tushareResponse{
			"stock_basic": listingResponse([][]any{
				{"600000.SH", "600000", "浦发银行", "上海", "银行", "主板", "19991110"},
				{"600519.SH", "600519", "贵州茅台", "贵州", "白酒", "主板", "not-a-date"},
				{nil, "000002", "万科A", "深圳", "房地产", "主板", "19910129"},
			}),
		})
		defer server.Close()

		p := NewTushareProvider(server.Client(), server.URL, "test-token", nil)
		records, fetchErrors, err := p.FetchListing(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 1 {
			t.Errorf("expected 1 usable record, got %d", len(records))
		}
		if len(fetchErrors) != 2 {
			t.Errorf("expected 2 fetch errors, got %d: %v", len(fetchErrors), fetchErrors)
		}
	})

	t.Run("api_level_error_is_fatal", func(t *testing.T) {
		server := newTushareMockServer(t, map[string]tushareResponse{
			"stock_basic": {Code: 2002, Msg: "token invalid"},
		})
		defer server.Close()

		p := NewTushareProvider(server.Client(), server.URL, "bad-token", nil)
		if _, _, err := p.FetchListing(context.Background()); err == nil {
			t.Fatal("expected error for API-level failure")
		}
	})

	t.Run("unreachable_server_is_fatal", func(t *testing.T) {
		server := newTushareMockServer(t, nil)
		server.Close()

		p := NewTushareProvider(http.DefaultClient, server.URL, "test-token", nil)
		if _, _, err := p.FetchListing(context.Background()); err == nil {
			t.Fatal("expected error for unreachable server")
		}
	})
}

func TestTushareProvider_FetchQuotes(t *testing.T) {
	t.Run("keeps_newest_bar_per_code", func(t *testing.T) {
		server := newTushareMockServer(t, map[string]tushareResponse{
			"daily": dailyResponse([][]any{
				{"600000.SH", "20260825", 10.50, 10.20},
				{"600000.SH", "20260824", 10.20, 10.10},
				{"000001.SZ", "20260825", 12.34, 12.00},
			}),
		})
		defer server.Close()

		p := NewTushareProvider(server.Client(), server.URL, "test-token", nil)
		quotes, fetchErrors, err := p.FetchQuotes(context.Background(), []string{"600000.SH", "000001.SZ"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(fetchErrors) != 0 {
			t.Errorf("expected no fetch errors, got %v", fetchErrors)
		}
		q := quotes["600000.SH"]
		if !q.Price.Equal(mustDecimal(t, "10.5")) {
			t.Errorf("expected price 10.5, got %s", q.Price)
		}
		if !q.PrevClose.Equal(mustDecimal(t, "10.2")) {
			t.Errorf("expected prev close 10.2, got %s", q.PrevClose)
		}
	})

	t.Run("missing_code_reported_per_record", func(t *testing.T) {
		server := newTushareMockServer(t, map[string]tushareResponse{
			"daily": dailyResponse([][]any{
				{"600000.SH", "20260825", 10.50, 10.20},
			}),
		})
		defer server.Close()

		p := NewTushareProvider(server.Client(), server.URL, "test-token", nil)
		quotes, fetchErrors, err := p.FetchQuotes(context.Background(), []string{"600000.SH", "688001.SH"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(quotes) != 1 {
			t.Errorf("expected 1 quote, got %d", len(quotes))
		}
		if len(fetchErrors) != 1 || fetchErrors[0].Code != "688001.SH" {
			t.Errorf("expected fetch error for 688001.SH, got %v", fetchErrors)
		}
	})
}
