package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}

// newSinaMockServer serves hq_str lines for the tickers in lines; tickers
// not present get an empty assignment, which is how Sina reports unknown
// codes.
func newSinaMockServer(t *testing.T, lines map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Referer") == "" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		list := strings.TrimPrefix(r.URL.Path, "/list=")
		var b strings.Builder
		for _, ticker := range strings.Split(list, ",") {
			value := lines[ticker]
			fmt.Fprintf(&b, "var hq_str_%s=\"%s\";\n", ticker, value)
		}
		_, _ = w.Write([]byte(b.String()))
	}))
}

func TestSinaProvider_FetchQuotes(t *testing.T) {
	t.Run("parses_price_and_prev_close", func(t *testing.T) {
		server := newSinaMockServer(t, map[string]string{
			"sh600000": "浦发银行,10.20,10.20,10.50,10.60,10.10",
			"sz000001": "平安银行,12.00,12.00,12.34,12.40,11.90",
		})
		defer server.Close()

		p := NewSinaProvider(server.Client(), server.URL, nil)
		quotes, fetchErrors, err := p.FetchQuotes(context.Background(), []string{"600000.SH", "000001.SZ"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(fetchErrors) != 0 {
			t.Errorf("expected no fetch errors, got %v", fetchErrors)
		}

		q, ok := quotes["600000.SH"]
		if !ok {
			t.Fatal("expected quote for 600000.SH")
		}
		if !q.Price.Equal(mustDecimal(t, "10.50")) {
			t.Errorf("expected price 10.50, got %s", q.Price)
		}
		if !q.PrevClose.Equal(mustDecimal(t, "10.20")) {
			t.Errorf("expected prev close 10.20, got %s", q.PrevClose)
		}
	})

	t.Run("empty_line_reported_as_fetch_error", func(t *testing.T) {
		server := newSinaMockServer(t, map[string]string{
			"sh600000": "浦发银行,10.20,10.20,10.50,10.60,10.10",
		})
		defer server.Close()

		p := NewSinaProvider(server.Client(), server.URL, nil)
		quotes, fetchErrors, err := p.FetchQuotes(context.Background(), []string{"600000.SH", "688999.SH"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(quotes) != 1 {
			t.Errorf("expected 1 quote, got %d", len(quotes))
		}
		if len(fetchErrors) != 1 || fetchErrors[0].Code != "688999.SH" {
			t.Errorf("expected fetch error for 688999.SH, got %v", fetchErrors)
		}
	})

	t.Run("suspended_zero_price_skipped", func(t *testing.T) {
		server := newSinaMockServer(t, map[string]string{
			"sh600000": "浦发银行,0.00,10.20,0.00,0.00,0.00",
		})
		defer server.Close()

		p := NewSinaProvider(server.Client(), server.URL, nil)
		quotes, fetchErrors, err := p.FetchQuotes(context.Background(), []string{"600000.SH"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(quotes) != 0 {
			t.Errorf("expected no quotes for suspended instrument, got %v", quotes)
		}
		if len(fetchErrors) != 1 {
			t.Errorf("expected 1 fetch error, got %d", len(fetchErrors))
		}
	})

	t.Run("malformed_code_reported", func(t *testing.T) {
		p := NewSinaProvider(http.DefaultClient, "http://unused.invalid", nil)
		quotes, fetchErrors, err := p.FetchQuotes(context.Background(), []string{"no-suffix"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(quotes) != 0 || len(fetchErrors) != 1 {
			t.Errorf("expected only a fetch error, got quotes=%v errors=%v", quotes, fetchErrors)
		}
	})
}

func TestSinaTicker(t *testing.T) {
	cases := map[string]string{
		"600000.SH": "sh600000",
		"000001.SZ": "sz000001",
		"430047.BJ": "bj430047",
	}
	for code, want := range cases {
		got, err := sinaTicker(code)
		if err != nil {
			t.Errorf("sinaTicker(%q) returned error: %v", code, err)
			continue
		}
		if got != want {
			t.Errorf("sinaTicker(%q) = %q, want %q", code, got, want)
		}
	}
	if _, err := sinaTicker("600000.XX"); err == nil {
		t.Error("expected error for unsupported exchange suffix")
	}
}
