package eligibility

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"LiqPulse/pkg/cache"
	xhttp "LiqPulse/pkg/http"
	"LiqPulse/pkg/logger"
)

func newVenueStub(t *testing.T, openInterest map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/ticker/24hr", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]ticker24h{
			{Symbol: "BTCUSDT", LastPrice: "50000", QuoteVolume: "900000000"},
			{Symbol: "ETHUSDT", LastPrice: "2500", QuoteVolume: "400000000"},
			{Symbol: "DUSTUSDT", LastPrice: "0.01", QuoteVolume: "1000000"},
		})
	})
	mux.HandleFunc("/fapi/v1/openInterest", func(w http.ResponseWriter, r *http.Request) {
		sym := r.URL.Query().Get("symbol")
		oi, ok := openInterest[sym]
		if !ok {
			http.Error(w, "unknown symbol", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(openInterestResp(sym, oi))
	})
	return httptest.NewServer(mux)
}

func openInterestResp(symbol, qty string) openInterest {
	return openInterest{Symbol: symbol, OpenInterest: qty}
}

func testFilter(t *testing.T, srv *httptest.Server, cfg Config) *Filter {
	t.Helper()
	cfg.RestURL = srv.URL
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = time.Minute
	}
	return New(cfg, xhttp.NewClient(xhttp.WithTimeout(2*time.Second)), nil, logger.Nop())
}

func TestRefreshAppliesFloors(t *testing.T) {
	srv := newVenueStub(t, map[string]string{
		"BTCUSDT": "20000", // 20000 * 50000 = 1B USD
		"ETHUSDT": "1000",  // 1000 * 2500 = 2.5M USD, below the OI floor
	})
	defer srv.Close()

	f := testFilter(t, srv, Config{
		MinTurnover24hUSD:  50_000_000,
		MinOpenInterestUSD: 10_000_000,
	})
	if err := f.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	ctx := context.Background()
	if !f.IsEligible(ctx, "BTCUSDT") {
		t.Fatalf("BTCUSDT must pass both floors")
	}
	if f.IsEligible(ctx, "ETHUSDT") {
		t.Fatalf("ETHUSDT is below the open interest floor")
	}
	if f.IsEligible(ctx, "DUSTUSDT") {
		t.Fatalf("DUSTUSDT is below the turnover floor")
	}
}

func TestOpenInterestCheckDisabled(t *testing.T) {
	srv := newVenueStub(t, nil) // OI endpoint never consulted
	defer srv.Close()

	f := testFilter(t, srv, Config{MinTurnover24hUSD: 50_000_000})
	if err := f.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !f.IsEligible(context.Background(), "ETHUSDT") {
		t.Fatalf("turnover floor alone must admit ETHUSDT")
	}
}

func TestAllowAndDenyLists(t *testing.T) {
	srv := newVenueStub(t, map[string]string{"BTCUSDT": "20000", "ETHUSDT": "100000"})
	defer srv.Close()

	f := testFilter(t, srv, Config{
		MinTurnover24hUSD:  50_000_000,
		MinOpenInterestUSD: 10_000_000,
		Allow:              []string{"tinyusdt"},
		Deny:               []string{"BTCUSDT"},
	})
	if err := f.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	ctx := context.Background()
	if !f.IsEligible(ctx, "TINYUSDT") {
		t.Fatalf("allow list bypasses the floors, case-insensitive config")
	}
	if f.IsEligible(ctx, "BTCUSDT") {
		t.Fatalf("deny wins over the floors")
	}
}

func TestRefreshErrorKeepsPreviousSet(t *testing.T) {
	srv := newVenueStub(t, nil)

	f := testFilter(t, srv, Config{MinTurnover24hUSD: 50_000_000})
	if err := f.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	srv.Close()

	if err := f.Refresh(context.Background()); err == nil {
		t.Fatalf("expected error once the venue is unreachable")
	}
	if !f.IsEligible(context.Background(), "BTCUSDT") {
		t.Fatalf("a failed refresh must keep the previous set")
	}
}

func TestSnapshotCaching(t *testing.T) {
	srv := newVenueStub(t, nil)
	defer srv.Close()

	mem := cache.NewMemoryCache()
	f := New(Config{
		RestURL:           srv.URL,
		MinTurnover24hUSD: 50_000_000,
		RefreshInterval:   time.Minute,
		CacheTTL:          time.Minute,
	}, xhttp.NewClient(), mem, logger.Nop())

	if err := f.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// A second filter sharing the cache loads the snapshot without REST.
	f2 := New(Config{
		RestURL:           "http://127.0.0.1:1", // unreachable on purpose
		MinTurnover24hUSD: 50_000_000,
		RefreshInterval:   time.Minute,
		CacheTTL:          time.Minute,
	}, xhttp.NewClient(), mem, logger.Nop())
	if err := f2.Refresh(context.Background()); err != nil {
		t.Fatalf("cached refresh: %v", err)
	}
	if !f2.IsEligible(context.Background(), "BTCUSDT") {
		t.Fatalf("snapshot must be served from cache")
	}
}
