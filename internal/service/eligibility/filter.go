package eligibility

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"LiqPulse/pkg/cache"
	xhttp "LiqPulse/pkg/http"
	"LiqPulse/pkg/logger"
)

const cacheKey = "eligibility:instruments"

// Config holds the prefilter floors and refresh cadence.
type Config struct {
	RestURL            string
	MinTurnover24hUSD  float64
	MinOpenInterestUSD float64
	RefreshInterval    time.Duration
	CacheTTL           time.Duration
	Allow              []string // always eligible, bypasses the floors
	Deny               []string // never eligible
}

// Filter decides which instruments may enter the aggregation state. It
// keeps an in-memory eligible set for the hot path and refreshes it from
// the venue's 24h ticker and open-interest endpoints on an interval; the
// computed set is cached so a restart doesn't hammer the REST API.
type Filter struct {
	cfg   Config
	http  *xhttp.Client
	cache cache.Service // may be nil
	log   *logger.Logger

	allow map[string]struct{}
	deny  map[string]struct{}

	mu       sync.RWMutex
	eligible map[string]struct{}
}

// New creates a Filter. cacheSvc may be nil to disable snapshot caching.
func New(cfg Config, httpClient *xhttp.Client, cacheSvc cache.Service, log *logger.Logger) *Filter {
	f := &Filter{
		cfg:      cfg,
		http:     httpClient,
		cache:    cacheSvc,
		log:      log,
		allow:    toSet(cfg.Allow),
		deny:     toSet(cfg.Deny),
		eligible: make(map[string]struct{}),
	}
	return f
}

func toSet(xs []string) map[string]struct{} {
	m := make(map[string]struct{}, len(xs))
	for _, x := range xs {
		x = strings.ToUpper(strings.TrimSpace(x))
		if x != "" {
			m[x] = struct{}{}
		}
	}
	return m
}

// IsEligible reports whether events for an instrument may enter a window.
// Deny wins over everything; allow bypasses the floors; otherwise the
// instrument must be in the last refreshed snapshot.
func (f *Filter) IsEligible(_ context.Context, instrument string) bool {
	if _, denied := f.deny[instrument]; denied {
		return false
	}
	if _, allowed := f.allow[instrument]; allowed {
		return true
	}
	f.mu.RLock()
	_, ok := f.eligible[instrument]
	f.mu.RUnlock()
	return ok
}

// Refresh rebuilds the eligible set, preferring the cached snapshot and
// falling back to the venue REST API. Errors leave the previous set in
// place; a stale filter beats an empty one.
func (f *Filter) Refresh(ctx context.Context) error {
	if f.loadCached(ctx) {
		return nil
	}

	instruments, err := f.fetch(ctx)
	if err != nil {
		return fmt.Errorf("eligibility refresh: %w", err)
	}

	f.mu.Lock()
	f.eligible = toSet(instruments)
	f.mu.Unlock()
	f.storeCached(ctx, instruments)

	f.log.Info("eligibility set refreshed", logger.Int("instruments", len(instruments)))
	return nil
}

// Run refreshes on the configured interval until ctx is done.
func (f *Filter) Run(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Bypass the cached snapshot on scheduled refreshes.
			if f.cache != nil {
				_ = f.cache.Delete(ctx, cacheKey)
			}
			if err := f.Refresh(ctx); err != nil {
				f.log.Warn("eligibility refresh failed", logger.Error(err))
			}
		}
	}
}

// Snapshot lists the currently eligible instruments (floors only, not the
// static allow list).
func (f *Filter) Snapshot() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.eligible))
	for k := range f.eligible {
		out = append(out, k)
	}
	return out
}

func (f *Filter) loadCached(ctx context.Context) bool {
	if f.cache == nil {
		return false
	}
	var raw string
	if err := f.cache.Get(ctx, cacheKey, &raw); err != nil {
		return false
	}
	var instruments []string
	if err := json.Unmarshal([]byte(raw), &instruments); err != nil {
		return false
	}
	f.mu.Lock()
	f.eligible = toSet(instruments)
	f.mu.Unlock()
	f.log.Debug("eligibility set loaded from cache", logger.Int("instruments", len(instruments)))
	return true
}

func (f *Filter) storeCached(ctx context.Context, instruments []string) {
	if f.cache == nil {
		return
	}
	b, err := json.Marshal(instruments)
	if err != nil {
		return
	}
	if err := f.cache.Set(ctx, cacheKey, string(b), f.cfg.CacheTTL); err != nil {
		f.log.Warn("eligibility cache write failed", logger.Error(err))
	}
}

type ticker24h struct {
	Symbol      string `json:"symbol"`
	LastPrice   string `json:"lastPrice"`
	QuoteVolume string `json:"quoteVolume"`
}

type openInterest struct {
	Symbol       string `json:"symbol"`
	OpenInterest string `json:"openInterest"`
}

// fetch pulls the 24h tickers in one call, applies the turnover floor,
// then checks open interest per surviving symbol. The turnover floor runs
// first so the per-symbol OI calls stay bounded.
func (f *Filter) fetch(ctx context.Context) ([]string, error) {
	var tickers []ticker24h
	err := f.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    f.cfg.RestURL + "/fapi/v1/ticker/24hr",
	}, &tickers)
	if err != nil {
		return nil, fmt.Errorf("ticker 24hr: %w", err)
	}

	var out []string
	for _, t := range tickers {
		turnover, err := strconv.ParseFloat(t.QuoteVolume, 64)
		if err != nil || turnover < f.cfg.MinTurnover24hUSD {
			continue
		}
		if f.cfg.MinOpenInterestUSD > 0 {
			price, err := strconv.ParseFloat(t.LastPrice, 64)
			if err != nil || price <= 0 {
				continue
			}
			ok, err := f.openInterestAbove(ctx, t.Symbol, price)
			if err != nil {
				f.log.Debug("open interest lookup failed",
					logger.String("instrument", t.Symbol), logger.Error(err))
				continue
			}
			if !ok {
				continue
			}
		}
		out = append(out, t.Symbol)
	}
	return out, nil
}

func (f *Filter) openInterestAbove(ctx context.Context, symbol string, price float64) (bool, error) {
	var oi openInterest
	err := f.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         f.cfg.RestURL + "/fapi/v1/openInterest",
		QueryParams: map[string][]string{"symbol": {symbol}},
	}, &oi)
	if err != nil {
		return false, err
	}
	qty, err := strconv.ParseFloat(oi.OpenInterest, 64)
	if err != nil {
		return false, err
	}
	return qty*price >= f.cfg.MinOpenInterestUSD, nil
}
