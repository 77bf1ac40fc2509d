package detector

import (
	"testing"

	"LiqPulse/internal/domain/models"
)

func testConfig() Config {
	return Config{
		MinVolumeUSD:       1_000_000,
		MinDominancePct:    80,
		MinPriceChangePct:  3,
		MaxPriceChangePct:  25,
		MinEventCount:      5,
		MinDurationSec:     5,
		SignatureBucketUSD: 250_000,
	}
}

// passing baseline: sell-dominated window with a falling price.
func passingStats() models.WindowStats {
	return models.WindowStats{
		Instrument:     "XYZUSDT",
		BuyVolume:      100_000,
		SellVolume:     1_100_000,
		TotalVolume:    1_200_000,
		DominantSide:   models.Sell,
		DominancePct:   91.7,
		PriceChangePct: -5,
		FirstPrice:     2.0,
		LastPrice:      1.9,
		DurationSec:    40,
		EventCount:     6,
	}
}

func TestShouldAlertPasses(t *testing.T) {
	d := New(testConfig())
	ok, reason := d.ShouldAlert(passingStats())
	if !ok {
		t.Fatalf("expected alert, rejected with %q", reason)
	}
}

func TestShouldAlertThresholds(t *testing.T) {
	d := New(testConfig())
	cases := []struct {
		name   string
		mutate func(*models.WindowStats)
		reason string
	}{
		{"volume", func(s *models.WindowStats) { s.TotalVolume = 900_000 }, "volume_below_min"},
		{"dominance", func(s *models.WindowStats) { s.DominancePct = 79 }, "dominance_below_min"},
		{"events", func(s *models.WindowStats) { s.EventCount = 4 }, "event_count_below_min"},
		{"duration", func(s *models.WindowStats) { s.DurationSec = 2 }, "duration_below_min"},
		{"small move", func(s *models.WindowStats) { s.PriceChangePct = -1 }, "price_change_below_min"},
		{"anomalous move", func(s *models.WindowStats) { s.PriceChangePct = -40 }, "price_change_above_max"},
	}
	for _, tc := range cases {
		stats := passingStats()
		tc.mutate(&stats)
		ok, reason := d.ShouldAlert(stats)
		if ok {
			t.Fatalf("%s: expected rejection", tc.name)
		}
		if reason != tc.reason {
			t.Fatalf("%s: reason %q, want %q", tc.name, reason, tc.reason)
		}
	}
}

// The direction veto rejects implausible windows no matter how extreme the
// volume figures are.
func TestShouldAlertDirectionVeto(t *testing.T) {
	d := New(testConfig())

	stats := passingStats()
	stats.TotalVolume = 50_000_000
	stats.DominancePct = 99
	stats.PriceChangePct = 5 // sell-dominant but price rose
	ok, reason := d.ShouldAlert(stats)
	if ok || reason != "direction_mismatch" {
		t.Fatalf("sell-dominant rising price: ok=%v reason=%q", ok, reason)
	}

	stats = passingStats()
	stats.DominantSide = models.Buy
	stats.PriceChangePct = -5 // buy-dominant but price fell
	ok, reason = d.ShouldAlert(stats)
	if ok || reason != "direction_mismatch" {
		t.Fatalf("buy-dominant falling price: ok=%v reason=%q", ok, reason)
	}
}

func TestMaxPriceChangeDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPriceChangePct = 0
	d := New(cfg)

	stats := passingStats()
	stats.PriceChangePct = -60
	if ok, reason := d.ShouldAlert(stats); !ok {
		t.Fatalf("cap disabled must pass, rejected with %q", reason)
	}
}

func TestClassify(t *testing.T) {
	d := New(testConfig())

	sell := passingStats()
	c := d.Classify(sell)
	if c.LiquidatedSide != models.Buy || c.Direction != "down" || c.Label != "longs liquidated" {
		t.Fatalf("sell-dominant classification %+v", c)
	}

	buy := passingStats()
	buy.DominantSide = models.Buy
	buy.PriceChangePct = 5
	c = d.Classify(buy)
	if c.LiquidatedSide != models.Sell || c.Direction != "up" || c.Label != "shorts liquidated" {
		t.Fatalf("buy-dominant classification %+v", c)
	}
}

func TestSignatureBucketsCollapseNearbyVolumes(t *testing.T) {
	d := New(testConfig())

	a := passingStats()
	a.TotalVolume = 1_020_000
	b := passingStats()
	b.TotalVolume = 1_040_000

	if d.Signature(a) != d.Signature(b) {
		t.Fatalf("volumes in the same bucket must share a signature: %q vs %q",
			d.Signature(a), d.Signature(b))
	}

	c := passingStats()
	c.TotalVolume = 1_300_000
	if d.Signature(a) == d.Signature(c) {
		t.Fatalf("different buckets must differ")
	}

	if got, want := d.Signature(a), "XYZUSDT|Sell|4"; got != want {
		t.Fatalf("signature %q, want %q", got, want)
	}
}
