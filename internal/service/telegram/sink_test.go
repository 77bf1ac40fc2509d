package telegram

import (
	"strings"
	"testing"
	"time"

	"LiqPulse/internal/domain/models"
)

func TestFormatAlert(t *testing.T) {
	a := &models.Alert{
		Instrument: "XYZUSDT",
		Stats: models.WindowStats{
			TotalVolume:    1_019_000,
			DominantSide:   models.Sell,
			DominancePct:   96.2,
			PriceChangePct: -5,
			FirstPrice:     2.0,
			LastPrice:      1.9,
			DurationSec:    50,
			EventCount:     6,
		},
		Classification: models.Classification{
			LiquidatedSide: models.Buy,
			Direction:      "down",
			Label:          "longs liquidated",
		},
		DetectedAt: time.Date(2025, 6, 1, 12, 0, 50, 0, time.UTC),
	}

	msg := FormatAlert(a)
	for _, want := range []string{
		"XYZUSDT",
		"longs liquidated",
		"$1.02M",
		"6 fills",
		"96.2%",
		"Sell",
		"-5.00%",
		"2025-06-01T12:00:50Z",
		"🔻",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestFormatAlertDirectionEmoji(t *testing.T) {
	a := &models.Alert{
		Instrument:     "BTCUSDT",
		Stats:          models.WindowStats{DominantSide: models.Buy, FirstPrice: 1, LastPrice: 1.1},
		Classification: models.Classification{Direction: "up", Label: "shorts liquidated"},
		DetectedAt:     time.Now(),
	}
	if !strings.Contains(FormatAlert(a), "🔺") {
		t.Fatalf("rising episodes use the up marker")
	}
}

func TestFormatUSD(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{950, "$950"},
		{12_500, "$12.5K"},
		{1_019_000, "$1.02M"},
		{2_400_000_000, "$2.40B"},
	}
	for _, tc := range cases {
		if got := formatUSD(tc.in); got != tc.want {
			t.Fatalf("formatUSD(%v)=%q want %q", tc.in, got, tc.want)
		}
	}
}
