package detector

import (
	"fmt"
	"math"

	"LiqPulse/internal/domain/models"
)

// Config holds the alert thresholds. Every check is a separate knob; the
// values get retuned per venue far too often to bake any of them in.
type Config struct {
	MinVolumeUSD       float64 // floor on window total volume
	MinDominancePct    float64 // floor on one-sided share, 50..100
	MinPriceChangePct  float64 // floor on |price move| over the window
	MaxPriceChangePct  float64 // cap on |price move|; 0 disables the cap
	MinEventCount      int     // floor on prints in the window
	MinDurationSec     float64 // floor on window span, rejects single-print spikes
	SignatureBucketUSD float64 // volume band size for dedup signatures
}

// Detector is a stateless predicate/classifier over one WindowStats
// snapshot. All state lives in the window store and the suppressor.
type Detector struct {
	cfg Config
}

func New(cfg Config) *Detector {
	if cfg.SignatureBucketUSD <= 0 {
		cfg.SignatureBucketUSD = 250_000
	}
	return &Detector{cfg: cfg}
}

// ShouldAlert reports whether stats constitute an alertable signal. Every
// threshold must hold; the reason names the first failing check for logs.
func (d *Detector) ShouldAlert(stats models.WindowStats) (bool, string) {
	if stats.TotalVolume < d.cfg.MinVolumeUSD {
		return false, "volume_below_min"
	}
	if stats.DominancePct < d.cfg.MinDominancePct {
		return false, "dominance_below_min"
	}
	if stats.EventCount < d.cfg.MinEventCount {
		return false, "event_count_below_min"
	}
	if stats.DurationSec < d.cfg.MinDurationSec {
		return false, "duration_below_min"
	}
	move := math.Abs(stats.PriceChangePct)
	if move < d.cfg.MinPriceChangePct {
		return false, "price_change_below_min"
	}
	if d.cfg.MaxPriceChangePct > 0 && move > d.cfg.MaxPriceChangePct {
		// A move this large is a data anomaly, not a signal.
		return false, "price_change_above_max"
	}
	if !directionConsistent(stats) {
		return false, "direction_mismatch"
	}
	return true, ""
}

// directionConsistent is the plausibility filter: forced buying (shorts
// covering) must coincide with a rising price, forced selling (longs
// exiting) with a falling one. Volume imbalance with the price moving the
// wrong way is coincidence, not a cascade.
func directionConsistent(stats models.WindowStats) bool {
	switch stats.DominantSide {
	case models.Buy:
		return stats.PriceChangePct > 0
	case models.Sell:
		return stats.PriceChangePct < 0
	}
	return false
}

// Classify maps the dominant side onto the episode's interpretation. The
// liquidated side is the opposite of the forced flow: a wave of forced
// buys closes short positions, forced sells close longs.
func (d *Detector) Classify(stats models.WindowStats) models.Classification {
	if stats.DominantSide == models.Buy {
		return models.Classification{
			LiquidatedSide: models.Sell,
			Direction:      "up",
			Label:          "shorts liquidated",
		}
	}
	return models.Classification{
		LiquidatedSide: models.Buy,
		Direction:      "down",
		Label:          "longs liquidated",
	}
}

// Signature returns the coarse episode fingerprint used for cross-window
// dedup. Volume is bucketed so near-identical restatements of the same
// burst ($1.02M vs $1.04M) collapse to one signature.
func (d *Detector) Signature(stats models.WindowStats) string {
	bucket := int64(math.Floor(stats.TotalVolume / d.cfg.SignatureBucketUSD))
	return fmt.Sprintf("%s|%s|%d", stats.Instrument, stats.DominantSide, bucket)
}
