package models

import "time"

// WindowStats is a snapshot derived from one instrument's rolling window at
// a single instant. It is recomputed per evaluation and never stored.
type WindowStats struct {
	Instrument     string    `json:"instrument"`
	BuyVolume      float64   `json:"buy_volume"`  // USD
	SellVolume     float64   `json:"sell_volume"` // USD
	TotalVolume    float64   `json:"total_volume"`
	DominantSide   Side      `json:"dominant_side"`
	DominancePct   float64   `json:"dominance_pct"`
	PriceChangePct float64   `json:"price_change_pct"`
	FirstPrice     float64   `json:"first_price"`
	LastPrice      float64   `json:"last_price"`
	DurationSec    float64   `json:"duration_sec"`
	EventCount     int       `json:"event_count"`
	ComputedAt     time.Time `json:"computed_at"`
}

// Classification is the human-facing interpretation of an episode.
type Classification struct {
	LiquidatedSide Side   `json:"liquidated_side"` // side of the positions that were forced out
	Direction      string `json:"direction"`       // "up" or "down"
	Label          string `json:"label"`           // "shorts liquidated" / "longs liquidated"
}

// Alert is the structured dispatch payload handed to notifier and archive
// backends. Formatting into human-readable text is a sink concern.
type Alert struct {
	Instrument     string         `json:"instrument"`
	Stats          WindowStats    `json:"stats"`
	Classification Classification `json:"classification"`
	Signature      string         `json:"signature"`
	DetectedAt     time.Time      `json:"detected_at"`
}
