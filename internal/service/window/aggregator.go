package window

import (
	"time"

	"LiqPulse/internal/domain/models"
)

// Aggregate computes WindowStats from a window's retained events in one
// pass. Pure: no mutation, no I/O. The second return is false on the
// degenerate cases (no events, zero total volume, zero first price) so a
// caller never divides by zero or evaluates NaN.
//
// Ties on exactly-equal buy/sell volume resolve to Sell: a dead-even window
// has no physical winner and Sell is the fixed deterministic choice.
func Aggregate(instrument string, events []models.TradeEvent, now time.Time) (models.WindowStats, bool) {
	if len(events) == 0 {
		return models.WindowStats{}, false
	}

	var buyVol, sellVol float64
	for _, e := range events {
		if e.Side == models.Buy {
			buyVol += e.Notional
		} else {
			sellVol += e.Notional
		}
	}
	total := buyVol + sellVol
	if total <= 0 {
		return models.WindowStats{}, false
	}

	first, last := events[0], events[len(events)-1]
	if first.Price <= 0 {
		// Impossible past validation, guarded anyway: the division below
		// must never see a zero denominator.
		return models.WindowStats{}, false
	}

	dominant := models.Sell
	dominantVol := sellVol
	if buyVol > sellVol {
		dominant = models.Buy
		dominantVol = buyVol
	}

	return models.WindowStats{
		Instrument:     instrument,
		BuyVolume:      buyVol,
		SellVolume:     sellVol,
		TotalVolume:    total,
		DominantSide:   dominant,
		DominancePct:   dominantVol / total * 100,
		PriceChangePct: (last.Price - first.Price) / first.Price * 100,
		FirstPrice:     first.Price,
		LastPrice:      last.Price,
		DurationSec:    last.ObservedAt.Sub(first.ObservedAt).Seconds(),
		EventCount:     len(events),
		ComputedAt:     now,
	}, true
}
