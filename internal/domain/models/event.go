package models

import (
	"fmt"
	"math"
	"time"
)

// Side is the aggressor/taker direction of a forced trade. A forced Buy
// means a short position was liquidated; a forced Sell means a long was.
type Side string

const (
	Buy  Side = "Buy"
	Sell Side = "Sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// TradeEvent is one normalized liquidation/trade print. The stream client
// owns venue-specific parsing; everything downstream sees only this shape.
type TradeEvent struct {
	Instrument string    `json:"instrument"`
	Side       Side      `json:"side"`
	Price      float64   `json:"price"`
	Quantity   float64   `json:"quantity"`
	Notional   float64   `json:"notional"` // USD, price*quantity*contract multiplier
	ObservedAt time.Time `json:"observed_at"`
}

// Validate rejects events that must never enter a window: non-positive or
// non-finite price/quantity/notional, empty instrument, zero timestamp.
func (e *TradeEvent) Validate() error {
	if e == nil {
		return fmt.Errorf("event nil")
	}
	if e.Instrument == "" {
		return fmt.Errorf("instrument empty")
	}
	if e.Side != Buy && e.Side != Sell {
		return fmt.Errorf("side %q invalid", e.Side)
	}
	if !isPositiveFinite(e.Price) {
		return fmt.Errorf("price %v invalid", e.Price)
	}
	if !isPositiveFinite(e.Quantity) {
		return fmt.Errorf("quantity %v invalid", e.Quantity)
	}
	if !isPositiveFinite(e.Notional) {
		return fmt.Errorf("notional %v invalid", e.Notional)
	}
	if e.ObservedAt.IsZero() {
		return fmt.Errorf("observed_at zero")
	}
	return nil
}

func isPositiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
