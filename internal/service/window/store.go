package window

import (
	"sync"
	"time"

	"LiqPulse/internal/domain/models"
)

// Store keeps a bounded-time rolling window of trade events per instrument.
// Eviction is lazy: it runs on every append and before every read, so the
// retained set always satisfies now-ObservedAt < duration at observation
// points. Empty windows are deleted outright, which bounds the map to
// instruments with recent activity.
type Store struct {
	mu        sync.Mutex
	windows   map[string][]models.TradeEvent
	duration  time.Duration
	minEvents int
}

// NewStore creates a Store. minEvents is the smallest window that yields
// stats; anything below 2 is forced to 2 since a single print has no price
// change to measure.
func NewStore(duration time.Duration, minEvents int) *Store {
	if minEvents < 2 {
		minEvents = 2
	}
	return &Store{
		windows:   make(map[string][]models.TradeEvent),
		duration:  duration,
		minEvents: minEvents,
	}
}

// AddEvent validates and appends an event, then evicts. Invalid events are
// dropped and reported via the return value; they never mutate state.
func (s *Store) AddEvent(e *models.TradeEvent, now time.Time) bool {
	if err := e.Validate(); err != nil {
		return false
	}
	s.mu.Lock()
	s.windows[e.Instrument] = append(s.windows[e.Instrument], *e)
	s.evictLocked(e.Instrument, now)
	s.mu.Unlock()
	return true
}

// Evict removes events older than the window duration relative to now and
// deletes the instrument entry entirely when nothing remains.
func (s *Store) Evict(instrument string, now time.Time) {
	s.mu.Lock()
	s.evictLocked(instrument, now)
	s.mu.Unlock()
}

func (s *Store) evictLocked(instrument string, now time.Time) {
	events, ok := s.windows[instrument]
	if !ok {
		return
	}
	cutoff := now.Add(-s.duration)
	// Events are appended in arrival order, so the survivors are a suffix.
	i := 0
	for i < len(events) && !events[i].ObservedAt.After(cutoff) {
		i++
	}
	if i == len(events) {
		delete(s.windows, instrument)
		return
	}
	if i > 0 {
		kept := make([]models.TradeEvent, len(events)-i)
		copy(kept, events[i:])
		s.windows[instrument] = kept
	}
}

// StatsOf evicts, then computes window statistics. The second return is
// false when the window is missing, empty, or below the minimum event
// count needed for a meaningful evaluation.
func (s *Store) StatsOf(instrument string, now time.Time) (models.WindowStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked(instrument, now)
	events := s.windows[instrument]
	if len(events) < s.minEvents {
		return models.WindowStats{}, false
	}
	return Aggregate(instrument, events, now)
}

// Reset deletes the instrument's window entirely. Called after a dispatched
// alert: the episode is closed and the next trade starts a fresh
// accumulation instead of re-reporting the same burst at a larger size.
func (s *Store) Reset(instrument string) {
	s.mu.Lock()
	delete(s.windows, instrument)
	s.mu.Unlock()
}

// ActiveInstruments evicts every window against now and returns the
// instruments that still hold events. Used by the sweep scheduler and the
// status API.
func (s *Store) ActiveInstruments(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for instrument := range s.windows {
		s.evictLocked(instrument, now)
	}
	out := make([]string, 0, len(s.windows))
	for instrument := range s.windows {
		out = append(out, instrument)
	}
	return out
}

// Len returns the number of live windows.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// MinEvents exposes the enforced evaluation floor.
func (s *Store) MinEvents() int { return s.minEvents }
