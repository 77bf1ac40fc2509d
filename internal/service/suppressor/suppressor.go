package suppressor

import (
	"sync"
	"time"

	"LiqPulse/internal/domain/models"
)

// Config holds the suppression knobs.
type Config struct {
	Cooldown         time.Duration // min spacing between alerts per instrument
	DedupWindow      time.Duration // how long a signature stays poisoned
	EscalationFactor float64       // volume multiple that overrides cooldown, typical 1.5
}

// cooldownRecord snapshots the stats that triggered the last alert for an
// instrument. A new candidate inside the cooldown is only allowed through
// when it is a meaningful escalation relative to this snapshot.
type cooldownRecord struct {
	lastAlertAt time.Time
	volume      float64
	dominance   float64
	side        models.Side
}

// Suppressor gates qualifying signals through two independent checks: a
// per-instrument cooldown with an escalation override, and a coarse
// signature dedup that survives window resets. Both must pass.
type Suppressor struct {
	mu        sync.Mutex
	cfg       Config
	cooldowns map[string]cooldownRecord
	dedup     map[string]time.Time // signature -> last seen
}

func New(cfg Config) *Suppressor {
	if cfg.EscalationFactor <= 1 {
		cfg.EscalationFactor = 1.5
	}
	return &Suppressor{
		cfg:       cfg,
		cooldowns: make(map[string]cooldownRecord),
		dedup:     make(map[string]time.Time),
	}
}

// Gate decides whether a qualifying signal may dispatch. The returned
// reason names the blocking gate ("cooldown" or "dedup") when it may not.
func (s *Suppressor) Gate(stats models.WindowStats, signature string, now time.Time) (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cooldownPassesLocked(stats, now) {
		return false, "cooldown"
	}
	// The dedup gate is independent: a window reset can regenerate a
	// near-identical signature from trailing prints of the same burst even
	// after the cooldown gate would let it through.
	if seen, ok := s.dedup[signature]; ok && now.Sub(seen) < s.cfg.DedupWindow {
		return false, "dedup"
	}
	return true, ""
}

func (s *Suppressor) cooldownPassesLocked(stats models.WindowStats, now time.Time) bool {
	rec, ok := s.cooldowns[stats.Instrument]
	if !ok {
		return true
	}
	if now.Sub(rec.lastAlertAt) >= s.cfg.Cooldown {
		return true
	}
	// Inside the cooldown: pass only on a meaningful escalation, either the
	// pressure flipped direction or the burst grew by the escalation factor.
	if stats.DominantSide != rec.side {
		return true
	}
	return stats.TotalVolume >= rec.volume*s.cfg.EscalationFactor
}

// Record registers a dispatched alert in both gates. Called regardless of
// whether delivery later succeeds: an attempted alert counts as alerted, so
// a failing sink cannot cause an alert storm.
func (s *Suppressor) Record(stats models.WindowStats, signature string, now time.Time) {
	s.mu.Lock()
	s.cooldowns[stats.Instrument] = cooldownRecord{
		lastAlertAt: now,
		volume:      stats.TotalVolume,
		dominance:   stats.DominancePct,
		side:        stats.DominantSide,
	}
	s.dedup[signature] = now
	s.mu.Unlock()
}

// GC prunes records older than twice their suppression duration, bounding
// memory to instruments alerted on recently. Returns how many were removed.
func (s *Suppressor) GC(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for instrument, rec := range s.cooldowns {
		if now.Sub(rec.lastAlertAt) > 2*s.cfg.Cooldown {
			delete(s.cooldowns, instrument)
			removed++
		}
	}
	for signature, seen := range s.dedup {
		if now.Sub(seen) > 2*s.cfg.DedupWindow {
			delete(s.dedup, signature)
			removed++
		}
	}
	return removed
}

// Counts reports live record counts, for the status API and tests.
func (s *Suppressor) Counts() (cooldowns, dedups int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cooldowns), len(s.dedup)
}
