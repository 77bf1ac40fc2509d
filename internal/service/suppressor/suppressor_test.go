package suppressor

import (
	"testing"
	"time"

	"LiqPulse/internal/domain/models"
)

func testConfig() Config {
	return Config{
		Cooldown:         5 * time.Minute,
		DedupWindow:      10 * time.Minute,
		EscalationFactor: 1.5,
	}
}

func sellStats(volume float64) models.WindowStats {
	return models.WindowStats{
		Instrument:   "BTCUSDT",
		TotalVolume:  volume,
		DominantSide: models.Sell,
		DominancePct: 90,
	}
}

func TestFirstAlertPasses(t *testing.T) {
	s := New(testConfig())
	if ok, reason := s.Gate(sellStats(1_000_000), "sig-a", time.Now()); !ok {
		t.Fatalf("first alert must pass, blocked by %q", reason)
	}
}

func TestCooldownBlocksRepeat(t *testing.T) {
	s := New(testConfig())
	base := time.Now()
	s.Record(sellStats(1_000_000), "sig-a", base)

	ok, reason := s.Gate(sellStats(1_000_000), "sig-b", base.Add(time.Minute))
	if ok || reason != "cooldown" {
		t.Fatalf("ok=%v reason=%q, want cooldown block", ok, reason)
	}

	// A 1.1x restatement is not an escalation.
	ok, reason = s.Gate(sellStats(1_100_000), "sig-c", base.Add(time.Minute))
	if ok || reason != "cooldown" {
		t.Fatalf("1.1x: ok=%v reason=%q, want cooldown block", ok, reason)
	}
}

func TestCooldownExpires(t *testing.T) {
	s := New(testConfig())
	base := time.Now()
	s.Record(sellStats(1_000_000), "sig-a", base)

	if ok, reason := s.Gate(sellStats(1_000_000), "sig-b", base.Add(5*time.Minute)); !ok {
		t.Fatalf("cooldown elapsed, blocked by %q", reason)
	}
}

func TestEscalationOverridesCooldown(t *testing.T) {
	s := New(testConfig())
	base := time.Now()
	s.Record(sellStats(1_000_000), "sig-a", base)

	if ok, reason := s.Gate(sellStats(1_600_000), "sig-b", base.Add(time.Minute)); !ok {
		t.Fatalf("1.6x escalation must override cooldown, blocked by %q", reason)
	}
}

func TestSideFlipOverridesCooldown(t *testing.T) {
	s := New(testConfig())
	base := time.Now()
	s.Record(sellStats(5_000_000), "sig-a", base)

	flipped := sellStats(1_000_000)
	flipped.DominantSide = models.Buy
	if ok, reason := s.Gate(flipped, "sig-b", base.Add(time.Minute)); !ok {
		t.Fatalf("side flip must override cooldown, blocked by %q", reason)
	}
}

// The two gates are independent: passing the cooldown does not bypass a
// poisoned signature.
func TestDedupIndependentOfCooldown(t *testing.T) {
	s := New(testConfig())
	base := time.Now()
	s.Record(sellStats(1_000_000), "sig-a", base)

	// Same signature after cooldown expiry, still inside the dedup window.
	ok, reason := s.Gate(sellStats(1_000_000), "sig-a", base.Add(6*time.Minute))
	if ok || reason != "dedup" {
		t.Fatalf("ok=%v reason=%q, want dedup block", ok, reason)
	}

	// Escalation passes the cooldown but the repeated signature still blocks.
	ok, reason = s.Gate(sellStats(2_000_000), "sig-a", base.Add(time.Minute))
	if ok || reason != "dedup" {
		t.Fatalf("escalated repeat signature: ok=%v reason=%q, want dedup block", ok, reason)
	}

	// Dedup window elapsed.
	if ok, reason := s.Gate(sellStats(1_000_000), "sig-a", base.Add(10*time.Minute)); !ok {
		t.Fatalf("dedup expired, blocked by %q", reason)
	}
}

func TestEscalationFactorFloor(t *testing.T) {
	cfg := testConfig()
	cfg.EscalationFactor = 0.5
	s := New(cfg)
	base := time.Now()
	s.Record(sellStats(1_000_000), "sig-a", base)

	// With a broken factor the default 1.5 applies: equal volume inside the
	// cooldown must not pass as an "escalation".
	if ok, _ := s.Gate(sellStats(1_000_000), "sig-b", base.Add(time.Minute)); ok {
		t.Fatalf("factor <= 1 must fall back to the default, not pass everything")
	}
}

func TestGCBoundsRecords(t *testing.T) {
	s := New(testConfig())
	base := time.Now()
	s.Record(sellStats(1_000_000), "sig-a", base)

	other := sellStats(1_000_000)
	other.Instrument = "ETHUSDT"
	s.Record(other, "sig-b", base.Add(9*time.Minute))

	// 2x cooldown past the first record; the second is still fresh.
	removed := s.GC(base.Add(11 * time.Minute))
	if removed != 1 {
		t.Fatalf("removed=%d, want 1", removed)
	}
	cooldowns, dedups := s.Counts()
	if cooldowns != 1 || dedups != 2 {
		t.Fatalf("cooldowns=%d dedups=%d", cooldowns, dedups)
	}

	removed = s.GC(base.Add(30 * time.Minute))
	if removed != 3 {
		t.Fatalf("removed=%d, want 3", removed)
	}
	cooldowns, dedups = s.Counts()
	if cooldowns != 0 || dedups != 0 {
		t.Fatalf("expected empty maps, cooldowns=%d dedups=%d", cooldowns, dedups)
	}
}
