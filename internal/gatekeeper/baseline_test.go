package gatekeeper

import (
	"testing"
	"time"

	"github.com/ppiankov/promptspeak/internal/model"
)

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		score float64
		want  model.DriftSeverity
	}{
		{0.1, model.SeverityLow},
		{0.3, model.SeverityMedium},
		{0.59, model.SeverityMedium},
		{0.6, model.SeverityHigh},
		{0.9, model.SeverityCritical},
		{1.0, model.SeverityCritical},
	}
	for _, tt := range tests {
		if got := severityFor(tt.score); got != tt.want {
			t.Errorf("severityFor(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestBaselineWindowSlides(t *testing.T) {
	b := newBaselines(1)
	b.record("a", "read")
	for i := 0; i < 10; i++ {
		b.record("a", "scrape")
	}
	if got := b.deviation("a"); got != 1.0 {
		t.Fatalf("deviation = %v, want 1.0", got)
	}
	for i := 0; i < 10; i++ {
		b.record("a", "read")
	}
	if got := b.deviation("a"); got != 0 {
		t.Fatalf("deviation = %v, want 0 once the window slides", got)
	}
}

func TestBaselinePredictDuringWarmup(t *testing.T) {
	b := newBaselines(2)
	b.record("a", "read")
	if got := b.predict("a", "scrape"); got != 0 {
		t.Fatalf("predict during warmup = %v, want 0", got)
	}
	b.record("a", "read")
	if got := b.predict("a", "scrape"); got != 1 {
		t.Fatalf("predict after warmup = %v, want 1", got)
	}
}

func TestBreakerHalfOpen(t *testing.T) {
	b := newBreakers(time.Minute)
	b.trip("a", "drift", testEpoch)
	if ok, reason := b.allow("a", testEpoch.Add(30*time.Second)); ok || reason != "drift" {
		t.Fatalf("expected open circuit, got ok=%v reason=%q", ok, reason)
	}
	if ok, _ := b.allow("a", testEpoch.Add(2*time.Minute)); !ok {
		t.Fatal("expected probe after timeout")
	}
	if b.state("a") != StateHalfOpen {
		t.Fatalf("state = %s, want half-open", b.state("a"))
	}
	b.succeed("a")
	if b.state("a") != StateClosed {
		t.Fatalf("state = %s, want closed", b.state("a"))
	}
}

func TestBreakerFailOnlyAffectsHalfOpen(t *testing.T) {
	b := newBreakers(time.Minute)
	if b.fail("a", testEpoch) {
		t.Fatal("fail on a closed circuit should be a no-op")
	}
	b.trip("a", "drift", testEpoch)
	if b.fail("a", testEpoch) {
		t.Fatal("fail on an open circuit should be a no-op")
	}
	b.allow("a", testEpoch.Add(2*time.Minute))
	if !b.fail("a", testEpoch.Add(2*time.Minute)) {
		t.Fatal("expected half-open circuit to re-open")
	}
	if ok, reason := b.allow("a", testEpoch.Add(2*time.Minute+30*time.Second)); ok || reason != "drift" {
		t.Fatalf("expected re-opened circuit, got ok=%v reason=%q", ok, reason)
	}
}
