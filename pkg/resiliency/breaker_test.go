package resiliency_test

import (
	"testing"
	"time"

	"github.com/axiom-run/shell/pkg/resiliency"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cb := resiliency.NewCircuitBreaker("alias", 3, time.Minute)

	for i := 0; i < 2; i++ {
		if !cb.Allow() {
			t.Fatalf("expected Allow to be true before threshold, iteration %d", i)
		}
		cb.Failure()
	}
	if cb.State() != resiliency.Closed {
		t.Fatalf("expected Closed before threshold reached, got %s", cb.State())
	}

	cb.Allow()
	cb.Failure()
	if cb.State() != resiliency.Open {
		t.Fatalf("expected Open after %d consecutive failures, got %s", 3, cb.State())
	}
	if cb.Allow() {
		t.Fatal("expected Allow to refuse while Open and within cooldown")
	}
}

func TestBreakerHalfOpenAdmitsOneProbe(t *testing.T) {
	cb := resiliency.NewCircuitBreaker("alias", 1, time.Millisecond)
	cb.Allow()
	cb.Failure()
	if cb.State() != resiliency.Open {
		t.Fatalf("expected Open, got %s", cb.State())
	}

	time.Sleep(5 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("expected the first probe after cooldown to be admitted")
	}
	if cb.Allow() {
		t.Fatal("expected a second concurrent probe to be refused while Half-Open")
	}
}

func TestBreakerSuccessResetsState(t *testing.T) {
	cb := resiliency.NewCircuitBreaker("alias", 1, time.Millisecond)
	cb.Allow()
	cb.Failure()
	time.Sleep(5 * time.Millisecond)
	cb.Allow()
	cb.Success()

	if cb.State() != resiliency.Closed {
		t.Fatalf("expected Closed after a successful probe, got %s", cb.State())
	}
	if !cb.Allow() {
		t.Fatal("expected Allow to be true again after reset")
	}
}

func TestBreakerRegistryReusesBreakerPerAlias(t *testing.T) {
	reg := resiliency.NewBreakerRegistry()
	a := reg.Get("alias-a")
	b := reg.Get("alias-a")
	if a != b {
		t.Fatal("expected the same breaker instance for repeated lookups of the same alias")
	}
	c := reg.Get("alias-b")
	if a == c {
		t.Fatal("expected distinct breakers for distinct aliases")
	}
}
