package egress_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/axiom-run/shell/pkg/axiom"
	"github.com/axiom-run/shell/pkg/egress"
)

type noopAuditor struct{ calls int }

func (a *noopAuditor) Record(tenantID, method, alias string) { a.calls++ }

type noSlots struct{}

func (noSlots) HasSlot(string, axiom.Environment) bool { return false }

func newPipeline() (*egress.Pipeline, *egress.BindingTable) {
	bindings := egress.NewBindingTable()
	manifest := egress.NewManifest()
	security := egress.NewSecurityStore()
	p := egress.NewPipeline(bindings, manifest, security, noSlots{}, &noopAuditor{}, nil, 1000, false)
	return p, bindings
}

func TestResolutionFallsBackToGlobal(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	p, bindings := newPipeline()
	bindings.Replace(map[string]map[axiom.Environment]map[string]string{
		"t": {axiom.Global: {"x": ts.URL}},
	})

	resp, zero := p.Call(context.Background(), "t", axiom.Green, "x", "GET", nil)
	if zero {
		t.Fatal("expected resolution via GLOBAL fallback, got alias-unresolved")
	}
	if resp != "ok" {
		t.Fatalf("expected body 'ok', got %q", resp)
	}
}

func TestUnresolvedAliasReturnsZero(t *testing.T) {
	p, _ := newPipeline()
	_, zero := p.Call(context.Background(), "t", axiom.Green, "missing", "GET", nil)
	if !zero {
		t.Fatal("expected writeZero=true for an unresolved alias")
	}
}

func TestSecurityBoundaryRefusesUnboundTenantAlias(t *testing.T) {
	p, bindings := newPipeline()
	bindings.Replace(map[string]map[axiom.Environment]map[string]string{
		"t": {axiom.Green: {"internal-tenant": "internal-tenant"}},
	})

	resp, zero := p.Call(context.Background(), "t", axiom.Green, "internal-tenant", "GET", nil)
	if zero {
		t.Fatal("security boundary failures return a string, not zero")
	}
	if resp == "" {
		t.Fatal("expected a non-empty security-boundary error string")
	}
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	p, bindings := newPipeline()
	bindings.Replace(map[string]map[axiom.Environment]map[string]string{
		"t": {axiom.Green: {"x": ts.URL}},
	})

	for i := 0; i < 5; i++ {
		p.Call(context.Background(), "t", axiom.Green, "x", "GET", nil)
	}

	resp, _ := p.Call(context.Background(), "t", axiom.Green, "x", "GET", nil)
	if resp != "Error: Circuit Breaker Open" {
		t.Fatalf("expected breaker to be open after 5 failures, got %q", resp)
	}
}
