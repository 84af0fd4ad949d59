package supervisor_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/axiom-run/shell/pkg/axiom"
	"github.com/axiom-run/shell/pkg/bridge"
	"github.com/axiom-run/shell/pkg/dbprovider"
	"github.com/axiom-run/shell/pkg/egress"
	"github.com/axiom-run/shell/pkg/supervisor"
	"github.com/axiom-run/shell/pkg/tenant"
)

var pingModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x08, 0x01, 0x04, 0x70, 0x69, 0x6e, 0x67, 0x00, 0x00,
	0x0a, 0x06, 0x01, 0x04, 0x00, 0x41, 0x2a, 0x0b,
}

// greetModule exports one page of memory and "greet", a zero-argument
// function returning a pointer to the NUL-terminated string "hi".
var greetModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,
	0x05, 0x03, 0x01, 0x00, 0x01,
	0x07, 0x12,
	0x02,
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, 0x02, 0x00,
	0x05, 0x67, 0x72, 0x65, 0x65, 0x74, 0x00, 0x00,
	0x0a, 0x06, 0x01, 0x04, 0x00, 0x41, 0x08, 0x0b,
	0x0b, 0x09, 0x01, 0x00, 0x41, 0x08, 0x0b, 0x03, 0x68, 0x69, 0x00,
}

func newTestSupervisor(t *testing.T) *supervisor.Supervisor {
	t.Helper()
	ctx := context.Background()
	rt, err := bridge.NewRuntime(ctx, 0)
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	t.Cleanup(func() { rt.Close(ctx) })

	mgr := tenant.NewManager(rt)
	pipeline := egress.NewPipeline(egress.NewBindingTable(), egress.NewManifest(), egress.NewSecurityStore(), mgr, nil, nil, 10, false)
	db := dbprovider.NewRegistry()
	br, err := bridge.NewBridge(ctx, rt, pipeline, db, nil)
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	return supervisor.New(mgr, pipeline, db, br, nil, nil, nil)
}

func TestDispatchDefaultsToGreenPerspective(t *testing.T) {
	ctx := context.Background()
	sup := newTestSupervisor(t)

	if _, err := sup.Tenants.Register(ctx, "acme", axiom.Green, greetModule); err != nil {
		t.Fatalf("register: %v", err)
	}

	result, err := sup.Dispatch(ctx, "acme", "greet", "")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result != "hi" {
		t.Fatalf("expected hi, got %q", result)
	}
}

func TestSwitchWithoutCCPFailsWhenSlotMissing(t *testing.T) {
	ctx := context.Background()
	sup := newTestSupervisor(t)

	if err := sup.Switch(ctx, "acme", axiom.Blue); err == nil {
		t.Fatal("expected an error when no BLUE slot exists and no CCP is configured")
	}
}

func TestSwitchToRedEnsuresAuditLog(t *testing.T) {
	ctx := context.Background()
	sup := newTestSupervisor(t)

	if _, err := sup.Tenants.Register(ctx, "acme", axiom.Red, pingModule); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := sup.Switch(ctx, "acme", axiom.Red); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if sup.Perspective("acme") != axiom.Red {
		t.Fatalf("expected perspective RED, got %s", sup.Perspective("acme"))
	}
	if entries := sup.AuditEntries("acme"); entries == nil {
		t.Fatal("expected audit log to be initialized, got nil")
	}
}

func TestRedPerspectiveEgressCallIsAudited(t *testing.T) {
	ctx := context.Background()
	sup := newTestSupervisor(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(server.Close)

	sup.Pipeline.Bindings.Replace(map[string]map[axiom.Environment]map[string]string{
		"acme": {axiom.Red: {"widgets": server.URL}},
	})

	if _, err := sup.Tenants.Register(ctx, "acme", axiom.Red, pingModule); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := sup.Switch(ctx, "acme", axiom.Red); err != nil {
		t.Fatalf("switch: %v", err)
	}

	if response, writeZero := sup.Pipeline.Call(ctx, "acme", axiom.Red, "widgets", http.MethodGet, nil); writeZero || response != "ok" {
		t.Fatalf("unexpected call result: response=%q writeZero=%v", response, writeZero)
	}

	entries := sup.AuditEntries("acme")
	if len(entries) != 1 {
		t.Fatalf("expected exactly one audit entry, got %d", len(entries))
	}
	if entries[0].Method != http.MethodGet || entries[0].Alias != "widgets" {
		t.Fatalf("unexpected audit entry: %+v", entries[0])
	}
}

func TestPipelineAuditorRecordsIntoSupervisorLog(t *testing.T) {
	ctx := context.Background()
	sup := newTestSupervisor(t)

	if _, err := sup.Tenants.Register(ctx, "acme", axiom.Red, pingModule); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := sup.Switch(ctx, "acme", axiom.Red); err != nil {
		t.Fatalf("switch: %v", err)
	}

	if sup.Pipeline.Auditor == nil {
		t.Fatal("expected supervisor.New to wire the pipeline's Auditor to its own audit log")
	}
	sup.Pipeline.Auditor.Record("acme", "db_execute", "primary")

	entries := sup.AuditEntries("acme")
	if len(entries) != 1 || entries[0].Method != "db_execute" || entries[0].Alias != "primary" {
		t.Fatalf("expected a db_execute audit entry, got %+v", entries)
	}
}

func TestRetireFallsBackToGreen(t *testing.T) {
	ctx := context.Background()
	sup := newTestSupervisor(t)

	if _, err := sup.Tenants.Register(ctx, "acme", axiom.Blue, pingModule); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := sup.Switch(ctx, "acme", axiom.Blue); err != nil {
		t.Fatalf("switch: %v", err)
	}
	sup.Retire(ctx, "acme", axiom.Blue)
	if sup.Perspective("acme") != axiom.Green {
		t.Fatalf("expected fallback to GREEN, got %s", sup.Perspective("acme"))
	}
}
