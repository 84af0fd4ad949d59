package tenant_test

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero"

	"github.com/axiom-run/shell/pkg/axiom"
	"github.com/axiom-run/shell/pkg/tenant"
)

// emptyModule is the minimal valid WebAssembly binary: magic number and
// version, no sections. Sufficient to exercise compile/register without a
// real guest toolchain.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func newTestManager(t *testing.T) (*tenant.Manager, context.Context) {
	t.Helper()
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	t.Cleanup(func() { _ = rt.Close(ctx) })
	return tenant.NewManager(rt), ctx
}

func TestRegisterThenGet(t *testing.T) {
	m, ctx := newTestManager(t)

	inst, err := m.Register(ctx, "tenant-a", axiom.Green, emptyModule)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	got, ok := m.Get("tenant-a", axiom.Green)
	if !ok {
		t.Fatal("expected instance to be present after register")
	}
	if got != inst {
		t.Fatal("expected Get to return the registered instance")
	}
}

func TestRemoveDropsEmptyTenant(t *testing.T) {
	m, ctx := newTestManager(t)

	if _, err := m.Register(ctx, "tenant-a", axiom.Green, emptyModule); err != nil {
		t.Fatalf("register: %v", err)
	}
	m.Remove(ctx, "tenant-a", axiom.Green)

	tenants := m.ListTenants()
	for _, id := range tenants {
		if id == "tenant-a" {
			t.Fatal("expected tenant-a to be gone after removing its last slot")
		}
	}
}

func TestCapacityCeiling(t *testing.T) {
	m, ctx := newTestManager(t)

	for _, id := range []string{"a", "b", "c", "d"} {
		if _, err := m.Register(ctx, id, axiom.Green, emptyModule); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}

	if _, err := m.Register(ctx, "e", axiom.Green, emptyModule); err == nil {
		t.Fatal("expected capacity error registering a 5th distinct tenant")
	}

	// A new environment for an existing tenant must not count against
	// capacity.
	if _, err := m.Register(ctx, "a", axiom.Blue, emptyModule); err != nil {
		t.Fatalf("expected additional env for existing tenant to succeed: %v", err)
	}

	tenants := m.ListTenants()
	if len(tenants) != 4 {
		t.Fatalf("expected 4 tenants deployed, got %d", len(tenants))
	}
}
