// Package tenant owns the slot table: compiled WebAssembly modules keyed
// by (tenant_id, environment), under a single capacity ceiling.
package tenant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"

	"github.com/axiom-run/shell/pkg/axiom"
)

// MaxTenants is the global capacity ceiling: at most this many distinct
// tenant ids may have any slot populated at once.
const MaxTenants = 4

// ExportKind tags which calling convention an exported guest function uses,
// discovered once per (tenant, func) and cached on the Instance so repeat
// invocations skip the dispatch search.
type ExportKind int

const (
	ExportUnknown ExportKind = iota
	ExportJSON               // (ptr, len) -> ptr
	ExportBare                // () -> ptr
	ExportVoid                // () -> ()
)

// Instance is an immutable (id, compiled_module, engine_config) triple.
// Hot-swap replaces the map entry with a new Instance; the struct itself is
// never mutated except for the export-kind dispatch cache, which is purely
// an optimization over calls that are otherwise idempotent to repeat.
type Instance struct {
	TenantID     string
	Env          axiom.Environment
	Compiled     wazero.CompiledModule
	WasmSize     int
	RegisteredAt time.Time

	kindMu sync.Mutex
	kinds  map[string]ExportKind
}

// CachedKind returns a previously discovered export kind for name, if any.
func (i *Instance) CachedKind(name string) (ExportKind, bool) {
	i.kindMu.Lock()
	defer i.kindMu.Unlock()
	k, ok := i.kinds[name]
	return k, ok
}

// CacheKind remembers the export kind discovered for name.
func (i *Instance) CacheKind(name string, kind ExportKind) {
	i.kindMu.Lock()
	defer i.kindMu.Unlock()
	if i.kinds == nil {
		i.kinds = make(map[string]ExportKind)
	}
	i.kinds[name] = kind
}

// Manager owns the slot table: tenant_id -> environment -> Instance.
type Manager struct {
	mu      sync.RWMutex
	runtime wazero.Runtime
	slots   map[string]map[axiom.Environment]*Instance
}

// NewManager wraps a shared wazero.Runtime used to compile every deployed
// module; the runtime itself is configured once at startup (memory limit)
// by the caller.
func NewManager(runtime wazero.Runtime) *Manager {
	return &Manager{
		runtime: runtime,
		slots:   make(map[string]map[axiom.Environment]*Instance),
	}
}

// Register compiles wasmBytes and installs it into (tenantID, env).
// Registering a new environment for an already-present tenant never counts
// against the capacity ceiling; registering a brand-new tenant past the
// ceiling is rejected.
func (m *Manager) Register(ctx context.Context, tenantID string, env axiom.Environment, wasmBytes []byte) (*Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.slots[tenantID]
	if !exists && len(m.slots) >= MaxTenants {
		return nil, fmt.Errorf("tenant: capacity exceeded (%d tenants already deployed)", MaxTenants)
	}

	compiled, err := m.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("tenant: compile failed for %q: %w", tenantID, err)
	}

	inst := &Instance{
		TenantID:     tenantID,
		Env:          env,
		Compiled:     compiled,
		WasmSize:     len(wasmBytes),
		RegisteredAt: time.Now(),
	}

	if !exists {
		m.slots[tenantID] = make(map[axiom.Environment]*Instance)
	}
	if old, ok := m.slots[tenantID][env]; ok {
		_ = old.Compiled.Close(ctx)
	}
	m.slots[tenantID][env] = inst
	return inst, nil
}

// Get looks up the instance for (tenantID, env).
func (m *Manager) Get(tenantID string, env axiom.Environment) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	envs, ok := m.slots[tenantID]
	if !ok {
		return nil, false
	}
	inst, ok := envs[env]
	return inst, ok
}

// Remove drops (tenantID, env); if that was the tenant's last slot, the
// tenant's map entry is dropped too.
func (m *Manager) Remove(ctx context.Context, tenantID string, env axiom.Environment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	envs, ok := m.slots[tenantID]
	if !ok {
		return
	}
	if inst, ok := envs[env]; ok {
		_ = inst.Compiled.Close(ctx)
	}
	delete(envs, env)
	if len(envs) == 0 {
		delete(m.slots, tenantID)
	}
}

// ListTenants returns the set of tenant ids with at least one slot.
func (m *Manager) ListTenants() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.slots))
	for id := range m.slots {
		out = append(out, id)
	}
	return out
}

// Slots returns the (env -> Instance) map for tenantID, used by the
// background health loop to iterate every deployed slot.
func (m *Manager) Slots(tenantID string) map[axiom.Environment]*Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[axiom.Environment]*Instance, len(m.slots[tenantID]))
	for env, inst := range m.slots[tenantID] {
		out[env] = inst
	}
	return out
}

// AllTenantIDs is an alias for ListTenants kept for readability at call
// sites that iterate every tenant's slots.
func (m *Manager) AllTenantIDs() []string {
	return m.ListTenants()
}

// HasSlot reports whether a module is deployed at (tenantID, env), used by
// the egress pipeline's security-boundary check for alias bindings that
// point at a co-located tenant instead of an external URL.
func (m *Manager) HasSlot(tenantID string, env axiom.Environment) bool {
	_, ok := m.Get(tenantID, env)
	return ok
}
