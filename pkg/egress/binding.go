package egress

import (
	"sync"

	"github.com/axiom-run/shell/pkg/axiom"
)

// BindingTable is a pure reflection of the registry file's bindings field:
// (tenant_id, environment, alias) -> physical_url. Reload clears then
// repopulates atomically.
type BindingTable struct {
	mu   sync.RWMutex
	data map[string]map[axiom.Environment]map[string]string
}

// NewBindingTable returns an empty table.
func NewBindingTable() *BindingTable {
	return &BindingTable{data: make(map[string]map[axiom.Environment]map[string]string)}
}

// Resolve looks up (tenant, env, alias); on miss it falls back to
// (tenant, GLOBAL, alias). Returns ok=false if neither is present.
func (b *BindingTable) Resolve(tenantID string, env axiom.Environment, alias string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if envs, ok := b.data[tenantID]; ok {
		if aliases, ok := envs[env]; ok {
			if url, ok := aliases[alias]; ok {
				return url, true
			}
		}
		if aliases, ok := envs[axiom.Global]; ok {
			if url, ok := aliases[alias]; ok {
				return url, true
			}
		}
	}
	return "", false
}

// Replace swaps the entire table, used by a registry-file reload.
func (b *BindingTable) Replace(data map[string]map[axiom.Environment]map[string]string) {
	if data == nil {
		data = make(map[string]map[axiom.Environment]map[string]string)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = data
}

// Snapshot returns a deep-enough copy for digesting/comparison in tests.
func (b *BindingTable) Snapshot() map[string]map[axiom.Environment]map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]map[axiom.Environment]map[string]string, len(b.data))
	for tenantID, envs := range b.data {
		envCopy := make(map[axiom.Environment]map[string]string, len(envs))
		for env, aliases := range envs {
			aliasCopy := make(map[string]string, len(aliases))
			for k, v := range aliases {
				aliasCopy[k] = v
			}
			envCopy[env] = aliasCopy
		}
		out[tenantID] = envCopy
	}
	return out
}
