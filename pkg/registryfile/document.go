// Package registryfile reads the control plane's persisted JSON document
// (~/.axiom/session.json) and turns it into the in-memory tables the
// Shell's subsystems consume.
package registryfile

// Tomain is one tenant's metadata entry.
type Tomain struct {
	ID         string            `json:"id"`
	Status     string            `json:"status,omitempty"`
	WasmHashes map[string]string `json:"wasm_hashes,omitempty"`
	Version    string            `json:"version,omitempty"`
}

// DatabaseBinding is one entry of the databases map.
type DatabaseBinding struct {
	Provider string `json:"provider"`
	URL      string `json:"url"`
}

// RateLimits holds the optional per-tenant/per-alias rate overrides.
type RateLimits struct {
	Upstream   map[string]float64 `json:"upstream,omitempty"`
	Downstream map[string]float64 `json:"downstream,omitempty"`
}

// Document is the full shape of the registry file.
type Document struct {
	Tomains    map[string]Tomain                     `json:"tomains,omitempty"`
	Bindings   map[string]map[string]map[string]string `json:"bindings,omitempty"`
	Manifests  map[string]map[string]string          `json:"manifests,omitempty"`
	PublicKeys map[string]string                     `json:"public_keys,omitempty"`
	Vault      map[string]string                     `json:"vault,omitempty"`
	RateLimits RateLimits                             `json:"rate_limits,omitempty"`
	Databases  map[string]DatabaseBinding            `json:"databases,omitempty"`
}

// empty returns a Document with every map initialized, used as the "file
// missing" fallback so downstream code never needs nil checks.
func empty() *Document {
	return &Document{
		Tomains:    map[string]Tomain{},
		Bindings:   map[string]map[string]map[string]string{},
		Manifests:  map[string]map[string]string{},
		PublicKeys: map[string]string{},
		Vault:      map[string]string{},
		Databases:  map[string]DatabaseBinding{},
	}
}
