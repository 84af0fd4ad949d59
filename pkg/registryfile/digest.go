package registryfile

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Digest computes a canonical-JSON (RFC 8785) digest of a reloaded
// document's bindings/manifests/public_keys/vault tables, used to verify
// reload idempotence: applying reload_bindings twice over the same file
// must yield byte-identical in-memory tables, which this digest makes
// cheap to assert in tests.
func Digest(doc *Document) (string, error) {
	snapshot := struct {
		Bindings   map[string]map[string]map[string]string `json:"bindings"`
		Manifests  map[string]map[string]string            `json:"manifests"`
		PublicKeys map[string]string                       `json:"public_keys"`
		Vault      map[string]string                       `json:"vault"`
	}{doc.Bindings, doc.Manifests, doc.PublicKeys, doc.Vault}

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("registryfile: marshal snapshot: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("registryfile: canonicalize snapshot: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
