package registryfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// Load reads and validates the registry file at path. A missing file is
// treated as empty with a logged warning, per the spec's "registry file
// missing" error-taxonomy row; any other read or validation failure is
// returned to the caller.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("registryfile: file missing, treating as empty", "path", path)
			return empty(), nil
		}
		return nil, fmt.Errorf("registryfile: read %s: %w", path, err)
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("registryfile: invalid JSON in %s: %w", path, err)
	}
	if err := Validate(generic); err != nil {
		return nil, err
	}

	doc := empty()
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("registryfile: decode %s: %w", path, err)
	}
	if doc.Tomains == nil {
		doc.Tomains = map[string]Tomain{}
	}
	if doc.Bindings == nil {
		doc.Bindings = map[string]map[string]map[string]string{}
	}
	if doc.Manifests == nil {
		doc.Manifests = map[string]map[string]string{}
	}
	if doc.PublicKeys == nil {
		doc.PublicKeys = map[string]string{}
	}
	if doc.Vault == nil {
		doc.Vault = map[string]string{}
	}
	if doc.Databases == nil {
		doc.Databases = map[string]DatabaseBinding{}
	}
	return doc, nil
}
