package registryfile

import (
	"log/slog"

	"github.com/axiom-run/shell/pkg/axiom"
	"github.com/axiom-run/shell/pkg/dbprovider"
	"github.com/axiom-run/shell/pkg/egress"
)

// Targets bundles the live tables a reload repopulates.
type Targets struct {
	Bindings  *egress.BindingTable
	Manifests *egress.Manifest
	Security  *egress.SecurityStore
	Databases *dbprovider.Registry
}

// Apply reads path and atomically repopulates every target table from it.
// It is idempotent: calling it twice over an unchanged file produces
// byte-identical tables (see Digest).
func Apply(path string, targets Targets) (*Document, error) {
	doc, err := Load(path)
	if err != nil {
		return nil, err
	}

	bindings := make(map[string]map[axiom.Environment]map[string]string, len(doc.Bindings))
	for tenantID, envs := range doc.Bindings {
		envMap := make(map[axiom.Environment]map[string]string, len(envs))
		for envName, aliases := range envs {
			envMap[axiom.Environment(envName)] = aliases
		}
		bindings[tenantID] = envMap
	}
	targets.Bindings.Replace(bindings)
	targets.Manifests.Replace(doc.Manifests)
	targets.Security.Replace(doc.PublicKeys, doc.Vault)

	specs := make([]dbprovider.Spec, 0, len(doc.Databases))
	for alias, binding := range doc.Databases {
		specs = append(specs, dbprovider.Spec{Alias: alias, Kind: binding.Provider, URL: binding.URL})
	}
	if err := targets.Databases.Replace(specs); err != nil {
		slog.Error("registryfile: reloading database providers", "error", err)
	}

	return doc, nil
}
