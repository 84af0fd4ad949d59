package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/axiom-run/shell/pkg/tenant"
)

// reflectFuncName is the well-known export a guest provides to describe
// itself; its JSON response is expected to carry an OpenAPI-style
// "servers" array.
const reflectFuncName = "reflect"

// Reflect invokes a tenant's self-description export and rewrites the
// first server URL to point back at this shell's own front door, so a
// guest's advertised base URL never leaks its internal binding details.
func (b *Bridge) Reflect(ctx context.Context, inst *tenant.Instance, publicBaseURL string) (string, error) {
	raw, err := b.Invoke(ctx, inst, reflectFuncName, "")
	if err != nil {
		return "", fmt.Errorf("bridge: reflect: %w", err)
	}
	if raw == "" {
		return raw, nil
	}

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return raw, nil
	}
	servers, ok := doc["servers"].([]interface{})
	if !ok || len(servers) == 0 {
		return raw, nil
	}
	first, ok := servers[0].(map[string]interface{})
	if !ok {
		return raw, nil
	}
	first["url"] = publicBaseURL
	servers[0] = first
	doc["servers"] = servers

	rewritten, err := json.Marshal(doc)
	if err != nil {
		return raw, nil
	}
	return string(rewritten), nil
}

// InvokeHealth probes a tenant's health the way axiom_health_check is
// defined: a bare instantiation of the compiled module, without calling
// any exported function. Success means the module linked and every
// import it declares resolved against the host module; it says nothing
// about what the guest's own exports would do if called.
func (b *Bridge) InvokeHealth(ctx context.Context, inst *tenant.Instance) (string, error) {
	mod, err := b.instantiate(ctx, inst)
	if err != nil {
		return "", fmt.Errorf("unhealthy: %w", err)
	}
	defer mod.Close(ctx)
	return "Healthy", nil
}
