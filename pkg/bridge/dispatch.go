package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/axiom-run/shell/pkg/tenant"
)

// Invoke resolves funcName against inst's exports, instantiates a fresh
// copy of the compiled module (per-call instantiation keeps one tenant's
// calls from sharing mutable globals or a stale memory), and runs it with
// a fresh fuel budget. queryJSON is passed to the guest as the call's
// input payload via memory; its marshalling is export-kind specific.
func (b *Bridge) Invoke(ctx context.Context, inst *tenant.Instance, funcName, queryJSON string) (string, error) {
	kind, exportName, ok := b.resolveExport(ctx, inst, funcName)
	if !ok {
		return "", fmt.Errorf("bridge: function %q not found", funcName)
	}

	mod, err := b.instantiate(ctx, inst)
	if err != nil {
		return "", err
	}
	defer mod.Close(ctx)

	cc := &callContext{TenantID: inst.TenantID, Perspective: inst.Env, fuel: newFuelCounter()}
	callCtx := withCallContext(ctx, cc)

	switch kind {
	case tenant.ExportJSON:
		return b.invokeJSON(callCtx, mod, exportName, queryJSON)
	case tenant.ExportBare:
		return b.invokeBareI32(callCtx, mod, exportName)
	case tenant.ExportVoid:
		return b.invokeBareVoid(callCtx, mod, exportName)
	default:
		return "", fmt.Errorf("bridge: unsupported export kind for %q", funcName)
	}
}

// instantiate links and instantiates a fresh copy of inst's compiled
// module under its own name, so that repeat or concurrent calls never
// share mutable globals or a stale memory. The caller owns the returned
// module and must Close it.
func (b *Bridge) instantiate(ctx context.Context, inst *tenant.Instance) (api.Module, error) {
	modName := fmt.Sprintf("%s-%s-%d", inst.TenantID, inst.Env, atomic.AddUint64(&b.callCounter, 1))
	cfg := wazero.NewModuleConfig().WithName(modName)
	mod, err := b.runtime.InstantiateModule(ctx, inst.Compiled, cfg)
	if err != nil {
		return nil, fmt.Errorf("bridge: instantiate: %w", err)
	}
	return mod, nil
}

// resolveExport implements the dispatch search order documented for
// routed calls: a host-call convention wrapper by name, the same with
// non-identifier characters flattened to underscores, then a bare
// zero-argument export returning i32 or nothing at all. The winning
// kind is cached on inst so repeat calls skip the probing work.
func (b *Bridge) resolveExport(ctx context.Context, inst *tenant.Instance, funcName string) (tenant.ExportKind, string, bool) {
	if kind, ok := inst.CachedKind(funcName); ok {
		return kind, exportNameFor(inst.Compiled, funcName, kind), kind != tenant.ExportUnknown
	}

	candidates := []struct {
		name string
		kind tenant.ExportKind
	}{
		{"__axiom_call_" + funcName, tenant.ExportJSON},
		{"__axiom_call_" + underscored(funcName), tenant.ExportJSON},
	}
	for _, c := range candidates {
		if exportExists(inst.Compiled, c.name) {
			inst.CacheKind(funcName, c.kind)
			return c.kind, c.name, true
		}
	}

	if fn, ok := findFunctionExport(inst.Compiled, funcName); ok {
		kind := exportKindOf(fn)
		if kind != tenant.ExportUnknown {
			inst.CacheKind(funcName, kind)
			return kind, funcName, true
		}
	}

	inst.CacheKind(funcName, tenant.ExportUnknown)
	return tenant.ExportUnknown, "", false
}

func exportNameFor(compiled wazero.CompiledModule, funcName string, kind tenant.ExportKind) string {
	switch kind {
	case tenant.ExportJSON:
		if name := "__axiom_call_" + funcName; exportExists(compiled, name) {
			return name
		}
		return "__axiom_call_" + underscored(funcName)
	default:
		return funcName
	}
}

func underscored(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func exportExists(compiled wazero.CompiledModule, name string) bool {
	_, ok := compiled.ExportedFunctions()[name]
	return ok
}

func findFunctionExport(compiled wazero.CompiledModule, name string) (api.FunctionDefinition, bool) {
	fn, ok := compiled.ExportedFunctions()[name]
	return fn, ok
}

func exportKindOf(fn api.FunctionDefinition) tenant.ExportKind {
	params := fn.ParamTypes()
	results := fn.ResultTypes()
	if len(params) != 0 {
		return tenant.ExportUnknown
	}
	switch len(results) {
	case 0:
		return tenant.ExportVoid
	case 1:
		if results[0] == api.ValueTypeI32 {
			return tenant.ExportBare
		}
	}
	return tenant.ExportUnknown
}

// invokeJSON follows the host-call convention: write queryJSON into guest
// memory, call export(ptr, len) -> result_ptr, and read the NUL-terminated
// response back out. result_ptr == 0 means "no result" (empty string).
func (b *Bridge) invokeJSON(ctx context.Context, mod api.Module, exportName, queryJSON string) (string, error) {
	fn := mod.ExportedFunction(exportName)
	if fn == nil {
		return "", fmt.Errorf("bridge: export %q missing after probe", exportName)
	}
	ptr, err := writeCString(mod, queryJSON)
	if err != nil {
		return "", err
	}
	results, err := fn.Call(ctx, uint64(ptr), uint64(len(queryJSON)))
	if err != nil {
		return "", mapTrapError(err)
	}
	if len(results) == 0 || uint32(results[0]) == 0 {
		return "", nil
	}
	return readCString(mod, uint32(results[0]))
}

// invokeBareI32 calls a zero-argument export whose i32 result is a guest
// pointer to a NUL-terminated string, per the ExportBare contract
// `fn() -> ptr`. A 0 result means "no result" (empty string).
func (b *Bridge) invokeBareI32(ctx context.Context, mod api.Module, exportName string) (string, error) {
	fn := mod.ExportedFunction(exportName)
	if fn == nil {
		return "", fmt.Errorf("bridge: export %q missing after probe", exportName)
	}
	results, err := fn.Call(ctx)
	if err != nil {
		return "", mapTrapError(err)
	}
	if len(results) == 0 || uint32(results[0]) == 0 {
		return "", nil
	}
	return readCString(mod, uint32(results[0]))
}

func (b *Bridge) invokeBareVoid(ctx context.Context, mod api.Module, exportName string) (string, error) {
	fn := mod.ExportedFunction(exportName)
	if fn == nil {
		return "", fmt.Errorf("bridge: export %q missing after probe", exportName)
	}
	if _, err := fn.Call(ctx); err != nil {
		return "", mapTrapError(err)
	}
	return "", nil
}

func mapTrapError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("bridge: guest trapped: %w", err)
}
