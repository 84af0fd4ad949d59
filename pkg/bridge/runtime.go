// Package bridge implements the host-guest ABI: per-call instantiation,
// linear-memory string marshalling, the host functions exposed to guests
// under import module "axiom", and export dispatch.
package bridge

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// DefaultFuel is the per-call computation budget. wazero's OSS build has
// no native fuel meter, so the budget is counted by hand: every host
// function invocation decrements the counter carried in the call's
// context. Once it is exhausted, http_call, db_execute and
// axiom_health_status hand the guest the string "Error: Fuel Exhausted"
// and axiom_log drops its message; the guest call itself is not aborted,
// and guest computation between host calls is not metered.
const DefaultFuel = 1_000_000

// NewRuntime builds the shared wazero runtime. memoryLimitBytes caps guest
// linear memory (rounded down to whole 64 KiB pages, at least one); 0
// means unlimited.
func NewRuntime(ctx context.Context, memoryLimitBytes int64) (wazero.Runtime, error) {
	cfg := wazero.NewRuntimeConfig()
	if memoryLimitBytes > 0 {
		pages := uint32(memoryLimitBytes / (64 * 1024))
		if pages == 0 {
			pages = 1
		}
		cfg = cfg.WithMemoryLimitPages(pages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)
	return rt, nil
}

// boundsCheck guards every pointer/length pair crossing the boundary
// against the guest's current memory size.
func boundsCheck(mod api.Module, ptr, length uint32) error {
	size := mod.Memory().Size()
	if ptr > size || length > size-ptr {
		return fmt.Errorf("bridge: pointer/length out of bounds (ptr=%d len=%d mem=%d)", ptr, length, size)
	}
	return nil
}
