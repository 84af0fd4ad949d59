package bridge

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/axiom-run/shell/pkg/axiom"
)

type callContextKey struct{}

// callContext carries the per-invocation state host functions need but
// cannot receive as extra Go parameters: which tenant is calling and at
// which perspective, plus the shared fuel counter for this call.
type callContext struct {
	TenantID    string
	Perspective axiom.Environment
	fuel        *int64
}

// ErrFuelExhausted names the exhausted-budget condition. The host functions
// do not return it: on exhaustion they report "Error: Fuel Exhausted" to
// the guest in-band (see DefaultFuel).
var ErrFuelExhausted = fmt.Errorf("bridge: fuel exhausted")

func withCallContext(ctx context.Context, cc *callContext) context.Context {
	return context.WithValue(ctx, callContextKey{}, cc)
}

func callContextFrom(ctx context.Context) (*callContext, bool) {
	cc, ok := ctx.Value(callContextKey{}).(*callContext)
	return cc, ok
}

// newFuelCounter starts a call's budget at DefaultFuel.
func newFuelCounter() *int64 {
	f := int64(DefaultFuel)
	return &f
}

// consumeFuel decrements the call's budget by cost and reports whether it
// is now exhausted.
func consumeFuel(cc *callContext, cost int64) bool {
	if cc == nil || cc.fuel == nil {
		return false
	}
	return atomic.AddInt64(cc.fuel, -cost) < 0
}
