package egress

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/axiom-run/shell/pkg/axiom"
	"github.com/axiom-run/shell/pkg/ratelimit"
	"github.com/axiom-run/shell/pkg/resiliency"
)

// Auditor records state-mutating egress while a tenant's perspective is RED.
type Auditor interface {
	Record(tenantID, method, alias string)
}

// SlotChecker answers whether a tenant has a module deployed in env, used
// by the security-boundary check for bindings that resolve to a bare
// hostname instead of a full URL.
type SlotChecker interface {
	HasSlot(tenantID string, env axiom.Environment) bool
}

// ErrAliasUnresolved names the "alias unresolved" condition, under which
// the guest call receives a bare 0. Call does not return it; it reports
// the condition through its writeZero result.
var ErrAliasUnresolved = fmt.Errorf("egress: alias unresolved")

// Pipeline implements the egress and resilience pipeline invoked from the
// host function http_call.
type Pipeline struct {
	Bindings *BindingTable
	Manifest *Manifest
	Security *SecurityStore
	Slots    SlotChecker
	Auditor  Auditor

	limiter  ratelimit.Store
	breakers *resiliency.BreakerRegistry
	client   *resiliency.Client

	downstreamRPS float64
}

// NewPipeline wires a pipeline with the given downstream rate and outbound
// retry policy. limiter may be an *ratelimit.InMemoryStore or a
// *ratelimit.RedisStore; pass nil to use an in-memory store.
func NewPipeline(bindings *BindingTable, manifest *Manifest, security *SecurityStore, slots SlotChecker, auditor Auditor, limiter ratelimit.Store, downstreamRPS float64, retryUnsafeMethods bool) *Pipeline {
	if limiter == nil {
		limiter = ratelimit.NewInMemoryStore()
	}
	if downstreamRPS <= 0 {
		downstreamRPS = 10
	}
	return &Pipeline{
		Bindings:      bindings,
		Manifest:      manifest,
		Security:      security,
		Slots:         slots,
		Auditor:       auditor,
		limiter:       limiter,
		breakers:      resiliency.NewBreakerRegistry(),
		client:        resiliency.NewClient(resiliency.DefaultCallTimeout, retryUnsafeMethods),
		downstreamRPS: downstreamRPS,
	}
}

// BreakerState reports the per-alias circuit state for axiom_health_status.
func (p *Pipeline) BreakerState(alias string) resiliency.State {
	return p.breakers.Get(alias).State()
}

// Call executes the eight-step egress pipeline described in the spec for a
// single guest http_call. perspective is the tenant's currently active
// environment. It returns the string to write back into guest memory and
// whether the guest should instead receive a bare 0 (alias unresolved).
func (p *Pipeline) Call(ctx context.Context, tenantID string, perspective axiom.Environment, alias, method string, body []byte) (response string, writeZero bool) {
	// 1. Logical resolution.
	resolvedAlias := p.Manifest.Resolve(tenantID, alias)

	// 2. URL resolution.
	target, ok := p.Bindings.Resolve(tenantID, perspective, resolvedAlias)
	if !ok {
		slog.Warn("egress: alias unresolved", "tenant_id", tenantID, "alias", resolvedAlias)
		return "", true
	}

	// 3. Perspective-aware auditing.
	if perspective == axiom.Red && p.Auditor != nil {
		p.Auditor.Record(tenantID, method, resolvedAlias)
	} else if perspective == axiom.Blue {
		slog.Debug("egress: elevated trace sampling", "tenant_id", tenantID, "alias", resolvedAlias)
	}

	// 4. Security boundary. A target without a scheme is a bare alias
	// naming another tenant co-located in this Shell; it must have a
	// deployed slot in the current perspective, otherwise it could be used
	// to forge internal routing.
	url := target
	if !strings.HasPrefix(url, "http") {
		if p.Slots == nil || !p.Slots.HasSlot(url, perspective) {
			return fmt.Sprintf("Error: security boundary violation for alias %q", resolvedAlias), false
		}
		url = "http://" + url
	}

	// 5. Downstream rate limit.
	allowed, err := p.limiter.Allow(ctx, resolvedAlias, ratelimit.Policy{RPS: p.downstreamRPS, Burst: int(p.downstreamRPS)}, 1)
	if err != nil || !allowed {
		return "Error: Rate Limit Exceeded", false
	}

	// 6-7. Circuit breaker gate + retry loop.
	if method == "" {
		method = http.MethodGet
	}
	headers := map[string]string{}
	if tok, ok := p.Security.VaultToken(resolvedAlias); ok {
		headers["Authorization"] = "Bearer " + tok
	}

	breaker := p.breakers.Get(resolvedAlias)
	result, err := p.client.Do(ctx, breaker, method, url, body, headers)
	if err != nil {
		if err == resiliency.ErrBreakerOpen {
			return "Error: Circuit Breaker Open", false
		}
		return fmt.Sprintf("Error: %s", err.Error()), false
	}

	// 8. Marshalling: success and 4xx bodies both pass through verbatim.
	return string(result.Body), false
}
