package bridge

import (
	"context"
	"log/slog"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/axiom-run/shell/pkg/axiom"
	"github.com/axiom-run/shell/pkg/dbprovider"
	"github.com/axiom-run/shell/pkg/egress"
)

// fuel cost charged per host-function call; http_call and db_execute cost
// more than axiom_log since they perform real I/O.
const (
	fuelCostLog    = 100
	fuelCostIO     = 5_000
	fuelCostHealth = 500
)

// Bridge owns the shared wazero runtime and the host module registered
// under import name "axiom". One Bridge serves every tenant.
type Bridge struct {
	runtime  wazero.Runtime
	pipeline *egress.Pipeline
	db       *dbprovider.Registry
	logger   *slog.Logger

	callCounter uint64
}

// NewBridge wires a Bridge and registers its host module into runtime.
// Call once at startup, before any tenant module is instantiated.
func NewBridge(ctx context.Context, runtime wazero.Runtime, pipeline *egress.Pipeline, db *dbprovider.Registry, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{runtime: runtime, pipeline: pipeline, db: db, logger: logger}
	if err := b.registerHostModule(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bridge) registerHostModule(ctx context.Context) error {
	_, err := b.runtime.NewHostModuleBuilder("axiom").
		NewFunctionBuilder().WithFunc(b.axiomLog).Export("axiom_log").
		NewFunctionBuilder().WithFunc(b.httpCall).Export("http_call").
		NewFunctionBuilder().WithFunc(b.dbExecute).Export("db_execute").
		NewFunctionBuilder().WithFunc(b.axiomHealthStatus).Export("axiom_health_status").
		NewFunctionBuilder().WithFunc(b.getFamilyToken).Export("get_family_token").
		Instantiate(ctx)
	return err
}

// axiomLog implements (ptr, len, level) -> (). level: 0=error 1=warn
// 2=info 3=debug, anything else=trace.
func (b *Bridge) axiomLog(ctx context.Context, mod api.Module, ptr, length, level uint32) {
	cc, _ := callContextFrom(ctx)
	if consumeFuel(cc, fuelCostLog) {
		return
	}
	msg, err := readBytes(mod, ptr, length)
	if err != nil {
		b.logger.Warn("bridge: axiom_log read failed", "error", err)
		return
	}
	tenantID := ""
	if cc != nil {
		tenantID = cc.TenantID
	}
	switch level {
	case 0:
		b.logger.Error(string(msg), "tenant_id", tenantID)
	case 1:
		b.logger.Warn(string(msg), "tenant_id", tenantID)
	case 2:
		b.logger.Info(string(msg), "tenant_id", tenantID)
	case 3:
		b.logger.Debug(string(msg), "tenant_id", tenantID)
	default:
		b.logger.Debug(string(msg), "tenant_id", tenantID, "trace", true)
	}
}

// httpCall implements (alias_ptr, method_ptr, body_ptr, body_len) -> result_ptr.
func (b *Bridge) httpCall(ctx context.Context, mod api.Module, aliasPtr, methodPtr, bodyPtr, bodyLen uint32) uint32 {
	cc, ok := callContextFrom(ctx)
	if !ok {
		return 0
	}
	if consumeFuel(cc, fuelCostIO) {
		return mustWrite(mod, "Error: Fuel Exhausted")
	}

	alias, err := readCString(mod, aliasPtr)
	if err != nil {
		b.logger.Warn("bridge: http_call alias read failed", "error", err)
		return 0
	}
	method, err := readCString(mod, methodPtr)
	if err != nil {
		b.logger.Warn("bridge: http_call method read failed", "error", err)
		return 0
	}
	body, err := readBytes(mod, bodyPtr, bodyLen)
	if err != nil {
		b.logger.Warn("bridge: http_call body read failed", "error", err)
		return 0
	}

	response, writeZero := b.pipeline.Call(ctx, cc.TenantID, cc.Perspective, alias, method, body)
	if writeZero {
		return 0
	}
	return mustWrite(mod, response)
}

// dbExecute implements (alias_ptr, query_ptr, query_len) -> result_ptr.
func (b *Bridge) dbExecute(ctx context.Context, mod api.Module, aliasPtr, queryPtr, queryLen uint32) uint32 {
	cc, ok := callContextFrom(ctx)
	if !ok {
		return 0
	}
	if consumeFuel(cc, fuelCostIO) {
		return mustWrite(mod, "Error: Fuel Exhausted")
	}

	alias, err := readCString(mod, aliasPtr)
	if err != nil {
		b.logger.Warn("bridge: db_execute alias read failed", "error", err)
		return 0
	}
	query, err := readBytes(mod, queryPtr, queryLen)
	if err != nil {
		b.logger.Warn("bridge: db_execute query read failed", "error", err)
		return 0
	}

	result, err := b.db.Execute(ctx, alias, query)
	if err != nil {
		return mustWrite(mod, "Error: "+err.Error())
	}
	if cc.Perspective == axiom.Red {
		b.logger.Info("audited db_execute", "tenant_id", cc.TenantID, "alias", alias)
		if b.pipeline != nil && b.pipeline.Auditor != nil {
			b.pipeline.Auditor.Record(cc.TenantID, "db_execute", alias)
		}
	}

	encoded, err := encodeJSON(result)
	if err != nil {
		return mustWrite(mod, "Error: "+err.Error())
	}
	return mustWrite(mod, encoded)
}

// axiomHealthStatus implements (alias_ptr) -> result_ptr, returning the
// breaker state for alias as a printable token.
func (b *Bridge) axiomHealthStatus(ctx context.Context, mod api.Module, aliasPtr uint32) uint32 {
	cc, _ := callContextFrom(ctx)
	if consumeFuel(cc, fuelCostHealth) {
		return mustWrite(mod, "Error: Fuel Exhausted")
	}
	alias, err := readCString(mod, aliasPtr)
	if err != nil {
		return 0
	}
	state := b.pipeline.BreakerState(alias)
	return mustWrite(mod, string(state))
}

// getFamilyToken implements () -> i32. Reserved; currently returns 0.
func (b *Bridge) getFamilyToken(ctx context.Context, mod api.Module) uint32 {
	return 0
}

func mustWrite(mod api.Module, s string) uint32 {
	offset, err := writeCString(mod, s)
	if err != nil {
		return 0
	}
	return offset
}
