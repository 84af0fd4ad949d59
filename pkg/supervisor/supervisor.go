// Package supervisor composes the tenant manager, egress pipeline, database
// provider registry, and host-guest bridge into the Shell's request
// dispatch path, and owns the perspective table and audit log.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/axiom-run/shell/pkg/axiom"
	"github.com/axiom-run/shell/pkg/bridge"
	"github.com/axiom-run/shell/pkg/ccp"
	"github.com/axiom-run/shell/pkg/dbprovider"
	"github.com/axiom-run/shell/pkg/egress"
	"github.com/axiom-run/shell/pkg/registryfile"
	"github.com/axiom-run/shell/pkg/tenant"
)

// Supervisor owns the slot table, perspective table, and audit log, and is
// the sole path by which the front door and hot-reload listener reach the
// bridge, egress pipeline, and database registry.
type Supervisor struct {
	Tenants  *tenant.Manager
	Pipeline *egress.Pipeline
	DB       *dbprovider.Registry
	Bridge   *bridge.Bridge
	CCP      *ccp.Client
	Writer   *registryfile.Writer

	perspectives *perspectiveTable
	audit        *auditLog
	logger       *slog.Logger
}

// New wires a Supervisor. ccpClient may be nil in deployments that never
// need a cold perspective switch.
func New(tenants *tenant.Manager, pipeline *egress.Pipeline, db *dbprovider.Registry, br *bridge.Bridge, ccpClient *ccp.Client, writer *registryfile.Writer, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Supervisor{
		Tenants:      tenants,
		Pipeline:     pipeline,
		DB:           db,
		Bridge:       br,
		CCP:          ccpClient,
		Writer:       writer,
		perspectives: newPerspectiveTable(),
		audit:        newAuditLog(),
		logger:       logger,
	}
	// The audit log is the Supervisor's; the pipeline only records into it
	// through the Auditor interface, so RED-perspective egress calls land
	// in the same log a cold-perspective switch already ensures exists.
	if pipeline != nil {
		pipeline.Auditor = s.audit
	}
	return s
}

// Perspective returns the currently active environment for tenantID.
func (s *Supervisor) Perspective(tenantID string) axiom.Environment {
	return s.perspectives.Get(tenantID)
}

// AuditEntries returns a copy of tenantID's in-memory audit trail.
func (s *Supervisor) AuditEntries(tenantID string) []AuditEntry {
	return s.audit.Entries(tenantID)
}

// Dispatch invokes funcName on tenantID's actively-perspectived slot. It is
// the path driven by the HTTP front door's /<tenant>/<func> route.
func (s *Supervisor) Dispatch(ctx context.Context, tenantID, funcName, payload string) (string, error) {
	env := s.perspectives.Get(tenantID)
	inst, ok := s.Tenants.Get(tenantID, env)
	if !ok {
		return "", fmt.Errorf("supervisor: no %s slot deployed for tenant %q", env, tenantID)
	}
	return s.Bridge.Invoke(ctx, inst, funcName, payload)
}

// Reflect invokes tenantID's self-description export for its active
// perspective, rewriting the advertised server URL to publicBaseURL.
func (s *Supervisor) Reflect(ctx context.Context, tenantID, publicBaseURL string) (string, error) {
	env := s.perspectives.Get(tenantID)
	inst, ok := s.Tenants.Get(tenantID, env)
	if !ok {
		return "", fmt.Errorf("supervisor: no %s slot deployed for tenant %q", env, tenantID)
	}
	return s.Bridge.Reflect(ctx, inst, publicBaseURL)
}

// Switch implements the perspective-switch procedure: cold-deploy from the
// CCP if the target slot doesn't exist yet, update the perspective table,
// and ensure an audit log exists when entering RED.
func (s *Supervisor) Switch(ctx context.Context, tenantID string, target axiom.Environment) error {
	if _, ok := s.Tenants.Get(tenantID, target); !ok {
		if s.CCP == nil {
			return fmt.Errorf("supervisor: no slot for %s/%s and no CCP configured for cold deploy", tenantID, target)
		}
		mod, err := s.CCP.ResolveModule(ctx, tenantID, target)
		if err != nil {
			return fmt.Errorf("supervisor: cold deploy %s/%s: %w", tenantID, target, err)
		}
		if _, err := s.Tenants.Register(ctx, tenantID, target, mod.Bytes); err != nil {
			return fmt.Errorf("supervisor: register %s/%s: %w", tenantID, target, err)
		}
	}

	s.perspectives.Set(tenantID, target)
	if target == axiom.Red {
		s.audit.Ensure(tenantID)
	}
	return nil
}

// Retire drops a tenant's slot for env. If it was the active perspective,
// the tenant falls back to GREEN.
func (s *Supervisor) Retire(ctx context.Context, tenantID string, env axiom.Environment) {
	s.Tenants.Remove(ctx, tenantID, env)
	if s.perspectives.Get(tenantID) == env {
		s.perspectives.Set(tenantID, axiom.Green)
	}
}

// HotSwap implements the Unix-socket ingress: deploy wasmBytes into GREEN
// and make it the active perspective immediately.
func (s *Supervisor) HotSwap(ctx context.Context, tenantID string, wasmBytes []byte) error {
	if _, err := s.Tenants.Register(ctx, tenantID, axiom.Green, wasmBytes); err != nil {
		return fmt.Errorf("supervisor: hot-swap register: %w", err)
	}
	s.perspectives.Set(tenantID, axiom.Green)
	return nil
}
