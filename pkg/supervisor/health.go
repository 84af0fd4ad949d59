package supervisor

import (
	"context"
	"time"
)

// HealthInterval is how often RunHealthLoop probes every deployed slot.
const HealthInterval = 30 * time.Second

// RunHealthLoop probes every (tenant, env) slot with a bare instantiation
// (Bridge.InvokeHealth) and, for the slot matching the tenant's current
// perspective, writes the result ("Healthy" or "Unhealthy") back into the
// registry file. It blocks until ctx is cancelled; callers should
// run it in its own goroutine. Errors are logged and swallowed, never
// propagated, so one unhealthy tenant can't stall the loop.
func (s *Supervisor) RunHealthLoop(ctx context.Context) {
	ticker := time.NewTicker(HealthInterval)
	defer ticker.Stop()

	s.pollAllSlots(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollAllSlots(ctx)
		}
	}
}

func (s *Supervisor) pollAllSlots(ctx context.Context) {
	for _, tenantID := range s.Tenants.ListTenants() {
		perspective := s.perspectives.Get(tenantID)
		for env, inst := range s.Tenants.Slots(tenantID) {
			status, err := s.Bridge.InvokeHealth(ctx, inst)
			if err != nil {
				s.logger.Error("supervisor: health probe failed", "tenant_id", tenantID, "env", env, "error", err)
				status = "Unhealthy"
			}
			if env != perspective {
				continue
			}
			if s.Writer == nil {
				continue
			}
			if err := s.Writer.SetStatus(tenantID, status); err != nil {
				s.logger.Error("supervisor: writing health status failed", "tenant_id", tenantID, "error", err)
			}
		}
	}
}
