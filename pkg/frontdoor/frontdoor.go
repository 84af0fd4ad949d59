// Package frontdoor implements the Shell's HTTP ingress: tenant function
// dispatch, OpenAPI reflection, and the administrative hot-swap surface.
package frontdoor

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/axiom-run/shell/pkg/api"
	"github.com/axiom-run/shell/pkg/auth"
	"github.com/axiom-run/shell/pkg/axiom"
	"github.com/axiom-run/shell/pkg/egress"
	"github.com/axiom-run/shell/pkg/ratelimit"
	"github.com/axiom-run/shell/pkg/registryfile"
	"github.com/axiom-run/shell/pkg/supervisor"
)

// Server wires the Shell's HTTP routes against a Supervisor.
type Server struct {
	Supervisor    *supervisor.Supervisor
	Security      *egress.SecurityStore
	Validator     *auth.Validator
	Upstream      ratelimit.Store
	UpstreamRPS   float64
	RegistryPath  string
	ReloadTargets registryfile.Targets
	PublicBaseURL string
	logger        *slog.Logger
}

// NewServer builds a Server. logger may be nil to use slog's default.
func NewServer(sup *supervisor.Supervisor, security *egress.SecurityStore, upstream ratelimit.Store, upstreamRPS float64, registryPath string, targets registryfile.Targets, publicBaseURL string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if upstream == nil {
		upstream = ratelimit.NewInMemoryStore()
	}
	if upstreamRPS <= 0 {
		upstreamRPS = 100
	}
	return &Server{
		Supervisor:    sup,
		Security:      security,
		Validator:     auth.NewValidator(security),
		Upstream:      upstream,
		UpstreamRPS:   upstreamRPS,
		RegistryPath:  registryPath,
		ReloadTargets: targets,
		PublicBaseURL: publicBaseURL,
		logger:        logger,
	}
}

// Routes builds the request pipeline: request-ID stamping and CORS wrap
// every route, outermost first, so a handler's own error responses can
// still read back the X-Request-ID this layer sets.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleStatus)
	mux.HandleFunc("GET /reflect/{tenant}", s.handleReflect)
	mux.HandleFunc("POST /admin/reload-bindings", s.handleReloadBindings)
	mux.HandleFunc("POST /admin/perspective", s.handlePerspective)
	mux.HandleFunc("POST /admin/retire", s.handleRetire)
	mux.HandleFunc("GET /admin/health/{tenant}/{env}", s.handleHealth)
	mux.HandleFunc("GET /admin/tenants", s.handleTenants)
	mux.HandleFunc("/{tenant}/{func}", s.handleInvoke)
	return auth.RequestIDMiddleware(auth.CORSMiddleware(nil)(mux))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("axiom-shell: ok"))
}

func (s *Server) handleReflect(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")
	doc, err := s.Supervisor.Reflect(r.Context(), tenantID, s.PublicBaseURL+"/"+tenantID)
	if err != nil {
		api.WriteNotFoundR(w, r, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(doc))
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	tenantID := r.PathValue("tenant")
	funcName := r.PathValue("func")

	allowed, err := s.Upstream.Allow(r.Context(), tenantID, ratelimit.Policy{RPS: s.UpstreamRPS, Burst: int(s.UpstreamRPS)}, 1)
	if err != nil || !allowed {
		api.WriteTooManyRequestsR(w, r, 1)
		return
	}

	if _, ok := s.Security.PublicKeyPEM(tenantID); ok {
		if err := s.authenticate(tenantID, r); err != nil {
			api.WriteUnauthorizedR(w, r, err.Error())
			return
		}
	}

	payload, err := assembleBody(r)
	if err != nil {
		api.WriteBadRequestR(w, r, err.Error())
		return
	}

	result, err := s.Supervisor.Dispatch(r.Context(), tenantID, funcName, payload)
	if err != nil {
		api.WriteInternalR(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(result))
}

func (s *Server) authenticate(tenantID string, r *http.Request) error {
	const prefix = "Bearer "
	hdr := r.Header.Get("Authorization")
	if !strings.HasPrefix(hdr, prefix) {
		return errMissingBearer
	}
	token := strings.TrimPrefix(hdr, prefix)
	_, err := s.Validator.Validate(tenantID, token)
	return err
}

// assembleBody implements the spec's request-body-assembly rule: for
// POST/PUT, prefer the raw body, folding query parameters in only if the
// body is empty; GET/DELETE always use query parameters.
func assembleBody(r *http.Request) (string, error) {
	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return "", err
		}
		if len(body) > 0 {
			return string(body), nil
		}
	}
	return queryAsJSON(r.URL.Query()), nil
}

func queryAsJSON(values url.Values) string {
	flat := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			flat[k] = v[0]
		}
	}
	encoded, err := json.Marshal(flat)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

func (s *Server) handleReloadBindings(w http.ResponseWriter, r *http.Request) {
	if _, err := registryfile.Apply(s.RegistryPath, s.ReloadTargets); err != nil {
		api.WriteInternalR(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type perspectiveRequest struct {
	TenantID string `json:"tenant_id"`
	Target   string `json:"target"`
}

func (s *Server) handlePerspective(w http.ResponseWriter, r *http.Request) {
	var req perspectiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequestR(w, r, "invalid JSON body")
		return
	}
	env, err := axiom.ParseEnvironment(req.Target)
	if err != nil {
		api.WriteBadRequestR(w, r, err.Error())
		return
	}
	if err := s.Supervisor.Switch(r.Context(), req.TenantID, env); err != nil {
		api.WriteInternalR(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type retireRequest struct {
	TenantID string `json:"tenant_id"`
	Env      string `json:"env"`
}

func (s *Server) handleRetire(w http.ResponseWriter, r *http.Request) {
	var req retireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequestR(w, r, "invalid JSON body")
		return
	}
	env, err := axiom.ParseEnvironment(req.Env)
	if err != nil {
		api.WriteBadRequestR(w, r, err.Error())
		return
	}
	s.Supervisor.Retire(r.Context(), req.TenantID, env)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")
	env, err := axiom.ParseEnvironment(r.PathValue("env"))
	if err != nil {
		api.WriteBadRequestR(w, r, err.Error())
		return
	}
	inst, ok := s.Supervisor.Tenants.Get(tenantID, env)
	if !ok {
		api.WriteNotFoundR(w, r, "no such slot")
		return
	}
	status, err := s.Supervisor.Bridge.InvokeHealth(r.Context(), inst)
	w.Header().Set("Content-Type", "text/plain")
	if err != nil {
		_, _ = w.Write([]byte("Unhealthy: " + err.Error()))
		return
	}
	_, _ = w.Write([]byte(status))
}

func (s *Server) handleTenants(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.Supervisor.Tenants.ListTenants())
}

var errMissingBearer = errors.New("missing bearer token")
