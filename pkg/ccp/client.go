// Package ccp is a client for the Control and Cold-start Plane: the
// upstream registry of tomain records (tenant id, per-environment wasm
// hashes, and semantic version) consulted during a perspective switch
// that requires a cold deploy.
package ccp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/axiom-run/shell/pkg/axiom"
)

// Tomain is one tenant record as published by the control plane.
type Tomain struct {
	ID         string            `json:"id"`
	WasmHashes map[string]string `json:"wasm_hashes"`
	Version    string            `json:"version"`
}

// Module is a decoded, ready-to-compile guest module for one environment.
type Module struct {
	TenantID string
	Env      axiom.Environment
	Bytes    []byte
	Version  *semver.Version
}

// Client fetches tomain records from the control plane over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a Client against baseURL, e.g. http://localhost:9100.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// FetchTomain retrieves the named tenant's record.
func (c *Client) FetchTomain(ctx context.Context, tenantID string) (*Tomain, error) {
	url := fmt.Sprintf("%s/api/v1/tomains/%s", c.baseURL, tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ccp: fetch tomain %q: %w", tenantID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ccp: fetch tomain %q: status %d", tenantID, resp.StatusCode)
	}

	var t Tomain
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return nil, fmt.Errorf("ccp: decode tomain %q: %w", tenantID, err)
	}
	return &t, nil
}

// ResolveModule fetches a tenant's record and decodes the wasm bytes for
// env, validating the record's version string if present. A tomain
// published without a hash for env is reported as an error rather than
// silently skipping the cold deploy.
func (c *Client) ResolveModule(ctx context.Context, tenantID string, env axiom.Environment) (*Module, error) {
	t, err := c.FetchTomain(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	encoded, ok := t.WasmHashes[string(env)]
	if !ok {
		return nil, fmt.Errorf("ccp: tomain %q has no module for environment %s", tenantID, env)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("ccp: tomain %q: invalid base64 module: %w", tenantID, err)
	}

	var version *semver.Version
	if t.Version != "" {
		v, err := semver.NewVersion(t.Version)
		if err != nil {
			return nil, fmt.Errorf("ccp: tomain %q: invalid version %q: %w", tenantID, t.Version, err)
		}
		version = v
	}

	return &Module{TenantID: tenantID, Env: env, Bytes: raw, Version: version}, nil
}
