// Package hotreload implements the Shell's second ingress: a Unix domain
// socket that accepts a single deploy message per connection and always
// targets the GREEN slot.
package hotreload

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net"
	"os"

	"github.com/axiom-run/shell/pkg/supervisor"
)

// message is the single JSON payload a connection carries.
type message struct {
	TenantID   string `json:"tenant_id"`
	WasmBase64 string `json:"wasm_base64"`
}

// Listener accepts hot-swap deploys over a Unix domain socket.
type Listener struct {
	SocketPath string
	Supervisor *supervisor.Supervisor
	logger     *slog.Logger
}

// New builds a Listener bound to socketPath. The socket file is removed on
// Serve startup if a stale one is left from a previous run.
func New(socketPath string, sup *supervisor.Supervisor, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{SocketPath: socketPath, Supervisor: sup, logger: logger}
}

// Serve listens until ctx is cancelled. Each accepted connection carries
// exactly one JSON message; the response is implicit in the connection
// close, per the spec.
func (l *Listener) Serve(ctx context.Context) error {
	if err := os.RemoveAll(l.SocketPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	ln, err := net.Listen("unix", l.SocketPath)
	if err != nil {
		return err
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.logger.Error("hotreload: accept failed", "error", err)
			continue
		}
		go l.handle(ctx, conn)
	}
}

func (l *Listener) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	var msg message
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		l.logger.Warn("hotreload: decode failed", "error", err)
		return
	}
	if msg.TenantID == "" {
		l.logger.Warn("hotreload: missing tenant_id")
		return
	}

	wasmBytes, err := base64.StdEncoding.DecodeString(msg.WasmBase64)
	if err != nil {
		l.logger.Warn("hotreload: invalid base64 module", "tenant_id", msg.TenantID, "error", err)
		return
	}

	if err := l.Supervisor.HotSwap(ctx, msg.TenantID, wasmBytes); err != nil {
		l.logger.Error("hotreload: deploy failed", "tenant_id", msg.TenantID, "error", err)
		return
	}
	l.logger.Info("hotreload: deployed", "tenant_id", msg.TenantID)
}
