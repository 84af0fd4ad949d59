package hotreload_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/axiom-run/shell/pkg/axiom"
	"github.com/axiom-run/shell/pkg/bridge"
	"github.com/axiom-run/shell/pkg/dbprovider"
	"github.com/axiom-run/shell/pkg/egress"
	"github.com/axiom-run/shell/pkg/hotreload"
	"github.com/axiom-run/shell/pkg/supervisor"
	"github.com/axiom-run/shell/pkg/tenant"
)

// greetModule exports one page of memory and "greet", a zero-argument
// function returning a pointer to the NUL-terminated string "hi".
var greetModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,
	0x05, 0x03, 0x01, 0x00, 0x01,
	0x07, 0x12,
	0x02,
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, 0x02, 0x00,
	0x05, 0x67, 0x72, 0x65, 0x65, 0x74, 0x00, 0x00,
	0x0a, 0x06, 0x01, 0x04, 0x00, 0x41, 0x08, 0x0b,
	0x0b, 0x09, 0x01, 0x00, 0x41, 0x08, 0x0b, 0x03, 0x68, 0x69, 0x00,
}

func TestHotSwapDeploysToGreen(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := bridge.NewRuntime(ctx, 0)
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	defer rt.Close(ctx)

	mgr := tenant.NewManager(rt)
	pipeline := egress.NewPipeline(egress.NewBindingTable(), egress.NewManifest(), egress.NewSecurityStore(), mgr, nil, nil, 10, false)
	db := dbprovider.NewRegistry()
	br, err := bridge.NewBridge(ctx, rt, pipeline, db, nil)
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	sup := supervisor.New(mgr, pipeline, db, br, nil, nil, nil)

	socketPath := filepath.Join(t.TempDir(), "axiom.sock")
	listener := hotreload.New(socketPath, sup, nil)
	go listener.Serve(ctx)

	var conn net.Conn
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("unix", socketPath)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	msg := map[string]string{
		"tenant_id":   "acme",
		"wasm_base64": base64.StdEncoding.EncodeToString(greetModule),
	}
	if err := json.NewEncoder(conn).Encode(msg); err != nil {
		t.Fatalf("encode: %v", err)
	}
	conn.Close()

	var result string
	for i := 0; i < 50; i++ {
		result, err = sup.Dispatch(ctx, "acme", "greet", "")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dispatch after hot-swap: %v", err)
	}
	if result != "hi" {
		t.Fatalf("expected hi, got %q", result)
	}
	if sup.Perspective("acme") != axiom.Green {
		t.Fatalf("expected GREEN perspective after hot-swap, got %s", sup.Perspective("acme"))
	}
}
