package supervisor_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zapsplice/zap/supervisor"
	"github.com/zapsplice/zap/wire"
)

// TestMain re-executes the test binary as a minimal worker process when
// ZAP_TEST_HELPER_WORKER is set, the same pattern os/exec's own tests use
// (a "TestHelperProcess" entry point) to exercise real process spawning
// without a separate built binary.
func TestMain(m *testing.M) {
	if os.Getenv("ZAP_TEST_HELPER_WORKER") == "1" {
		runHelperWorker()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func runHelperWorker() {
	sock := os.Getenv("ZAP_SOCKET")
	if sock == "" {
		os.Exit(1)
	}

	var nc net.Conn
	var err error
	for i := 0; i < 50; i++ {
		nc, err = net.Dial("unix", sock)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		os.Exit(1)
	}

	conn := wire.NewConn(nc, 0)
	ctx := context.Background()
	_ = conn.Send(ctx, wire.Handshake{ProtocolVersion: 1, Role: wire.RoleWorker, Capabilities: wire.CapCancellation})
	if _, err := conn.Recv(); err != nil {
		return
	}

	if os.Getenv("ZAP_TEST_HELPER_CRASH") == "1" {
		os.Exit(1)
	}

	for {
		msg, err := conn.Recv()
		if err != nil {
			return
		}
		if inv, ok := msg.(wire.Invoke); ok {
			_ = conn.Send(ctx, wire.InvokeResult{RequestID: inv.RequestID, Result: []byte("ok")})
		}
	}
}

func testConfig(t *testing.T) supervisor.Config {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}
	return supervisor.Config{
		WorkerPath:          exe,
		WorkerArgs:          []string{"-test.run=^TestMain$"},
		ExtraEnv:            []string{"ZAP_TEST_HELPER_WORKER=1"},
		SocketPath:          filepath.Join(t.TempDir(), "zap.sock"),
		HealthCheckInterval: 50 * time.Millisecond,
		HandshakeTimeout:    2 * time.Second,
	}
}

func TestSupervisorStartsWorkerAndServesInvoke(t *testing.T) {
	sup := supervisor.New(testConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- sup.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for sup.State() != supervisor.StateReady && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if sup.State() != supervisor.StateReady {
		t.Fatalf("supervisor never reached Ready, state=%v", sup.State())
	}

	r := sup.Router()
	if r == nil {
		t.Fatal("expected a router once worker is Ready")
	}

	invokeCtx, invokeCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer invokeCancel()
	result, rerr := r.Invoke(invokeCtx, "anything", []byte{}, wire.RequestContext{}, time.Second)
	if rerr != nil {
		t.Fatalf("Invoke: %+v", rerr)
	}
	if string(result) != "ok" {
		t.Fatalf("unexpected result: %q", result)
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(3 * time.Second):
		t.Fatal("supervisor.Run did not exit after context cancellation")
	}
}

func TestSupervisorObservesCrashedWorker(t *testing.T) {
	cfg := testConfig(t)
	cfg.ExtraEnv = append(cfg.ExtraEnv, "ZAP_TEST_HELPER_CRASH=1")
	sup := supervisor.New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	go sup.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	sawCrashed := false
	for time.Now().Before(deadline) {
		if sup.State() == supervisor.StateCrashed {
			sawCrashed = true
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !sawCrashed {
		t.Fatal("expected supervisor to observe the worker crashing")
	}
}
