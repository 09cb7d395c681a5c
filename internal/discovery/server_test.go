package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/fabctl/internal/testutil/testlog"
)

func startTestServer(t *testing.T) (addr string, cancel context.CancelFunc) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, stop := context.WithCancel(context.Background())
	srv := NewServer(ServerConfig{ReadTimeout: 2 * time.Second})
	done := make(chan error, 1)
	go func() {
		done <- srv.ServeListener(ctx, ln)
	}()
	t.Cleanup(func() {
		stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Errorf("server did not stop")
		}
	})
	return ln.Addr().String(), stop
}

func TestClientRegisterLookupNames(t *testing.T) {
	testlog.Start(t)
	addr, _ := startTestServer(t)
	ctx := context.Background()

	node := NewClient(addr, time.Second)
	defer node.Close()
	if err := node.Register(ctx, "db@host1", 9361, false); err != nil {
		t.Fatalf("register node: %v", err)
	}

	maint := NewClient(addr, time.Second)
	defer maint.Close()
	if err := maint.Register(ctx, "db_maint_42@host1", 0, true); err != nil {
		t.Fatalf("register maint: %v", err)
	}

	port, err := maint.Lookup(ctx, "db@host1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if port != 9361 {
		t.Fatalf("port=%d want 9361", port)
	}

	names, err := maint.Names(ctx)
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if len(names) != 1 || names[0].Name != "db@host1" {
		t.Fatalf("hidden registration leaked into names: %+v", names)
	}
}

func TestLookupUnknownName(t *testing.T) {
	testlog.Start(t)
	addr, _ := startTestServer(t)

	c := NewClient(addr, time.Second)
	defer c.Close()
	_, err := c.Lookup(context.Background(), "ghost@nowhere")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistrationDiesWithConnection(t *testing.T) {
	testlog.Start(t)
	addr, _ := startTestServer(t)
	ctx := context.Background()

	ephemeral := NewClient(addr, time.Second)
	if err := ephemeral.Register(ctx, "transient@host1", 7000, false); err != nil {
		t.Fatalf("register: %v", err)
	}
	_ = ephemeral.Close()

	observer := NewClient(addr, time.Second)
	defer observer.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, err := observer.Lookup(ctx, "transient@host1")
		if errors.Is(err, ErrNotFound) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("registration survived connection close: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestEnsureDaemonAgainstRunningServer(t *testing.T) {
	testlog.Start(t)
	addr, _ := startTestServer(t)

	err := EnsureDaemon(context.Background(), EnsureConfig{Addr: addr})
	if err != nil {
		t.Fatalf("ensure against live daemon: %v", err)
	}
}

func TestEnsureDaemonMissingBinary(t *testing.T) {
	testlog.Start(t)
	err := EnsureDaemon(context.Background(), EnsureConfig{
		Addr:         "127.0.0.1:1", // nothing listens here
		BinPath:      "/nonexistent/fabdiscd",
		StartTimeout: 100 * time.Millisecond,
	})
	if !errors.Is(err, ErrDaemonUnavailable) {
		t.Fatalf("expected ErrDaemonUnavailable, got %v", err)
	}
}
