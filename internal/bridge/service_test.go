package bridge

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/spilink/internal/config"
	"github.com/danmuck/spilink/internal/hal/halfake"
	"github.com/danmuck/spilink/internal/hooks"
	"github.com/danmuck/spilink/internal/testutil/testlog"
	"github.com/danmuck/spilink/internal/transport"
	"github.com/rs/zerolog"
)

func loopbackConfig() ServiceConfig {
	cfg := DefaultServiceConfig()
	cfg.Bridge.Transport.Platform = config.PlatformLoopback
	cfg.Bridge.Transport.SettleDelay = "0s"
	cfg.Bridge.Handshake.PulseInterval = "5ms"
	cfg.Bridge.Admin.Enabled = false
	cfg.HeartbeatInterval = 10 * time.Millisecond
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestServiceLoopbackRoundTrip(t *testing.T) {
	testlog.Start(t)
	svc := NewService(loopbackConfig())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.RunContext(ctx) }()

	link := svc.Link()
	waitFor(t, "link running", func() bool { return link.State() == transport.StateRunning })

	if err := link.Submit([]byte("hello")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, "loopback delivery", func() bool { return svc.Notifications() >= 1 })
	f, ok := link.Receive()
	if !ok || string(f.Payload) != "hello" {
		t.Fatalf("unexpected loopback frame ok=%v payload=%q", ok, f.Payload)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("service did not stop")
	}
	if link.State() != transport.StateStopped {
		t.Fatalf("link should be stopped, got %s", link.State())
	}
}

func TestServiceRejectsBadHeartbeat(t *testing.T) {
	testlog.Start(t)
	cfg := loopbackConfig()
	cfg.HeartbeatInterval = 0
	svc := NewService(cfg)
	if err := svc.RunContext(context.Background()); !errors.Is(err, ErrInvalidHeartbeatInterval) {
		t.Fatalf("expected ErrInvalidHeartbeatInterval, got %v", err)
	}
}

func TestServiceInitFailureSurfaces(t *testing.T) {
	testlog.Start(t)
	p := halfake.New()
	p.OpenErr = errors.New("no such device")
	svc := NewServiceWithPlatform(loopbackConfig(), p)
	if err := svc.RunContext(context.Background()); !errors.Is(err, transport.ErrResourceAcquisition) {
		t.Fatalf("expected acquisition failure, got %v", err)
	}
	if svc.Link().State() != transport.StateUninitialized {
		t.Fatalf("unexpected state: %s", svc.Link().State())
	}
}

func TestServiceRunsSubsystemsInOrder(t *testing.T) {
	testlog.Start(t)
	var mu sync.Mutex
	var calls []string
	rec := func(s string) {
		mu.Lock()
		calls = append(calls, s)
		mu.Unlock()
	}
	mk := func(name string) hooks.Func {
		return hooks.Func{
			ID:        name,
			SetupFn:   func(context.Context) error { rec("up:" + name); return nil },
			CleanupFn: func() { rec("down:" + name) },
		}
	}
	cfg := loopbackConfig()
	cfg.Subsystems = hooks.NewRegistry(mk(SubsystemSerial), mk(SubsystemNetCard), mk(SubsystemBluetooth))
	svc := NewService(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.RunContext(ctx) }()
	waitFor(t, "link running", func() bool { return svc.Link().State() == transport.StateRunning })
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []string{
		"up:serial", "up:netcard", "up:bluetooth",
		"down:bluetooth", "down:netcard", "down:serial",
	}
	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(calls, want) {
		t.Fatalf("unexpected subsystem order: %v", calls)
	}
}

func TestBuiltinSubsystemNames(t *testing.T) {
	testlog.Start(t)
	reg := builtinSubsystems(testLogger())
	var names []string
	for _, s := range reg.All() {
		names = append(names, s.Name())
	}
	if !reflect.DeepEqual(names, []string{SubsystemSerial, SubsystemNetCard, SubsystemBluetooth}) {
		t.Fatalf("unexpected subsystems: %v", names)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
