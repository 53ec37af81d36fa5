package shelly

import (
	"context"
	"sync"
	"testing"
	"time"
)

type serviceFixture struct {
	service *Service
	disc    *mockDiscoverer
	store   *mockStore
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	disc := newMockDiscoverer()
	adapter, err := NewAdapter(AdapterOptions{
		Discoverer:   disc,
		Logger:       newTestLogger(t),
		StaleTimeout: time.Minute,
	})
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}

	store := newMockStore()
	mapper := NewMapper(store, nil, newTestLogger(t))

	service, err := NewService(ServiceOptions{
		Adapter: adapter,
		Mapper:  mapper,
		Store:   store,
		Logger:  newTestLogger(t),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &serviceFixture{service: service, disc: disc, store: store}
}

func TestServiceLifecycle(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	if got := f.service.State(); got != StateStopped {
		t.Fatalf("initial state = %q", got)
	}

	if err := f.service.EnsureStarted(ctx); err != nil {
		t.Fatalf("EnsureStarted: %v", err)
	}
	if got := f.service.State(); got != StateStarted {
		t.Fatalf("state after start = %q", got)
	}

	// Idempotent start.
	if err := f.service.EnsureStarted(ctx); err != nil {
		t.Fatalf("second EnsureStarted: %v", err)
	}

	if err := f.service.EnsureStopped(ctx); err != nil {
		t.Fatalf("EnsureStopped: %v", err)
	}
	if got := f.service.State(); got != StateStopped {
		t.Fatalf("state after stop = %q", got)
	}

	// Idempotent stop.
	if err := f.service.EnsureStopped(ctx); err != nil {
		t.Fatalf("second EnsureStopped: %v", err)
	}
}

func TestServiceStartResetsConnectionStates(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	// A record left behind by a previous run still claims to be connected.
	f.store.seedDevice(DeviceRecord{ID: "dev-1", VendorID: "a4cf12", Enabled: true})
	_ = f.store.SetConnectionState(ctx, "dev-1", ConnectionConnected)

	if err := f.service.EnsureStarted(ctx); err != nil {
		t.Fatalf("EnsureStarted: %v", err)
	}
	defer func() { _ = f.service.EnsureStopped(ctx) }()

	if got := f.store.connection("dev-1"); got != ConnectionUnknown {
		t.Errorf("connection state after start = %q, want %q", got, ConnectionUnknown)
	}
}

func TestServiceRestart(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	if err := f.service.EnsureStarted(ctx); err != nil {
		t.Fatalf("EnsureStarted: %v", err)
	}
	if err := f.service.Restart(ctx); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if got := f.service.State(); got != StateStarted {
		t.Fatalf("state after restart = %q", got)
	}

	// Restart from stopped behaves like a start.
	if err := f.service.EnsureStopped(ctx); err != nil {
		t.Fatalf("EnsureStopped: %v", err)
	}
	if err := f.service.Restart(ctx); err != nil {
		t.Fatalf("Restart from stopped: %v", err)
	}
	if got := f.service.State(); got != StateStarted {
		t.Fatalf("state = %q", got)
	}
	_ = f.service.EnsureStopped(ctx)
}

func TestServiceRequestStartDebounce(t *testing.T) {
	f := newServiceFixture(t)

	// A burst of requests collapses into one deferred start.
	f.service.RequestStart(80 * time.Millisecond)
	f.service.RequestStart(80 * time.Millisecond)
	f.service.RequestStart(80 * time.Millisecond)

	if got := f.service.State(); got != StateStopped {
		t.Fatalf("state before delay elapsed = %q", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.service.State() != StateStarted {
		if time.Now().After(deadline) {
			t.Fatal("service never started")
		}
		time.Sleep(10 * time.Millisecond)
	}
	_ = f.service.EnsureStopped(context.Background())
}

func TestServiceConcurrentTransitions(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.service.EnsureStarted(ctx)
		}()
	}
	wg.Wait()

	if got := f.service.State(); got != StateStarted {
		t.Fatalf("state after concurrent starts = %q", got)
	}
	_ = f.service.EnsureStopped(ctx)
}

func TestServiceMapsDiscoveredDevices(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	if err := f.service.EnsureStarted(ctx); err != nil {
		t.Fatalf("EnsureStarted: %v", err)
	}
	defer func() { _ = f.service.EnsureStopped(ctx) }()

	h := newMockHandle("a4cf12", "SHSW-1", "10.0.0.20")
	h.setAttr("relay0", true)
	f.disc.announce(h)

	dev, err := f.store.FindDeviceByVendorID(ctx, "a4cf12")
	if err != nil || dev == nil {
		t.Fatalf("device not mapped: %v", err)
	}
	if v, ok := f.store.value(dev.ID, "relay_0", "state"); !ok || v != "true" {
		t.Errorf("relay state = %q, %v", v, ok)
	}

	// Change events flow through to the store.
	h.fireChange("relay0", true, false)
	if v, _ := f.store.value(dev.ID, "relay_0", "state"); v != "false" {
		t.Errorf("state after change = %q", v)
	}

	// Offline transitions update connection state.
	h.fireOffline()
	if f.store.connection(dev.ID) != ConnectionDisconnected {
		t.Errorf("connection = %q", f.store.connection(dev.ID))
	}
}

func TestServiceSurvivesUnsupportedDevice(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	if err := f.service.EnsureStarted(ctx); err != nil {
		t.Fatalf("EnsureStarted: %v", err)
	}
	defer func() { _ = f.service.EnsureStopped(ctx) }()

	// Unsupported model is logged and skipped.
	f.disc.announce(newMockHandle("x1", "SHIX3-1", "10.0.0.40"))

	// A supported device afterwards still maps.
	f.disc.announce(newMockHandle("a4cf12", "SHSW-1", "10.0.0.20"))
	dev, _ := f.store.FindDeviceByVendorID(ctx, "a4cf12")
	if dev == nil {
		t.Fatal("supported device not mapped after unsupported one")
	}
}
