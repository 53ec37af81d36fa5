package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/gray-logic-shelly/internal/bridges/shelly"
	"github.com/nerrad567/gray-logic-shelly/internal/device"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/logging"
)

// =============================================================================
// Test Fixtures
// =============================================================================

const testSchema = `
CREATE TABLE devices (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    slug TEXT NOT NULL UNIQUE,
    category TEXT NOT NULL DEFAULT 'generic',
    protocol TEXT NOT NULL,
    vendor_type TEXT NOT NULL,
    vendor_id TEXT NOT NULL UNIQUE,
    host TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    connection_state TEXT NOT NULL DEFAULT 'unknown',
    connection_updated_at TEXT,
    manufacturer TEXT,
    model TEXT,
    firmware_version TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE TABLE channels (
    id TEXT PRIMARY KEY,
    device_id TEXT NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
    identifier TEXT NOT NULL,
    name TEXT NOT NULL,
    category TEXT NOT NULL,
    created_at TEXT NOT NULL,
    UNIQUE(device_id, identifier)
);
CREATE TABLE properties (
    id TEXT PRIMARY KEY,
    channel_id TEXT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
    identifier TEXT NOT NULL,
    category TEXT NOT NULL,
    data_type TEXT NOT NULL,
    permissions TEXT NOT NULL DEFAULT 'ro',
    unit TEXT,
    format TEXT,
    value TEXT,
    value_updated_at TEXT,
    created_at TEXT NOT NULL,
    UNIQUE(channel_id, identifier)
);
`

// newTestServer builds a server over an in-memory registry and returns the
// httptest server wrapping its router.
func newTestServer(t *testing.T, deps func(*Deps)) (*httptest.Server, *device.Registry) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	// :memory: databases are per-connection; the pool must not open a second one
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	if _, err := db.Exec(testSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	registry := device.NewRegistry(device.NewSQLiteRepository(db))

	d := Deps{
		Config:   config.APIConfig{Host: "127.0.0.1", Port: 0},
		Logger:   logging.Default(),
		Registry: registry,
		Version:  "test",
	}
	if deps != nil {
		deps(&d)
	}

	srv, err := New(d)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)
	return ts, registry
}

// seedDevice creates a device through the registry and returns it.
func seedDevice(t *testing.T, registry *device.Registry, name, vendorID string) *device.Device {
	t.Helper()

	dev := &device.Device{
		Name:       name,
		Category:   device.CategoryRelay,
		Protocol:   "shelly",
		VendorType: "SHSW-1",
		VendorID:   vendorID,
		Host:       "192.168.1.50",
		Enabled:    true,
	}
	if err := registry.CreateDevice(context.Background(), dev); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	return dev
}

// fakeBridge is a stub BridgeService that records transitions.
type fakeBridge struct {
	state      shelly.ServiceState
	startErr   error
	stopErr    error
	restartErr error
}

func (f *fakeBridge) State() shelly.ServiceState { return f.state }

func (f *fakeBridge) EnsureStarted(context.Context) error {
	if f.startErr == nil {
		f.state = shelly.StateStarted
	}
	return f.startErr
}

func (f *fakeBridge) EnsureStopped(context.Context) error {
	if f.stopErr == nil {
		f.state = shelly.StateStopped
	}
	return f.stopErr
}

func (f *fakeBridge) Restart(context.Context) error {
	if f.restartErr == nil {
		f.state = shelly.StateStarted
	}
	return f.restartErr
}

// fakeInventory returns a fixed device list and records mutations.
type fakeInventory struct {
	devices []shelly.RegisteredDevice

	enabledCalls map[string]bool
	credsID      string
	credsUser    string
	credsPass    string
	credsErr     error
}

func (f *fakeInventory) Devices() []shelly.RegisteredDevice { return f.devices }

func (f *fakeInventory) UpdateDeviceEnabledStatus(id string, enabled bool) {
	if f.enabledCalls == nil {
		f.enabledCalls = make(map[string]bool)
	}
	f.enabledCalls[id] = enabled
}

func (f *fakeInventory) SetDeviceAuthCredentials(id, username, password string) error {
	f.credsID, f.credsUser, f.credsPass = id, username, password
	return f.credsErr
}

// fakeProber returns a canned probe result.
type fakeProber struct {
	result   *shelly.ProbeResult
	err      error
	lastHost string
}

func (f *fakeProber) Probe(_ context.Context, host, _, _ string) (*shelly.ProbeResult, error) {
	f.lastHost = host
	return f.result, f.err
}

// doJSON performs a request and decodes the JSON response body into out.
func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

// =============================================================================
// Health Tests
// =============================================================================

func TestHandleHealth(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	var body map[string]any
	status := doJSON(t, http.MethodGet, ts.URL+"/api/v1/health", nil, &body)

	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("version = %v, want test", body["version"])
	}
}

// =============================================================================
// Device Tests
// =============================================================================

func TestListDevices(t *testing.T) {
	ts, registry := newTestServer(t, nil)
	seedDevice(t, registry, "Hall Switch", "a4cf12000001")
	seedDevice(t, registry, "Porch Light", "a4cf12000002")

	var body struct {
		Devices []device.Device `json:"devices"`
		Count   int             `json:"count"`
	}
	status := doJSON(t, http.MethodGet, ts.URL+"/api/v1/devices", nil, &body)

	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body.Count != 2 {
		t.Errorf("count = %d, want 2", body.Count)
	}
	if len(body.Devices) != 2 {
		t.Errorf("devices length = %d, want 2", len(body.Devices))
	}
}

func TestGetDevice(t *testing.T) {
	ts, registry := newTestServer(t, nil)
	dev := seedDevice(t, registry, "Hall Switch", "a4cf12000001")

	var body device.Device
	status := doJSON(t, http.MethodGet, ts.URL+"/api/v1/devices/"+dev.ID, nil, &body)

	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body.ID != dev.ID {
		t.Errorf("id = %q, want %q", body.ID, dev.ID)
	}
	if body.Name != "Hall Switch" {
		t.Errorf("name = %q, want Hall Switch", body.Name)
	}
}

func TestGetDeviceNotFound(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	var body Error
	status := doJSON(t, http.MethodGet, ts.URL+"/api/v1/devices/no-such-device", nil, &body)

	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
	if body.Code != ErrCodeNotFound {
		t.Errorf("code = %q, want %q", body.Code, ErrCodeNotFound)
	}
}

func TestDeviceStats(t *testing.T) {
	ts, registry := newTestServer(t, nil)
	seedDevice(t, registry, "Hall Switch", "a4cf12000001")

	var body device.Stats
	status := doJSON(t, http.MethodGet, ts.URL+"/api/v1/devices/stats", nil, &body)

	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body.Total != 1 {
		t.Errorf("total = %d, want 1", body.Total)
	}
	if body.Enabled != 1 {
		t.Errorf("enabled = %d, want 1", body.Enabled)
	}
}

func TestSetDeviceEnabled(t *testing.T) {
	ts, registry := newTestServer(t, nil)
	dev := seedDevice(t, registry, "Hall Switch", "a4cf12000001")

	url := fmt.Sprintf("%s/api/v1/devices/%s/enabled", ts.URL, dev.ID)

	var body map[string]any
	status := doJSON(t, http.MethodPut, url, map[string]any{"enabled": false}, &body)

	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}

	got, err := registry.GetDevice(context.Background(), dev.ID)
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if got.Enabled {
		t.Error("device still enabled after disable request")
	}
}

func TestSetDeviceEnabledValidation(t *testing.T) {
	ts, registry := newTestServer(t, nil)
	dev := seedDevice(t, registry, "Hall Switch", "a4cf12000001")

	url := fmt.Sprintf("%s/api/v1/devices/%s/enabled", ts.URL, dev.ID)

	// Missing enabled field
	status := doJSON(t, http.MethodPut, url, map[string]any{}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("missing field: status = %d, want 400", status)
	}

	// Unknown device
	status = doJSON(t, http.MethodPut, ts.URL+"/api/v1/devices/no-such/enabled",
		map[string]any{"enabled": true}, nil)
	if status != http.StatusNotFound {
		t.Errorf("unknown device: status = %d, want 404", status)
	}
}

func TestSetDeviceEnabledNotifiesInventory(t *testing.T) {
	inventory := &fakeInventory{}
	ts, registry := newTestServer(t, func(d *Deps) {
		d.Inventory = inventory
	})
	dev := seedDevice(t, registry, "Hall Switch", "a4cf12000001")

	url := fmt.Sprintf("%s/api/v1/devices/%s/enabled", ts.URL, dev.ID)
	status := doJSON(t, http.MethodPut, url, map[string]any{"enabled": false}, nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}

	enabled, called := inventory.enabledCalls["a4cf12000001"]
	if !called {
		t.Fatal("running adapter was not told about the enabled change")
	}
	if enabled {
		t.Error("adapter told enabled=true, want false")
	}
}

func TestSetDeviceCredentials(t *testing.T) {
	inventory := &fakeInventory{}
	ts, registry := newTestServer(t, func(d *Deps) {
		d.Inventory = inventory
	})
	dev := seedDevice(t, registry, "Hall Switch", "a4cf12000001")

	url := fmt.Sprintf("%s/api/v1/devices/%s/credentials", ts.URL, dev.ID)
	status := doJSON(t, http.MethodPut, url,
		map[string]any{"username": "admin", "password": "secret"}, nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}

	if inventory.credsID != "a4cf12000001" {
		t.Errorf("credentials set on %q, want vendor id a4cf12000001", inventory.credsID)
	}
	if inventory.credsUser != "admin" || inventory.credsPass != "secret" {
		t.Errorf("credentials = %q/%q, want admin/secret", inventory.credsUser, inventory.credsPass)
	}
}

func TestSetDeviceCredentialsErrors(t *testing.T) {
	inventory := &fakeInventory{}
	ts, registry := newTestServer(t, func(d *Deps) {
		d.Inventory = inventory
	})
	dev := seedDevice(t, registry, "Hall Switch", "a4cf12000001")
	url := fmt.Sprintf("%s/api/v1/devices/%s/credentials", ts.URL, dev.ID)

	// Missing username
	status := doJSON(t, http.MethodPut, url, map[string]any{"password": "secret"}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("missing username: status = %d, want 400", status)
	}

	// Unknown device
	status = doJSON(t, http.MethodPut, ts.URL+"/api/v1/devices/no-such/credentials",
		map[string]any{"username": "admin"}, nil)
	if status != http.StatusNotFound {
		t.Errorf("unknown device: status = %d, want 404", status)
	}

	// Device known to the registry but not currently discoverable
	inventory.credsErr = shelly.ErrDeviceVanished
	status = doJSON(t, http.MethodPut, url, map[string]any{"username": "admin"}, nil)
	if status != http.StatusConflict {
		t.Errorf("vanished device: status = %d, want 409", status)
	}

	// Handle that does not take credentials
	inventory.credsErr = shelly.ErrUnsupported
	status = doJSON(t, http.MethodPut, url, map[string]any{"username": "admin"}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("unsupported handle: status = %d, want 400", status)
	}
}

func TestSetDeviceCredentialsNoBridge(t *testing.T) {
	ts, registry := newTestServer(t, nil)
	dev := seedDevice(t, registry, "Hall Switch", "a4cf12000001")

	url := fmt.Sprintf("%s/api/v1/devices/%s/credentials", ts.URL, dev.ID)
	status := doJSON(t, http.MethodPut, url, map[string]any{"username": "admin"}, nil)
	if status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", status)
	}
}

// =============================================================================
// Bridge Lifecycle Tests
// =============================================================================

func TestBridgeStatus(t *testing.T) {
	bridge := &fakeBridge{state: shelly.StateStarted}
	inventory := &fakeInventory{devices: []shelly.RegisteredDevice{
		{ID: "dev-1", Online: true},
		{ID: "dev-2", Online: false},
	}}

	ts, _ := newTestServer(t, func(d *Deps) {
		d.Bridge = bridge
		d.Inventory = inventory
	})

	var body bridgeStatusResponse
	status := doJSON(t, http.MethodGet, ts.URL+"/api/v1/bridge", nil, &body)

	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body.State != shelly.StateStarted {
		t.Errorf("state = %q, want started", body.State)
	}
	if body.DevicesTotal != 2 {
		t.Errorf("devices_total = %d, want 2", body.DevicesTotal)
	}
	if body.DevicesOnline != 1 {
		t.Errorf("devices_online = %d, want 1", body.DevicesOnline)
	}
}

func TestBridgeStatusNotConfigured(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	status := doJSON(t, http.MethodGet, ts.URL+"/api/v1/bridge", nil, nil)
	if status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", status)
	}
}

func TestBridgeLifecycleEndpoints(t *testing.T) {
	bridge := &fakeBridge{state: shelly.StateStopped}
	ts, _ := newTestServer(t, func(d *Deps) {
		d.Bridge = bridge
	})

	var body map[string]any

	status := doJSON(t, http.MethodPost, ts.URL+"/api/v1/bridge/start", nil, &body)
	if status != http.StatusOK {
		t.Fatalf("start: status = %d, want 200", status)
	}
	if body["state"] != string(shelly.StateStarted) {
		t.Errorf("start: state = %v, want started", body["state"])
	}

	status = doJSON(t, http.MethodPost, ts.URL+"/api/v1/bridge/stop", nil, &body)
	if status != http.StatusOK {
		t.Fatalf("stop: status = %d, want 200", status)
	}
	if body["state"] != string(shelly.StateStopped) {
		t.Errorf("stop: state = %v, want stopped", body["state"])
	}

	status = doJSON(t, http.MethodPost, ts.URL+"/api/v1/bridge/restart", nil, &body)
	if status != http.StatusOK {
		t.Fatalf("restart: status = %d, want 200", status)
	}
	if body["state"] != string(shelly.StateStarted) {
		t.Errorf("restart: state = %v, want started", body["state"])
	}
}

// =============================================================================
// Probe Tests
// =============================================================================

func TestProbe(t *testing.T) {
	prober := &fakeProber{result: &shelly.ProbeResult{
		Reachable: true,
		Model:     "SHSW-25",
		DeviceID:  "a4cf12f45678",
	}}

	ts, _ := newTestServer(t, func(d *Deps) {
		d.Prober = prober
	})

	var body shelly.ProbeResult
	status := doJSON(t, http.MethodPost, ts.URL+"/api/v1/probe",
		map[string]any{"host": "192.168.1.40"}, &body)

	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if !body.Reachable {
		t.Error("reachable = false, want true")
	}
	if body.Model != "SHSW-25" {
		t.Errorf("model = %q, want SHSW-25", body.Model)
	}
	if prober.lastHost != "192.168.1.40" {
		t.Errorf("probed host = %q, want 192.168.1.40", prober.lastHost)
	}
}

func TestProbeValidation(t *testing.T) {
	prober := &fakeProber{result: &shelly.ProbeResult{}}
	ts, _ := newTestServer(t, func(d *Deps) {
		d.Prober = prober
	})

	status := doJSON(t, http.MethodPost, ts.URL+"/api/v1/probe", map[string]any{}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("missing host: status = %d, want 400", status)
	}
}

func TestProbeNotConfigured(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	status := doJSON(t, http.MethodPost, ts.URL+"/api/v1/probe",
		map[string]any{"host": "192.168.1.40"}, nil)
	if status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", status)
	}
}

// =============================================================================
// Server Lifecycle Tests
// =============================================================================

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Deps{})
	if err == nil {
		t.Error("New() with no logger should fail")
	}

	_, err = New(Deps{Logger: logging.Default()})
	if err == nil {
		t.Error("New() with no registry should fail")
	}
}
