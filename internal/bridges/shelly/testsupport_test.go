package shelly

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// Shared test doubles for the bridge package. Each mock implements only the
// narrow interface the code under test consumes.

// testLogger routes bridge logs through t.Logf so failures carry context.
type testLogger struct {
	t *testing.T
}

func newTestLogger(t *testing.T) *testLogger { return &testLogger{t: t} }

func (l *testLogger) Debug(msg string, args ...any) { l.t.Logf("DEBUG %s %v", msg, args) }
func (l *testLogger) Info(msg string, args ...any)  { l.t.Logf("INFO  %s %v", msg, args) }
func (l *testLogger) Warn(msg string, args ...any)  { l.t.Logf("WARN  %s %v", msg, args) }
func (l *testLogger) Error(msg string, args ...any) { l.t.Logf("ERROR %s %v", msg, args) }

// mockHandle is a scriptable DeviceHandle with optional capability setters
// recorded for assertion.
type mockHandle struct {
	id         string
	vendorType string
	host       string
	online     bool
	lastSeen   time.Time
	attrs      map[string]any
	mu         sync.Mutex

	changeFns  []func(string, any, any)
	onlineFns  []func()
	offlineFns []func()
	removeFns  []func()

	relayCalls  []relayCall
	colorCalls  []colorCall
	whiteCalls  []whiteCall
	rollerCalls []rollerCall
	credUser    string
	credPass    string

	setterErr error // returned by every capability call when non-nil
}

type relayCall struct {
	index int
	on    bool
}

type colorCall struct {
	index int
	cmd   ColorCommand
}

type whiteCall struct {
	index int
	cmd   WhiteCommand
}

type rollerCall struct {
	index    int
	position int
	command  string
}

func newMockHandle(id, vendorType, host string) *mockHandle {
	return &mockHandle{
		id:         id,
		vendorType: vendorType,
		host:       host,
		online:     true,
		lastSeen:   time.Now(),
		attrs:      make(map[string]any),
	}
}

func (h *mockHandle) ID() string   { return h.id }
func (h *mockHandle) Type() string { return h.vendorType }

func (h *mockHandle) Host() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.host
}

func (h *mockHandle) Online() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.online
}

func (h *mockHandle) LastSeen() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastSeen
}

func (h *mockHandle) Attribute(name string) (any, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.attrs[name]
	return v, ok
}

func (h *mockHandle) setAttr(name string, value any) {
	h.mu.Lock()
	h.attrs[name] = value
	h.mu.Unlock()
}

func (h *mockHandle) OnChange(fn func(string, any, any)) CancelFunc {
	h.mu.Lock()
	h.changeFns = append(h.changeFns, fn)
	h.mu.Unlock()
	return func() {}
}

func (h *mockHandle) OnOnline(fn func()) CancelFunc {
	h.mu.Lock()
	h.onlineFns = append(h.onlineFns, fn)
	h.mu.Unlock()
	return func() {}
}

func (h *mockHandle) OnOffline(fn func()) CancelFunc {
	h.mu.Lock()
	h.offlineFns = append(h.offlineFns, fn)
	h.mu.Unlock()
	return func() {}
}

func (h *mockHandle) OnRemove(fn func()) CancelFunc {
	h.mu.Lock()
	h.removeFns = append(h.removeFns, fn)
	h.mu.Unlock()
	return func() {}
}

func (h *mockHandle) fireChange(attr string, oldValue, newValue any) {
	h.mu.Lock()
	h.attrs[attr] = newValue
	fns := append(([]func(string, any, any))(nil), h.changeFns...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn(attr, oldValue, newValue)
	}
}

func (h *mockHandle) fireOffline() {
	h.mu.Lock()
	h.online = false
	fns := append(([]func())(nil), h.offlineFns...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (h *mockHandle) fireRemove() {
	h.mu.Lock()
	fns := append(([]func())(nil), h.removeFns...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (h *mockHandle) SetRelay(_ context.Context, index int, on bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.setterErr != nil {
		return h.setterErr
	}
	h.relayCalls = append(h.relayCalls, relayCall{index, on})
	return nil
}

func (h *mockHandle) SetColor(_ context.Context, index int, cmd ColorCommand) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.setterErr != nil {
		return h.setterErr
	}
	h.colorCalls = append(h.colorCalls, colorCall{index, cmd})
	return nil
}

func (h *mockHandle) SetWhite(_ context.Context, index int, cmd WhiteCommand) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.setterErr != nil {
		return h.setterErr
	}
	h.whiteCalls = append(h.whiteCalls, whiteCall{index: index, cmd: cmd})
	return nil
}

func (h *mockHandle) SetRollerPosition(_ context.Context, index int, position int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.setterErr != nil {
		return h.setterErr
	}
	h.rollerCalls = append(h.rollerCalls, rollerCall{index: index, position: position})
	return nil
}

func (h *mockHandle) SendRollerCommand(_ context.Context, index int, command string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.setterErr != nil {
		return h.setterErr
	}
	h.rollerCalls = append(h.rollerCalls, rollerCall{index: index, position: -1, command: command})
	return nil
}

func (h *mockHandle) SetAuthCredentials(username, password string) {
	h.mu.Lock()
	h.credUser = username
	h.credPass = password
	h.mu.Unlock()
}

// mockDiscoverer is a scriptable Discoverer. Tests announce devices through
// announce().
type mockDiscoverer struct {
	handles map[string]*mockHandle
	mu      sync.Mutex

	discoverFns []func(DeviceHandle)

	started        bool
	startErr       error
	requestTimeout time.Duration
	staleTimeout   time.Duration
	removedAll     bool
}

func newMockDiscoverer() *mockDiscoverer {
	return &mockDiscoverer{handles: make(map[string]*mockHandle)}
}

func (d *mockDiscoverer) Start(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.started = true
	return nil
}

func (d *mockDiscoverer) Stop() {
	d.mu.Lock()
	d.started = false
	d.mu.Unlock()
}

func (d *mockDiscoverer) RemoveAllListeners() {
	d.mu.Lock()
	d.discoverFns = nil
	d.removedAll = true
	d.mu.Unlock()
}

func (d *mockDiscoverer) GetDevice(_, id string) DeviceHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h, ok := d.handles[id]; ok {
		return h
	}
	return nil
}

func (d *mockDiscoverer) OnDiscover(fn func(DeviceHandle)) CancelFunc {
	d.mu.Lock()
	d.discoverFns = append(d.discoverFns, fn)
	d.mu.Unlock()
	return func() {}
}

func (d *mockDiscoverer) SetRequestTimeout(t time.Duration) {
	d.mu.Lock()
	d.requestTimeout = t
	d.mu.Unlock()
}

func (d *mockDiscoverer) SetStaleTimeout(t time.Duration) {
	d.mu.Lock()
	d.staleTimeout = t
	d.mu.Unlock()
}

func (d *mockDiscoverer) announce(h *mockHandle) {
	d.mu.Lock()
	d.handles[h.id] = h
	fns := append(([]func(DeviceHandle))(nil), d.discoverFns...)
	d.mu.Unlock()
	for _, fn := range fns {
		fn(h)
	}
}

// mockStore is an in-memory RecordStore.
type mockStore struct {
	devices     map[string]*DeviceRecord // by canonical ID
	channels    map[string]ChannelRecord // deviceID/channel
	properties  map[string]PropertyRecord
	values      map[string]string
	connections map[string]string
	nextID      int
	failAll     bool
	mu          sync.Mutex
}

func newMockStore() *mockStore {
	return &mockStore{
		devices:     make(map[string]*DeviceRecord),
		channels:    make(map[string]ChannelRecord),
		properties:  make(map[string]PropertyRecord),
		values:      make(map[string]string),
		connections: make(map[string]string),
	}
}

func (s *mockStore) FindDeviceByVendorID(_ context.Context, vendorID string) (*DeviceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return nil, fmt.Errorf("store unavailable")
	}
	for _, d := range s.devices {
		if d.VendorID == vendorID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *mockStore) CreateDevice(_ context.Context, rec DeviceRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return "", fmt.Errorf("store unavailable")
	}
	s.nextID++
	rec.ID = fmt.Sprintf("dev-%d", s.nextID)
	s.devices[rec.ID] = &rec
	return rec.ID, nil
}

func (s *mockStore) UpdateDevice(_ context.Context, rec DeviceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[rec.ID]; !ok {
		return fmt.Errorf("no device %s", rec.ID)
	}
	s.devices[rec.ID] = &rec
	return nil
}

func (s *mockStore) EnsureChannel(_ context.Context, rec ChannelRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rec.DeviceID + "/" + rec.Identifier
	if _, ok := s.channels[key]; !ok {
		s.channels[key] = rec
	}
	return nil
}

func (s *mockStore) EnsureProperty(_ context.Context, rec PropertyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rec.DeviceID + "/" + rec.ChannelIdentifier + "/" + rec.Identifier
	if _, ok := s.properties[key]; !ok {
		s.properties[key] = rec
	}
	return nil
}

func (s *mockStore) SetPropertyValue(_ context.Context, deviceID, channel, property, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[deviceID+"/"+channel+"/"+property] = value
	return nil
}

func (s *mockStore) SetConnectionState(_ context.Context, deviceID, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[deviceID] = state
	return nil
}

func (s *mockStore) ListDevices(_ context.Context) ([]DeviceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DeviceRecord, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, *d)
	}
	return out, nil
}

func (s *mockStore) value(deviceID, channel, property string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[deviceID+"/"+channel+"/"+property]
	return v, ok
}

func (s *mockStore) connection(deviceID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connections[deviceID]
}

func (s *mockStore) seedDevice(rec DeviceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[rec.ID] = &rec
}

// mockResolver maps canonical vendor IDs to handles for the command
// platform.
type mockResolver struct {
	handles map[string]DeviceHandle
}

func (r *mockResolver) Handle(id string) DeviceHandle {
	return r.handles[id]
}
