package shelly

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Adapter operation constants.
const (
	// staleSweepInterval is how often the adapter inspects LastSeen on
	// every known device.
	staleSweepInterval = 5 * time.Second

	// defaultStaleTimeout is how long a silent device stays online before
	// the sweep declares it offline.
	defaultStaleTimeout = 12 * time.Minute
)

// RegisteredDevice is the adapter's registry entry for one discovered
// device. Copies are returned to callers; the adapter owns the originals.
type RegisteredDevice struct {
	ID         string
	VendorType string
	Host       string
	Online     bool
	Enabled    bool
	LastSeen   time.Time
}

// Adapter wraps a Discoverer, owns the registry of discovered devices and
// normalizes the discovery mechanism's callbacks into the closed Event set.
//
// Thread Safety: all methods are safe for concurrent use. Event handlers
// are invoked sequentially per event; a slow handler delays later handlers
// but never loses events.
type Adapter struct {
	discoverer Discoverer
	logger     Logger

	requestTimeout time.Duration
	staleTimeout   time.Duration

	devices  map[string]*RegisteredDevice
	handles  map[string]DeviceHandle
	disabled map[string]bool // devices suppressed by operator choice
	mu       sync.RWMutex

	subscribers map[int]func(Event)
	nextSubID   int
	subMu       sync.RWMutex

	started  bool
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	stateMu  sync.Mutex
}

// AdapterOptions configures a new Adapter.
type AdapterOptions struct {
	Discoverer     Discoverer
	Logger         Logger
	RequestTimeout time.Duration // zero selects DefaultRequestTimeout
	StaleTimeout   time.Duration // zero selects defaultStaleTimeout
}

// NewAdapter creates an Adapter. It does not start discovery.
func NewAdapter(opts AdapterOptions) (*Adapter, error) {
	if opts.Discoverer == nil {
		return nil, fmt.Errorf("shelly: adapter requires a discoverer")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.StaleTimeout <= 0 {
		opts.StaleTimeout = defaultStaleTimeout
	}
	return &Adapter{
		discoverer:     opts.Discoverer,
		logger:         opts.Logger,
		requestTimeout: opts.RequestTimeout,
		staleTimeout:   opts.StaleTimeout,
		devices:        make(map[string]*RegisteredDevice),
		handles:        make(map[string]DeviceHandle),
		disabled:       make(map[string]bool),
		subscribers:    make(map[int]func(Event)),
	}, nil
}

// Start begins discovery. Calling Start on a running adapter is a no-op
// returning ErrAlreadyStarted; the caller decides whether that matters.
func (a *Adapter) Start(ctx context.Context) error {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if a.started {
		return ErrAlreadyStarted
	}

	a.discoverer.SetRequestTimeout(a.requestTimeout)
	a.discoverer.SetStaleTimeout(a.staleTimeout)
	a.discoverer.OnDiscover(a.handleDiscover)

	if err := a.discoverer.Start(ctx); err != nil {
		a.discoverer.RemoveAllListeners()
		wrapped := fmt.Errorf("shelly: start discovery: %w", err)
		a.publish("", AdapterError{Err: wrapped})
		return wrapped
	}

	a.started = true
	a.done = make(chan struct{})
	a.stopOnce = sync.Once{}

	a.wg.Add(1)
	go a.staleSweepLoop()

	a.log().Info("shelly adapter started",
		"request_timeout", a.requestTimeout,
		"stale_timeout", a.staleTimeout)
	return nil
}

// Stop halts discovery and the staleness sweep, then clears the registry.
// Safe to call repeatedly and on a never-started adapter. Registered devices
// exist only while discovery runs; the next start rebuilds the registry from
// live discovery.
func (a *Adapter) Stop() {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if !a.started {
		return
	}

	a.stopOnce.Do(func() {
		close(a.done)
	})
	a.wg.Wait()

	a.discoverer.RemoveAllListeners()
	a.discoverer.Stop()

	a.mu.Lock()
	a.devices = make(map[string]*RegisteredDevice)
	a.handles = make(map[string]DeviceHandle)
	a.mu.Unlock()

	a.started = false
	a.log().Info("shelly adapter stopped")
}

// Subscribe registers a handler for adapter events. The returned CancelFunc
// removes the subscription and is safe to call more than once.
func (a *Adapter) Subscribe(fn func(Event)) CancelFunc {
	a.subMu.Lock()
	id := a.nextSubID
	a.nextSubID++
	a.subscribers[id] = fn
	a.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.subMu.Lock()
			delete(a.subscribers, id)
			a.subMu.Unlock()
		})
	}
}

// Devices returns a snapshot of the registry.
func (a *Adapter) Devices() []RegisteredDevice {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]RegisteredDevice, 0, len(a.devices))
	for _, d := range a.devices {
		out = append(out, *d)
	}
	return out
}

// Device returns the registry entry for id, or false when unknown.
func (a *Adapter) Device(id string) (RegisteredDevice, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	d, ok := a.devices[id]
	if !ok {
		return RegisteredDevice{}, false
	}
	return *d, true
}

// Handle returns the live discovery handle for id, or nil when the device
// is not currently discoverable.
func (a *Adapter) Handle(id string) DeviceHandle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.handles[id]
}

// UpdateDeviceEnabledStatus flips the operator-facing enabled flag. Events
// for disabled devices are still tracked internally but not delivered to
// subscribers.
func (a *Adapter) UpdateDeviceEnabledStatus(id string, enabled bool) {
	a.mu.Lock()
	a.disabled[id] = !enabled
	if d, ok := a.devices[id]; ok {
		d.Enabled = enabled
	}
	a.mu.Unlock()
}

// SetDeviceAuthCredentials forwards HTTP credentials to the device handle
// for subsequent vendor calls. Returns ErrUnsupported when the handle does
// not accept credentials, ErrDeviceVanished when the device is unknown.
func (a *Adapter) SetDeviceAuthCredentials(id, username, password string) error {
	handle := a.Handle(id)
	if handle == nil {
		return fmt.Errorf("%w: %s", ErrDeviceVanished, id)
	}
	setter, ok := handle.(AuthCredentialSetter)
	if !ok {
		return fmt.Errorf("%w: device %s does not take credentials", ErrUnsupported, id)
	}
	setter.SetAuthCredentials(username, password)
	return nil
}

// handleDiscover is the single entry point for the discoverer's callbacks.
// It registers the device, wires per-handle subscriptions and publishes a
// DeviceDiscovered event. Re-discovery of a known device updates the stored
// host in place rather than creating a duplicate entry.
func (a *Adapter) handleDiscover(handle DeviceHandle) {
	id := handle.ID()

	a.mu.Lock()
	existing, known := a.devices[id]
	if known {
		existing.VendorType = handle.Type()
		existing.Host = handle.Host()
		existing.Online = handle.Online()
		existing.LastSeen = handle.LastSeen()
	} else {
		a.devices[id] = &RegisteredDevice{
			ID:         id,
			VendorType: handle.Type(),
			Host:       handle.Host(),
			Online:     handle.Online(),
			Enabled:    !a.disabled[id],
			LastSeen:   handle.LastSeen(),
		}
	}
	a.handles[id] = handle
	a.mu.Unlock()

	handle.OnChange(func(attr string, oldValue, newValue any) {
		a.touch(id)
		a.publish(id, DeviceChanged{ID: id, Property: attr, OldValue: oldValue, NewValue: newValue})
	})
	handle.OnOnline(func() {
		a.setOnline(id, true)
		a.publish(id, DeviceOnline{ID: id, VendorType: handle.Type(), Host: handle.Host()})
	})
	handle.OnOffline(func() {
		a.setOnline(id, false)
		a.publish(id, DeviceOffline{ID: id, VendorType: handle.Type(), Host: handle.Host()})
	})
	handle.OnRemove(func() {
		// The discovery mechanism forgot the device: drop the registry
		// entry. Canonical records are not touched.
		a.mu.Lock()
		delete(a.devices, id)
		delete(a.handles, id)
		a.mu.Unlock()
		a.log().Info("device removed from registry", "id", id)
	})

	a.log().Info("device discovered",
		"id", id, "type", handle.Type(), "host", handle.Host(), "known", known)
	a.publish(id, DeviceDiscovered{
		ID:         id,
		VendorType: handle.Type(),
		Host:       handle.Host(),
		Online:     handle.Online(),
	})
}

// publish delivers an event to every subscriber unless the device is
// disabled. Handler panics are contained so one bad subscriber cannot take
// the adapter down.
func (a *Adapter) publish(deviceID string, ev Event) {
	if deviceID != "" {
		a.mu.RLock()
		suppressed := a.disabled[deviceID]
		a.mu.RUnlock()
		if suppressed {
			return
		}
	}

	a.subMu.RLock()
	handlers := make([]func(Event), 0, len(a.subscribers))
	for _, fn := range a.subscribers {
		handlers = append(handlers, fn)
	}
	a.subMu.RUnlock()

	for _, fn := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					a.log().Error("event handler panicked", "event", fmt.Sprintf("%T", ev), "panic", r)
				}
			}()
			fn(ev)
		}()
	}
}

func (a *Adapter) touch(id string) {
	a.mu.Lock()
	if d, ok := a.devices[id]; ok {
		d.LastSeen = time.Now()
		d.Online = true
	}
	a.mu.Unlock()
}

func (a *Adapter) setOnline(id string, online bool) {
	a.mu.Lock()
	if d, ok := a.devices[id]; ok {
		d.Online = online
		if online {
			d.LastSeen = time.Now()
		}
	}
	a.mu.Unlock()
}

// staleSweepLoop periodically checks LastSeen on every online device and
// synthesizes an offline event for devices the discovery mechanism has gone
// quiet about without saying so.
func (a *Adapter) staleSweepLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(staleSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.done:
			return
		case <-ticker.C:
			a.sweepStale()
		}
	}
}

func (a *Adapter) sweepStale() {
	cutoff := time.Now().Add(-a.staleTimeout)

	type stale struct {
		id         string
		vendorType string
		host       string
	}
	var found []stale

	a.mu.Lock()
	for id, d := range a.devices {
		if !d.Online {
			continue
		}
		lastSeen := d.LastSeen
		if h, ok := a.handles[id]; ok {
			if hs := h.LastSeen(); hs.After(lastSeen) {
				lastSeen = hs
				d.LastSeen = hs
			}
		}
		if lastSeen.Before(cutoff) {
			d.Online = false
			found = append(found, stale{id: id, vendorType: d.VendorType, host: d.Host})
		}
	}
	a.mu.Unlock()

	for _, s := range found {
		a.log().Warn("device went stale", "id", s.id, "last_seen_over", a.staleTimeout)
		a.publish(s.id, DeviceOffline{ID: s.id, VendorType: s.vendorType, Host: s.host})
	}
}

func (a *Adapter) log() Logger {
	if a.logger != nil {
		return a.logger
	}
	return noopLogger{}
}

// noopLogger swallows log output when no logger is wired in.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
