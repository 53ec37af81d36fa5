package device

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides device management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-maintaining CRUD operations.
//
// All public methods are thread-safe.
type Registry struct {
	repo     Repository
	cache    map[string]*Device // cached devices by ID
	vendorIX map[string]string  // vendor ID -> device ID
	cacheMu  sync.RWMutex
	logger   Logger
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:     repo,
		cache:    make(map[string]*Device),
		vendorIX: make(map[string]string),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	r.vendorIX = make(map[string]string, len(devices))
	for i := range devices {
		d := devices[i]
		r.cache[d.ID] = d.DeepCopy()
		r.vendorIX[d.VendorID] = d.ID
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// GetDevice retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	// Fall back to repository (might be a new device not yet cached).
	device, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.storeInCache(device)
	return device, nil
}

// GetDeviceByVendorID retrieves a device by its stable vendor identifier.
func (r *Registry) GetDeviceByVendorID(ctx context.Context, vendorID string) (*Device, error) {
	r.cacheMu.RLock()
	id, ok := r.vendorIX[vendorID]
	var cached *Device
	if ok {
		cached = r.cache[id]
	}
	r.cacheMu.RUnlock()
	if cached != nil {
		return cached.DeepCopy(), nil
	}

	device, err := r.repo.GetByVendorID(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	r.storeInCache(device)
	return device, nil
}

// GetDeviceBySlug retrieves a device by its slug.
func (r *Registry) GetDeviceBySlug(ctx context.Context, slug string) (*Device, error) {
	r.cacheMu.RLock()
	for _, d := range r.cache {
		if d.Slug == slug {
			cpy := d.DeepCopy()
			r.cacheMu.RUnlock()
			return cpy, nil
		}
	}
	r.cacheMu.RUnlock()
	return r.repo.GetBySlug(ctx, slug)
}

// ListDevices retrieves all devices.
// The returned devices are deep copies; callers can safely modify them.
func (r *Registry) ListDevices(_ context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		devices = append(devices, *d.DeepCopy())
	}
	return devices, nil
}

// CreateDevice validates and persists a new device, then caches it.
// ID and slug are generated when empty.
func (r *Registry) CreateDevice(ctx context.Context, device *Device) error {
	if err := r.repo.Create(ctx, device); err != nil {
		return err
	}
	r.storeInCache(device)
	r.logger.Info("device created", "id", device.ID, "vendor_id", device.VendorID)
	return nil
}

// UpdateDevice persists changes to a device's mutable fields.
func (r *Registry) UpdateDevice(ctx context.Context, device *Device) error {
	if err := r.repo.Update(ctx, device); err != nil {
		return err
	}
	// Reload the aggregate so cached channels/properties stay intact.
	return r.reloadDevice(ctx, device.ID)
}

// DeleteDevice removes a device and its channels and properties.
func (r *Registry) DeleteDevice(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if d, ok := r.cache[id]; ok {
		delete(r.vendorIX, d.VendorID)
	}
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("device deleted", "id", id)
	return nil
}

// EnsureChannel creates a channel if missing and refreshes the cached
// aggregate.
func (r *Registry) EnsureChannel(ctx context.Context, deviceID string, channel Channel) error {
	if err := r.repo.EnsureChannel(ctx, deviceID, channel); err != nil {
		return err
	}
	return r.reloadDevice(ctx, deviceID)
}

// EnsureProperty creates a property if missing and refreshes the cached
// aggregate.
func (r *Registry) EnsureProperty(ctx context.Context, deviceID, channelIdentifier string, property Property) error {
	if err := r.repo.EnsureProperty(ctx, deviceID, channelIdentifier, property); err != nil {
		return err
	}
	return r.reloadDevice(ctx, deviceID)
}

// SetPropertyValue writes one property value. The cache is patched in place
// rather than reloaded; this is the hot path for state updates.
func (r *Registry) SetPropertyValue(ctx context.Context, deviceID, channelIdentifier, propertyIdentifier, value string) error {
	if err := r.repo.SetPropertyValue(ctx, deviceID, channelIdentifier, propertyIdentifier, value); err != nil {
		return err
	}

	now := time.Now().UTC()
	r.cacheMu.Lock()
	if d, ok := r.cache[deviceID]; ok {
		if ch := d.Channel(channelIdentifier); ch != nil {
			if p := ch.Property(propertyIdentifier); p != nil {
				p.Value = value
				p.ValueUpdatedAt = &now
			}
		}
	}
	r.cacheMu.Unlock()
	return nil
}

// SetConnectionState records the device's reachability.
func (r *Registry) SetConnectionState(ctx context.Context, id string, state ConnectionState) error {
	now := time.Now().UTC()
	if err := r.repo.SetConnectionState(ctx, id, state, now); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if d, ok := r.cache[id]; ok {
		d.ConnectionState = state
		d.ConnectionUpdatedAt = &now
	}
	r.cacheMu.Unlock()
	return nil
}

// SetEnabled flips the operator-facing enabled flag.
func (r *Registry) SetEnabled(ctx context.Context, id string, enabled bool) error {
	if err := r.repo.SetEnabled(ctx, id, enabled); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if d, ok := r.cache[id]; ok {
		d.Enabled = enabled
	}
	r.cacheMu.Unlock()
	return nil
}

// GetDeviceCount returns the number of cached devices.
func (r *Registry) GetDeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// GetStats summarises the registry contents for diagnostics.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	stats := Stats{
		ByConnection: make(map[ConnectionState]int),
		ByCategory:   make(map[Category]int),
	}
	for _, d := range r.cache {
		stats.Total++
		if d.Enabled {
			stats.Enabled++
		}
		stats.ByConnection[d.ConnectionState]++
		stats.ByCategory[d.Category]++
	}
	return stats
}

func (r *Registry) storeInCache(device *Device) {
	r.cacheMu.Lock()
	r.cache[device.ID] = device.DeepCopy()
	r.vendorIX[device.VendorID] = device.ID
	r.cacheMu.Unlock()
}

func (r *Registry) reloadDevice(ctx context.Context, id string) error {
	device, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	r.storeInCache(device)
	return nil
}
