package shelly

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ServiceState is the lifecycle state of the integration service.
type ServiceState string

// Lifecycle states. Transitions run stopped→starting→started and
// started→stopping→stopped; Restart chains the two.
const (
	StateStopped  ServiceState = "stopped"
	StateStarting ServiceState = "starting"
	StateStarted  ServiceState = "started"
	StateStopping ServiceState = "stopping"
)

// Service operation constants.
const (
	// refreshInterval is how often mapped devices are re-polled for
	// information-channel updates (firmware, link quality).
	refreshInterval = 5 * time.Minute

	// transitionWaitStep bounds the polling interval used by callers that
	// arrive while another transition is in flight.
	transitionWaitStep = 50 * time.Millisecond

	// transitionWaitMax is the longest a caller waits for an in-flight
	// transition to settle before giving up.
	transitionWaitMax = 30 * time.Second
)

// Service ties the adapter, mapper and command platform to configuration
// and runs the bridge lifecycle.
//
// Thread Safety: all methods are safe for concurrent use. At most one
// lifecycle transition runs at a time; concurrent EnsureStarted and
// EnsureStopped calls wait for the in-flight transition and then act on the
// resulting state.
type Service struct {
	adapter *Adapter
	mapper  *Mapper
	client  *Client
	store   RecordStore
	logger  Logger

	state        ServiceState
	stateMu      sync.RWMutex
	transitionMu sync.Mutex

	unsubscribe CancelFunc

	startTimer   *time.Timer
	startTimerMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup

	ctx       context.Context
	ctxCancel context.CancelFunc
}

// ServiceOptions configures a new Service.
type ServiceOptions struct {
	Adapter *Adapter
	Mapper  *Mapper
	Client  *Client
	Store   RecordStore
	Logger  Logger
}

// NewService creates a Service in the stopped state.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Adapter == nil || opts.Mapper == nil || opts.Store == nil {
		return nil, fmt.Errorf("shelly: service requires adapter, mapper and store")
	}
	return &Service{
		adapter: opts.Adapter,
		mapper:  opts.Mapper,
		client:  opts.Client,
		store:   opts.Store,
		logger:  opts.Logger,
		state:   StateStopped,
	}, nil
}

// State returns the current lifecycle state.
func (s *Service) State() ServiceState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// RequestStart schedules EnsureStarted after delay. A second request before
// the delay elapses resets the timer, so a burst of configuration changes
// produces a single start. A zero delay starts immediately.
func (s *Service) RequestStart(delay time.Duration) {
	if delay <= 0 {
		go func() {
			if err := s.EnsureStarted(context.Background()); err != nil {
				s.log().Error("deferred start failed", "error", err)
			}
		}()
		return
	}

	s.startTimerMu.Lock()
	defer s.startTimerMu.Unlock()

	if s.startTimer != nil {
		s.startTimer.Stop()
	}
	s.startTimer = time.AfterFunc(delay, func() {
		if err := s.EnsureStarted(context.Background()); err != nil {
			s.log().Error("deferred start failed", "error", err)
		}
	})
}

// EnsureStarted brings the service to the started state. Calling it on a
// started service is a no-op. A caller arriving during another caller's
// transition waits for it to finish and then re-evaluates.
func (s *Service) EnsureStarted(ctx context.Context) error {
	if err := s.awaitSettled(ctx); err != nil {
		return err
	}

	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	if s.State() == StateStarted {
		return nil
	}
	return s.startLocked(ctx)
}

// EnsureStopped brings the service to the stopped state. Calling it on a
// stopped service is a no-op.
func (s *Service) EnsureStopped(ctx context.Context) error {
	if err := s.awaitSettled(ctx); err != nil {
		return err
	}

	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	if s.State() == StateStopped {
		return nil
	}
	s.stopLocked()
	return nil
}

// Restart stops and then starts the service as one serialized transition,
// so no other caller can interleave between the halves.
func (s *Service) Restart(ctx context.Context) error {
	if err := s.awaitSettled(ctx); err != nil {
		return err
	}

	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	if s.State() != StateStopped {
		s.stopLocked()
	}
	return s.startLocked(ctx)
}

// awaitSettled blocks while a transition is in flight, polling with a
// bounded backstop so a wedged transition surfaces as an error instead of a
// hang.
func (s *Service) awaitSettled(ctx context.Context) error {
	deadline := time.Now().Add(transitionWaitMax)
	for {
		switch s.State() {
		case StateStarting, StateStopping:
		default:
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("shelly: lifecycle transition did not settle within %s", transitionWaitMax)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(transitionWaitStep):
		}
	}
}

// startLocked performs the starting→started transition. Caller holds
// transitionMu.
func (s *Service) startLocked(ctx context.Context) error {
	s.setState(StateStarting)

	s.ctx, s.ctxCancel = context.WithCancel(context.Background())
	s.done = make(chan struct{})

	// Connection states from a previous run are meaningless until a live
	// event confirms them.
	s.resetConnectionStates(ctx)

	s.unsubscribe = s.adapter.Subscribe(s.handleEvent)

	if err := s.adapter.Start(ctx); err != nil && err != ErrAlreadyStarted {
		s.unsubscribe()
		s.unsubscribe = nil
		s.ctxCancel()
		s.setState(StateStopped)
		return err
	}

	s.wg.Add(1)
	go s.refreshLoop()

	s.setState(StateStarted)
	s.log().Info("shelly service started")
	return nil
}

// resetConnectionStates marks every known device unknown. Failures are
// logged and skipped; a device the store cannot update still starts.
func (s *Service) resetConnectionStates(ctx context.Context) {
	devices, err := s.store.ListDevices(ctx)
	if err != nil {
		s.log().Warn("start: list devices for connection reset failed", "error", err)
		return
	}
	for _, d := range devices {
		if err := s.store.SetConnectionState(ctx, d.ID, ConnectionUnknown); err != nil {
			s.log().Warn("start: reset connection state failed", "device", d.ID, "error", err)
		}
	}
}

// stopLocked performs the stopping→stopped transition. Caller holds
// transitionMu.
func (s *Service) stopLocked() {
	s.setState(StateStopping)

	s.startTimerMu.Lock()
	if s.startTimer != nil {
		s.startTimer.Stop()
		s.startTimer = nil
	}
	s.startTimerMu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}

	close(s.done)
	s.ctxCancel()
	s.wg.Wait()

	s.adapter.Stop()

	s.setState(StateStopped)
	s.log().Info("shelly service stopped")
}

func (s *Service) setState(state ServiceState) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}

// handleEvent routes one adapter event into the mapper. Every handler is
// fault tolerant: a failure is logged with device context and the event
// stream continues.
func (s *Service) handleEvent(ev Event) {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	switch e := ev.(type) {
	case DeviceDiscovered:
		handle := s.adapter.Handle(e.ID)
		if handle == nil {
			s.log().Warn("discovered device vanished before mapping", "id", e.ID)
			return
		}
		if _, err := s.mapper.MapDevice(ctx, handle); err != nil {
			s.log().Error("map device failed", "id", e.ID, "type", e.VendorType, "error", err)
		}
	case DeviceChanged:
		handle := s.adapter.Handle(e.ID)
		if handle == nil {
			return
		}
		if err := s.mapper.MapChange(ctx, handle, e.Property, e.NewValue); err != nil {
			s.log().Error("map change failed", "id", e.ID, "attribute", e.Property, "error", err)
		}
	case DeviceOnline:
		if err := s.mapper.MapConnection(ctx, e.ID, ConnectionConnected); err != nil {
			s.log().Error("map online failed", "id", e.ID, "error", err)
		}
	case DeviceOffline:
		if err := s.mapper.MapConnection(ctx, e.ID, ConnectionDisconnected); err != nil {
			s.log().Error("map offline failed", "id", e.ID, "error", err)
		}
	case AdapterError:
		s.log().Error("adapter error", "error", e.Err)
	}
}

// refreshLoop periodically re-polls mapped devices for slow-moving
// information: firmware version and Wi-Fi link quality.
func (s *Service) refreshLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.refreshDevices()
		}
	}
}

func (s *Service) refreshDevices() {
	if s.client == nil {
		return
	}
	ctx := s.ctx

	devices, err := s.store.ListDevices(ctx)
	if err != nil {
		s.log().Error("refresh: list devices failed", "error", err)
		return
	}

	for _, d := range devices {
		if !d.Enabled || d.Host == "" {
			continue
		}

		username, password := s.deviceCredentials(d.VendorID)

		// The configured username on the device wins over whatever the
		// operator supplied; /settings/login reveals it even when it has
		// drifted from the stored credential.
		if login, err := s.client.GetLoginSettings(ctx, d.Host, username, password); err != nil {
			s.log().Debug("refresh: login settings poll failed", "device", d.ID, "host", d.Host, "error", err)
		} else if login.Enabled && login.Username != "" {
			username = login.Username
		}

		status, err := s.client.GetStatus(ctx, d.Host, username, password)
		if err != nil {
			s.log().Debug("refresh: status poll failed", "device", d.ID, "host", d.Host, "error", err)
			continue
		}

		if err := s.store.SetPropertyValue(ctx, d.ID, infoChannel, infoPropLinkQuality,
			FormatValue(status.WifiSta.RSSI)); err != nil {
			s.log().Warn("refresh: store link quality failed", "device", d.ID, "error", err)
		}
		if status.Update.OldVersion != "" && status.Update.OldVersion != d.Firmware {
			d.Firmware = status.Update.OldVersion
			if err := s.store.UpdateDevice(ctx, d); err != nil {
				s.log().Warn("refresh: store firmware failed", "device", d.ID, "error", err)
			} else if err := s.store.SetPropertyValue(ctx, d.ID, infoChannel, infoPropFirmware, d.Firmware); err != nil {
				s.log().Warn("refresh: store firmware property failed", "device", d.ID, "error", err)
			}
		}
	}
}

// deviceCredentials returns the HTTP credentials held by the live discovery
// handle for a device, or empty strings when the device is not currently
// discoverable or its handle carries none.
func (s *Service) deviceCredentials(vendorID string) (string, string) {
	handle := s.adapter.Handle(vendorID)
	if handle == nil {
		return "", ""
	}
	provider, ok := handle.(AuthCredentialProvider)
	if !ok {
		return "", ""
	}
	return provider.AuthCredentials()
}

func (s *Service) log() Logger {
	if s.logger != nil {
		return s.logger
	}
	return noopLogger{}
}
