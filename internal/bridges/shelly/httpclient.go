package shelly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultRequestTimeout bounds each vendor HTTP call unless the caller's
// context imposes a tighter deadline.
const DefaultRequestTimeout = 5 * time.Second

// ShellyInfo is the response of the unauthenticated identification endpoint.
// It is served even when the device has login protection enabled.
type ShellyInfo struct {
	Type       string `json:"type"`
	MAC        string `json:"mac"`
	Auth       bool   `json:"auth"`
	Firmware   string `json:"fw"`
	LongID     int    `json:"longid"`
	NumOutputs int    `json:"num_outputs"`
}

// DeviceStatus is the subset of the status endpoint the bridge consumes.
type DeviceStatus struct {
	WifiSta struct {
		Connected bool   `json:"connected"`
		SSID      string `json:"ssid"`
		IP        string `json:"ip"`
		RSSI      int    `json:"rssi"`
	} `json:"wifi_sta"`
	MQTT struct {
		Connected bool `json:"connected"`
	} `json:"mqtt"`
	Update struct {
		Status     string `json:"status"`
		HasUpdate  bool   `json:"has_update"`
		OldVersion string `json:"old_version"`
		NewVersion string `json:"new_version"`
	} `json:"update"`
	Uptime int `json:"uptime"`
}

// DeviceSettings is the subset of the settings endpoint the bridge consumes.
type DeviceSettings struct {
	Device struct {
		Type     string `json:"type"`
		MAC      string `json:"mac"`
		Hostname string `json:"hostname"`
	} `json:"device"`
	Name     string `json:"name"`
	Firmware string `json:"fw"`
	Mode     string `json:"mode"`
	Login    struct {
		Enabled  bool   `json:"enabled"`
		Username string `json:"username"`
	} `json:"login"`
}

// LoginSettings is the response of the login configuration endpoint.
type LoginSettings struct {
	Enabled     bool   `json:"enabled"`
	Unprotected bool   `json:"unprotected"`
	Username    string `json:"username"`
}

// Client issues HTTP requests against the documented Shelly Gen1 local API.
// The zero value is not usable; construct with NewClient.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     Logger
}

// Logger is the minimal logging interface the bridge requires. The
// application wires in the shared structured logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NewClient creates a Client with the given per-request timeout. A zero
// timeout selects DefaultRequestTimeout.
func NewClient(timeout time.Duration, logger Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{
		httpClient: &http.Client{
			// Deadlines are applied per request via context so callers can
			// tighten them; the transport-level timeout is a backstop.
			Timeout: timeout + time.Second,
		},
		timeout: timeout,
		logger:  logger,
	}
}

// SetTimeout changes the per-request timeout for subsequent calls.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// GetShelly fetches device identification. The endpoint requires no
// authentication regardless of the device's login settings.
func (c *Client) GetShelly(ctx context.Context, host string) (*ShellyInfo, error) {
	var info ShellyInfo
	if err := c.getJSON(ctx, host, "/shelly", "", "", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetStatus fetches the live status snapshot. Credentials are sent only when
// both username and password are non-empty.
func (c *Client) GetStatus(ctx context.Context, host, username, password string) (*DeviceStatus, error) {
	var status DeviceStatus
	if err := c.getJSON(ctx, host, "/status", username, password, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetSettings fetches the persistent device configuration.
func (c *Client) GetSettings(ctx context.Context, host, username, password string) (*DeviceSettings, error) {
	var settings DeviceSettings
	if err := c.getJSON(ctx, host, "/settings", username, password, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// GetLoginSettings fetches the device's login configuration. Devices answer
// this endpoint without credentials when protection is off; a protected
// device still reveals the configured username to an authenticated caller.
func (c *Client) GetLoginSettings(ctx context.Context, host, username, password string) (*LoginSettings, error) {
	var login LoginSettings
	if err := c.getJSON(ctx, host, "/settings/login", username, password, &login); err != nil {
		return nil, err
	}
	return &login, nil
}

// Get issues a raw GET against an arbitrary device path and decodes the JSON
// response into out. Used by the scanner for control endpoints such as
// /relay/0 and /color/0.
func (c *Client) Get(ctx context.Context, host, path, username, password string, out any) error {
	return c.getJSON(ctx, host, path, username, password, out)
}

func (c *Client) getJSON(ctx context.Context, host, path, username, password string, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := url.URL{Scheme: "http", Host: host, Path: path}
	if i := strings.Index(path, "?"); i >= 0 {
		u.Path = path[:i]
		u.RawQuery = path[i+1:]
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: build request for %s: %v", ErrTransport, path, err)
	}
	if username != "" && password != "" {
		req.SetBasicAuth(username, password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(host, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s%s", ErrUnauthorized, host, path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: %s%s returned %d", ErrTransport, host, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s%s response: %v", ErrTransport, host, path, err)
	}
	return nil
}

func classifyTransportError(host, path string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %s%s", ErrTimeout, host, path)
	}
	return fmt.Errorf("%w: %s%s: %v", ErrTransport, host, path, err)
}
