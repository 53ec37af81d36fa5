package shelly

import (
	"context"
	"errors"
)

// ProbeResult is the outcome of interrogating a host for a Shelly device.
//
// AuthValid is a tri-state: nil means credential validity was not checked,
// either because the device requires no authentication or because no
// credentials were supplied.
type ProbeResult struct {
	Reachable    bool   `json:"reachable"`
	AuthRequired bool   `json:"auth_required"`
	AuthValid    *bool  `json:"auth_valid,omitempty"`
	Family       string `json:"family,omitempty"`
	Model        string `json:"model,omitempty"`
	DeviceID     string `json:"device_id,omitempty"`
	Firmware     string `json:"firmware,omitempty"`
}

// Probe checks whether host is a reachable Shelly Gen1 device and, when
// credentials are supplied, whether they are accepted.
//
// The identification endpoint is always unauthenticated, so reachability and
// model detection never depend on credentials. A credential check is only
// attempted when the device requires auth and both username and password are
// present; otherwise AuthValid stays nil.
func (c *Client) Probe(ctx context.Context, host, username, password string) (*ProbeResult, error) {
	info, err := c.GetShelly(ctx, host)
	if err != nil {
		if errors.Is(err, ErrTimeout) || errors.Is(err, ErrTransport) {
			return &ProbeResult{Reachable: false}, nil
		}
		return nil, err
	}

	result := &ProbeResult{
		Reachable:    true,
		AuthRequired: info.Auth,
		Model:        info.Type,
		DeviceID:     info.MAC,
		Firmware:     info.Firmware,
	}
	if desc, err := ResolveDescriptor(info.Type); err == nil {
		result.Family = desc.DisplayName
	}

	if !info.Auth || username == "" || password == "" {
		return result, nil
	}

	_, err = c.GetStatus(ctx, host, username, password)
	switch {
	case err == nil:
		valid := true
		result.AuthValid = &valid
	case errors.Is(err, ErrUnauthorized):
		valid := false
		result.AuthValid = &valid
	default:
		// Reachable a moment ago but the authed call failed for transport
		// reasons; leave AuthValid undetermined.
		if c.logger != nil {
			c.logger.Debug("probe credential check inconclusive", "host", host, "error", err)
		}
	}
	return result, nil
}
