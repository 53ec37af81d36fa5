package device

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Validation limits.
const (
	// maxNameLength is the maximum length for device and channel names.
	maxNameLength = 100

	// maxSlugLength is the maximum length for slugs.
	maxSlugLength = 100

	// maxValueLength bounds stored property values; anything larger is a
	// bug upstream, not a legitimate reading.
	maxValueLength = 4096
)

// slugPattern matches lowercase alphanumerics separated by single hyphens.
var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// identifierPattern matches channel and property identifiers: lowercase
// alphanumerics separated by underscores.
var identifierPattern = regexp.MustCompile(`^[a-z0-9]+(_[a-z0-9]+)*$`)

// GenerateID creates a new unique device identifier.
func GenerateID() string {
	return uuid.New().String()
}

// GenerateSlug derives a URL-safe slug from a display name.
// "Hall Shutter 2" becomes "hall-shutter-2".
func GenerateSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range slug {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if len(out) > maxSlugLength {
		out = out[:maxSlugLength]
		out = strings.TrimSuffix(out, "-")
	}
	return out
}

// ValidateDevice checks all device fields prior to persistence.
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: nil device", ErrInvalidDevice)
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if err := ValidateSlug(d.Slug); err != nil {
		return err
	}
	if d.Protocol == "" {
		return fmt.Errorf("%w: protocol is required", ErrInvalidDevice)
	}
	if d.VendorID == "" {
		return fmt.Errorf("%w: vendor ID is required", ErrInvalidDevice)
	}
	if err := ValidateConnectionState(d.ConnectionState); err != nil {
		return err
	}
	for i := range d.Channels {
		if err := validateChannel(&d.Channels[i]); err != nil {
			return err
		}
	}
	return nil
}

// ValidateName checks a display name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateSlug checks slug format.
func ValidateSlug(slug string) error {
	if slug == "" {
		return fmt.Errorf("%w: slug is required", ErrInvalidSlug)
	}
	if len(slug) > maxSlugLength {
		return fmt.Errorf("%w: slug exceeds %d characters", ErrInvalidSlug, maxSlugLength)
	}
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("%w: %q", ErrInvalidSlug, slug)
	}
	return nil
}

// ValidateConnectionState checks a connection state value.
func ValidateConnectionState(state ConnectionState) error {
	switch state {
	case ConnectionConnected, ConnectionDisconnected, ConnectionUnknown:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidConnectionState, state)
	}
}

// ValidateIdentifier checks a channel or property identifier.
func ValidateIdentifier(identifier string) error {
	if identifier == "" || !identifierPattern.MatchString(identifier) {
		return fmt.Errorf("%w: identifier %q", ErrInvalidDevice, identifier)
	}
	return nil
}

// ValidateValue bounds a stored property value.
func ValidateValue(value string) error {
	if len(value) > maxValueLength {
		return fmt.Errorf("%w: value exceeds %d bytes", ErrInvalidDevice, maxValueLength)
	}
	return nil
}

func validateChannel(c *Channel) error {
	if err := ValidateIdentifier(c.Identifier); err != nil {
		return err
	}
	for i := range c.Properties {
		if err := ValidateIdentifier(c.Properties[i].Identifier); err != nil {
			return err
		}
		if err := ValidateValue(c.Properties[i].Value); err != nil {
			return err
		}
	}
	return nil
}
