package shelly

import (
	"fmt"
	"strconv"
	"strings"
)

// Value coercion helpers shared by the mapper and the command platform.
// All functions are pure; none touch the network or the registry.

// ParseBool coerces a canonical or vendor value into a boolean.
// Accepted: bool, numeric (non-zero is true), and the usual string spellings
// ("true"/"false", "on"/"off", "1"/"0", "yes"/"no").
func ParseBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "on", "1", "yes":
			return true, nil
		case "false", "off", "0", "no":
			return false, nil
		}
		return false, fmt.Errorf("%w: %q is not a boolean", ErrValidation, v)
	default:
		return false, fmt.Errorf("%w: %T is not a boolean", ErrValidation, value)
	}
}

// ParseNumber coerces a value into a float64.
func ParseNumber(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrValidation, v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %T is not a number", ErrValidation, value)
	}
}

// ParseIntClamped coerces a value into an integer clamped to [minV, maxV].
// Out-of-range values are clamped, not rejected; hardware limits are a fact
// of the device, not a caller error.
func ParseIntClamped(value any, minV, maxV int) (int, error) {
	f, err := ParseNumber(value)
	if err != nil {
		return 0, err
	}
	n := int(f)
	if n < minV {
		n = minV
	}
	if n > maxV {
		n = maxV
	}
	return n, nil
}

// ValidateEnum checks that value (case-insensitively) matches one of the
// allowed spellings and returns the canonical lowercase form.
func ValidateEnum(value any, allowed []string) (string, error) {
	s, ok := value.(string)
	if !ok {
		s = fmt.Sprintf("%v", value)
	}
	s = strings.ToLower(strings.TrimSpace(s))
	for _, a := range allowed {
		if s == a {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q not in %v", ErrValidation, s, allowed)
}

// ValueMap is a bidirectional mapping between raw vendor values and their
// canonical representations.
type ValueMap struct {
	toCanonical map[string]string
	toRaw       map[string]string
}

// NewValueMap builds a ValueMap from raw→canonical pairs.
func NewValueMap(pairs map[string]string) *ValueMap {
	m := &ValueMap{
		toCanonical: make(map[string]string, len(pairs)),
		toRaw:       make(map[string]string, len(pairs)),
	}
	for raw, canonical := range pairs {
		m.toCanonical[strings.ToLower(raw)] = canonical
		m.toRaw[strings.ToLower(canonical)] = raw
	}
	return m
}

// Canonical translates a raw vendor value. Unknown values pass through
// unchanged so an unexpected firmware string is visible rather than lost.
func (m *ValueMap) Canonical(raw string) string {
	if v, ok := m.toCanonical[strings.ToLower(raw)]; ok {
		return v
	}
	return raw
}

// Raw translates a canonical value back to its vendor spelling.
func (m *ValueMap) Raw(canonical string) string {
	if v, ok := m.toRaw[strings.ToLower(canonical)]; ok {
		return v
	}
	return canonical
}

// FormatValue renders an attribute value as the string form stored on
// canonical properties.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}
