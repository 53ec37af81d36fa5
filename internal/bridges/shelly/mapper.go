package shelly

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Connection states written to the record store.
const (
	ConnectionConnected    = "connected"
	ConnectionDisconnected = "disconnected"
	ConnectionUnknown      = "unknown"
)

// Identifiers for the synthetic device information channel present on every
// mapped device.
const (
	infoChannel = "device_information"

	infoPropManufacturer = "manufacturer"
	infoPropModel        = "model"
	infoPropSerial       = "serial_number"
	infoPropFirmware     = "firmware_version"
	infoPropLinkQuality  = "link_quality"
	infoPropStatus       = "status"
	infoPropMode         = "mode"
)

// Mapper turns discovered devices into canonical device/channel/property
// records. Every operation is idempotent: mapping the same device twice
// creates nothing new and refreshes mutable fields.
//
// Thread Safety: safe for concurrent use; all state lives in the store.
type Mapper struct {
	store   RecordStore
	history HistoryWriter // optional
	logger  Logger
}

// NewMapper creates a Mapper. history may be nil.
func NewMapper(store RecordStore, history HistoryWriter, logger Logger) *Mapper {
	return &Mapper{store: store, history: history, logger: logger}
}

// MapDevice creates or refreshes the canonical records for a discovered
// device:
//
//  1. resolve the capability descriptor from the vendor type
//  2. find the existing device record by vendor ID
//  3. create the device record when missing
//  4. refresh mutable fields (host, firmware) when present
//  5. resolve the active binding set for the device's current mode
//  6. ensure a channel per bound channel identifier plus the device
//     information channel
//  7. ensure a property per binding plus the information properties
//  8. seed property values from live attributes and mark the device
//     connected
//
// An unsupported vendor type returns ErrUnsupported; the caller logs and
// skips. A device whose mode matches no profile still gets its device record
// and information channel so the operator can see it exists.
func (m *Mapper) MapDevice(ctx context.Context, handle DeviceHandle) (string, error) {
	desc, err := ResolveDescriptor(handle.Type())
	if err != nil {
		return "", err
	}

	rec, err := m.store.FindDeviceByVendorID(ctx, handle.ID())
	if err != nil {
		return "", fmt.Errorf("shelly: look up device %s: %w", handle.ID(), err)
	}

	firmware := attributeString(handle, "firmwareVersion")
	if rec == nil {
		create := DeviceRecord{
			Name:       deviceName(desc, handle),
			Category:   string(desc.Category),
			VendorType: handle.Type(),
			VendorID:   handle.ID(),
			Host:       handle.Host(),
			Firmware:   firmware,
			Enabled:    true,
		}
		id, err := m.store.CreateDevice(ctx, create)
		if err != nil {
			return "", fmt.Errorf("shelly: create device %s: %w", handle.ID(), err)
		}
		rec = &create
		rec.ID = id
		m.log().Info("device mapped", "id", id, "vendor_id", handle.ID(), "family", desc.Name)
	} else if rec.Host != handle.Host() || (firmware != "" && rec.Firmware != firmware) {
		rec.Host = handle.Host()
		if firmware != "" {
			rec.Firmware = firmware
		}
		if err := m.store.UpdateDevice(ctx, *rec); err != nil {
			return "", fmt.Errorf("shelly: update device %s: %w", rec.ID, err)
		}
	}

	if err := m.ensureInfoChannel(ctx, rec.ID, desc, handle); err != nil {
		return "", err
	}

	bindings := activeBindings(desc, handle)
	order, groups := groupBindingsByChannel(bindings)
	for _, channel := range order {
		group := groups[channel]
		chRec := ChannelRecord{
			DeviceID:   rec.ID,
			Identifier: channel,
			Name:       channelName(channel),
			Category:   string(inferChannelCategory(group)),
		}
		if err := m.store.EnsureChannel(ctx, chRec); err != nil {
			return "", fmt.Errorf("shelly: ensure channel %s/%s: %w", rec.ID, channel, err)
		}
		for _, b := range group {
			prop := PropertyRecord{
				DeviceID:          rec.ID,
				ChannelIdentifier: b.Channel,
				Identifier:        b.Property,
				Category:          string(b.Category),
				DataType:          string(b.DataType),
				Permissions:       string(b.Permissions),
				Unit:              b.Unit,
				Format:            b.Format,
			}
			if err := m.store.EnsureProperty(ctx, prop); err != nil {
				return "", fmt.Errorf("shelly: ensure property %s/%s/%s: %w", rec.ID, b.Channel, b.Property, err)
			}
			if raw, ok := handle.Attribute(b.VendorProperty); ok {
				if err := m.store.SetPropertyValue(ctx, rec.ID, b.Channel, b.Property, FormatValue(raw)); err != nil {
					m.log().Warn("seed property value failed",
						"device", rec.ID, "property", b.Property, "error", err)
				}
			}
		}
	}

	if err := m.store.SetConnectionState(ctx, rec.ID, ConnectionConnected); err != nil {
		m.log().Warn("set connection state failed", "device", rec.ID, "error", err)
	}
	return rec.ID, nil
}

// MapChange routes one vendor attribute change to its canonical property.
// Changes with no binding in the current mode are ignored; mode changes
// themselves update the information channel.
func (m *Mapper) MapChange(ctx context.Context, handle DeviceHandle, attr string, newValue any) error {
	desc, err := ResolveDescriptor(handle.Type())
	if err != nil {
		return err
	}

	rec, err := m.store.FindDeviceByVendorID(ctx, handle.ID())
	if err != nil {
		return fmt.Errorf("shelly: look up device %s: %w", handle.ID(), err)
	}
	if rec == nil {
		// Change arrived before discovery mapping finished; map from
		// scratch, which also seeds this value.
		_, err := m.MapDevice(ctx, handle)
		return err
	}

	if infoErr := m.mapInfoChange(ctx, rec.ID, desc, attr, newValue); infoErr == nil {
		return nil
	} else if !errors.Is(infoErr, errNotInfoAttribute) {
		return infoErr
	}

	bindings := activeBindings(desc, handle)
	binding, ok := bindingForVendorProperty(bindings, attr)
	if !ok {
		m.log().Debug("unbound attribute change ignored",
			"device", rec.ID, "attribute", attr)
		return nil
	}

	value := FormatValue(newValue)
	if err := m.store.SetPropertyValue(ctx, rec.ID, binding.Channel, binding.Property, value); err != nil {
		return fmt.Errorf("shelly: store %s/%s: %w", binding.Channel, binding.Property, err)
	}
	if m.history != nil {
		m.history.WriteSample(rec.ID, binding.Channel, binding.Property, newValue)
	}
	return nil
}

// MapConnection records a reachability transition for a mapped device.
// Unmapped devices are ignored.
func (m *Mapper) MapConnection(ctx context.Context, vendorID, state string) error {
	rec, err := m.store.FindDeviceByVendorID(ctx, vendorID)
	if err != nil {
		return fmt.Errorf("shelly: look up device %s: %w", vendorID, err)
	}
	if rec == nil {
		return nil
	}

	if err := m.store.SetConnectionState(ctx, rec.ID, state); err != nil {
		return fmt.Errorf("shelly: set connection state for %s: %w", rec.ID, err)
	}
	status := "online"
	if state != ConnectionConnected {
		status = "offline"
	}
	return m.store.SetPropertyValue(ctx, rec.ID, infoChannel, infoPropStatus, status)
}

// errNotInfoAttribute signals that an attribute does not belong to the
// information channel. Internal control flow only.
var errNotInfoAttribute = errors.New("shelly: not an information attribute")

// infoAttributes maps vendor attribute names onto information channel
// properties.
var infoAttributes = map[string]string{
	"firmwareVersion": infoPropFirmware,
	"rssi":            infoPropLinkQuality,
	"mode":            infoPropMode,
}

func (m *Mapper) mapInfoChange(ctx context.Context, deviceID string, desc *Descriptor, attr string, newValue any) error {
	prop, ok := infoAttributes[attr]
	if !ok {
		return errNotInfoAttribute
	}
	if prop == infoPropMode && desc.ModeProperty == "" {
		return errNotInfoAttribute
	}
	return m.store.SetPropertyValue(ctx, deviceID, infoChannel, prop, FormatValue(newValue))
}

func (m *Mapper) ensureInfoChannel(ctx context.Context, deviceID string, desc *Descriptor, handle DeviceHandle) error {
	ch := ChannelRecord{
		DeviceID:   deviceID,
		Identifier: infoChannel,
		Name:       "Device Information",
		Category:   string(CategoryGeneric),
	}
	if err := m.store.EnsureChannel(ctx, ch); err != nil {
		return fmt.Errorf("shelly: ensure information channel: %w", err)
	}

	props := []struct {
		id    string
		typ   DataType
		value string
	}{
		{infoPropManufacturer, TypeString, "Allterco Robotics"},
		{infoPropModel, TypeString, handle.Type()},
		{infoPropSerial, TypeString, handle.ID()},
		{infoPropFirmware, TypeString, attributeString(handle, "firmwareVersion")},
		{infoPropLinkQuality, TypeInt, attributeString(handle, "rssi")},
		{infoPropStatus, TypeString, statusString(handle.Online())},
	}
	if desc.ModeProperty != "" {
		props = append(props, struct {
			id    string
			typ   DataType
			value string
		}{infoPropMode, TypeString, attributeString(handle, desc.ModeProperty)})
	}

	for _, p := range props {
		rec := PropertyRecord{
			DeviceID:          deviceID,
			ChannelIdentifier: infoChannel,
			Identifier:        p.id,
			Category:          string(CategoryGeneric),
			DataType:          string(p.typ),
			Permissions:       string(PermReadOnly),
		}
		if err := m.store.EnsureProperty(ctx, rec); err != nil {
			return fmt.Errorf("shelly: ensure information property %s: %w", p.id, err)
		}
		if p.value != "" {
			if err := m.store.SetPropertyValue(ctx, deviceID, infoChannel, p.id, p.value); err != nil {
				m.log().Warn("seed information property failed",
					"device", deviceID, "property", p.id, "error", err)
			}
		}
	}
	return nil
}

func (m *Mapper) log() Logger {
	if m.logger != nil {
		return m.logger
	}
	return noopLogger{}
}

func deviceName(desc *Descriptor, handle DeviceHandle) string {
	if name := attributeString(handle, "deviceName"); name != "" {
		return name
	}
	id := handle.ID()
	if len(id) > 6 {
		id = id[len(id)-6:]
	}
	return fmt.Sprintf("%s %s", desc.DisplayName, strings.ToUpper(id))
}

func channelName(identifier string) string {
	name := strings.ReplaceAll(identifier, "_", " ")
	if name == "" {
		return identifier
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func attributeString(handle DeviceHandle, name string) string {
	if raw, ok := handle.Attribute(name); ok {
		return FormatValue(raw)
	}
	return ""
}

func statusString(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}
