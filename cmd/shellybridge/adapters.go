package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-shelly/internal/bridges/shelly"
	"github.com/nerrad567/gray-logic-shelly/internal/device"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/mqtt"
)

// bridgeProtocol is the protocol tag stamped on every device record this
// bridge owns. ListDevices filters on it so a shared registry database never
// leaks another bridge's devices into this one.
const bridgeProtocol = "shelly"

// registryStore adapts *device.Registry to the shelly.RecordStore interface.
// The bridge works with flat record structs; the registry owns the full
// aggregate model.
type registryStore struct {
	registry *device.Registry
}

func newRegistryStore(registry *device.Registry) *registryStore {
	return &registryStore{registry: registry}
}

// FindDeviceByVendorID implements shelly.RecordStore. A missing device is
// reported as nil, nil: the mapper treats that as "create it".
func (s *registryStore) FindDeviceByVendorID(ctx context.Context, vendorID string) (*shelly.DeviceRecord, error) {
	dev, err := s.registry.GetDeviceByVendorID(ctx, vendorID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			return nil, nil
		}
		return nil, err
	}
	rec := toRecord(dev)
	return &rec, nil
}

// CreateDevice implements shelly.RecordStore.
func (s *registryStore) CreateDevice(ctx context.Context, rec shelly.DeviceRecord) (string, error) {
	dev := &device.Device{
		Name:       rec.Name,
		Category:   device.Category(rec.Category),
		Protocol:   bridgeProtocol,
		VendorType: rec.VendorType,
		VendorID:   rec.VendorID,
		Host:       rec.Host,
		Enabled:    rec.Enabled,
	}
	if rec.Firmware != "" {
		fw := rec.Firmware
		dev.FirmwareVersion = &fw
	}

	if err := s.registry.CreateDevice(ctx, dev); err != nil {
		return "", err
	}
	return dev.ID, nil
}

// UpdateDevice implements shelly.RecordStore. Only the bridge-owned mutable
// fields are touched; operator-owned fields (name, category) are preserved.
func (s *registryStore) UpdateDevice(ctx context.Context, rec shelly.DeviceRecord) error {
	dev, err := s.registry.GetDevice(ctx, rec.ID)
	if err != nil {
		return err
	}

	dev.Host = rec.Host
	dev.Enabled = rec.Enabled
	if rec.Firmware != "" {
		fw := rec.Firmware
		dev.FirmwareVersion = &fw
	}

	return s.registry.UpdateDevice(ctx, dev)
}

// EnsureChannel implements shelly.RecordStore.
func (s *registryStore) EnsureChannel(ctx context.Context, rec shelly.ChannelRecord) error {
	return s.registry.EnsureChannel(ctx, rec.DeviceID, device.Channel{
		Identifier: rec.Identifier,
		Name:       rec.Name,
		Category:   device.Category(rec.Category),
	})
}

// EnsureProperty implements shelly.RecordStore.
func (s *registryStore) EnsureProperty(ctx context.Context, rec shelly.PropertyRecord) error {
	return s.registry.EnsureProperty(ctx, rec.DeviceID, rec.ChannelIdentifier, device.Property{
		Identifier:  rec.Identifier,
		Category:    device.Category(rec.Category),
		DataType:    rec.DataType,
		Permissions: rec.Permissions,
		Unit:        rec.Unit,
		Format:      rec.Format,
		Value:       rec.Value,
	})
}

// SetPropertyValue implements shelly.RecordStore.
func (s *registryStore) SetPropertyValue(ctx context.Context, deviceID, channel, property, value string) error {
	return s.registry.SetPropertyValue(ctx, deviceID, channel, property, value)
}

// SetConnectionState implements shelly.RecordStore.
func (s *registryStore) SetConnectionState(ctx context.Context, deviceID, state string) error {
	cs := device.ConnectionState(state)
	if err := device.ValidateConnectionState(cs); err != nil {
		return fmt.Errorf("invalid connection state %q: %w", state, err)
	}
	return s.registry.SetConnectionState(ctx, deviceID, cs)
}

// ListDevices implements shelly.RecordStore. Only devices owned by this
// bridge are returned.
func (s *registryStore) ListDevices(ctx context.Context) ([]shelly.DeviceRecord, error) {
	devices, err := s.registry.ListDevices(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]shelly.DeviceRecord, 0, len(devices))
	for i := range devices {
		if devices[i].Protocol != bridgeProtocol {
			continue
		}
		records = append(records, toRecord(&devices[i]))
	}
	return records, nil
}

// toRecord projects a registry device onto the bridge-side record view.
func toRecord(dev *device.Device) shelly.DeviceRecord {
	rec := shelly.DeviceRecord{
		ID:         dev.ID,
		Name:       dev.Name,
		Category:   string(dev.Category),
		VendorType: dev.VendorType,
		VendorID:   dev.VendorID,
		Host:       dev.Host,
		Enabled:    dev.Enabled,
	}
	if dev.FirmwareVersion != nil {
		rec.Firmware = *dev.FirmwareVersion
	}
	return rec
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the shelly
// package's MQTTClient interface. The main difference is the Subscribe
// handler signature:
//   - Infrastructure mqtt: func(topic string, payload []byte) error
//   - Shelly bridge expects: func(topic string, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements shelly.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements shelly.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements shelly.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// Disconnect implements shelly.MQTTClient. The MQTT client lifecycle is
// owned by run()'s defer chain, so this is a no-op.
func (a *mqttBridgeAdapter) Disconnect(_ uint) {}

// propertySampleWriter is the write surface shared by the influxdb and tsdb
// clients. Either backend can serve as the bridge's history writer.
type propertySampleWriter interface {
	WritePropertySample(deviceID, channel, property string, value any)
	WriteBridgeMetric(bridgeID, metric string, value float64)
}

// sampleHistory adapts a history backend to shelly.HistoryWriter and
// shelly.MetricsWriter.
type sampleHistory struct {
	writer propertySampleWriter
}

// WriteSample implements shelly.HistoryWriter.
func (h *sampleHistory) WriteSample(deviceID, channel, property string, value any) {
	h.writer.WritePropertySample(deviceID, channel, property, value)
}

// WriteBridgeMetric implements shelly.MetricsWriter.
func (h *sampleHistory) WriteBridgeMetric(bridgeID, metric string, value float64) {
	h.writer.WriteBridgeMetric(bridgeID, metric, value)
}
