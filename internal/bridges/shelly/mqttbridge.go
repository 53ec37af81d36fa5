package shelly

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MQTTClient is the interface for MQTT operations. This allows mocking in
// tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool

	// Disconnect closes the connection gracefully.
	Disconnect(quiesce uint)
}

// MQTTBridge exposes the Shelly integration on the platform message bus:
// commands in, state and connection updates out, periodic health.
//
// Thread Safety: all methods are safe for concurrent use.
type MQTTBridge struct {
	mqtt     MQTTClient
	platform *CommandPlatform
	adapter  *Adapter
	store    RecordStore
	health   *HealthReporter
	logger   Logger

	unsubscribe CancelFunc
	stateMu     sync.Mutex
	started     bool
}

// MQTTBridgeOptions configures a new MQTTBridge.
type MQTTBridgeOptions struct {
	MQTT     MQTTClient
	Platform *CommandPlatform
	Adapter  *Adapter
	Store    RecordStore
	Health   *HealthReporter
	Logger   Logger
}

// NewMQTTBridge creates an MQTTBridge. It does not subscribe until Start.
func NewMQTTBridge(opts MQTTBridgeOptions) (*MQTTBridge, error) {
	if opts.MQTT == nil || opts.Platform == nil || opts.Adapter == nil || opts.Store == nil {
		return nil, fmt.Errorf("shelly: mqtt bridge requires mqtt, platform, adapter and store")
	}
	return &MQTTBridge{
		mqtt:     opts.MQTT,
		platform: opts.Platform,
		adapter:  opts.Adapter,
		store:    opts.Store,
		health:   opts.Health,
		logger:   opts.Logger,
	}, nil
}

// Start subscribes to the command topic and begins republishing adapter
// events onto the bus.
func (b *MQTTBridge) Start(ctx context.Context) error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	if b.started {
		return ErrAlreadyStarted
	}

	if err := b.mqtt.Subscribe(CommandSubscribeTopic(), 1, b.handleCommandMessage); err != nil {
		return fmt.Errorf("shelly: subscribe commands: %w", err)
	}

	b.unsubscribe = b.adapter.Subscribe(b.handleAdapterEvent)

	if b.health != nil {
		b.health.Start(ctx)
	}

	b.started = true
	b.log().Info("mqtt bridge started", "command_topic", CommandSubscribeTopic())
	return nil
}

// Stop halts event republishing and health reporting. The MQTT connection
// itself belongs to the caller and is not closed here.
func (b *MQTTBridge) Stop() {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	if !b.started {
		return
	}
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
	if b.health != nil {
		b.health.Stop()
	}
	b.started = false
	b.log().Info("mqtt bridge stopped")
}

// handleCommandMessage parses and executes one inbound command, always
// answering with an acknowledgment.
func (b *MQTTBridge) handleCommandMessage(topic string, payload []byte) {
	deviceID := deviceIDFromTopic(topic)

	var msg CommandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.log().Warn("malformed command payload", "topic", topic, "error", err)
		b.publishAck(deviceID, "", AckFailed, fmt.Sprintf("malformed payload: %v", err))
		return
	}
	if msg.DeviceID == "" {
		msg.DeviceID = deviceID
	}
	if len(msg.Writes) == 0 {
		b.publishAck(msg.DeviceID, msg.ID, AckFailed, "command carries no writes")
		return
	}

	cmds := make([]Command, 0, len(msg.Writes))
	for _, w := range msg.Writes {
		cmds = append(cmds, Command{
			DeviceID: msg.DeviceID,
			Channel:  w.Channel,
			Property: w.Property,
			Value:    w.Value,
		})
	}

	ok, err := b.platform.ProcessBatch(context.Background(), cmds)
	switch {
	case err != nil:
		b.log().Warn("command rejected", "device", msg.DeviceID, "error", err)
		b.publishAck(msg.DeviceID, msg.ID, AckFailed, err.Error())
	case !ok:
		b.publishAck(msg.DeviceID, msg.ID, AckFailed, "one or more writes failed")
	default:
		b.publishAck(msg.DeviceID, msg.ID, AckAccepted, "")
	}
}

func (b *MQTTBridge) publishAck(deviceID, commandID string, status AckStatus, errMsg string) {
	ack := AckMessage{
		CommandID: commandID,
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
		Status:    status,
		Protocol:  "shelly",
		Error:     errMsg,
	}
	payload, err := json.Marshal(ack)
	if err != nil {
		b.log().Error("marshal ack failed", "error", err)
		return
	}
	if err := b.mqtt.Publish(AckTopic(deviceID), payload, 1, false); err != nil {
		b.log().Warn("publish ack failed", "device", deviceID, "error", err)
	}
}

// handleAdapterEvent republishes canonical state and connection changes.
// Vendor attribute changes with no binding in the device's current mode are
// not published; the bus carries canonical identifiers only.
func (b *MQTTBridge) handleAdapterEvent(ev Event) {
	switch e := ev.(type) {
	case DeviceChanged:
		b.publishState(e)
	case DeviceOnline:
		b.publishConnection(e.ID, ConnectionConnected)
	case DeviceOffline:
		b.publishConnection(e.ID, ConnectionDisconnected)
	}
}

func (b *MQTTBridge) publishState(e DeviceChanged) {
	handle := b.adapter.Handle(e.ID)
	if handle == nil {
		return
	}
	desc, err := ResolveDescriptor(handle.Type())
	if err != nil {
		return
	}
	binding, ok := bindingForVendorProperty(activeBindings(desc, handle), e.Property)
	if !ok {
		return
	}
	rec, err := b.store.FindDeviceByVendorID(context.Background(), e.ID)
	if err != nil || rec == nil {
		return
	}

	msg := StateMessage{
		DeviceID:  rec.ID,
		Timestamp: time.Now().UTC(),
		Channel:   binding.Channel,
		Property:  binding.Property,
		Value:     FormatValue(e.NewValue),
		Protocol:  "shelly",
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		b.log().Error("marshal state failed", "error", err)
		return
	}
	if err := b.mqtt.Publish(StateTopic(rec.ID), payload, 1, true); err != nil {
		b.log().Warn("publish state failed", "device", rec.ID, "error", err)
	}
}

func (b *MQTTBridge) publishConnection(vendorID, state string) {
	rec, err := b.store.FindDeviceByVendorID(context.Background(), vendorID)
	if err != nil || rec == nil {
		return
	}
	msg := ConnectionMessage{
		DeviceID:  rec.ID,
		Timestamp: time.Now().UTC(),
		State:     state,
		Protocol:  "shelly",
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		b.log().Error("marshal connection failed", "error", err)
		return
	}
	if err := b.mqtt.Publish(ConnectionTopic(rec.ID), payload, 1, true); err != nil {
		b.log().Warn("publish connection failed", "device", rec.ID, "error", err)
	}
}

func deviceIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 {
		return ""
	}
	return parts[3]
}

func (b *MQTTBridge) log() Logger {
	if b.logger != nil {
		return b.logger
	}
	return noopLogger{}
}
