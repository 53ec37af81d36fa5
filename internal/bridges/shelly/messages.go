package shelly

import (
	"fmt"
	"time"
)

// MQTT message types for communication between Gray Logic Core and the
// Shelly bridge.

// CommandMessage is sent from Core to the bridge to execute property writes.
// Topic: graylogic/command/shelly/{device_id}
type CommandMessage struct {
	// ID uniquely identifies this command for correlation with
	// acknowledgments.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the Gray Logic device identifier.
	DeviceID string `json:"device_id"`

	// Writes is the batch of property writes. All writes are validated
	// before any is executed.
	Writes []PropertyWrite `json:"writes"`

	// Source indicates where the command originated.
	// Values: "api", "automation", "voice", "scene"
	Source string `json:"source"`
}

// PropertyWrite is one channel/property/value triple within a command.
type PropertyWrite struct {
	Channel  string `json:"channel"`
	Property string `json:"property"`
	Value    any    `json:"value"`
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was executed against the device.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// AckMessage is sent from the bridge to Core to acknowledge a command.
// Topic: graylogic/ack/shelly/{device_id}
type AckMessage struct {
	// CommandID is the ID from the original command.
	CommandID string `json:"command_id"`

	// Timestamp is when the acknowledgment was sent (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the Gray Logic device identifier.
	DeviceID string `json:"device_id"`

	// Status indicates the acknowledgment status.
	Status AckStatus `json:"status"`

	// Protocol is the protocol identifier ("shelly").
	Protocol string `json:"protocol"`

	// Error contains details if status is "failed".
	Error string `json:"error,omitempty"`
}

// StateMessage is sent from the bridge to Core when a property changes.
// Topic: graylogic/state/shelly/{device_id}
// QoS: 1, Retained: Yes
type StateMessage struct {
	// DeviceID is the Gray Logic device identifier.
	DeviceID string `json:"device_id"`

	// Timestamp is when the change was observed (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Channel and Property identify what changed.
	Channel  string `json:"channel"`
	Property string `json:"property"`

	// Value is the canonical string form of the new value.
	Value string `json:"value"`

	// Protocol is the protocol identifier ("shelly").
	Protocol string `json:"protocol"`
}

// ConnectionMessage is sent when a device's reachability changes.
// Topic: graylogic/connection/shelly/{device_id}
// QoS: 1, Retained: Yes
type ConnectionMessage struct {
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`

	// State is "connected", "disconnected" or "unknown".
	State string `json:"state"`

	Protocol string `json:"protocol"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is operating with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting indicates the bridge is initializing.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"

	// HealthOffline indicates the bridge connection was lost (LWT).
	HealthOffline HealthStatus = "offline"
)

// HealthMessage is published periodically and as the LWT payload.
// Topic: graylogic/health/shelly
// QoS: 1, Retained: Yes
type HealthMessage struct {
	BridgeID  string       `json:"bridge_id"`
	Timestamp time.Time    `json:"timestamp"`
	Status    HealthStatus `json:"status"`
	Reason    string       `json:"reason,omitempty"`
	Version   string       `json:"version"`

	// UptimeSeconds is how long the bridge has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// DeviceCount is the number of devices currently registered.
	DeviceCount int `json:"device_count"`

	// OnlineCount is how many of those are currently reachable.
	OnlineCount int `json:"online_count"`
}

// NewLWTMessage builds the payload brokers deliver when the bridge
// disappears without a clean disconnect.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		BridgeID:  bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "connection lost",
	}
}

// Topic helpers. The scheme mirrors the platform convention:
// graylogic/{kind}/shelly/{device_id}.

// CommandTopic returns the command topic for a device.
func CommandTopic(deviceID string) string {
	return fmt.Sprintf("graylogic/command/shelly/%s", deviceID)
}

// CommandSubscribeTopic returns the wildcard the bridge subscribes to for
// commands.
func CommandSubscribeTopic() string {
	return "graylogic/command/shelly/+"
}

// AckTopic returns the acknowledgment topic for a device.
func AckTopic(deviceID string) string {
	return fmt.Sprintf("graylogic/ack/shelly/%s", deviceID)
}

// StateTopic returns the state topic for a device.
func StateTopic(deviceID string) string {
	return fmt.Sprintf("graylogic/state/shelly/%s", deviceID)
}

// ConnectionTopic returns the reachability topic for a device.
func ConnectionTopic(deviceID string) string {
	return fmt.Sprintf("graylogic/connection/shelly/%s", deviceID)
}

// HealthTopic returns the bridge health topic.
func HealthTopic() string {
	return "graylogic/health/shelly"
}
