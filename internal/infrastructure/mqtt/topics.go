package mqtt

import "fmt"

// Topic prefixes for the Gray Logic MQTT bus.
//
// All bridge topics use the flat scheme: graylogic/{category}/{protocol}/{address}
// This matches what the core's runtime subscribers expect.
const (
	// TopicPrefixBridge is the base for all bridge topics.
	// Flat scheme: graylogic/{category}/{protocol}/{address_or_id}
	TopicPrefixBridge = "graylogic"
)

// Topics provides builders for Gray Logic MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.BridgeState("shelly", "dev-42")
//	// Returns: "graylogic/state/shelly/dev-42"
type Topics struct{}

// BridgeState returns the topic for device state updates from a bridge.
//
// Example: graylogic/state/shelly/dev-42
func (Topics) BridgeState(protocol, deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefixBridge, protocol, deviceID)
}

// BridgeCommand returns the topic for commands to a bridge.
//
// Example: graylogic/command/shelly/dev-42
func (Topics) BridgeCommand(protocol, deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefixBridge, protocol, deviceID)
}

// BridgeAck returns the topic for command acknowledgements from a bridge.
//
// Example: graylogic/ack/shelly/dev-42
func (Topics) BridgeAck(protocol, deviceID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefixBridge, protocol, deviceID)
}

// BridgeConnection returns the topic for per-device reachability updates.
//
// Example: graylogic/connection/shelly/dev-42
func (Topics) BridgeConnection(protocol, deviceID string) string {
	return fmt.Sprintf("%s/connection/%s/%s", TopicPrefixBridge, protocol, deviceID)
}

// BridgeHealth returns the topic for bridge health status.
//
// Example: graylogic/health/shelly
func (Topics) BridgeHealth(protocol string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefixBridge, protocol)
}

// BridgeStatus returns the transport-level status topic for one client.
// Used for the client's own online/offline announcements and LWT.
//
// Example: graylogic/bridge/graylogic-shelly/status
func (Topics) BridgeStatus(clientID string) string {
	return fmt.Sprintf("%s/bridge/%s/status", TopicPrefixBridge, clientID)
}

// Wildcard patterns for subscriptions.

// BridgeCommands returns a pattern matching all commands for one protocol.
//
// Pattern: graylogic/command/shelly/+
func (Topics) BridgeCommands(protocol string) string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefixBridge, protocol)
}

// AllBridgeStates returns a pattern matching all bridge state updates.
//
// Pattern: graylogic/state/+/+
func (Topics) AllBridgeStates() string {
	return fmt.Sprintf("%s/state/+/+", TopicPrefixBridge)
}

// AllBridgeCommands returns a pattern matching all commands to bridges.
//
// Pattern: graylogic/command/+/+
func (Topics) AllBridgeCommands() string {
	return fmt.Sprintf("%s/command/+/+", TopicPrefixBridge)
}

// AllBridgeAcks returns a pattern matching all bridge acknowledgements.
//
// Pattern: graylogic/ack/+/+
func (Topics) AllBridgeAcks() string {
	return fmt.Sprintf("%s/ack/+/+", TopicPrefixBridge)
}

// AllBridgeHealth returns a pattern matching all bridge health updates.
//
// Pattern: graylogic/health/+
func (Topics) AllBridgeHealth() string {
	return fmt.Sprintf("%s/health/+", TopicPrefixBridge)
}

// AllTopics returns a pattern matching all Gray Logic topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: graylogic/#
func (Topics) AllTopics() string {
	return "graylogic/#"
}
