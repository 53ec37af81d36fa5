// Package mqtt connects the bridge to the Gray Logic message bus.
//
// The core and its protocol bridges talk over a Mosquitto broker; this
// package is the Shelly bridge's side of that link. It handles connection
// management with auto-reconnect, publishing, wildcard subscriptions that
// survive a reconnect, and a Last Will so the core notices when the bridge
// drops off unexpectedly.
//
// Topic layout is flat: graylogic/{category}/{protocol}/{address}. Use the
// Topics builders rather than assembling strings by hand.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.BridgeCommands("shelly"), 1,
//	    func(topic string, payload []byte) error {
//	        return dispatch(topic, payload)
//	    })
//
// Enable TLS (cfg.Broker.TLS) for anything beyond local development;
// payloads are not encrypted beyond the transport.
package mqtt
