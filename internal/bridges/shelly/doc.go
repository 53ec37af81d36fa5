// Package shelly provides the Shelly Gen1 protocol bridge for Gray Logic.
//
// The bridge integrates first-generation Shelly Wi-Fi devices into the
// platform's canonical device/channel/property model. It is composed of
// a small number of collaborating parts:
//
//	┌──────────────────────────────────────────────────────────────────────┐
//	│                          Shelly Bridge                               │
//	│                                                                      │
//	│  ┌────────────┐   ┌────────────┐   ┌────────────┐   ┌────────────┐   │
//	│  │  Adapter   │──▶│  Service   │──▶│   Mapper   │──▶│ RecordStore│   │
//	│  │(adapter.go)│   │(service.go)│   │ (mapper.go)│   │ (records)  │   │
//	│  │            │   │            │   │            │   └────────────┘   │
//	│  │ • registry │   │ • lifecycle│   │ • descriptor-driven            │
//	│  │ • events   │   │ • sync     │   │   channel/property creation    │
//	│  │ • staleness│   │ • refresh  │   └────────────────────────────────┘
//	│  └────────────┘   └────────────┘                                     │
//	│        │                 │            ┌──────────────┐               │
//	│        ▼                 ▼            │CommandPlatform│              │
//	│  ┌────────────┐   ┌────────────┐      │ (commands.go) │              │
//	│  │ Discoverer │   │   Client   │      │ • batching    │              │
//	│  │(discovery) │   │(httpclient)│      │ • translation │              │
//	│  └────────────┘   └────────────┘      └──────────────┘               │
//	└──────────────────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Discoverer/DeviceHandle: the opaque discovery mechanism behind a
//     narrow interface; the CoIoT wire protocol never leaks into the bridge
//   - Adapter: owns the live device registry and normalizes discovery
//     events into a closed set of domain events
//   - Descriptor/PropertyBinding: compiled-in capability tables mapping
//     vendor attributes to canonical channel/property pairs
//   - Mapper: creates canonical records from discovery events, idempotently
//   - CommandPlatform: executes canonical property writes against hardware,
//     batching writes destined for the same physical channel
//   - Service: the start/stop/restart lifecycle state machine that ties
//     everything to configuration
//
// # Thread Safety
//
// All exported types are safe for concurrent use. Lifecycle transitions on
// Service are serialized; at most one transition runs at a time.
package shelly
