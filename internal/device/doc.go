// Package device provides the Device Registry for the Gray Logic Shelly
// bridge.
//
// The registry is the canonical catalogue of integrated devices. Every
// physical device maps to one Device aggregate holding Channels (functional
// groupings such as a relay output or a light) which in turn hold Properties
// (typed values such as state, brightness or power).
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────────────┐
//	│                          Device Registry                            │
//	│                                                                     │
//	│  ┌──────────────────┐    ┌──────────────────┐    ┌───────────────┐  │
//	│  │     Registry     │    │    Repository    │    │  Validation   │  │
//	│  │   (registry.go)  │───▶│  (repository.go) │    │(validation.go)│  │
//	│  │                  │    │                  │    │               │  │
//	│  │ • CRUD ops       │    │ • SQLite queries │    │ • Field checks│  │
//	│  │ • In-memory cache│    │ • Transactions   │    │ • Slug/ID gen │  │
//	│  │ • Thread safety  │    │ • Aggregate load │    │               │  │
//	│  └──────────────────┘    └──────────────────┘    └───────────────┘  │
//	│           │                       │                                 │
//	└───────────│───────────────────────│─────────────────────────────────┘
//	            │                       ▼
//	            │              ┌──────────────────────┐
//	            │              │   SQLite Database    │
//	            ▼              │ devices / channels / │
//	┌──────────────────────┐   │     properties       │
//	│  Shelly bridge and   │   └──────────────────────┘
//	│   diagnostics API    │
//	└──────────────────────┘
//
// # Key Types
//
//   - Device: one integrated physical device, including vendor identity
//   - Channel: a functional unit on a device (relay_0, light_0, ...)
//   - Property: a typed value on a channel (state, brightness, power, ...)
//   - ConnectionState: the device's current reachability
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	dev, err := registry.GetDeviceByVendorID(ctx, "A4CF12F45678")
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. The cache holds deep
// copies; callers can modify returned values freely.
package device
