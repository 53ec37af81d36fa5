// Gray Logic Shelly Bridge
//
// This is the main entry point for the Shelly protocol bridge. It discovers
// Shelly Gen1 devices over HTTP, maps them into the canonical device
// registry, and exposes them on the Gray Logic MQTT bus:
//   - commands in on graylogic/command/shelly/{device_id}
//   - state out on graylogic/state/shelly/{device_id}
//   - per-device reachability on graylogic/connection/shelly/{device_id}
//   - bridge health on graylogic/health/shelly
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/gray-logic-shelly/migrations"

	"github.com/nerrad567/gray-logic-shelly/internal/api"
	"github.com/nerrad567/gray-logic-shelly/internal/bridges/shelly"
	"github.com/nerrad567/gray-logic-shelly/internal/device"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/tsdb"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Shelly bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Initialise device registry
	deviceRepo := device.NewSQLiteRepository(db.DB)
	deviceRegistry := device.NewRegistry(deviceRepo)
	deviceRegistry.SetLogger(log)

	if refreshErr := deviceRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", deviceRegistry.GetDeviceCount())

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect the history backend (optional; at most one is enabled)
	history, closeHistory, err := connectHistory(ctx, cfg, log)
	if err != nil {
		return err
	}
	if closeHistory != nil {
		defer closeHistory()
	}

	// Start the Shelly integration (if enabled)
	var (
		bridgeService   *shelly.Service
		bridgeAdapter   *shelly.Adapter
		bridgeClient    *shelly.Client
		bridgeTransport *shelly.MQTTBridge
	)
	if cfg.Shelly.Enabled {
		bridgeService, bridgeAdapter, bridgeClient, bridgeTransport, err =
			startShellyBridge(ctx, cfg, deviceRegistry, mqttClient, history, log)
		if err != nil {
			return fmt.Errorf("starting Shelly bridge: %w", err)
		}
		defer func() {
			log.Info("stopping Shelly bridge")
			bridgeTransport.Stop()
			if stopErr := bridgeService.EnsureStopped(context.Background()); stopErr != nil {
				log.Error("error stopping Shelly service", "error", stopErr)
			}
		}()
	} else {
		log.Info("Shelly integration disabled")
	}

	// Start the diagnostics API (if enabled)
	if cfg.API.Enabled {
		apiDeps := api.Deps{
			Config:   cfg.API,
			Logger:   log,
			Registry: deviceRegistry,
			Version:  version,
		}
		if bridgeService != nil {
			apiDeps.Bridge = bridgeService
			apiDeps.Inventory = bridgeAdapter
			apiDeps.Prober = bridgeClient
		}

		apiServer, apiErr := api.New(apiDeps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Shelly bridge
	// 3. History backend (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("Gray Logic Shelly bridge stopped")
	return nil
}

// startShellyBridge wires the discovery scanner, adapter, mapper, command
// platform, lifecycle service and MQTT transport, then requests a deferred
// start so the MQTT connection settles before the first discovery sweep.
func startShellyBridge(
	ctx context.Context,
	cfg *config.Config,
	registry *device.Registry,
	mqttClient *mqtt.Client,
	history shelly.HistoryWriter,
	log *logging.Logger,
) (*shelly.Service, *shelly.Adapter, *shelly.Client, *shelly.MQTTBridge, error) {
	client := shelly.NewClient(cfg.ShellyRequestTimeout(), log)

	scanner, err := shelly.NewScanner(shelly.ScannerOptions{
		Client:       client,
		Logger:       log,
		Hosts:        cfg.Shelly.Discovery.Hosts,
		ScanInterval: cfg.ShellyScanInterval(),
	})
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("creating scanner: %w", err)
	}
	scanner.SetStaleTimeout(cfg.ShellyStaleTimeout())

	adapter, err := shelly.NewAdapter(shelly.AdapterOptions{
		Discoverer:     scanner,
		Logger:         log,
		RequestTimeout: cfg.ShellyRequestTimeout(),
		StaleTimeout:   cfg.ShellyStaleTimeout(),
	})
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("creating adapter: %w", err)
	}

	store := newRegistryStore(registry)
	mapper := shelly.NewMapper(store, history, log)
	platform := shelly.NewCommandPlatform(store, adapter, log)

	service, err := shelly.NewService(shelly.ServiceOptions{
		Adapter: adapter,
		Mapper:  mapper,
		Client:  client,
		Store:   store,
		Logger:  log,
	})
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("creating service: %w", err)
	}

	mqttAdapter := &mqttBridgeAdapter{client: mqttClient}

	healthCfg := shelly.HealthReporterConfig{
		BridgeID:  cfg.Bridge.ID,
		Version:   version,
		Publisher: mqttAdapter,
		Adapter:   adapter,
	}
	if metrics, ok := history.(shelly.MetricsWriter); ok {
		healthCfg.Metrics = metrics
	}
	health := shelly.NewHealthReporter(healthCfg)
	health.SetLogger(log)

	transport, err := shelly.NewMQTTBridge(shelly.MQTTBridgeOptions{
		MQTT:     mqttAdapter,
		Platform: platform,
		Adapter:  adapter,
		Store:    store,
		Health:   health,
		Logger:   log,
	})
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("creating MQTT bridge: %w", err)
	}

	if err := transport.Start(ctx); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("starting MQTT bridge: %w", err)
	}

	service.RequestStart(cfg.ShellyStartDelay())
	log.Info("Shelly bridge starting",
		"hosts", len(cfg.Shelly.Discovery.Hosts),
		"start_delay", cfg.ShellyStartDelay(),
	)

	return service, adapter, client, transport, nil
}

// connectHistory opens whichever history backend is enabled. Both cannot be
// enabled at once; config validation rejects that.
func connectHistory(ctx context.Context, cfg *config.Config, log *logging.Logger) (shelly.HistoryWriter, func(), error) {
	switch {
	case cfg.InfluxDB.Enabled:
		client, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		client.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		closeFn := func() {
			log.Info("closing InfluxDB connection")
			if err := client.Close(); err != nil {
				log.Error("error closing InfluxDB", "error", err)
			}
		}
		return &sampleHistory{writer: client}, closeFn, nil

	case cfg.TSDB.Enabled:
		client, err := tsdb.Connect(ctx, cfg.TSDB)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to TSDB: %w", err)
		}
		client.SetOnError(func(err error) {
			log.Error("TSDB write error", "error", err)
		})
		log.Info("TSDB connected", "url", cfg.TSDB.URL)
		closeFn := func() {
			log.Info("closing TSDB connection")
			if err := client.Close(); err != nil {
				log.Error("error closing TSDB", "error", err)
			}
		}
		return &sampleHistory{writer: client}, closeFn, nil

	default:
		log.Info("history backend disabled")
		return nil, nil, nil
	}
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	return nil
}
