package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Shelly bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge   BridgeConfig   `yaml:"bridge"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	TSDB     TSDBConfig     `yaml:"tsdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Shelly   ShellyConfig   `yaml:"shelly"`
}

// BridgeConfig identifies this bridge instance.
type BridgeConfig struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains settings for the diagnostics HTTP API.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings for property history.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// TSDBConfig contains VictoriaMetrics connection settings. An alternative
// history backend to InfluxDB; enable at most one.
type TSDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// ShellyConfig contains Shelly protocol integration settings.
type ShellyConfig struct {
	Enabled bool `yaml:"enabled"`

	// Discovery configures the HTTP scanner.
	Discovery ShellyDiscoveryConfig `yaml:"discovery"`

	// RequestTimeout bounds individual device HTTP requests (seconds).
	RequestTimeout int `yaml:"request_timeout"`

	// StaleTimeout is how long without contact before a device is
	// considered offline (seconds).
	StaleTimeout int `yaml:"stale_timeout"`

	// RefreshInterval is how often enabled devices are re-polled for
	// status while the integration is running (seconds).
	RefreshInterval int `yaml:"refresh_interval"`

	// StartDelay defers integration startup after boot so the network
	// can settle (seconds). Zero starts immediately.
	StartDelay int `yaml:"start_delay"`
}

// ShellyDiscoveryConfig configures device discovery.
type ShellyDiscoveryConfig struct {
	// Hosts is the list of IPs or hostnames to sweep. Ranges are not
	// expanded; list each address.
	Hosts []string `yaml:"hosts"`

	// ScanInterval is the sweep period in seconds.
	ScanInterval int `yaml:"scan_interval"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:      "shelly-bridge-001",
			Name:    "Shelly Bridge",
			Version: "dev",
		},
		Database: DatabaseConfig{
			Path:        "./data/shellybridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-shelly",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Shelly: ShellyConfig{
			Enabled: true,
			Discovery: ShellyDiscoveryConfig{
				ScanInterval: 30,
			},
			RequestTimeout:  5,
			StaleTimeout:    720,
			RefreshInterval: 300,
			StartDelay:      0,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Shelly discovery hosts, comma separated
	if v := os.Getenv("GRAYLOGIC_SHELLY_HOSTS"); v != "" {
		hosts := strings.Split(v, ",")
		cfg.Shelly.Discovery.Hosts = cfg.Shelly.Discovery.Hosts[:0]
		for _, h := range hosts {
			if h = strings.TrimSpace(h); h != "" {
				cfg.Shelly.Discovery.Hosts = append(cfg.Shelly.Discovery.Hosts, h)
			}
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Bridge validation
	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// History backends are alternatives, not a pipeline
	if c.InfluxDB.Enabled && c.TSDB.Enabled {
		errs = append(errs, "influxdb and tsdb cannot both be enabled")
	}

	// Shelly validation
	if c.Shelly.Enabled {
		if len(c.Shelly.Discovery.Hosts) == 0 {
			errs = append(errs, "shelly.discovery.hosts must list at least one host (or set GRAYLOGIC_SHELLY_HOSTS)")
		}
		if c.Shelly.Discovery.ScanInterval < 1 {
			errs = append(errs, "shelly.discovery.scan_interval must be at least 1 second")
		}
		if c.Shelly.RequestTimeout < 1 {
			errs = append(errs, "shelly.request_timeout must be at least 1 second")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// ShellyRequestTimeout returns the device HTTP request timeout as a Duration.
func (c *Config) ShellyRequestTimeout() time.Duration {
	return time.Duration(c.Shelly.RequestTimeout) * time.Second
}

// ShellyStaleTimeout returns the device staleness cutoff as a Duration.
func (c *Config) ShellyStaleTimeout() time.Duration {
	return time.Duration(c.Shelly.StaleTimeout) * time.Second
}

// ShellyScanInterval returns the discovery sweep period as a Duration.
func (c *Config) ShellyScanInterval() time.Duration {
	return time.Duration(c.Shelly.Discovery.ScanInterval) * time.Second
}

// ShellyRefreshInterval returns the status refresh period as a Duration.
func (c *Config) ShellyRefreshInterval() time.Duration {
	return time.Duration(c.Shelly.RefreshInterval) * time.Second
}

// ShellyStartDelay returns the deferred startup delay as a Duration.
func (c *Config) ShellyStartDelay() time.Duration {
	return time.Duration(c.Shelly.StartDelay) * time.Second
}
