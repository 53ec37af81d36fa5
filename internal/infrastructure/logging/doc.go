// Package logging wraps log/slog for the Shelly bridge.
//
// Every log entry carries the service name and version so the bridge's
// lines are attributable when several services share one log pipeline.
// Format, level and destination come from the logging section of the
// config file:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Component loggers hang off the root logger:
//
//	log := logging.New(cfg.Logging, version)
//	scannerLog := log.With("component", "scanner")
//
// Never log device passwords or other credentials.
package logging
