// Package influxdb stores the bridge's sample history in InfluxDB v2.
//
// It wraps influxdb-client-go with the connection, batching and health
// check conventions used across the bridge's storage backends. Two kinds
// of series go through it: device property history (power, position, relay
// state) and bridge operational metrics (device counts, uptime).
//
// Writes are non-blocking and batched per the configured batch_size and
// flush_interval; batch errors surface through SetOnError rather than
// return values. All methods are safe for concurrent use.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WritePropertySample("dev-42", "relay_0", "power", 12.5)
package influxdb
