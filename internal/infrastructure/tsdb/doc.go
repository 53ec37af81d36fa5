// Package tsdb stores the bridge's sample history in VictoriaMetrics.
//
// It speaks InfluxDB line protocol over plain HTTP, so it carries no client
// dependency. Deployments pick either this backend or the influxdb package,
// never both. Two kinds of series go through it: device property history
// (power, position, relay state) and bridge operational metrics (device
// counts, uptime).
//
// Writes are batched and flushed on a size threshold or timer as one POST
// of newline-delimited lines; batch errors surface through SetOnError
// rather than return values. All methods are safe for concurrent use.
//
//	client, err := tsdb.Connect(ctx, cfg.TSDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WritePropertySample("dev-42", "relay_0", "power", 12.5)
package tsdb
