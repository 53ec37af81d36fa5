package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePropertySample records one device property reading. The write is
// non-blocking; points are batched and sent asynchronously.
//
// Values are normalised before writing: bools become 0 or 1, numeric types
// and numeric strings become float64, anything else is silently dropped
// since the store holds numeric series only.
func (c *Client) WritePropertySample(deviceID, channel, property string, value any) {
	if !c.IsConnected() {
		return
	}

	v, ok := normaliseSample(value)
	if !ok {
		return
	}

	point := write.NewPoint(
		"device_state",
		map[string]string{
			"device_id": deviceID,
			"channel":   channel,
			"property":  property,
		},
		map[string]interface{}{
			"value": v,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteBridgeMetric records one bridge-level operational metric, such as
// device counts or command throughput.
func (c *Client) WriteBridgeMetric(bridgeID, metric string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"bridge_metrics",
		map[string]string{
			"bridge_id": bridgeID,
			"metric":    metric,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// normaliseSample converts a property value to a float64 field value.
func normaliseSample(value any) (float64, bool) {
	switch v := value.(type) {
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, true
		}
		switch v {
		case "true":
			return 1, true
		case "false":
			return 0, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// WritePoint writes a custom point for measurements the helpers do not
// cover.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
