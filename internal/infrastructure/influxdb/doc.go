// Package influxdb provides InfluxDB connectivity for Caseta Bridge.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, typed point writers and health monitoring.
//
// # Purpose
//
// The bridge keeps a time-series record of:
//   - Classified Pico button gestures (measurement "button_gesture")
//   - Occupancy group changes (measurement "occupancy")
//   - Reconciliation pass outcomes (measurement "reconcile")
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteButtonGesture("032E7E88", "/button/101", "double", time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via the
// SetOnError callback. Connection and health check errors are returned directly.
package influxdb
