package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the bridge.
const (
	measurementButtonGesture = "button_gesture"
	measurementOccupancy     = "occupancy"
	measurementReconcile     = "reconcile"
)

// WriteButtonGesture records one classified Pico button gesture.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - hubID: Hub the remote is paired with
//   - buttonHref: LEAP href of the button (e.g., "/button/101")
//   - gesture: "single", "double" or "long"
//   - at: When the gesture was classified
func (c *Client) WriteButtonGesture(hubID, buttonHref, gesture string, at time.Time) {
	c.write(buttonGesturePoint(hubID, buttonHref, gesture, at))
}

// WriteOccupancy records an occupancy group status change.
func (c *Client) WriteOccupancy(hubID, groupHref, status string, at time.Time) {
	c.write(occupancyPoint(hubID, groupHref, status, at))
}

// WriteReconcile records the outcome counts of one reconciliation pass.
//
// Parameters:
//   - hubID: Hub that was reconciled
//   - succeeded, skipped, failed: Per-outcome device counts
//   - elapsed: Wall time of the pass
//   - at: When the pass finished
func (c *Client) WriteReconcile(hubID string, succeeded, skipped, failed int, elapsed time.Duration, at time.Time) {
	c.write(reconcilePoint(hubID, succeeded, skipped, failed, elapsed, at))
}

// WritePointWithTime writes a custom point with an explicit timestamp.
//
// Use this for data that does not fit the typed writers above.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	c.write(write.NewPoint(measurement, tags, fields, timestamp))
}

func (c *Client) write(point *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(point)
}

func buttonGesturePoint(hubID, buttonHref, gesture string, at time.Time) *write.Point {
	return write.NewPoint(
		measurementButtonGesture,
		map[string]string{
			"hub_id":  hubID,
			"button":  buttonHref,
			"gesture": gesture,
		},
		map[string]interface{}{
			"count": int64(1),
		},
		at,
	)
}

func occupancyPoint(hubID, groupHref, status string, at time.Time) *write.Point {
	return write.NewPoint(
		measurementOccupancy,
		map[string]string{
			"hub_id": hubID,
			"group":  groupHref,
		},
		map[string]interface{}{
			"status":   status,
			"occupied": status == "Occupied",
		},
		at,
	)
}

func reconcilePoint(hubID string, succeeded, skipped, failed int, elapsed time.Duration, at time.Time) *write.Point {
	return write.NewPoint(
		measurementReconcile,
		map[string]string{
			"hub_id": hubID,
			"clean":  strconv.FormatBool(failed == 0),
		},
		map[string]interface{}{
			"succeeded":  int64(succeeded),
			"skipped":    int64(skipped),
			"failed":     int64(failed),
			"elapsed_ms": elapsed.Milliseconds(),
		},
		at,
	)
}
