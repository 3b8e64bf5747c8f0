package events

import "time"

// Type names an event kind. The values double as WebSocket channel names.
type Type string

const (
	TypeButtonGesture      Type = "button.gesture"
	TypeOccupancyChanged   Type = "occupancy.changed"
	TypeReconcileCompleted Type = "reconcile.completed"
)

// Event is one bridge event. Exactly one payload is set, matching Type.
type Event struct {
	Type      Type      `json:"type"`
	HubID     string    `json:"hub_id"`
	Timestamp time.Time `json:"timestamp"`

	Button    *ButtonPayload    `json:"button,omitempty"`
	Occupancy *OccupancyPayload `json:"occupancy,omitempty"`
	Reconcile *ReconcilePayload `json:"reconcile,omitempty"`
}

// ButtonPayload describes a classified gesture on one Pico button.
type ButtonPayload struct {
	AccessoryID  string `json:"accessory_id"`
	Serial       string `json:"serial"`
	Href         string `json:"href"`
	ButtonNumber int    `json:"button_number"`
	Label        string `json:"label"`

	// Gesture is "single", "double" or "long".
	Gesture string `json:"gesture"`
}

// OccupancyPayload describes a status change of an occupancy group as seen
// by one sensor accessory.
type OccupancyPayload struct {
	AccessoryID string `json:"accessory_id"`
	Serial      string `json:"serial"`
	Group       string `json:"group"`
	Status      string `json:"status"`
}

// ReconcilePayload summarises one reconciliation pass over a hub.
type ReconcilePayload struct {
	Succeeded int   `json:"succeeded"`
	Skipped   int   `json:"skipped"`
	Failed    int   `json:"failed"`
	ElapsedMS int64 `json:"elapsed_ms"`
}

// Publisher accepts events for delivery. Implementations must not block.
type Publisher interface {
	Publish(ev Event)
}

// Sink receives every event published on a Bus.
type Sink interface {
	Deliver(ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event) error

// Deliver calls f(ev).
func (f SinkFunc) Deliver(ev Event) error { return f(ev) }

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}
