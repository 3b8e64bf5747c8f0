package events

import (
	"fmt"
	"time"

	"github.com/nerrad567/caseta-bridge/internal/infrastructure/mqtt"
)

// JSONPublisher is satisfied by *mqtt.Client.
type JSONPublisher interface {
	PublishJSON(topic string, v any) error
}

// MQTTSink publishes each event as JSON on its per-device event topic.
type MQTTSink struct {
	client JSONPublisher
	topics mqtt.Topics
}

// NewMQTTSink creates a sink publishing through client under topics.
func NewMQTTSink(client JSONPublisher, topics mqtt.Topics) *MQTTSink {
	return &MQTTSink{client: client, topics: topics}
}

// Deliver implements Sink.
func (s *MQTTSink) Deliver(ev Event) error {
	topic, err := s.topic(ev)
	if err != nil {
		return err
	}
	return s.client.PublishJSON(topic, ev)
}

func (s *MQTTSink) topic(ev Event) (string, error) {
	switch {
	case ev.Type == TypeButtonGesture && ev.Button != nil:
		return s.topics.ButtonEvent(ev.HubID, ev.Button.Serial, ev.Button.ButtonNumber), nil
	case ev.Type == TypeOccupancyChanged && ev.Occupancy != nil:
		return s.topics.OccupancyEvent(ev.HubID, ev.Occupancy.Serial), nil
	case ev.Type == TypeReconcileCompleted && ev.Reconcile != nil:
		return s.topics.ReconcileEvent(ev.HubID), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, ev.Type)
}

// PointWriter is satisfied by *influxdb.Client.
type PointWriter interface {
	WriteButtonGesture(hubID, buttonHref, gesture string, at time.Time)
	WriteOccupancy(hubID, groupHref, status string, at time.Time)
	WriteReconcile(hubID string, succeeded, skipped, failed int, elapsed time.Duration, at time.Time)
}

// InfluxSink records each event as a time-series point.
type InfluxSink struct {
	writer PointWriter
}

// NewInfluxSink creates a sink writing through w.
func NewInfluxSink(w PointWriter) *InfluxSink {
	return &InfluxSink{writer: w}
}

// Deliver implements Sink.
func (s *InfluxSink) Deliver(ev Event) error {
	switch {
	case ev.Type == TypeButtonGesture && ev.Button != nil:
		s.writer.WriteButtonGesture(ev.HubID, ev.Button.Href, ev.Button.Gesture, ev.Timestamp)
	case ev.Type == TypeOccupancyChanged && ev.Occupancy != nil:
		s.writer.WriteOccupancy(ev.HubID, ev.Occupancy.Group, ev.Occupancy.Status, ev.Timestamp)
	case ev.Type == TypeReconcileCompleted && ev.Reconcile != nil:
		r := ev.Reconcile
		s.writer.WriteReconcile(ev.HubID, r.Succeeded, r.Skipped, r.Failed,
			time.Duration(r.ElapsedMS)*time.Millisecond, ev.Timestamp)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, ev.Type)
	}
	return nil
}
