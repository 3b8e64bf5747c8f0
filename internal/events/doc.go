// Package events fans bridge events out to their consumers.
//
// Drivers and the reconciliation engine publish three kinds of event:
// classified button gestures, occupancy changes and reconciliation pass
// summaries. A Bus queues them and delivers each one to every registered
// Sink on a single goroutine, so publishers never block on MQTT, InfluxDB
// or WebSocket clients.
//
// Sinks provided here:
//   - MQTTSink publishes JSON to <prefix>/event/... topics
//   - InfluxSink writes one point per event
//
// The API's WebSocket hub implements Sink as well.
package events
