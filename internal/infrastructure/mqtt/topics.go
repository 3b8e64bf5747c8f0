package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when Topics.Prefix is empty.
const DefaultTopicPrefix = "casetabridge"

// Topics builds the bridge's MQTT topics under a configurable prefix.
//
// Two families share the prefix:
//
//	<prefix>/leap/...   request/response and push traffic with the LEAP relay
//	<prefix>/event/...  gesture and occupancy events published by the bridge
//
// Example:
//
//	topics := mqtt.Topics{Prefix: cfg.Relay.TopicPrefix}
//	topics.LeapRequest("032E7E88") // "casetabridge/leap/032E7E88/request"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// =============================================================================
// LEAP relay topics
// =============================================================================

// LeapConnect returns the topic on which session connect requests are sent.
//
// Example: casetabridge/leap/connect
func (t Topics) LeapConnect() string {
	return fmt.Sprintf("%s/leap/connect", t.prefix())
}

// LeapRequest returns the topic for requests to one hub's session.
//
// Example: casetabridge/leap/032E7E88/request
func (t Topics) LeapRequest(hubID string) string {
	return fmt.Sprintf("%s/leap/%s/request", t.prefix(), hubID)
}

// LeapResponse returns the topic on which the relay answers requests for a hub.
//
// Example: casetabridge/leap/032E7E88/response
func (t Topics) LeapResponse(hubID string) string {
	return fmt.Sprintf("%s/leap/%s/response", t.prefix(), hubID)
}

// LeapEvent returns the topic carrying subscription pushes and unsolicited
// messages from a hub.
//
// Example: casetabridge/leap/032E7E88/event
func (t Topics) LeapEvent(hubID string) string {
	return fmt.Sprintf("%s/leap/%s/event", t.prefix(), hubID)
}

// LeapDiscovery returns the topic on which the relay announces hubs it found.
//
// Example: casetabridge/leap/discovery
func (t Topics) LeapDiscovery() string {
	return fmt.Sprintf("%s/leap/discovery", t.prefix())
}

// =============================================================================
// Event topics
// =============================================================================

// ButtonEvent returns the topic for gestures on one button of a remote.
//
// Example: casetabridge/event/032E7E88/71234567/button/2
func (t Topics) ButtonEvent(hubID, serial string, buttonNumber int) string {
	return fmt.Sprintf("%s/event/%s/%s/button/%d", t.prefix(), hubID, serial, buttonNumber)
}

// OccupancyEvent returns the topic for occupancy changes seen by a sensor.
//
// Example: casetabridge/event/032E7E88/71234568/occupancy
func (t Topics) OccupancyEvent(hubID, serial string) string {
	return fmt.Sprintf("%s/event/%s/%s/occupancy", t.prefix(), hubID, serial)
}

// ReconcileEvent returns the topic for reconciliation pass summaries.
//
// Example: casetabridge/event/032E7E88/reconcile
func (t Topics) ReconcileEvent(hubID string) string {
	return fmt.Sprintf("%s/event/%s/reconcile", t.prefix(), hubID)
}

// AllEvents matches every event topic.
//
// Pattern: casetabridge/event/#
func (t Topics) AllEvents() string {
	return fmt.Sprintf("%s/event/#", t.prefix())
}

// =============================================================================
// System topics
// =============================================================================

// SystemStatus returns the retained online/offline status topic (also the LWT).
//
// Example: casetabridge/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}

// ParseLeapTopic splits a LEAP relay topic into its hub ID and kind
// ("request", "response" or "event"). Connect and discovery topics carry no
// hub and report ok=false.
func (t Topics) ParseLeapTopic(topic string) (hubID, kind string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.prefix()+"/leap/")
	if !found {
		return "", "", false
	}
	hubID, kind, found = strings.Cut(rest, "/")
	if !found || hubID == "" || strings.Contains(kind, "/") {
		return "", "", false
	}
	switch kind {
	case "request", "response", "event":
		return hubID, kind, true
	}
	return "", "", false
}
