package discovery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/caseta-bridge/internal/infrastructure/mqtt"
)

// Subscriber is the part of the MQTT client the relay announcer needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Relay announces hubs found by the LEAP relay, which publishes
// {"hub_id": "...", "address": "..."} on the discovery topic.
type Relay struct {
	Subscriber Subscriber
	Topics     mqtt.Topics
}

// Announce subscribes to the discovery topic until ctx is done.
func (r Relay) Announce(ctx context.Context, out chan<- Announcement) error {
	topic := r.Topics.LeapDiscovery()
	err := r.Subscriber.Subscribe(topic, 1, func(_ string, payload []byte) error {
		ann, err := parseRelayAnnouncement(payload)
		if err != nil {
			return err
		}
		return send(ctx, out, ann)
	})
	if err != nil {
		return fmt.Errorf("subscribing %s: %w", topic, err)
	}

	<-ctx.Done()
	_ = r.Subscriber.Unsubscribe(topic) //nolint:errcheck // shutting down
	return ctx.Err()
}

func parseRelayAnnouncement(payload []byte) (Announcement, error) {
	var ann Announcement
	if err := json.Unmarshal(payload, &ann); err != nil {
		return Announcement{}, fmt.Errorf("decoding relay announcement: %w", err)
	}
	if NormalizeHubID(ann.HubID) == "" {
		return Announcement{}, ErrNoHubID
	}
	ann.Source = SourceRelay
	return ann, nil
}
