// Package mqtt provides the broker connection Caseta Bridge uses for two
// jobs: talking to hubs through the LEAP relay, and publishing classified
// button, occupancy and reconcile events for other consumers.
//
// # Architecture
//
//	Caseta hub ↔ leap-relay ↔ MQTT broker ↔ Caseta Bridge → HomeKit
//	                                      ↘ event consumers
//
// The relay owns the TLS session to each hub and forwards LEAP requests,
// responses and unsolicited messages over topics built by Topics. See
// topics.go for the full layout.
//
// # Delivery
//
// Ordered delivery is enabled. Button press and release edges for one hub
// arrive on a single topic and the classifier depends on seeing them in
// order.
//
// A retained offline status is registered as the Last Will on
// Topics.SystemStatus(); an online status replaces it on every connect.
//
// # Usage
//
//	topics := mqtt.Topics{Prefix: cfg.Relay.TopicPrefix}
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(topics.LeapEvent("+"), 1,
//	    func(topic string, payload []byte) error {
//	        return router.Dispatch(topic, payload)
//	    })
package mqtt
