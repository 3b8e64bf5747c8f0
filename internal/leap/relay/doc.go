// Package relay implements leap.Connector over MQTT.
//
// The LEAP relay daemon holds the TLS sessions to the hubs. This package
// speaks to it with JSON messages on a small set of topics:
//
//	<prefix>/leap/connect          connect requests (credentials, address)
//	<prefix>/leap/<hub>/request    reads, subscribes and commands
//	<prefix>/leap/<hub>/response   answers (connect included), correlated by request ID
//	<prefix>/leap/<hub>/event      subscription pushes and unsolicited messages
//
// A push carrying the tag of a subscribe request goes to that subscription's
// handler; every other push goes to the session's Unsolicited handlers.
package relay
