// Package api implements the bridge's local HTTP API and WebSocket feed.
//
// This package provides:
//   - Read-only endpoints for health, connected hubs and accessories
//   - A reconcile trigger for one hub
//   - Runtime metrics
//   - A WebSocket hub that relays bridge events to subscribed clients
//   - Middleware (request ID, logging, recovery, CORS, body size limit)
//
// # Routes
//
//	GET  /api/v1/health
//	GET  /api/v1/metrics
//	GET  /api/v1/hubs
//	POST /api/v1/hubs/{hubID}/reconcile
//	GET  /api/v1/accessories[?hub_id=]
//	GET  /api/v1/accessories/{id}
//	GET  <websocket.path>
//
// # WebSocket
//
// Clients send {"type":"subscribe","payload":{"channels":[...]}} with event
// type names as channels ("button.gesture", "occupancy.changed",
// "reconcile.completed") and receive {"type":"event","event_type":...}
// messages. The Hub is an events.Sink, so the event bus drives it directly.
//
// The API is a local surface and carries no authentication; bind it to a
// trusted interface.
package api
