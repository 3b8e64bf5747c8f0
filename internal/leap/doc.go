// Package leap defines the data model and session interfaces of the Lutron
// LEAP protocol as consumed by Caseta Bridge.
//
// Nothing here speaks the wire protocol. A Connector yields a Session for one
// hub, and the rest of the bridge works only against these interfaces. The
// production Connector is relay.Connector, which forwards requests to an
// external LEAP relay daemon over MQTT.
//
// # Data Model
//
// Structs mirror LEAP JSON bodies, so field names keep LEAP's PascalCase
// keys in their tags. A Device is read-only input to reconciliation and is
// persisted verbatim inside each accessory's context blob.
//
// # Subscriptions
//
// SubscribeButton and SubscribeOccupancy return an Unsubscribe function.
// Callers own it and must call it when the subscriber is torn down; calling
// it twice is safe.
package leap
