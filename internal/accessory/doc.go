// Package accessory persists the accessory records Caseta Bridge exposes,
// one per hub device.
//
// # Identity
//
// An accessory's ID is a UUIDv5 derived from the device serial number under
// a fixed namespace (see IdentityFor). The same physical device therefore
// maps to the same accessory across restarts, re-pairing and hub changes.
//
// # Context
//
// Each record owns a context blob: the device record as the hub listed it
// plus the owning hub ID. It is stored CBOR-encoded with canonical key order
// and decodes back to an identical value, so restored accessories can be
// re-attached before the hub has been asked for its device list.
//
// # Storage
//
// Records live in the accessories table (see migrations/). Store adds a
// read-through cache in front of a Repository; all reads after Load are
// served from memory and return copies.
package accessory
