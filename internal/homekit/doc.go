// Package homekit exposes accessories to HomeKit controllers through
// github.com/brutella/hap.
//
// # Shells
//
// A Shell is the HomeKit side of one accessory record: a hap accessory whose
// services are attached by a device driver. Shells for persisted records are
// created by Restore at startup; new shells come from Create and become
// visible only once registered.
//
// Drivers obtain services with the Service helper, which returns the
// existing service on re-attachment instead of adding a duplicate. Adding a
// service to a registered shell changes what controllers see and schedules
// a server restart.
//
// # Server
//
// A hap server's accessory set is fixed when it is constructed. Server
// therefore rebuilds and restarts the HAP server whenever the registered set
// changes, debounced by homekit.restart_delay so a reconciliation pass over a
// whole hub causes a single restart.
//
// Pairing keys live under homekit.storage_path and survive restarts.
package homekit
