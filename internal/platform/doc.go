// Package platform reconciles a hub's devices with the exposed accessory set.
//
// The Engine is the per-process orchestrator. For every hub it:
//
//  1. connects a LEAP session when discovery announces the hub, and
//     publishes it on the availability broker;
//  2. lists the hub's devices and processes them concurrently;
//  3. for each device, finds or creates the accessory shell keyed by the
//     device's serial-derived identity, tears down any live driver for that
//     identity, wires a new one, and applies the outcome policy:
//
//	outcome   pre-existing accessory        new accessory
//	Success   keep, persist new context     register
//	Skipped   unregister                    nothing
//	Error     unregister                    nothing (reported)
//
// A panic inside one device's wiring becomes an Error outcome for that
// device only. Persisted accessories are re-attached at startup once their
// hub becomes available, and a "device heard" push from a hub schedules a
// debounced re-run of the whole pass.
package platform
