// Package drivers attaches live behavior to accessory shells.
//
// A Catalog dispatches on the LEAP device type and returns one Outcome per
// device: Success with the accessory's display name, Skipped with a reason
// (native or filtered devices), or Error with a reason. A successful wiring
// also returns a Driver, which owns every subscription and timer it created
// and releases them in Teardown.
//
// Supported device families:
//
//	Pico*                     stateless programmable switches, one per button
//	RPSOccupancySensor        occupancy sensor fed by the occupancy router
//	SerenaTiltOnlyWoodBlinds  window covering mapping tilt to position
//
// Every other type is Skipped.
package drivers
