// Package broker hands out session handles for hubs that may not have
// connected yet.
//
// A consumer calls Get for a hub. If the hub's handle has been published it
// is returned at once; otherwise the caller waits until Add publishes it, its
// own timeout elapses, or its context ends. Every waiter owns its pending
// entry and removes it when it settles, so a timed-out waiter is never
// resolved later and the pending list never retains settled waiters.
//
// Publication happens once per hub per process; later Add calls for the
// same hub are no-ops. A Broker is an ordinary value: construct one with New
// and pass it to the components that need it.
package broker
