// Package button classifies raw Press/Release edges from a single physical
// button into single, double and long press gestures.
//
// # State Machine
//
//	Idle --Press--> Down        (arm long-press timer unless disabled)
//	Down --Release--> Up        (cancel long timer, arm double-press dwell)
//	Down --long timer--> Idle   (OnLong)
//	Up   --Press (pending)--> Idle   (OnDouble unless disabled)
//	Up   --dwell timer--> Idle       (OnShort)
//
// Any other Press/Release in Down or Up is invalid: it is logged and the
// tracker resets to Idle. Release in Idle is ignored, as is every edge type
// other than Press and Release.
//
// The double-press dwell is measured from the first release to the second
// press; the length of the second press is irrelevant.
//
// # Timing
//
// Timings come from named profiles (see Resolve). Raise and Lower buttons on
// Pico remotes report edges noticeably later than other buttons, so their
// dwell is extended by a configurable extra delay.
//
// # Concurrency
//
// Update, Reset and timer expiry are serialized by the tracker. Gesture
// callbacks run outside the tracker's lock, on the goroutine that completed
// the gesture (the Update caller or the timer). Callers must still deliver
// edges for one button in order.
package button
