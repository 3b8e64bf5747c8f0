package button

import (
	"fmt"
	"time"
)

// Profile names. They match the click speed values accepted in config.
const (
	ProfileQuick    = "quick"
	ProfileDefault  = "default"
	ProfileRelaxed  = "relaxed"
	ProfileDisabled = "disabled"
)

// DefaultUpDownExtraDwell is added to the dwell of raise/lower buttons.
const DefaultUpDownExtraDwell = 250 * time.Millisecond

// longPress is how long an initial press must be held to count as long.
var longPress = map[string]time.Duration{
	ProfileQuick:    300 * time.Millisecond,
	ProfileDefault:  350 * time.Millisecond,
	ProfileRelaxed:  750 * time.Millisecond,
	ProfileDisabled: 0,
}

// doubleDwell is the maximum gap between the first release and the second
// press of a double press.
var doubleDwell = map[string]time.Duration{
	ProfileQuick:    300 * time.Millisecond,
	ProfileDefault:  300 * time.Millisecond,
	ProfileRelaxed:  450 * time.Millisecond,
	ProfileDisabled: 0,
}

// Timing is the resolved timing for one button. A zero duration means the
// gesture is disabled.
type Timing struct {
	LongPress   time.Duration
	DoubleDwell time.Duration
}

// LongDisabled reports whether long presses are suppressed.
func (t Timing) LongDisabled() bool { return t.LongPress == 0 }

// DoubleDisabled reports whether double presses are suppressed.
func (t Timing) DoubleDisabled() bool { return t.DoubleDwell == 0 }

// Resolve looks up the long-press and double-press profiles and applies the
// raise/lower extra dwell.
//
// Parameters:
//   - longProfile: Profile name for the long-press threshold
//   - doubleProfile: Profile name for the double-press dwell
//   - upDown: Whether the button is a Raise or Lower button
//   - extra: Added to the dwell of up/down buttons unless double press is disabled
//
// Returns:
//   - Timing: Resolved durations
//   - error: ErrUnknownProfile for a name outside the known profiles
func Resolve(longProfile, doubleProfile string, upDown bool, extra time.Duration) (Timing, error) {
	long, ok := longPress[longProfile]
	if !ok {
		return Timing{}, fmt.Errorf("%w: long press %q", ErrUnknownProfile, longProfile)
	}
	dwell, ok := doubleDwell[doubleProfile]
	if !ok {
		return Timing{}, fmt.Errorf("%w: double press %q", ErrUnknownProfile, doubleProfile)
	}
	if upDown && dwell > 0 {
		dwell += extra
	}
	return Timing{LongPress: long, DoubleDwell: dwell}, nil
}
