package drivers

import (
	"context"
	"sync"
	"sync/atomic"

	hapaccessory "github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"

	"github.com/nerrad567/caseta-bridge/internal/homekit"
	"github.com/nerrad567/caseta-bridge/internal/leap"
)

// maxPosition is the top of the HomeKit position scale.
const maxPosition = 100

// tiltToPosition maps hub tilt (fully open at 50) onto HomeKit position.
func tiltToPosition(tilt int) int {
	return min(maxPosition, tilt*2)
}

func positionToTilt(position int) int {
	return position / 2
}

// blindsCovering is the window covering service of one shell. Its remote
// update callback is registered once and forwards to the live driver.
type blindsCovering struct {
	*service.WindowCovering
	live atomic.Pointer[blindsDriver]
}

func newBlindsCovering(name string) (*blindsCovering, *service.S) {
	s := service.NewWindowCovering()
	s.PositionState.SetValue(characteristic.PositionStateStopped)
	label := characteristic.NewName()
	label.SetValue(name)
	s.AddC(label.C)

	bc := &blindsCovering{WindowCovering: s}
	s.TargetPosition.OnValueRemoteUpdate(func(position int) {
		if d := bc.live.Load(); d != nil && d.active() {
			d.setPosition(position)
		}
	})
	return bc, s.S
}

type blindsDriver struct {
	name     string
	zone     leap.Href
	session  leap.Session
	covering *blindsCovering
	logger   Logger

	mu      sync.Mutex
	cleanup teardowns
	done    bool
}

func (d *blindsDriver) setTilt(tilt int) {
	pos := tiltToPosition(tilt)
	d.covering.CurrentPosition.SetValue(pos)
	d.covering.TargetPosition.SetValue(pos)
}

func (d *blindsDriver) setPosition(position int) {
	tilt := positionToTilt(position)
	d.logger.Info("blinds got set position", "blinds", d.name, "position", position, "tilt", tilt)
	// Bounded by the session's request timeout.
	if err := d.session.WriteTilt(context.Background(), d.zone, tilt); err != nil {
		d.logger.Error("writing blinds tilt failed", "blinds", d.name, "error", err)
		return
	}
	d.covering.CurrentPosition.SetValue(tiltToPosition(tilt))
}

func (d *blindsDriver) Teardown() {
	d.mu.Lock()
	if d.done {
		d.mu.Unlock()
		return
	}
	d.done = true
	cleanup := d.cleanup
	d.cleanup = nil
	d.mu.Unlock()
	d.covering.live.CompareAndSwap(d, nil)
	cleanup.run()
}

func (d *blindsDriver) active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.done
}

func (c *Catalog) wireBlinds(ctx context.Context, t Target) (Driver, Outcome) {
	device := t.Device
	name := device.DisplayName()

	if len(device.LocalZones) == 0 {
		return nil, Errorf("blinds have no local zone")
	}
	zone := device.LocalZones[0]

	tilt, err := t.Session.ReadTilt(ctx, zone)
	if err != nil {
		return nil, Errorf("reading tilt of %s: %v", zone.Href, err)
	}

	t.Shell.SetInfo(device, hapaccessory.TypeWindowCovering)
	covering := homekit.Service(t.Shell, "covering", func() (*blindsCovering, *service.S) {
		return newBlindsCovering(name)
	})

	d := &blindsDriver{
		name:     name,
		zone:     zone,
		session:  t.Session,
		covering: covering,
		logger:   c.opts.Logger,
	}
	d.setTilt(tilt)
	covering.live.Store(d)

	d.cleanup = append(d.cleanup, t.Session.Unsolicited(func(msg leap.Message) {
		if msg.BodyType != leap.BodyOneZoneStatus || msg.ZoneStatus == nil || msg.ZoneStatus.Zone.Href != zone.Href {
			return
		}
		if d.active() {
			c.opts.Logger.Debug("blinds tilt changed", "blinds", name, "tilt", msg.ZoneStatus.Tilt)
			d.setTilt(msg.ZoneStatus.Tilt)
		}
	}))

	c.opts.Logger.Info("finished setting up blinds", "blinds", name)
	return d, Success(name)
}
