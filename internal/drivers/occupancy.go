package drivers

import (
	"context"
	"sync"

	hapaccessory "github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"

	"github.com/nerrad567/caseta-bridge/internal/events"
	"github.com/nerrad567/caseta-bridge/internal/homekit"
	"github.com/nerrad567/caseta-bridge/internal/leap"
)

// occupancySensor bundles the occupancy service with its StatusActive
// characteristic.
type occupancySensor struct {
	*service.OccupancySensor
	active *characteristic.StatusActive
}

// applyOccupancy maps a hub status onto the sensor. Unknown reads as not
// detected and inactive.
func applyOccupancy(s *occupancySensor, status leap.OccupancyStatus) {
	switch status {
	case leap.Occupied:
		s.OccupancyDetected.SetValue(characteristic.OccupancyDetectedOccupancyDetected)
		s.active.SetValue(true)
	case leap.Unoccupied:
		s.OccupancyDetected.SetValue(characteristic.OccupancyDetectedOccupancyNotDetected)
		s.active.SetValue(true)
	default:
		s.OccupancyDetected.SetValue(characteristic.OccupancyDetectedOccupancyNotDetected)
		s.active.SetValue(false)
	}
}

type occupancyDriver struct {
	once  sync.Once
	unreg func()
}

func (d *occupancyDriver) Teardown() {
	d.once.Do(d.unreg)
}

func (c *Catalog) wireOccupancy(ctx context.Context, t Target) (Driver, Outcome) {
	device := t.Device
	name := device.DisplayName()

	if device.AssociatedArea == nil {
		return nil, Errorf("sensor has no associated area")
	}
	area, err := t.Session.Area(ctx, device.AssociatedArea.Href)
	if err != nil {
		return nil, Errorf("fetching area %s: %v", device.AssociatedArea.Href, err)
	}
	if len(area.AssociatedOccupancyGroups) == 0 {
		return nil, Errorf("area %s has no occupancy groups", area.Href)
	}
	group := area.AssociatedOccupancyGroups[0].Href

	t.Shell.SetInfo(device, hapaccessory.TypeSensor)
	sensor := homekit.Service(t.Shell, "occupancy", func() (*occupancySensor, *service.S) {
		s := &occupancySensor{
			OccupancySensor: service.NewOccupancySensor(),
			active:          characteristic.NewStatusActive(),
		}
		s.AddC(s.active.C)
		return s, s.S
	})

	hubID := t.Session.HubID()
	accessoryID := t.Shell.ID()
	serial := device.Serial()

	unreg, err := c.opts.Router.Register(ctx, t.Session, group, func(status leap.OccupancyStatus) {
		c.opts.Logger.Debug("occupancy update", "sensor", name, "group", group, "status", status)
		applyOccupancy(sensor, status)
		c.opts.Publisher.Publish(events.Event{
			Type:  events.TypeOccupancyChanged,
			HubID: hubID,
			Occupancy: &events.OccupancyPayload{
				AccessoryID: accessoryID,
				Serial:      serial,
				Group:       group,
				Status:      string(status),
			},
		})
	})
	if err != nil {
		return nil, Errorf("registering with occupancy router: %v", err)
	}

	c.opts.Logger.Info("finished setting up occupancy sensor", "sensor", name, "group", group)
	return &occupancyDriver{unreg: unreg}, Success(name)
}
