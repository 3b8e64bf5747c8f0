package drivers

import (
	"context"
	"strconv"
	"sync"

	hapaccessory "github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"

	"github.com/nerrad567/caseta-bridge/internal/button"
	"github.com/nerrad567/caseta-bridge/internal/events"
	"github.com/nerrad567/caseta-bridge/internal/homekit"
	"github.com/nerrad567/caseta-bridge/internal/leap"
)

// maxSwitchEvent limits ProgrammableSwitchEvent to single, double and long.
const maxSwitchEvent = 2

var switchEvents = map[button.Gesture]int{
	button.Single: characteristic.ProgrammableSwitchEventSinglePress,
	button.Double: characteristic.ProgrammableSwitchEventDoublePress,
	button.Long:   characteristic.ProgrammableSwitchEventLongPress,
}

// picoDriver routes button edges from one remote into per-button trackers.
type picoDriver struct {
	name   string
	logger Logger

	mu       sync.Mutex
	trackers map[string]*button.Tracker
	cleanup  teardowns
	done     bool
}

func (d *picoDriver) handle(status leap.ButtonStatus) {
	href := status.Button.Href

	d.mu.Lock()
	tracker, ok := d.trackers[href]
	done := d.done
	d.mu.Unlock()
	if !ok || done {
		return
	}

	d.logger.Info("button action", "button", href, "remote", d.name, "edge", status.ButtonEvent.EventType)
	tracker.Update(status.ButtonEvent.EventType)
}

func (d *picoDriver) known(href string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.trackers[href]
	return ok
}

func (d *picoDriver) addCleanup(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cleanup = append(d.cleanup, fn)
}

func (d *picoDriver) Teardown() {
	d.mu.Lock()
	if d.done {
		d.mu.Unlock()
		return
	}
	d.done = true
	cleanup := d.cleanup
	trackers := d.trackers
	d.cleanup = nil
	d.mu.Unlock()

	cleanup.run()
	for _, t := range trackers {
		t.Reset()
	}
}

func (c *Catalog) wirePico(ctx context.Context, t Target) (Driver, Outcome) {
	device := t.Device
	name := device.DisplayName()

	groups, err := t.Session.ButtonGroups(ctx, device)
	if err != nil {
		return nil, Errorf("fetching button groups: %v", err)
	}

	if c.opts.FilterPico {
		for _, g := range groups {
			if len(g.AffectedZones) > 0 {
				c.opts.Logger.Warn("skipping pico remote associated with hub zones", "remote", name)
				return nil, Skipped("remote is already associated with hub zones")
			}
		}
	}

	for _, g := range groups {
		if g.ExceptionDetail != nil {
			return nil, Errorf("device has been removed")
		}
	}

	var buttons []leap.Button
	for _, g := range groups {
		bs, err := t.Session.Buttons(ctx, g)
		if err != nil {
			return nil, Errorf("fetching buttons of group %s: %v", g.Href, err)
		}
		buttons = append(buttons, bs...)
	}

	aliases, ok := buttonMap[device.DeviceType]
	if !ok {
		return nil, Errorf("could not find %s in button map", device.DeviceType)
	}
	for _, b := range buttons {
		if _, ok := aliases[b.ButtonNumber]; !ok {
			return nil, Errorf("could not find button %d in %s map entry", b.ButtonNumber, device.DeviceType)
		}
	}

	t.Shell.SetInfo(device, hapaccessory.TypeProgrammableSwitch)
	label := homekit.Service(t.Shell, "label", func() (*service.ServiceLabel, *service.S) {
		s := service.NewServiceLabel()
		s.ServiceLabelNamespace.SetValue(characteristic.ServiceLabelNamespaceArabicNumerals)
		return s, s.S
	})

	d := &picoDriver{
		name:     name,
		logger:   c.opts.Logger,
		trackers: make(map[string]*button.Tracker, len(buttons)),
	}

	for _, b := range buttons {
		alias := aliases[b.ButtonNumber]
		c.opts.Logger.Debug("setting up button", "button", b.Href, "name", b.Name, "number", b.ButtonNumber, "label", alias.label)

		sw := homekit.Service(t.Shell, "switch/"+strconv.Itoa(alias.index), func() (*service.StatelessProgrammableSwitch, *service.S) {
			sw, s := newButtonSwitch(alias)
			s.AddS(label.S)
			return sw, s
		})

		timing, err := button.Resolve(c.opts.ClickSpeedLong, c.opts.ClickSpeedDouble, alias.upDown(), c.opts.UpDownExtraDwell)
		if err != nil {
			d.Teardown()
			return nil, Errorf("resolving button timing: %v", err)
		}

		tracker := button.NewTracker(button.Options{
			Href:      b.Href,
			Timing:    timing,
			OnGesture: c.gestureHandler(t, b, alias, sw),
			Clock:     c.opts.Clock,
			Logger:    c.opts.Logger,
		})
		d.mu.Lock()
		d.trackers[b.Href] = tracker
		d.mu.Unlock()

		c.opts.Logger.Debug("subscribing to button events", "button", b.Href)
		unsub, err := t.Session.SubscribeButton(ctx, b, d.handle)
		if err != nil {
			d.Teardown()
			return nil, Errorf("subscribing to button %s: %v", b.Href, err)
		}
		d.addCleanup(unsub)
	}

	d.addCleanup(t.Session.Unsolicited(func(msg leap.Message) {
		if msg.BodyType != leap.BodyOneButtonStatusEvent || msg.ButtonStatus == nil {
			return
		}
		if d.known(msg.ButtonStatus.Button.Href) {
			c.opts.Logger.Warn("unsolicited event for known button, handling anyway", "button", msg.ButtonStatus.Button.Href)
			d.handle(*msg.ButtonStatus)
		}
	}))

	c.opts.Logger.Info("finished setting up pico remote", "remote", name, "buttons", len(buttons))
	return d, Success(name)
}

func newButtonSwitch(alias buttonAlias) (*service.StatelessProgrammableSwitch, *service.S) {
	sw := service.NewStatelessProgrammableSwitch()
	sw.ProgrammableSwitchEvent.SetMaxValue(maxSwitchEvent)

	name := characteristic.NewName()
	name.SetValue(alias.label)
	sw.AddC(name.C)

	index := characteristic.NewServiceLabelIndex()
	index.SetValue(alias.index)
	sw.AddC(index.C)

	return sw, sw.S
}

func (c *Catalog) gestureHandler(t Target, b leap.Button, alias buttonAlias, sw *service.StatelessProgrammableSwitch) func(button.Gesture) {
	hubID := t.Session.HubID()
	accessoryID := t.Shell.ID()
	serial := t.Device.Serial()

	return func(g button.Gesture) {
		c.opts.Logger.Debug("button gesture", "button", b.Href, "label", alias.label, "gesture", g)
		sw.ProgrammableSwitchEvent.SetValue(switchEvents[g])
		c.opts.Publisher.Publish(events.Event{
			Type:  events.TypeButtonGesture,
			HubID: hubID,
			Button: &events.ButtonPayload{
				AccessoryID:  accessoryID,
				Serial:       serial,
				Href:         b.Href,
				ButtonNumber: b.ButtonNumber,
				Label:        alias.label,
				Gesture:      string(g),
			},
		})
	}
}
