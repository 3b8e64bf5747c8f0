package drivers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/caseta-bridge/internal/button"
	"github.com/nerrad567/caseta-bridge/internal/clock"
	"github.com/nerrad567/caseta-bridge/internal/events"
	"github.com/nerrad567/caseta-bridge/internal/homekit"
	"github.com/nerrad567/caseta-bridge/internal/leap"
	"github.com/nerrad567/caseta-bridge/internal/occupancy"
)

// Device types with a dedicated driver.
const (
	TypeOccupancySensor = "RPSOccupancySensor"
	TypeTiltBlinds      = "SerenaTiltOnlyWoodBlinds"

	picoPrefix = "Pico"
)

// nativeTypes are exposed to HomeKit by the hub itself.
var nativeTypes = map[string]bool{
	"SmartBridge":              true,
	"WallDimmer":               true,
	"PlugInDimmer":             true,
	"WallSwitch":               true,
	"CasetaFanSpeedController": true,
	"SerenaHoneycombShade":     true,
	"SerenaRollerShade":        true,
	"TriathlonHoneycombShade":  true,
	"TriathlonRollerShade":     true,
	"QsWirelessShade":          true,
}

// Driver is the live behavior attached to one accessory.
type Driver interface {
	// Teardown cancels every subscription and timer the driver owns. It is
	// idempotent.
	Teardown()
}

// Target is the device being wired and where its behavior attaches.
type Target struct {
	Session leap.Session
	Shell   *homekit.Shell
	Device  leap.Device
}

// Logger is the logging interface used by drivers.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Catalog.
type Options struct {
	// FilterPico skips remotes whose buttons already control hub zones.
	FilterPico bool

	// FilterBlinds skips tilt-only blinds entirely.
	FilterBlinds bool

	// ClickSpeedLong and ClickSpeedDouble are button timing profile names.
	// Empty means "default".
	ClickSpeedLong   string
	ClickSpeedDouble string

	// UpDownExtraDwell is added to the double-press dwell of raise/lower
	// buttons. Zero means button.DefaultUpDownExtraDwell; use a negative
	// value for no extra dwell.
	UpDownExtraDwell time.Duration

	// Router serves occupancy sensors. Required.
	Router *occupancy.Router

	// Publisher receives gesture and occupancy events. Defaults to
	// events.Discard.
	Publisher events.Publisher

	Clock  clock.Clock
	Logger Logger
}

// Catalog wires devices by type.
type Catalog struct {
	opts Options
}

// NewCatalog validates opts and returns a Catalog.
//
// Returns:
//   - error: ErrInvalidOptions if a click speed is unknown or Router is nil
func NewCatalog(opts Options) (*Catalog, error) {
	if opts.ClickSpeedLong == "" {
		opts.ClickSpeedLong = button.ProfileDefault
	}
	if opts.ClickSpeedDouble == "" {
		opts.ClickSpeedDouble = button.ProfileDefault
	}
	if _, err := button.Resolve(opts.ClickSpeedLong, opts.ClickSpeedDouble, false, 0); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	switch {
	case opts.UpDownExtraDwell == 0:
		opts.UpDownExtraDwell = button.DefaultUpDownExtraDwell
	case opts.UpDownExtraDwell < 0:
		opts.UpDownExtraDwell = 0
	}
	if opts.Router == nil {
		return nil, fmt.Errorf("%w: occupancy router is required", ErrInvalidOptions)
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Discard
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Catalog{opts: opts}, nil
}

// Wire attaches behavior to t.Shell for t.Device. The returned Driver is
// non-nil only for a Success outcome; on any other outcome everything the
// attempt set up has already been released.
func (c *Catalog) Wire(ctx context.Context, t Target) (Driver, Outcome) {
	deviceType := t.Device.DeviceType

	switch {
	case strings.HasPrefix(deviceType, picoPrefix):
		return c.wirePico(ctx, t)
	case deviceType == TypeOccupancySensor:
		return c.wireOccupancy(ctx, t)
	case deviceType == TypeTiltBlinds:
		if c.opts.FilterBlinds {
			return nil, Skipped("tilt blinds are filtered by configuration")
		}
		return c.wireBlinds(ctx, t)
	case nativeTypes[deviceType]:
		return nil, Skipped("%s is exposed natively by the hub", deviceType)
	}
	return nil, Skipped("device type %s is not supported", deviceType)
}

// teardowns collects cleanup functions in the order they were added.
type teardowns []func()

func (ts teardowns) run() {
	for i := len(ts) - 1; i >= 0; i-- {
		ts[i]()
	}
}
