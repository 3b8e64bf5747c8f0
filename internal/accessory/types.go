package accessory

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/caseta-bridge/internal/leap"
)

// Namespace is the UUID namespace accessory identities are derived in.
// Changing it orphans every paired accessory.
var Namespace = uuid.MustParse("5b3f0e2c-8d4a-4c1e-9f6b-2a7d1c0e9b41")

// IdentityFor derives the stable accessory ID for a device serial number.
func IdentityFor(serial uint32) string {
	return uuid.NewSHA1(Namespace, []byte(strconv.FormatUint(uint64(serial), 10))).String()
}

// Context is the persisted per-accessory context.
type Context struct {
	Device leap.Device `cbor:"device"`
	HubID  string      `cbor:"hubID"`
}

// Accessory is a persisted accessory record.
type Accessory struct {
	ID          string
	DisplayName string
	Context     Context
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// New builds a record for device on hubID with its derived identity.
func New(device leap.Device, hubID string) *Accessory {
	return &Accessory{
		ID:          IdentityFor(device.SerialNumber),
		DisplayName: device.DisplayName(),
		Context:     Context{Device: device, HubID: hubID},
	}
}

// Validate checks the fields required for persistence.
func (a *Accessory) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalid)
	}
	if _, err := uuid.Parse(a.ID); err != nil {
		return fmt.Errorf("%w: id %q is not a UUID", ErrInvalid, a.ID)
	}
	if a.Context.HubID == "" {
		return fmt.Errorf("%w: hub id is required", ErrInvalid)
	}
	return nil
}

// Clone returns a deep copy.
func (a *Accessory) Clone() *Accessory {
	if a == nil {
		return nil
	}
	c := *a
	c.Context.Device = cloneDevice(a.Context.Device)
	return &c
}

func cloneDevice(d leap.Device) leap.Device {
	c := d
	c.FullyQualifiedName = cloneSlice(d.FullyQualifiedName)
	c.LocalZones = cloneSlice(d.LocalZones)
	c.ButtonGroups = cloneSlice(d.ButtonGroups)
	if d.AssociatedArea != nil {
		area := *d.AssociatedArea
		c.AssociatedArea = &area
	}
	return c
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}
