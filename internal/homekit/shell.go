package homekit

import (
	"encoding/binary"
	"sync"

	hapaccessory "github.com/brutella/hap/accessory"
	"github.com/brutella/hap/service"
	"github.com/google/uuid"

	"github.com/nerrad567/caseta-bridge/internal/accessory"
	"github.com/nerrad567/caseta-bridge/internal/leap"
)

// Manufacturer is reported on every accessory's information service.
const Manufacturer = "Lutron Electronics Co., Inc"

// bridgeAID is the accessory ID hap reserves for the bridge itself.
const bridgeAID = 1

// Shell is the HomeKit side of one accessory record.
type Shell struct {
	// A is the hap accessory served to controllers.
	A *hapaccessory.A

	mu       sync.Mutex
	record   *accessory.Accessory
	services map[string]any
	isNew    bool
	changed  bool
}

func newShell(record *accessory.Accessory, isNew bool) *Shell {
	a := hapaccessory.New(hapaccessory.Info{
		Name:         record.DisplayName,
		Manufacturer: Manufacturer,
	}, hapaccessory.TypeOther)
	a.Id = aidFor(record.ID)

	return &Shell{
		A:        a,
		record:   record,
		services: make(map[string]any),
		isNew:    isNew,
	}
}

// aidFor maps an accessory UUID onto a stable hap accessory ID, avoiding the
// bridge's reserved ID.
func aidFor(id string) uint64 {
	u, err := uuid.Parse(id)
	if err != nil {
		u = uuid.NewSHA1(accessory.Namespace, []byte(id))
	}
	aid := binary.BigEndian.Uint64(u[:8]) >> 1
	if aid <= bridgeAID {
		aid += bridgeAID + 1
	}
	return aid
}

// ID returns the accessory identity.
func (s *Shell) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.ID
}

// IsNew reports whether the shell was created in this process and has not
// been registered yet.
func (s *Shell) IsNew() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isNew
}

// Record returns a copy of the accessory record.
func (s *Shell) Record() *accessory.Accessory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Clone()
}

// Context returns the shell's device record and hub ID.
func (s *Shell) Context() accessory.Context {
	return s.Record().Context
}

// SetContext replaces the persisted context. It is written to the store on
// the next Register or Refresh.
func (s *Shell) SetContext(device leap.Device, hubID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.Context = accessory.Context{Device: device, HubID: hubID}
	s.record.DisplayName = device.DisplayName()
}

// SetInfo fills the accessory information service from a device record.
func (s *Shell) SetInfo(device leap.Device, accessoryType byte) {
	s.A.Type = accessoryType
	s.A.Info.Name.SetValue(device.DisplayName())
	s.A.Info.Manufacturer.SetValue(Manufacturer)
	s.A.Info.Model.SetValue(device.ModelNumber)
	s.A.Info.SerialNumber.SetValue(device.Serial())
}

func (s *Shell) takeChanged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.changed
	s.changed = false
	return c
}

func (s *Shell) markRegistered() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isNew = false
}

// Service returns the service stored under key, creating and attaching it
// on first use. create returns the typed service and its underlying *S.
func Service[T any](s *Shell, key string, create func() (T, *service.S)) T {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.services[key]; ok {
		if typed, ok := existing.(T); ok {
			return typed
		}
	}

	typed, svc := create()
	s.A.AddS(svc)
	s.services[key] = typed
	s.changed = true
	return typed
}

// ServiceCount returns the number of services attached through Service.
func (s *Shell) ServiceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.services)
}
