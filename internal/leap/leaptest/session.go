// Package leaptest provides an in-memory leap.Session for tests.
package leaptest

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/caseta-bridge/internal/leap"
)

// Session is a scripted leap.Session. Populate the exported fields before
// use; push methods deliver events synchronously to current subscribers.
type Session struct {
	ID string

	DeviceList   []leap.Device
	DevicesErr   error
	Groups       map[string][]leap.ButtonGroup // by device href
	GroupsErr    error
	ButtonsOf    map[string][]leap.Button // by button group href
	Areas        map[string]leap.Area
	Occupancy    []leap.OccupancyGroupStatus
	OccupancyErr error

	mu            sync.Mutex
	tilts         map[string]int
	buttonSubs    map[string]map[int]func(leap.ButtonStatus)
	occupancySubs map[int]func([]leap.OccupancyGroupStatus)
	unsolicited   map[int]func(leap.Message)
	nextID        int
	occupancyN    int
	devicesN      int
	closed        bool
}

var _ leap.Session = (*Session)(nil)

// New returns an empty session for hubID.
func New(hubID string) *Session {
	return &Session{
		ID:        hubID,
		Groups:    make(map[string][]leap.ButtonGroup),
		ButtonsOf: make(map[string][]leap.Button),
		Areas:     make(map[string]leap.Area),
	}
}

func (s *Session) init() {
	if s.buttonSubs == nil {
		s.buttonSubs = make(map[string]map[int]func(leap.ButtonStatus))
		s.occupancySubs = make(map[int]func([]leap.OccupancyGroupStatus))
		s.unsolicited = make(map[int]func(leap.Message))
		s.tilts = make(map[string]int)
	}
}

func (s *Session) HubID() string { return s.ID }

func (s *Session) Devices(ctx context.Context) ([]leap.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devicesN++
	if s.DevicesErr != nil {
		return nil, s.DevicesErr
	}
	return append([]leap.Device(nil), s.DeviceList...), ctx.Err()
}

// SetDevices replaces the device list under the session lock.
func (s *Session) SetDevices(devices []leap.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DeviceList = devices
}

// DevicesCalls returns how many times Devices was called.
func (s *Session) DevicesCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devicesN
}

func (s *Session) ButtonGroups(_ context.Context, device leap.Device) ([]leap.ButtonGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GroupsErr != nil {
		return nil, s.GroupsErr
	}
	return s.Groups[device.Href], nil
}

func (s *Session) Buttons(_ context.Context, group leap.ButtonGroup) ([]leap.Button, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ButtonsOf[group.Href], nil
}

func (s *Session) Area(_ context.Context, href string) (leap.Area, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	area, ok := s.Areas[href]
	if !ok {
		return leap.Area{}, fmt.Errorf("%w: %s", leap.ErrNotFound, href)
	}
	return area, nil
}

func (s *Session) SubscribeButton(_ context.Context, button leap.Button, fn func(leap.ButtonStatus)) (leap.Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	s.nextID++
	id := s.nextID
	if s.buttonSubs[button.Href] == nil {
		s.buttonSubs[button.Href] = make(map[int]func(leap.ButtonStatus))
	}
	s.buttonSubs[button.Href][id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.buttonSubs[button.Href], id)
	}, nil
}

func (s *Session) SubscribeOccupancy(_ context.Context, fn func([]leap.OccupancyGroupStatus)) ([]leap.OccupancyGroupStatus, leap.Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	s.occupancyN++
	if s.OccupancyErr != nil {
		return nil, nil, s.OccupancyErr
	}
	s.nextID++
	id := s.nextID
	s.occupancySubs[id] = fn
	return append([]leap.OccupancyGroupStatus(nil), s.Occupancy...), func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.occupancySubs, id)
	}, nil
}

// OccupancySubscribeCalls returns how many times SubscribeOccupancy was called.
func (s *Session) OccupancySubscribeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.occupancyN
}

func (s *Session) ReadTilt(_ context.Context, zone leap.Href) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	return s.tilts[zone.Href], nil
}

func (s *Session) WriteTilt(_ context.Context, zone leap.Href, tilt int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	s.tilts[zone.Href] = tilt
	return nil
}

// Tilt returns the last tilt written to zone.
func (s *Session) Tilt(zone string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	return s.tilts[zone]
}

func (s *Session) Unsolicited(fn func(leap.Message)) leap.Unsubscribe {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	s.nextID++
	id := s.nextID
	s.unsolicited[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.unsolicited, id)
	}
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// PushButton delivers an edge to every subscriber of buttonHref.
func (s *Session) PushButton(buttonHref string, edge leap.ButtonEventType) {
	status := leap.ButtonStatus{
		Button:      leap.Href{Href: buttonHref},
		ButtonEvent: leap.ButtonEvent{EventType: edge},
	}
	s.mu.Lock()
	s.init()
	fns := make([]func(leap.ButtonStatus), 0, len(s.buttonSubs[buttonHref]))
	for _, fn := range s.buttonSubs[buttonHref] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(status)
	}
}

// PushOccupancy delivers an occupancy update to every subscriber.
func (s *Session) PushOccupancy(statuses ...leap.OccupancyGroupStatus) {
	s.mu.Lock()
	s.init()
	fns := make([]func([]leap.OccupancyGroupStatus), 0, len(s.occupancySubs))
	for _, fn := range s.occupancySubs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(statuses)
	}
}

// PushUnsolicited delivers msg to every unsolicited handler.
func (s *Session) PushUnsolicited(msg leap.Message) {
	s.mu.Lock()
	s.init()
	fns := make([]func(leap.Message), 0, len(s.unsolicited))
	for _, fn := range s.unsolicited {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(msg)
	}
}

// ButtonSubscribers returns the number of live subscriptions for buttonHref.
func (s *Session) ButtonSubscribers(buttonHref string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buttonSubs[buttonHref])
}

// UnsolicitedHandlers returns the number of registered unsolicited handlers.
func (s *Session) UnsolicitedHandlers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unsolicited)
}
