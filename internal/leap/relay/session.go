package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/caseta-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/caseta-bridge/internal/leap"
)

const qos = 1

// Session is a leap.Session whose requests travel through the relay.
type Session struct {
	hubID     string
	transport Transport
	topics    mqtt.Topics
	timeout   time.Duration
	logger    Logger

	mu          sync.Mutex
	pending     map[string]chan response
	tagged      map[string]func(leap.Message)
	unsolicited map[uint64]func(leap.Message)
	nextHandler uint64
	done        chan struct{}
	closed      bool
}

var _ leap.Session = (*Session)(nil)

func newSession(hubID string, t Transport, topics mqtt.Topics, timeout time.Duration, logger Logger) (*Session, error) {
	s := &Session{
		hubID:       hubID,
		transport:   t,
		topics:      topics,
		timeout:     timeout,
		logger:      logger,
		pending:     make(map[string]chan response),
		tagged:      make(map[string]func(leap.Message)),
		unsolicited: make(map[uint64]func(leap.Message)),
		done:        make(chan struct{}),
	}
	if err := t.Subscribe(topics.LeapResponse(hubID), qos, s.onResponse); err != nil {
		return nil, fmt.Errorf("subscribing responses for hub %s: %w", hubID, err)
	}
	if err := t.Subscribe(topics.LeapEvent(hubID), qos, s.onEvent); err != nil {
		_ = t.Unsubscribe(topics.LeapResponse(hubID)) //nolint:errcheck // best effort
		return nil, fmt.Errorf("subscribing events for hub %s: %w", hubID, err)
	}
	return s, nil
}

// HubID returns the hub this session is connected to.
func (s *Session) HubID() string { return s.hubID }

func (s *Session) onResponse(_ string, payload []byte) error {
	var r response
	if err := json.Unmarshal(payload, &r); err != nil {
		return fmt.Errorf("decoding relay response: %w", err)
	}
	s.mu.Lock()
	ch, ok := s.pending[r.ID]
	delete(s.pending, r.ID)
	s.mu.Unlock()
	if !ok {
		s.logger.Debug("response for unknown request", "hub_id", s.hubID, "id", r.ID)
		return nil
	}
	ch <- r
	return nil
}

func (s *Session) onEvent(_ string, payload []byte) error {
	var p push
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decoding relay push: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if fn, ok := s.tagged[p.Tag]; ok && p.Tag != "" {
		s.mu.Unlock()
		fn(p.Message)
		return nil
	}
	ids := make([]uint64, 0, len(s.unsolicited))
	for id := range s.unsolicited {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(leap.Message), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.unsolicited[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(p.Message)
	}
	return nil
}

// exchange publishes v to topic and waits for the response carrying id.
func (s *Session) exchange(ctx context.Context, id, topic string, v any) (response, error) {
	ch := make(chan response, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return response{}, leap.ErrSessionClosed
	}
	s.pending[id] = ch
	s.mu.Unlock()

	forget := func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}

	if err := s.transport.PublishJSON(topic, v); err != nil {
		forget()
		return response{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	select {
	case r := <-ch:
		return r, nil
	case <-s.done:
		forget()
		return response{}, leap.ErrSessionClosed
	case <-ctx.Done():
		forget()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return response{}, fmt.Errorf("%w after %v", ErrTimeout, s.timeout)
		}
		return response{}, ctx.Err()
	}
}

func (s *Session) do(ctx context.Context, op, href string, body any) (response, error) {
	id := uuid.NewString()
	return s.doWithID(ctx, id, op, href, body)
}

func (s *Session) doWithID(ctx context.Context, id, op, href string, body any) (response, error) {
	r, err := s.exchange(ctx, id, s.topics.LeapRequest(s.hubID), request{ID: id, Op: op, Href: href, Body: body})
	if err != nil {
		return response{}, fmt.Errorf("%s %s: %w", op, href, err)
	}
	return r, nil
}

func (s *Session) read(ctx context.Context, href string, v any) error {
	r, err := s.do(ctx, opRead, href, nil)
	if err != nil {
		return err
	}
	if err := r.err(href); err != nil {
		return err
	}
	return r.decode(v)
}

// Devices lists every device known to the hub.
func (s *Session) Devices(ctx context.Context) ([]leap.Device, error) {
	var body deviceList
	if err := s.read(ctx, "/device", &body); err != nil {
		return nil, err
	}
	return body.Devices, nil
}

// ButtonGroups reads each of the device's button groups. A group the hub
// answers with an exception is returned with ExceptionDetail set.
func (s *Session) ButtonGroups(ctx context.Context, device leap.Device) ([]leap.ButtonGroup, error) {
	groups := make([]leap.ButtonGroup, 0, len(device.ButtonGroups))
	for _, ref := range device.ButtonGroups {
		r, err := s.do(ctx, opRead, ref.Href, nil)
		if err != nil {
			return nil, err
		}
		var body buttonGroupBody
		if r.BodyType == bodyException {
			if err := r.decode(&body); err != nil {
				return nil, err
			}
			groups = append(groups, leap.ButtonGroup{Href: ref.Href, ExceptionDetail: body.ExceptionDetail})
			continue
		}
		if err := r.err(ref.Href); err != nil {
			return nil, err
		}
		if err := r.decode(&body); err != nil {
			return nil, err
		}
		if body.ButtonGroup == nil {
			return nil, fmt.Errorf("%w: no ButtonGroup in %s", ErrUnexpectedBody, ref.Href)
		}
		groups = append(groups, *body.ButtonGroup)
	}
	return groups, nil
}

// Buttons reads each button of a group.
func (s *Session) Buttons(ctx context.Context, group leap.ButtonGroup) ([]leap.Button, error) {
	buttons := make([]leap.Button, 0, len(group.Buttons))
	for _, ref := range group.Buttons {
		var body buttonBody
		if err := s.read(ctx, ref.Href, &body); err != nil {
			return nil, err
		}
		if body.Button == nil {
			return nil, fmt.Errorf("%w: no Button in %s", ErrUnexpectedBody, ref.Href)
		}
		buttons = append(buttons, *body.Button)
	}
	return buttons, nil
}

// Area reads one area.
func (s *Session) Area(ctx context.Context, href string) (leap.Area, error) {
	var body areaBody
	if err := s.read(ctx, href, &body); err != nil {
		return leap.Area{}, err
	}
	if body.Area == nil {
		return leap.Area{}, fmt.Errorf("%w: no Area in %s", ErrUnexpectedBody, href)
	}
	return *body.Area, nil
}

// subscribe registers fn under a fresh tag before sending the subscribe
// request, so pushes that race the response are not lost.
func (s *Session) subscribe(ctx context.Context, href string, fn func(leap.Message)) (response, leap.Unsubscribe, error) {
	tag := uuid.NewString()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return response{}, nil, leap.ErrSessionClosed
	}
	s.tagged[tag] = fn
	s.mu.Unlock()

	unsub := func() {
		s.mu.Lock()
		delete(s.tagged, tag)
		s.mu.Unlock()
	}

	r, err := s.doWithID(ctx, tag, opSubscribe, href, nil)
	if err == nil {
		err = r.err(href)
	}
	if err != nil {
		unsub()
		return response{}, nil, err
	}
	return r, unsub, nil
}

// SubscribeButton delivers status events for one button.
func (s *Session) SubscribeButton(ctx context.Context, button leap.Button, fn func(leap.ButtonStatus)) (leap.Unsubscribe, error) {
	_, unsub, err := s.subscribe(ctx, button.Href+"/status/event", func(m leap.Message) {
		if m.ButtonStatus != nil {
			fn(*m.ButtonStatus)
		}
	})
	return unsub, err
}

// SubscribeOccupancy subscribes to every occupancy group of the hub and
// returns their current statuses.
func (s *Session) SubscribeOccupancy(ctx context.Context, fn func([]leap.OccupancyGroupStatus)) ([]leap.OccupancyGroupStatus, leap.Unsubscribe, error) {
	const href = "/occupancygroup/status"
	r, unsub, err := s.subscribe(ctx, href, func(m leap.Message) {
		if len(m.OccupancyGroupStatuses) > 0 {
			fn(m.OccupancyGroupStatuses)
		}
	})
	if err != nil {
		return nil, nil, err
	}
	var body occupancyBody
	if len(r.Body) > 0 {
		if err := r.decode(&body); err != nil {
			unsub()
			return nil, nil, err
		}
	}
	return body.OccupancyGroupStatuses, unsub, nil
}

// ReadTilt returns the current tilt of a zone.
func (s *Session) ReadTilt(ctx context.Context, zone leap.Href) (int, error) {
	var body zoneStatusBody
	href := zone.Href + "/status"
	if err := s.read(ctx, href, &body); err != nil {
		return 0, err
	}
	if body.ZoneStatus == nil {
		return 0, fmt.Errorf("%w: no ZoneStatus in %s", ErrUnexpectedBody, href)
	}
	return body.ZoneStatus.Tilt, nil
}

// WriteTilt sends a GoToTilt command to a zone.
func (s *Session) WriteTilt(ctx context.Context, zone leap.Href, tilt int) error {
	href := zone.Href + "/commandprocessor"
	r, err := s.do(ctx, opCreate, href, goToTilt(tilt))
	if err != nil {
		return err
	}
	return r.err(href)
}

// Unsolicited registers fn for pushes without a subscription tag.
func (s *Session) Unsolicited(fn func(leap.Message)) leap.Unsubscribe {
	s.mu.Lock()
	s.nextHandler++
	id := s.nextHandler
	s.unsolicited[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.unsolicited, id)
			s.mu.Unlock()
		})
	}
}

// Close asks the relay to drop the hub session and releases the topics.
// Requests in flight fail with leap.ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	err := s.transport.PublishJSON(s.topics.LeapRequest(s.hubID), request{ID: uuid.NewString(), Op: opDisconnect})
	if uerr := s.shutdown(); err == nil {
		err = uerr
	}
	return err
}

func (s *Session) shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.pending = make(map[string]chan response)
	s.tagged = make(map[string]func(leap.Message))
	s.unsolicited = make(map[uint64]func(leap.Message))
	s.mu.Unlock()

	return errors.Join(
		s.transport.Unsubscribe(s.topics.LeapResponse(s.hubID)),
		s.transport.Unsubscribe(s.topics.LeapEvent(s.hubID)),
	)
}
