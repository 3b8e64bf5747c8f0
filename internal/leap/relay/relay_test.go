package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/caseta-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/caseta-bridge/internal/leap"
	"github.com/nerrad567/caseta-bridge/internal/leap/leaptest"
)

const hubID = "032E7E88"

var topics = mqtt.Topics{Prefix: "test"}

// sent is a decoded message published by the adapter.
type sent struct {
	Topic   string          `json:"-"`
	ID      string          `json:"id"`
	Op      string          `json:"op"`
	Href    string          `json:"href"`
	Body    json.RawMessage `json:"body"`
	HubID   string          `json:"hub_id"`
	Address string          `json:"address"`
	CA      string          `json:"ca"`
}

// fakeRelay answers requests synchronously on the response topic, the way
// paho would deliver them.
type fakeRelay struct {
	mu       sync.Mutex
	handlers map[string]mqtt.MessageHandler
	sent     []sent

	// reply returns the answer for a request; ok=false leaves it unanswered.
	reply func(req sent) (resp response, ok bool)
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{
		handlers: make(map[string]mqtt.MessageHandler),
		reply: func(sent) (response, bool) {
			return response{Status: "200 OK"}, true
		},
	}
}

func (f *fakeRelay) PublishJSON(topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var req sent
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	req.Topic = topic

	f.mu.Lock()
	f.sent = append(f.sent, req)
	reply := f.reply
	f.mu.Unlock()

	if req.Op == opDisconnect {
		return nil
	}
	resp, ok := reply(req)
	if !ok {
		return nil
	}
	resp.ID = req.ID
	f.deliver(topics.LeapResponse(hubID), resp)
	return nil
}

func (f *fakeRelay) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeRelay) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	return nil
}

func (f *fakeRelay) deliver(topic string, v any) {
	data, _ := json.Marshal(v) //nolint:errcheck // test fixtures always marshal
	f.mu.Lock()
	h := f.handlers[topic]
	f.mu.Unlock()
	if h != nil {
		_ = h(topic, data) //nolint:errcheck // handlers only fail on bad JSON
	}
}

func (f *fakeRelay) push(tag string, msg leap.Message) {
	f.deliver(topics.LeapEvent(hubID), push{Tag: tag, Message: msg})
}

func (f *fakeRelay) setReply(fn func(req sent) (response, bool)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reply = fn
}

func (f *fakeRelay) requests() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

func (f *fakeRelay) last() sent {
	r := f.requests()
	return r[len(r)-1]
}

func (f *fakeRelay) subscribed(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[topic]
	return ok
}

func okResp(body any, bodyType string) response {
	data, _ := json.Marshal(body) //nolint:errcheck // test fixtures always marshal
	return response{Status: "200 OK", BodyType: bodyType, Body: data}
}

func connect(t *testing.T, f *fakeRelay) *Session {
	t.Helper()
	c, err := NewConnector(Options{Transport: f, Topics: topics, RequestTimeout: time.Second})
	require.NoError(t, err)
	s, err := c.Connect(t.Context(), hubID, "192.168.1.20", leaptest.Credentials(t))
	require.NoError(t, err)
	return s.(*Session)
}

func TestNewConnector_RequiresTransport(t *testing.T) {
	_, err := NewConnector(Options{})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestConnect_RejectsInvalidCredentials(t *testing.T) {
	f := newFakeRelay()
	c, err := NewConnector(Options{Transport: f, Topics: topics})
	require.NoError(t, err)

	_, err = c.Connect(t.Context(), hubID, "", leap.Credentials{CA: []byte("x")})
	assert.ErrorIs(t, err, leap.ErrInvalidCredentials)
	assert.Empty(t, f.requests())
}

func TestConnect_SendsConnectRequest(t *testing.T) {
	f := newFakeRelay()
	s := connect(t, f)

	req := f.requests()[0]
	assert.Equal(t, topics.LeapConnect(), req.Topic)
	assert.Equal(t, opConnect, req.Op)
	assert.Equal(t, hubID, req.HubID)
	assert.Equal(t, "192.168.1.20", req.Address)
	assert.Contains(t, req.CA, "BEGIN CERTIFICATE")
	assert.NotEmpty(t, req.ID)

	assert.Equal(t, hubID, s.HubID())
	assert.True(t, f.subscribed(topics.LeapResponse(hubID)))
	assert.True(t, f.subscribed(topics.LeapEvent(hubID)))
}

func TestConnect_RelayFailureReleasesTopics(t *testing.T) {
	f := newFakeRelay()
	f.setReply(func(sent) (response, bool) {
		return response{Error: "hub unreachable"}, true
	})
	c, err := NewConnector(Options{Transport: f, Topics: topics})
	require.NoError(t, err)

	_, err = c.Connect(t.Context(), hubID, "", leaptest.Credentials(t))
	assert.ErrorIs(t, err, ErrRelay)
	assert.False(t, f.subscribed(topics.LeapResponse(hubID)))
	assert.False(t, f.subscribed(topics.LeapEvent(hubID)))
}

func TestConnect_Timeout(t *testing.T) {
	f := newFakeRelay()
	f.setReply(func(sent) (response, bool) { return response{}, false })
	c, err := NewConnector(Options{Transport: f, Topics: topics, RequestTimeout: 20 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.Connect(t.Context(), hubID, "", leaptest.Credentials(t))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestSession_Devices(t *testing.T) {
	f := newFakeRelay()
	s := connect(t, f)
	f.setReply(func(req sent) (response, bool) {
		return okResp(deviceList{Devices: []leap.Device{
			{Href: "/device/1", DeviceType: "SmartBridge"},
			{Href: "/device/5", DeviceType: "Pico3ButtonRaiseLower", SerialNumber: 71234567},
		}}, "MultipleDeviceDefinition"), true
	})

	devices, err := s.Devices(t.Context())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, uint32(71234567), devices[1].SerialNumber)

	req := f.last()
	assert.Equal(t, topics.LeapRequest(hubID), req.Topic)
	assert.Equal(t, opRead, req.Op)
	assert.Equal(t, "/device", req.Href)
}

func TestSession_ButtonGroupsAndButtons(t *testing.T) {
	f := newFakeRelay()
	s := connect(t, f)
	f.setReply(func(req sent) (response, bool) {
		switch req.Href {
		case "/buttongroup/2":
			return okResp(buttonGroupBody{ButtonGroup: &leap.ButtonGroup{
				Href:    "/buttongroup/2",
				Buttons: []leap.Href{{Href: "/button/10"}, {Href: "/button/11"}},
			}}, "OneButtonGroupDefinition"), true
		case "/buttongroup/3":
			r := okResp(buttonGroupBody{ExceptionDetail: &leap.ExceptionDetail{Message: "gone"}}, bodyException)
			r.Status = "404 NotFound"
			return r, true
		case "/button/10", "/button/11":
			return okResp(buttonBody{Button: &leap.Button{Href: req.Href, ButtonNumber: 1}}, "OneButtonDefinition"), true
		}
		return response{Status: "404 NotFound"}, true
	})

	device := leap.Device{ButtonGroups: []leap.Href{{Href: "/buttongroup/2"}, {Href: "/buttongroup/3"}}}
	groups, err := s.ButtonGroups(t.Context(), device)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Nil(t, groups[0].ExceptionDetail)
	require.NotNil(t, groups[1].ExceptionDetail)
	assert.Equal(t, "gone", groups[1].ExceptionDetail.Message)

	buttons, err := s.Buttons(t.Context(), groups[0])
	require.NoError(t, err)
	require.Len(t, buttons, 2)
	assert.Equal(t, "/button/11", buttons[1].Href)
}

func TestSession_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		resp response
		want error
	}{
		{"not found", response{Status: "404 NotFound"}, leap.ErrNotFound},
		{"server error", response{Status: "500 InternalServerError"}, ErrRequestFailed},
		{"relay error", response{Error: "session lost"}, ErrRelay},
		{"missing body", response{Status: "200 OK"}, ErrUnexpectedBody},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeRelay()
			s := connect(t, f)
			f.setReply(func(sent) (response, bool) { return tt.resp, true })

			_, err := s.Area(t.Context(), "/area/3")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSession_SubscribeButtonRoutesByTag(t *testing.T) {
	f := newFakeRelay()
	s := connect(t, f)

	var got []leap.ButtonEventType
	unsub, err := s.SubscribeButton(t.Context(), leap.Button{Href: "/button/10"}, func(st leap.ButtonStatus) {
		got = append(got, st.ButtonEvent.EventType)
	})
	require.NoError(t, err)

	req := f.last()
	assert.Equal(t, opSubscribe, req.Op)
	assert.Equal(t, "/button/10/status/event", req.Href)

	var untagged []leap.Message
	s.Unsolicited(func(m leap.Message) { untagged = append(untagged, m) })

	status := &leap.ButtonStatus{Button: leap.Href{Href: "/button/10"}, ButtonEvent: leap.ButtonEvent{EventType: leap.ButtonPress}}
	f.push(req.ID, leap.Message{BodyType: leap.BodyOneButtonStatusEvent, ButtonStatus: status})
	f.push("", leap.Message{BodyType: leap.BodyOneDeviceHeard, DeviceHeard: &leap.DeviceHeard{SerialNumber: 1}})

	assert.Equal(t, []leap.ButtonEventType{leap.ButtonPress}, got)
	require.Len(t, untagged, 1)
	assert.Equal(t, leap.BodyOneDeviceHeard, untagged[0].BodyType)

	unsub()
	f.push(req.ID, leap.Message{BodyType: leap.BodyOneButtonStatusEvent, ButtonStatus: status})
	assert.Len(t, got, 1)
}

func TestSession_SubscribeFailureDropsHandler(t *testing.T) {
	f := newFakeRelay()
	s := connect(t, f)
	f.setReply(func(sent) (response, bool) { return response{Status: "400 BadRequest"}, true })

	_, err := s.SubscribeButton(t.Context(), leap.Button{Href: "/button/10"}, func(leap.ButtonStatus) {})
	require.ErrorIs(t, err, ErrRequestFailed)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.tagged)
}

func TestSession_SubscribeOccupancy(t *testing.T) {
	f := newFakeRelay()
	s := connect(t, f)
	initial := []leap.OccupancyGroupStatus{
		{OccupancyGroup: leap.Href{Href: "/occupancygroup/1"}, OccupancyStatus: leap.Occupied},
	}
	f.setReply(func(sent) (response, bool) {
		return okResp(occupancyBody{OccupancyGroupStatuses: initial}, "MultipleOccupancyGroupStatus"), true
	})

	var updates [][]leap.OccupancyGroupStatus
	got, _, err := s.SubscribeOccupancy(t.Context(), func(st []leap.OccupancyGroupStatus) {
		updates = append(updates, st)
	})
	require.NoError(t, err)
	assert.Equal(t, initial, got)
	assert.Equal(t, "/occupancygroup/status", f.last().Href)

	next := []leap.OccupancyGroupStatus{
		{OccupancyGroup: leap.Href{Href: "/occupancygroup/1"}, OccupancyStatus: leap.Unoccupied},
	}
	f.push(f.last().ID, leap.Message{BodyType: leap.BodyMultipleOccupancyGroupStatus, OccupancyGroupStatuses: next})
	require.Len(t, updates, 1)
	assert.Equal(t, leap.Unoccupied, updates[0][0].OccupancyStatus)
}

func TestSession_Tilt(t *testing.T) {
	f := newFakeRelay()
	s := connect(t, f)
	f.setReply(func(req sent) (response, bool) {
		if req.Op == opRead {
			return okResp(zoneStatusBody{ZoneStatus: &leap.ZoneStatus{Tilt: 30}}, "OneZoneStatus"), true
		}
		return response{Status: "201 Created"}, true
	})
	zone := leap.Href{Href: "/zone/4"}

	tilt, err := s.ReadTilt(t.Context(), zone)
	require.NoError(t, err)
	assert.Equal(t, 30, tilt)
	assert.Equal(t, "/zone/4/status", f.last().Href)

	require.NoError(t, s.WriteTilt(t.Context(), zone, 12))
	req := f.last()
	assert.Equal(t, opCreate, req.Op)
	assert.Equal(t, "/zone/4/commandprocessor", req.Href)
	assert.JSONEq(t, `{"Command":{"CommandType":"GoToTilt","TiltParameters":{"Tilt":12}}}`, string(req.Body))
}

func TestSession_CloseFailsPendingRequests(t *testing.T) {
	f := newFakeRelay()
	s := connect(t, f)
	f.setReply(func(sent) (response, bool) { return response{}, false })
	before := len(f.requests())

	errc := make(chan error, 1)
	go func() {
		_, err := s.Devices(context.Background())
		errc <- err
	}()
	require.Eventually(t, func() bool { return len(f.requests()) == before+1 }, time.Second, time.Millisecond)

	require.NoError(t, s.Close())
	select {
	case err := <-errc:
		assert.True(t, errors.Is(err, leap.ErrSessionClosed), "got %v", err)
	case <-time.After(time.Second):
		t.Fatal("pending request not released by Close")
	}

	assert.Equal(t, opDisconnect, f.last().Op)
	assert.False(t, f.subscribed(topics.LeapEvent(hubID)))

	_, err := s.Devices(t.Context())
	assert.ErrorIs(t, err, leap.ErrSessionClosed)
	assert.NoError(t, s.Close())
}
