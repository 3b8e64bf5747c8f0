package mqtt

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestTopics_DefaultPrefix(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"LeapConnect", topics.LeapConnect(), "casetabridge/leap/connect"},
		{"LeapRequest", topics.LeapRequest("032E7E88"), "casetabridge/leap/032E7E88/request"},
		{"LeapResponse", topics.LeapResponse("032E7E88"), "casetabridge/leap/032E7E88/response"},
		{"LeapEvent", topics.LeapEvent("032E7E88"), "casetabridge/leap/032E7E88/event"},
		{"LeapDiscovery", topics.LeapDiscovery(), "casetabridge/leap/discovery"},
		{"ButtonEvent", topics.ButtonEvent("032E7E88", "71234567", 2), "casetabridge/event/032E7E88/71234567/button/2"},
		{"OccupancyEvent", topics.OccupancyEvent("032E7E88", "71234568"), "casetabridge/event/032E7E88/71234568/occupancy"},
		{"ReconcileEvent", topics.ReconcileEvent("032E7E88"), "casetabridge/event/032E7E88/reconcile"},
		{"AllEvents", topics.AllEvents(), "casetabridge/event/#"},
		{"SystemStatus", topics.SystemStatus(), "casetabridge/system/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestTopics_CustomPrefix(t *testing.T) {
	topics := Topics{Prefix: "home/caseta"}
	if got := topics.LeapEvent("AB12"); got != "home/caseta/leap/AB12/event" {
		t.Errorf("LeapEvent = %q", got)
	}
	if got := topics.SystemStatus(); got != "home/caseta/system/status" {
		t.Errorf("SystemStatus = %q", got)
	}
}

func TestTopics_ParseLeapTopic(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		topic    string
		wantHub  string
		wantKind string
		wantOK   bool
	}{
		{"casetabridge/leap/032E7E88/event", "032E7E88", "event", true},
		{"casetabridge/leap/032E7E88/response", "032E7E88", "response", true},
		{"casetabridge/leap/032E7E88/request", "032E7E88", "request", true},
		{"casetabridge/leap/connect", "", "", false},
		{"casetabridge/leap/discovery", "", "", false},
		{"casetabridge/leap/032E7E88/event/extra", "", "", false},
		{"casetabridge/leap/032E7E88/other", "", "", false},
		{"other/leap/032E7E88/event", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			hub, kind, ok := topics.ParseLeapTopic(tt.topic)
			if hub != tt.wantHub || kind != tt.wantKind || ok != tt.wantOK {
				t.Errorf("ParseLeapTopic(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.topic, hub, kind, ok, tt.wantHub, tt.wantKind, tt.wantOK)
			}
		})
	}
}

func TestClient_ValidationBeforeConnection(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"publish empty topic", c.Publish("", nil, 1, false), ErrInvalidTopic},
		{"publish bad qos", c.Publish("a/b", nil, 3, false), ErrInvalidQoS},
		{"publish oversized", c.Publish("a/b", make([]byte, maxPayloadSize+1), 1, false), ErrPublishFailed},
		{"publish disconnected", c.Publish("a/b", []byte("x"), 1, false), ErrNotConnected},
		{"subscribe empty topic", c.Subscribe("", 1, noop), ErrInvalidTopic},
		{"subscribe bad qos", c.Subscribe("a/b", 5, noop), ErrInvalidQoS},
		{"subscribe nil handler", c.Subscribe("a/b", 1, nil), ErrSubscribeFailed},
		{"subscribe disconnected", c.Subscribe("a/b", 1, noop), ErrNotConnected},
		{"unsubscribe empty topic", c.Unsubscribe(""), ErrInvalidTopic},
		{"unsubscribe disconnected", c.Unsubscribe("a/b"), ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.wantErr) {
				t.Errorf("err = %v, want %v", tt.err, tt.wantErr)
			}
		})
	}

	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
}

func TestClient_CloseWithoutConnection(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true for a client that never connected")
	}
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, msg)
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestWrapHandler_RecoversPanic(t *testing.T) {
	logger := &recordingLogger{}
	c := &Client{}
	c.SetLogger(logger)

	wrapped := c.wrapHandler(func(string, []byte) error {
		panic("boom")
	})
	wrapped(nil, fakeMessage{topic: "casetabridge/leap/AB12/event"})

	if len(logger.errs) != 1 || !strings.Contains(logger.errs[0], "panic") {
		t.Errorf("expected one panic log, got %v", logger.errs)
	}
}

func TestWrapHandler_LogsHandlerError(t *testing.T) {
	logger := &recordingLogger{}
	c := &Client{}
	c.SetLogger(logger)

	var gotTopic string
	var gotPayload []byte
	wrapped := c.wrapHandler(func(topic string, payload []byte) error {
		gotTopic, gotPayload = topic, payload
		return errors.New("bad payload")
	})
	wrapped(nil, fakeMessage{topic: "t/1", payload: []byte("{}")})

	if gotTopic != "t/1" || string(gotPayload) != "{}" {
		t.Errorf("handler got (%q, %q)", gotTopic, gotPayload)
	}
	if len(logger.warns) != 1 {
		t.Errorf("expected one warn log, got %v", logger.warns)
	}
}

func TestBuildStatusPayload(t *testing.T) {
	payload := string(buildStatusPayload(statusOffline, "casetabridge-1", "unexpected_disconnect"))
	for _, want := range []string{`"status":"offline"`, `"client_id":"casetabridge-1"`, `"reason":"unexpected_disconnect"`} {
		if !strings.Contains(payload, want) {
			t.Errorf("payload %s missing %s", payload, want)
		}
	}

	online := string(buildStatusPayload(statusOnline, "c", ""))
	if strings.Contains(online, "reason") {
		t.Errorf("online payload should omit reason: %s", online)
	}
}
