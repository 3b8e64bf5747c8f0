package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/caseta-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/caseta-bridge/internal/leap"
)

// DefaultRequestTimeout bounds a request when Options.RequestTimeout is zero.
const DefaultRequestTimeout = 10 * time.Second

// Transport is the subset of the MQTT client used by the relay adapter.
// *mqtt.Client implements it.
type Transport interface {
	PublishJSON(topic string, v any) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Logger is the logging interface used by sessions.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures a Connector.
type Options struct {
	Transport      Transport
	Topics         mqtt.Topics
	RequestTimeout time.Duration
	Logger         Logger
}

// Connector opens relay-backed sessions.
type Connector struct {
	transport Transport
	topics    mqtt.Topics
	timeout   time.Duration
	logger    Logger
}

var _ leap.Connector = (*Connector)(nil)

// NewConnector validates opts and returns a Connector.
func NewConnector(opts Options) (*Connector, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("%w: transport is required", ErrInvalidOptions)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Connector{
		transport: opts.Transport,
		topics:    opts.Topics,
		timeout:   opts.RequestTimeout,
		logger:    opts.Logger,
	}, nil
}

// Connect asks the relay to open a session to the hub and waits for its
// answer. The credential set is checked locally first.
//
// Parameters:
//   - ctx: Bounds the connect exchange
//   - hubID: Hub identity; also the topic segment for the session
//   - address: Host or host:port of the hub, may be empty for the relay to resolve
//   - creds: Client credentials paired with the hub
//
// Returns:
//   - leap.Session: Ready for requests
//   - error: leap.ErrInvalidCredentials, ErrTimeout, or the relay's failure
func (c *Connector) Connect(ctx context.Context, hubID, address string, creds leap.Credentials) (leap.Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	s, err := newSession(hubID, c.transport, c.topics, c.timeout, c.logger)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	resp, err := s.exchange(ctx, id, c.topics.LeapConnect(), connectRequest{
		ID:      id,
		Op:      opConnect,
		HubID:   hubID,
		Address: address,
		CA:      string(creds.CA),
		Key:     string(creds.Key),
		Cert:    string(creds.Cert),
	})
	if err == nil {
		err = resp.err("connect")
	}
	if err != nil {
		_ = s.shutdown() //nolint:errcheck // connect error takes precedence
		return nil, fmt.Errorf("connecting hub %s: %w", hubID, err)
	}

	c.logger.Debug("relay session open", "hub_id", hubID, "address", address)
	return s, nil
}
