package homekit

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/brutella/hap"
	hapaccessory "github.com/brutella/hap/accessory"

	"github.com/nerrad567/caseta-bridge/internal/clock"
)

var pinPattern = regexp.MustCompile(`^[0-9]{8}$`)

// DefaultRestartDelay is used when ServerOptions.RestartDelay is zero.
const DefaultRestartDelay = 2 * time.Second

// ServerOptions configures a Server.
type ServerOptions struct {
	// BridgeName and BridgeID identify the bridge accessory.
	BridgeName string
	BridgeID   string
	Version    string

	// StoragePath holds pairing keys.
	StoragePath string

	// Pin is the 8-digit setup code.
	Pin string

	// Address is the listen address; empty picks a free port.
	Address string

	RestartDelay time.Duration

	Framework *Framework
	Clock     clock.Clock
	Logger    Logger
}

// Server serves the framework's accessories over HAP and restarts when the
// accessory set changes.
type Server struct {
	opts    ServerOptions
	bridge  *hapaccessory.Bridge
	store   hap.Store
	restart chan struct{}

	// serve runs one HAP server generation until ctx ends.
	serve func(ctx context.Context, accs []*hapaccessory.A) error

	mu    sync.Mutex
	timer clock.Timer
}

// NewServer validates opts and prepares the bridge accessory. It also
// subscribes the server to the framework's change notifications.
//
// Returns:
//   - *Server: Ready to Run
//   - error: ErrInvalidConfig for a bad pin, storage path or framework
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Framework == nil {
		return nil, fmt.Errorf("%w: framework is required", ErrInvalidConfig)
	}
	if !pinPattern.MatchString(opts.Pin) {
		return nil, fmt.Errorf("%w: pin must be 8 digits", ErrInvalidConfig)
	}
	if opts.StoragePath == "" {
		return nil, fmt.Errorf("%w: storage path is required", ErrInvalidConfig)
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = DefaultRestartDelay
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	bridge := hapaccessory.NewBridge(hapaccessory.Info{
		Name:         opts.BridgeName,
		SerialNumber: opts.BridgeID,
		Manufacturer: "Caseta Bridge",
		Model:        "caseta-bridge",
		Firmware:     opts.Version,
	})
	bridge.A.Id = bridgeAID

	s := &Server{
		opts:    opts,
		bridge:  bridge,
		store:   hap.NewFsStore(opts.StoragePath),
		restart: make(chan struct{}, 1),
	}
	s.serve = s.listen
	opts.Framework.SetOnChange(s.Changed)
	return s, nil
}

// Changed schedules a restart after the restart delay. Calls within the
// delay coalesce into one restart.
func (s *Server) Changed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.opts.Clock.AfterFunc(s.opts.RestartDelay, func() {
		select {
		case s.restart <- struct{}{}:
		default:
		}
	})
}

// Run serves accessories until ctx is cancelled.
//
// Returns:
//   - error: nil on cancellation, or the error that stopped the HAP server
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		s.mu.Lock()
		if s.timer != nil {
			s.timer.Stop()
		}
		s.mu.Unlock()
	}()

	for {
		accs := s.opts.Framework.Accessories()
		runCtx, cancel := context.WithCancel(ctx)
		errCh := make(chan error, 1)
		go func() { errCh <- s.serve(runCtx, accs) }()

		s.opts.Logger.Info("HAP server starting", "accessories", len(accs), "address", s.opts.Address)

		select {
		case <-ctx.Done():
			cancel()
			<-errCh
			return nil
		case <-s.restart:
			cancel()
			<-errCh
			s.opts.Logger.Info("restarting HAP server for accessory changes")
		case err := <-errCh:
			cancel()
			if ctx.Err() != nil {
				return nil
			}
			if err == nil {
				err = errServerExited
			}
			return fmt.Errorf("hap server: %w", err)
		}
	}
}

func (s *Server) listen(ctx context.Context, accs []*hapaccessory.A) error {
	server, err := hap.NewServer(s.store, s.bridge.A, accs...)
	if err != nil {
		return fmt.Errorf("creating HAP server: %w", err)
	}
	server.Pin = s.opts.Pin
	server.Addr = s.opts.Address
	return server.ListenAndServe(ctx)
}
