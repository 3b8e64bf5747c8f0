package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/nerrad567/caseta-bridge/internal/infrastructure/config"
)

// Status represents the current state of a managed process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

// Defaults applied by NewManager to zero-valued Config fields.
const (
	defaultRestartDelay    = 5 * time.Second
	defaultMaxRestartDelay = 5 * time.Minute
	defaultStableThreshold = 2 * time.Minute
	defaultGracefulTimeout = 10 * time.Second
)

// maxLineLength bounds one captured output line.
const maxLineLength = 64 * 1024

// Config holds configuration for a managed subprocess.
type Config struct {
	// Name identifies the process in logs.
	Name string

	Binary string
	Args   []string

	// Env is appended to the parent environment. Nil inherits it unchanged.
	Env []string

	// RestartOnFailure restarts the process when it exits without Stop.
	RestartOnFailure bool

	// RestartDelay is the first restart delay. It doubles per consecutive
	// failure up to MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// StableThreshold is how long a run must last for the failure count
	// used by the backoff to reset.
	StableThreshold time.Duration

	// MaxRestartAttempts limits consecutive restarts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is the wait between SIGTERM and SIGKILL.
	GracefulTimeout time.Duration

	// OnExit is called after every exit with the wait error (nil for a
	// requested stop).
	OnExit func(err error)
}

// DefaultConfig returns a Config that restarts on failure.
func DefaultConfig(name, binary string, args []string) Config {
	return Config{
		Name:               name,
		Binary:             binary,
		Args:               args,
		RestartOnFailure:   true,
		RestartDelay:       defaultRestartDelay,
		MaxRestartDelay:    defaultMaxRestartDelay,
		StableThreshold:    defaultStableThreshold,
		MaxRestartAttempts: 10,
		GracefulTimeout:    defaultGracefulTimeout,
	}
}

// RelayConfig builds the Config for the LEAP relay from the relay section of
// the bridge configuration.
func RelayConfig(cfg config.RelayConfig) Config {
	c := DefaultConfig("leap-relay", cfg.Binary, cfg.Args)
	c.RestartOnFailure = cfg.RestartOnFailure
	if cfg.RestartDelaySeconds > 0 {
		c.RestartDelay = time.Duration(cfg.RestartDelaySeconds) * time.Second
	}
	c.MaxRestartAttempts = cfg.MaxRestartAttempts
	return c
}

// Logger defines the logging interface for the process manager.
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

// Manager supervises one subprocess.
//
// Thread Safety: all methods are safe for concurrent use.
type Manager struct {
	config Config

	mu            sync.RWMutex
	logger        Logger
	cmd           *exec.Cmd
	status        Status
	restartCount  int
	failures      int
	lastError     error
	startTime     time.Time
	stopRequested bool
	stop          chan struct{}
	done          chan struct{}
}

// NewManager creates a manager. Zero durations take the package defaults.
func NewManager(cfg Config) *Manager {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = defaultRestartDelay
	}
	if cfg.MaxRestartDelay <= 0 {
		cfg.MaxRestartDelay = defaultMaxRestartDelay
	}
	if cfg.StableThreshold <= 0 {
		cfg.StableThreshold = defaultStableThreshold
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	return &Manager{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger used for lifecycle messages and captured output.
func (m *Manager) SetLogger(logger Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger
}

func (m *Manager) log() Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.logger
}

// Start launches the subprocess and supervises it until Stop or until ctx
// is cancelled.
//
// Returns:
//   - error: ErrAlreadyRunning, or the failure to start the first run
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusRunning || m.status == StatusStarting || m.supervising() {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, m.config.Name)
	}
	m.status = StatusStarting
	m.stopRequested = false
	m.failures = 0
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.mu.Unlock()

	wait, err := m.launch(ctx)
	if err != nil {
		m.mu.Lock()
		m.status = StatusFailed
		m.lastError = err
		close(m.done)
		m.mu.Unlock()
		return err
	}

	go m.supervise(ctx, wait, m.stop)
	return nil
}

// supervising reports whether a supervisor goroutine is live. Callers hold mu.
func (m *Manager) supervising() bool {
	if m.done == nil {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

// launch starts one run of the subprocess. The returned wait drains the
// captured output before reaping the process.
func (m *Manager) launch(ctx context.Context) (wait func() error, err error) {
	logger := m.log()
	logger.Info("starting process", "name", m.config.Name, "binary", m.config.Binary, "args", m.config.Args)

	cmd := exec.CommandContext(ctx, m.config.Binary, m.config.Args...) //nolint:gosec // binary comes from operator config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if m.config.Env != nil {
		cmd.Env = append(os.Environ(), m.config.Env...)
	}
	// CommandContext kills only the leader; take the whole group down.
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStartFailed, m.config.Name, err)
	}

	m.mu.Lock()
	m.cmd = cmd
	m.status = StatusRunning
	m.startTime = time.Now()
	m.mu.Unlock()

	var output sync.WaitGroup
	output.Add(2)
	go func() { defer output.Done(); m.capture("stdout", stdout, logger.Info) }()
	go func() { defer output.Done(); m.capture("stderr", stderr, logger.Warn) }()

	logger.Info("process started", "name", m.config.Name, "pid", cmd.Process.Pid)
	return func() error {
		output.Wait()
		return cmd.Wait()
	}, nil
}

// capture logs r line by line until it is closed.
func (m *Manager) capture(stream string, r io.Reader, logf func(string, ...any)) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLineLength)
	for sc.Scan() {
		logf("process output", "name", m.config.Name, "stream", stream, "line", sc.Text())
	}
	if err := sc.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		m.log().Debug("output stream closed", "name", m.config.Name, "stream", stream, "error", err)
	}
}

// supervise waits on each run and restarts it as configured.
func (m *Manager) supervise(ctx context.Context, wait func() error, stop <-chan struct{}) {
	defer close(m.done)

	for {
		err := wait()
		logger := m.log()

		m.mu.Lock()
		stopRequested := m.stopRequested
		ran := time.Since(m.startTime)
		m.mu.Unlock()

		if stopRequested || ctx.Err() != nil {
			logger.Info("process stopped", "name", m.config.Name)
			m.setStatus(StatusStopped, nil)
			m.notifyExit(nil)
			return
		}

		logger.Warn("process exited unexpectedly", "name", m.config.Name, "error", err, "ran_for", ran)
		if err == nil {
			err = ErrUnexpectedExit
		}
		m.setStatus(StatusFailed, err)
		m.notifyExit(err)

		if !m.config.RestartOnFailure {
			return
		}

		delay, attempt, ok := m.nextRestart(ran)
		if !ok {
			logger.Error("max restart attempts reached", "name", m.config.Name, "attempts", attempt-1)
			return
		}
		logger.Info("restarting process", "name", m.config.Name, "attempt", attempt, "delay", delay)

		for {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				m.setStatus(StatusStopped, nil)
				return
			case <-stop:
				t.Stop()
				m.setStatus(StatusStopped, nil)
				return
			case <-t.C:
			}
			if m.stopping() {
				m.setStatus(StatusStopped, nil)
				return
			}

			next, err := m.launch(ctx)
			if err == nil {
				wait = next
				break
			}
			logger.Error("failed to restart process", "name", m.config.Name, "error", err)
			m.setStatus(StatusFailed, err)
			if delay, attempt, ok = m.nextRestart(0); !ok {
				logger.Error("max restart attempts reached", "name", m.config.Name, "attempts", attempt-1)
				return
			}
		}
	}
}

// nextRestart records a failure and returns the delay before the next run.
// ok is false once MaxRestartAttempts consecutive restarts have been made.
func (m *Manager) nextRestart(ran time.Duration) (delay time.Duration, attempt int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ran >= m.config.StableThreshold {
		m.failures = 0
	}
	m.failures++
	if m.config.MaxRestartAttempts > 0 && m.failures > m.config.MaxRestartAttempts {
		return 0, m.failures, false
	}
	m.restartCount++
	return calculateBackoffDelay(m.config.RestartDelay, m.config.MaxRestartDelay, m.failures), m.failures, true
}

// calculateBackoffDelay returns base doubled for each failure after the
// first, capped at maxDelay.
func calculateBackoffDelay(base, maxDelay time.Duration, failures int) time.Duration {
	delay := base
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return min(delay, maxDelay)
}

func (m *Manager) setStatus(s Status, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = s
	if err != nil {
		m.lastError = err
	}
}

func (m *Manager) stopping() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stopRequested
}

func (m *Manager) notifyExit(err error) {
	if m.config.OnExit != nil {
		m.config.OnExit(err)
	}
}

// Stop sends SIGTERM to the process group, waits GracefulTimeout, then
// sends SIGKILL. It returns once the supervisor has finished.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.done == nil {
		m.mu.Unlock()
		return nil
	}
	if !m.stopRequested {
		m.stopRequested = true
		close(m.stop)
	}
	cmd := m.cmd
	done := m.done
	running := m.status == StatusRunning
	m.mu.Unlock()

	if !running || cmd == nil || cmd.Process == nil {
		<-done
		return nil
	}

	logger := m.log()
	pid := cmd.Process.Pid
	logger.Info("stopping process", "name", m.config.Name, "pid", pid)
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		logger.Warn("failed to send SIGTERM to process group", "name", m.config.Name, "error", err)
	}

	t := time.NewTimer(m.config.GracefulTimeout)
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-t.C:
		logger.Warn("graceful shutdown timeout, sending SIGKILL", "name", m.config.Name, "timeout", m.config.GracefulTimeout)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing process group %s: %w", m.config.Name, err)
	}
	<-done
	return nil
}

// Status returns the current status of the managed process.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsRunning reports whether the process is running.
func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// LastError returns the error from the most recent unexpected exit.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// RestartCount returns the total number of restarts.
func (m *Manager) RestartCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.restartCount
}

// Uptime returns how long the current run has lasted, or 0.
func (m *Manager) Uptime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status != StatusRunning {
		return 0
	}
	return time.Since(m.startTime)
}

// PID returns the process ID of the current run, or 0.
func (m *Manager) PID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status == StatusRunning && m.cmd != nil && m.cmd.Process != nil {
		return m.cmd.Process.Pid
	}
	return 0
}

// Stats is a snapshot of the supervisor's state, served by the health API.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns a snapshot for status reporting.
func (m *Manager) Stats() Stats {
	pid := m.PID()
	uptime := m.Uptime()

	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Stats{
		Name:         m.config.Name,
		Status:       m.status,
		PID:          pid,
		Uptime:       uptime,
		RestartCount: m.restartCount,
	}
	if m.lastError != nil {
		s.LastError = m.lastError.Error()
	}
	return s
}
