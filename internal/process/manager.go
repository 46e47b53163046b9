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

	"golang.org/x/sys/unix"
)

// Status represents the current state of a managed process.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
	StatusFailed  Status = "failed"
)

// maxOutputLine bounds a single captured stdout/stderr line.
const maxOutputLine = 64 * 1024

// Config holds configuration for a managed subprocess.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the path to the executable.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format),
	// appended to the parent's environment. If nil, inherits unchanged.
	Env []string

	// WorkDir is the working directory for the process.
	// If empty, inherits from parent process.
	WorkDir string

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration
}

// Logger defines the logging interface for the process manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ErrAlreadyRunning is returned by Start when the process is running.
var ErrAlreadyRunning = errors.New("process: already running")

// Manager runs one subprocess at a time in its own process group.
//
// Manager never restarts the process on its own; callers observe exits
// through IsRunning and decide whether to Start again.
type Manager struct {
	config Config
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	status        Status
	startCount    int
	lastError     error
	startTime     time.Time
	stopRequested bool

	// done is closed when the current process has exited.
	done chan struct{}
}

// NewManager creates a new process manager with the given configuration.
func NewManager(cfg Config) *Manager {
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = 3 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Binary
	}

	return &Manager{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Start launches the subprocess and begins monitoring it.
//
// The process is not bound to any request context: it lives until it
// exits or Stop is called.
func (m *Manager) Start() error {
	pid, err := m.launch()
	if err != nil {
		return err
	}

	m.logger.Info("process started", "name", m.config.Name, "pid", pid)
	return nil
}

// launch starts the process and its monitor under the lock.
func (m *Manager) launch() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status == StatusRunning {
		return 0, fmt.Errorf("%w: %s", ErrAlreadyRunning, m.config.Name)
	}

	m.logger.Info("starting process",
		"name", m.config.Name,
		"binary", m.config.Binary,
		"args", m.config.Args,
	)

	cmd := exec.Command(m.config.Binary, m.config.Args...) //nolint:gosec // binary comes from operator config

	// Own process group so Stop reaches any children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if m.config.Env != nil {
		cmd.Env = append(os.Environ(), m.config.Env...)
	}
	if m.config.WorkDir != "" {
		cmd.Dir = m.config.WorkDir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 0, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		m.status = StatusFailed
		m.lastError = err
		return 0, fmt.Errorf("starting %s: %w", m.config.Name, err)
	}

	done := make(chan struct{})
	m.cmd = cmd
	m.done = done
	m.status = StatusRunning
	m.startTime = time.Now()
	m.startCount++
	m.stopRequested = false

	var outputs sync.WaitGroup
	outputs.Add(2)
	go m.captureOutput(&outputs, "stdout", stdout)
	go m.captureOutput(&outputs, "stderr", stderr)
	go m.monitor(cmd, done, &outputs)

	return cmd.Process.Pid, nil
}

// captureOutput logs each line the process writes to stream.
func (m *Manager) captureOutput(wg *sync.WaitGroup, stream string, r io.Reader) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxOutputLine)
	for scanner.Scan() {
		m.logger.Debug("process output",
			"name", m.config.Name,
			"stream", stream,
			"line", scanner.Text(),
		)
	}
	// Drain anything past an overlong line so the child never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
}

// monitor waits for cmd to exit and records the outcome.
func (m *Manager) monitor(cmd *exec.Cmd, done chan struct{}, outputs *sync.WaitGroup) {
	// Pipes must be fully read before Wait closes them.
	outputs.Wait()
	err := cmd.Wait()

	m.mu.Lock()
	requested := m.stopRequested
	switch {
	case requested:
		m.status = StatusStopped
	case err != nil:
		m.status = StatusFailed
		m.lastError = err
	default:
		m.status = StatusExited
	}
	m.mu.Unlock()

	if requested {
		m.logger.Info("process stopped", "name", m.config.Name)
	} else {
		m.logger.Warn("process exited unexpectedly", "name", m.config.Name, "error", err)
	}

	close(done)
}

// Stop terminates the process group: SIGTERM, then SIGKILL once
// GracefulTimeout (or ctx) expires. Stop is a no-op if nothing is running.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.status != StatusRunning || m.cmd == nil {
		m.mu.Unlock()
		return nil
	}
	m.stopRequested = true
	pid := m.cmd.Process.Pid
	done := m.done
	m.mu.Unlock()

	m.logger.Info("stopping process", "name", m.config.Name, "pid", pid)

	if err := unix.Kill(-pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		m.logger.Warn("failed to send SIGTERM to process group", "name", m.config.Name, "error", err)
	}

	timer := time.NewTimer(m.config.GracefulTimeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		m.logger.Warn("graceful shutdown timeout, sending SIGKILL",
			"name", m.config.Name,
			"timeout", m.config.GracefulTimeout,
		)
	case <-ctx.Done():
		m.logger.Warn("stop cancelled, sending SIGKILL", "name", m.config.Name)
	}

	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("killing process group %s: %w", m.config.Name, err)
	}

	<-done
	m.logger.Info("process killed", "name", m.config.Name)
	return nil
}

// Status returns the current status of the managed process.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsRunning returns true if the process is currently running.
func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// LastError returns the error from the last unexpected exit, if any.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// PID returns the process ID of the current or last process, or 0.
func (m *Manager) PID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cmd != nil && m.cmd.Process != nil {
		return m.cmd.Process.Pid
	}
	return 0
}

// Stats describes the managed process.
type Stats struct {
	Name       string        `json:"name"`
	Status     Status        `json:"status"`
	PID        int           `json:"pid,omitempty"`
	Uptime     time.Duration `json:"uptime,omitempty"`
	StartCount int           `json:"start_count"`
	LastError  string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the process.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Name:       m.config.Name,
		Status:     m.status,
		StartCount: m.startCount,
	}

	if m.cmd != nil && m.cmd.Process != nil {
		stats.PID = m.cmd.Process.Pid
	}
	if m.status == StatusRunning {
		stats.Uptime = time.Since(m.startTime)
	}
	if m.lastError != nil {
		stats.LastError = m.lastError.Error()
	}

	return stats
}
