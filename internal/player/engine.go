package player

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/sentient-media-agent/internal/mpvipc"
	"github.com/nerrad567/sentient-media-agent/internal/process"
)

const (
	// readyPollInterval is how often Start checks for the IPC socket.
	readyPollInterval = 100 * time.Millisecond

	// readySettleDelay gives mpv time to finish initialising after the
	// socket first accepts a connection.
	readySettleDelay = 200 * time.Millisecond

	// socketDialTimeout bounds a single readiness probe.
	socketDialTimeout = 100 * time.Millisecond
)

// ErrEngineUnavailable is returned when the player cannot be started or
// its control socket cannot be reached within the ready timeout.
var ErrEngineUnavailable = errors.New("player: engine unavailable")

// Config configures the supervised mpv process.
type Config struct {
	// Binary is the mpv executable.
	Binary string

	// Args are appended after the IPC and idle flags.
	Args []string

	// Env entries (KEY=VALUE) are added to the agent's environment.
	Env []string

	// SocketPath is passed to --input-ipc-server.
	SocketPath string

	// ReadyTimeout bounds the wait for the IPC socket after launch.
	ReadyTimeout time.Duration

	// GracefulTimeout is the SIGTERM to SIGKILL window on Terminate.
	GracefulTimeout time.Duration

	// IPCOptions tune the control channel client.
	IPCOptions []mpvipc.Option
}

// Logger defines the logging interface for the engine.
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

// Engine supervises one mpv process and its control channel.
//
// mpv is launched idle (no file) and kept alive across asset switches;
// assets are swapped with loadfile over the IPC socket, so the video
// output is never torn down between assets.
type Engine struct {
	config Config
	proc   *process.Manager
	ipc    *mpvipc.Client
	logger Logger

	mu      sync.Mutex
	tracked bool
}

// New creates an Engine. The process is not started until Start.
func New(cfg Config) *Engine {
	if cfg.Binary == "" {
		cfg.Binary = "mpv"
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 2 * time.Second
	}

	proc := process.NewManager(process.Config{
		Name:            "mpv",
		Binary:          cfg.Binary,
		Args:            buildArgs(cfg),
		Env:             buildEnv(cfg.Env, os.LookupEnv),
		GracefulTimeout: cfg.GracefulTimeout,
	})

	return &Engine{
		config: cfg,
		proc:   proc,
		ipc:    mpvipc.New(cfg.SocketPath, cfg.IPCOptions...),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the engine and its process manager.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
	e.proc.SetLogger(logger)
}

// buildArgs returns the mpv command line. Looping is set per file with
// loop-file, so --loop-playlist is not passed: a one-shot asset holds its
// last frame (keep-open) until the coordinator reverts to the default.
func buildArgs(cfg Config) []string {
	args := []string{
		"--idle=yes",
		"--keep-open=yes",
		"--input-ipc-server=" + cfg.SocketPath,
	}
	return append(args, cfg.Args...)
}

// buildEnv returns the extra environment for mpv. DISPLAY and
// XDG_RUNTIME_DIR default to the kiosk session's values when neither the
// agent's environment nor the configured entries set them.
func buildEnv(extra []string, lookup func(string) (string, bool)) []string {
	env := append([]string(nil), extra...)

	defaults := []struct{ key, value string }{
		{"DISPLAY", ":0"},
		{"XDG_RUNTIME_DIR", "/run/user/1000"},
	}
	for _, d := range defaults {
		if _, ok := lookup(d.key); ok {
			continue
		}
		if hasEnvKey(extra, d.key) {
			continue
		}
		env = append(env, d.key+"="+d.value)
	}
	return env
}

func hasEnvKey(env []string, key string) bool {
	for _, kv := range env {
		if strings.HasPrefix(kv, key+"=") {
			return true
		}
	}
	return false
}

// Start launches mpv and waits until its control socket accepts
// connections. A stale socket from a previous run is removed first.
//
// Returns:
//   - error: ErrEngineUnavailable (wrapped) if mpv fails to launch, exits
//     early, or the socket is not ready within ReadyTimeout
func (e *Engine) Start(ctx context.Context) error {
	e.removeSocket()

	if err := e.proc.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	e.mu.Lock()
	e.tracked = true
	e.mu.Unlock()

	if err := e.waitForReady(ctx); err != nil {
		e.logger.Error("player not ready, terminating", "error", err)
		_ = e.Terminate(context.Background())
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	stats := e.proc.Stats()
	e.logger.Info("player ready",
		"pid", stats.PID,
		"start_count", stats.StartCount,
		"socket", e.config.SocketPath,
	)
	return nil
}

// waitForReady polls the IPC socket until it accepts a connection.
func (e *Engine) waitForReady(ctx context.Context) error {
	deadline := time.Now().Add(e.config.ReadyTimeout)

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled while waiting for mpv: %w", ctx.Err())
		default:
		}

		if !e.proc.IsRunning() {
			if lastErr := e.proc.LastError(); lastErr != nil {
				return fmt.Errorf("mpv exited: %w", lastErr)
			}
			return errors.New("mpv exited unexpectedly")
		}

		conn, err := net.DialTimeout("unix", e.config.SocketPath, socketDialTimeout)
		if err == nil {
			conn.Close()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(readySettleDelay):
			}
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for %s after %v", e.config.SocketPath, e.config.ReadyTimeout)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled while waiting for mpv: %w", ctx.Err())
		case <-time.After(readyPollInterval):
		}
	}
}

// Alive reports whether the mpv process is running.
func (e *Engine) Alive() bool {
	return e.proc.IsRunning()
}

// Tracked reports whether a process was started and not yet terminated,
// whether or not it is still running.
func (e *Engine) Tracked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracked
}

// Send delivers cmd over the control channel.
func (e *Engine) Send(ctx context.Context, cmd mpvipc.Command) (*mpvipc.Response, error) {
	resp, err := e.ipc.Send(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if resp != nil && !resp.OK() {
		e.logger.Warn("player rejected command", "command", cmd.Name(), "error", resp.Error)
	}
	return resp, nil
}

// Terminate stops the mpv process group and removes its socket.
func (e *Engine) Terminate(ctx context.Context) error {
	stats := e.proc.Stats()
	if stats.LastError != "" {
		e.logger.Debug("cleaning up player", "status", stats.Status, "last_error", stats.LastError)
	}

	err := e.proc.Stop(ctx)
	e.removeSocket()

	e.mu.Lock()
	e.tracked = false
	e.mu.Unlock()

	if err != nil {
		return fmt.Errorf("terminating mpv: %w", err)
	}
	return nil
}

func (e *Engine) removeSocket() {
	if err := os.Remove(e.config.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		e.logger.Warn("failed to remove player socket", "path", e.config.SocketPath, "error", err)
	}
}
