package process

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// recordingLogger captures log messages for assertions.
type recordingLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *recordingLogger) log(level, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprint(level, " ", msg, " ", args))
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.log("DEBUG", msg, args...) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.log("INFO", msg, args...) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.log("WARN", msg, args...) }
func (l *recordingLogger) Error(msg string, args ...any) { l.log("ERROR", msg, args...) }

func (l *recordingLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

// waitDone polls until the monitor has recorded the exit.
func waitDone(t *testing.T, m *Manager) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for m.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("process did not exit")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Config{Binary: "/usr/bin/mpv"})

	if m.config.Name != "/usr/bin/mpv" {
		t.Errorf("Name = %q, want binary path", m.config.Name)
	}
	if m.config.GracefulTimeout != 3*time.Second {
		t.Errorf("GracefulTimeout = %v, want %v", m.config.GracefulTimeout, 3*time.Second)
	}
	if m.Status() != StatusStopped {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusStopped)
	}
	if m.PID() != 0 {
		t.Errorf("PID() = %d, want 0", m.PID())
	}
}

func TestManager_StartStop(t *testing.T) {
	logger := &recordingLogger{}
	m := NewManager(Config{
		Name:            "sleeper",
		Binary:          "/bin/sh",
		Args:            []string{"-c", "sleep 30"},
		GracefulTimeout: 2 * time.Second,
	})
	m.SetLogger(logger)

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !m.IsRunning() {
		t.Fatal("IsRunning() = false after Start")
	}
	if m.PID() == 0 {
		t.Error("PID() = 0 after Start")
	}
	if err := m.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	waitDone(t, m)

	if m.Status() != StatusStopped {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusStopped)
	}
	if m.LastError() != nil {
		t.Errorf("LastError() = %v, want nil after requested stop", m.LastError())
	}
	if !logger.contains("process stopped") {
		t.Error("requested stop not logged as \"process stopped\"")
	}
}

func TestManager_StopEscalatesToSIGKILL(t *testing.T) {
	m := NewManager(Config{
		Name:            "stubborn",
		Binary:          "/bin/sh",
		Args:            []string{"-c", `trap "" TERM; while true; do sleep 1; done`},
		GracefulTimeout: 100 * time.Millisecond,
	})
	logger := &recordingLogger{}
	m.SetLogger(logger)

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	// Let the shell install its trap.
	time.Sleep(100 * time.Millisecond)

	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	waitDone(t, m)

	if !logger.contains("sending SIGKILL") {
		t.Error("expected SIGKILL escalation to be logged")
	}
	if m.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}

func TestManager_UnexpectedExit(t *testing.T) {
	m := NewManager(Config{
		Name:   "crasher",
		Binary: "/bin/sh",
		Args:   []string{"-c", "echo booting; echo broken >&2; exit 3"},
	})
	logger := &recordingLogger{}
	m.SetLogger(logger)

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, m)

	if m.Status() != StatusFailed {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusFailed)
	}
	stats := m.Stats()
	if stats.LastError == "" {
		t.Error("Stats().LastError empty after non-zero exit")
	}
	if stats.StartCount != 1 {
		t.Errorf("Stats().StartCount = %d, want 1", stats.StartCount)
	}
	if !logger.contains("booting") || !logger.contains("broken") {
		t.Error("expected stdout and stderr lines to be captured")
	}

	// Manager does not restart by itself, but can be started again.
	if m.IsRunning() {
		t.Error("IsRunning() = true after exit")
	}
	if err := m.Start(); err != nil {
		t.Fatalf("restart Start() error = %v", err)
	}
	waitDone(t, m)
	if got := m.Stats().StartCount; got != 2 {
		t.Errorf("StartCount = %d, want 2", got)
	}
}

func TestManager_CleanExit(t *testing.T) {
	m := NewManager(Config{Binary: "/bin/true"})

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, m)

	if m.Status() != StatusExited {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusExited)
	}
}

func TestManager_StartMissingBinary(t *testing.T) {
	m := NewManager(Config{Name: "ghost", Binary: "/nonexistent/binary"})

	if err := m.Start(); err == nil {
		t.Fatal("Start() expected error for missing binary")
	}
	if m.Status() != StatusFailed {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusFailed)
	}
}

func TestManager_StopWhenNotRunning(t *testing.T) {
	m := NewManager(Config{Binary: "/bin/true"})
	if err := m.Stop(context.Background()); err != nil {
		t.Errorf("Stop() on idle manager error = %v, want nil", err)
	}
}

func TestManager_Env(t *testing.T) {
	m := NewManager(Config{
		Name:   "env",
		Binary: "/bin/sh",
		Args:   []string{"-c", `echo "display=$DISPLAY"`},
		Env:    []string{"DISPLAY=:7"},
	})
	logger := &recordingLogger{}
	m.SetLogger(logger)

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, m)

	if !logger.contains("display=:7") {
		t.Error("expected configured environment to reach the process")
	}
}
