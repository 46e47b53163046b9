package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/sentient-media-agent/internal/clock"
)

// DefaultInterval is used when Config.Interval is zero.
const DefaultInterval = 5 * time.Second

// heartbeatQoS is at-least-once; heartbeats are never retained.
const heartbeatQoS byte = 1

// Publisher is the interface for publishing heartbeats.
// This is typically implemented by an MQTT client.
type Publisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// VideoSource reports the asset currently playing. It must not block on
// engine I/O.
type VideoSource interface {
	CurrentVideo() string
}

// VideoSourceFunc adapts a function to VideoSource.
type VideoSourceFunc func() string

// CurrentVideo calls f.
func (f VideoSourceFunc) CurrentVideo() string { return f() }

// Recorder receives every published heartbeat, e.g. for time-series storage.
type Recorder interface {
	RecordHeartbeat(p Payload)
}

// Logger defines the logging interface for the scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Payload is the heartbeat message body.
type Payload struct {
	ControllerID    string `json:"controller_id"`
	FirmwareVersion string `json:"firmware_version"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	CurrentVideo    string `json:"current_video"`
	TimestampMS     int64  `json:"timestamp_ms"`
}

// Config holds configuration for the scheduler.
type Config struct {
	// Topic is the heartbeat topic.
	Topic string

	ControllerID    string
	FirmwareVersion string

	// Interval is how often to publish. Default: 5 seconds.
	Interval time.Duration

	// Publisher is the MQTT client for publishing messages.
	Publisher Publisher

	// Video supplies current_video.
	Video VideoSource

	// Recorder is optional.
	Recorder Recorder

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Started is the process start time used for uptime_seconds.
	// Defaults to the clock's time at construction.
	Started time.Time
}

// Scheduler publishes heartbeats while the publisher is connected.
//
// Thread Safety:
//   - Start and Stop may be called from any goroutine, including transport
//     callbacks.
//   - At most one publish loop runs at a time.
type Scheduler struct {
	cfg Config

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a Scheduler. Call Start to begin publishing.
//
// Parameters:
//   - cfg: Configuration for the scheduler
//
// Returns:
//   - *Scheduler: Ready to start
func New(cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Started.IsZero() {
		cfg.Started = cfg.Clock.Now()
	}
	return &Scheduler{cfg: cfg}
}

// SetLogger sets the logger for this scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// Start publishes a heartbeat immediately and then every interval until
// ctx is cancelled, Stop is called, or a tick finds the publisher
// disconnected. Calling Start while running restarts the schedule.
func (s *Scheduler) Start(ctx context.Context) {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	ticker := s.cfg.Clock.NewTicker(s.cfg.Interval)

	s.cancel = cancel
	s.done = done

	go s.loop(loopCtx, ticker, done)
}

// Stop halts the publish loop and waits for it to exit. Safe to call
// multiple times and before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether a publish loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

func (s *Scheduler) loop(ctx context.Context, ticker *clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	if !s.beat() {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.beat() {
				return
			}
		}
	}
}

// beat publishes one heartbeat. It returns false once the publisher is
// disconnected, ending the loop; the next connect restarts it.
func (s *Scheduler) beat() bool {
	if !s.cfg.Publisher.IsConnected() {
		s.logDebug("heartbeat stopped: transport disconnected")
		return false
	}

	p := s.payload()
	if err := s.publish(p); err != nil {
		s.logWarn("heartbeat publish failed", err)
		return true
	}

	if s.cfg.Recorder != nil {
		s.cfg.Recorder.RecordHeartbeat(p)
	}
	return true
}

func (s *Scheduler) payload() Payload {
	now := s.cfg.Clock.Now()

	var video string
	if s.cfg.Video != nil {
		video = s.cfg.Video.CurrentVideo()
	}

	return Payload{
		ControllerID:    s.cfg.ControllerID,
		FirmwareVersion: s.cfg.FirmwareVersion,
		UptimeSeconds:   int64(now.Sub(s.cfg.Started) / time.Second),
		CurrentVideo:    video,
		TimestampMS:     now.UnixMilli(),
	}
}

func (s *Scheduler) publish(p Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding heartbeat: %w", err)
	}
	return s.cfg.Publisher.Publish(s.cfg.Topic, data, heartbeatQoS, false)
}

func (s *Scheduler) logDebug(msg string) {
	s.loggerMu.RLock()
	logger := s.logger
	s.loggerMu.RUnlock()
	if logger != nil {
		logger.Debug(msg, "topic", s.cfg.Topic)
	}
}

func (s *Scheduler) logWarn(msg string, err error) {
	s.loggerMu.RLock()
	logger := s.logger
	s.loggerMu.RUnlock()
	if logger != nil {
		logger.Warn(msg, "topic", s.cfg.Topic, "error", err)
	}
}
