package registration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nerrad567/sentient-media-agent/internal/infrastructure/mqtt"
	"github.com/nerrad567/sentient-media-agent/internal/manifest"
)

const (
	// defaultQoS is used for registration records and subscriptions.
	defaultQoS byte = 1

	// defaultQueueSize bounds the inbound command queue.
	defaultQueueSize = 32
)

var (
	// ErrRegistrationFailed is returned when the controller record could
	// not be published. No device record is attempted.
	ErrRegistrationFailed = errors.New("registration: controller record not published")

	// ErrRegistrationPartialFailure is returned when one or more device
	// records could not be published. Every device is still attempted.
	ErrRegistrationPartialFailure = errors.New("registration: device records not published")
)

// Transport is the subset of the MQTT client the session uses.
type Transport interface {
	// Publish sends payload and returns once delivery is confirmed.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers handler for an exact topic.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Dispatcher executes a routed command. Dispatch is called from the single
// inbound worker goroutine, one command at a time.
type Dispatcher interface {
	Dispatch(ctx context.Context, route Route) error
}

// Logger defines the logging interface for the session.
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

// Options configures a Session.
type Options struct {
	// Topics supplies the registration and legacy topics.
	Topics mqtt.Topics

	// Info is copied into the controller record.
	Info RecordInfo

	// Legacy adds the room-wide game/start and game/reset aliases.
	Legacy bool

	// QueueSize bounds the inbound queue (default 32).
	QueueSize int

	Logger Logger
}

// Result describes one registration attempt.
type Result struct {
	// Attempted is the number of device records tried.
	Attempted int

	// Published and Failed list device IDs in manifest order.
	Published []string
	Failed    []string
}

// inbound is one received message awaiting dispatch.
type inbound struct {
	topic string
	route Route
}

// Session announces a manifest to the registry and routes commands
// received for it.
//
// Thread Safety:
//   - Register and Subscribe may be called from any goroutine; concurrent
//     Register calls are serialised.
//   - Received messages are queued and handled by Run on one goroutine.
type Session struct {
	manifest  *manifest.Manifest
	transport Transport
	opts      Options
	router    *Router
	logger    Logger

	registerMu sync.Mutex
	queue      chan inbound
}

// NewSession creates a Session for m. The router is built once here.
func NewSession(m *manifest.Manifest, transport Transport, opts Options) *Session {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Session{
		manifest:  m,
		transport: transport,
		opts:      opts,
		router:    NewRouter(m, opts.Topics, opts.Legacy),
		logger:    logger,
		queue:     make(chan inbound, opts.QueueSize),
	}
}

// Router returns the session's command router.
func (s *Session) Router() *Router {
	return s.router
}

// Register publishes the controller record, then one device record per
// device in manifest order. It is re-run on every (re)connect.
//
// Returns:
//   - Result: device outcome counts (empty if phase one failed)
//   - error: ErrRegistrationFailed if the controller record failed,
//     ErrRegistrationPartialFailure if any device record failed
func (s *Session) Register(ctx context.Context) (Result, error) {
	s.registerMu.Lock()
	defer s.registerMu.Unlock()

	var result Result
	id := s.manifest.Identity

	record := BuildControllerRecord(s.manifest, s.opts.Info)
	if err := s.publish(s.opts.Topics.RegisterController(), record); err != nil {
		s.logger.Error("controller registration failed",
			"controller_id", id.ControllerID,
			"error", err,
		)
		return result, fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}
	s.logger.Info("controller registration published",
		"controller_id", id.ControllerID,
		"device_count", record.DeviceCount,
	)

	for i, d := range s.manifest.Devices {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		result.Attempted++
		if err := s.publish(s.opts.Topics.RegisterDevice(), BuildDeviceRecord(s.manifest, i)); err != nil {
			s.logger.Error("device registration failed",
				"device_id", d.ID,
				"device_index", i,
				"error", err,
			)
			result.Failed = append(result.Failed, d.ID)
			continue
		}
		result.Published = append(result.Published, d.ID)
	}

	s.logger.Info("registration complete",
		"controller_id", id.ControllerID,
		"published", len(result.Published),
		"attempted", result.Attempted,
	)

	if len(result.Failed) > 0 {
		return result, fmt.Errorf("%w: %d of %d failed (%s)",
			ErrRegistrationPartialFailure, len(result.Failed), result.Attempted, strings.Join(result.Failed, ", "))
	}
	return result, nil
}

func (s *Session) publish(topic string, record any) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	return s.transport.Publish(topic, payload, defaultQoS, false)
}

// Subscribe subscribes every routed topic. The transport tracks
// subscriptions, so calling it on every connect is safe.
func (s *Session) Subscribe() error {
	var errs []error
	for _, topic := range s.router.Topics() {
		if err := s.transport.Subscribe(topic, defaultQoS, s.handle); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", topic, err))
			continue
		}
		s.logger.Debug("subscribed", "topic", topic)
	}
	return errors.Join(errs...)
}
