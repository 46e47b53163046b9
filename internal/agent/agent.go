package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/sentient-media-agent/internal/clock"
	"github.com/nerrad567/sentient-media-agent/internal/heartbeat"
	"github.com/nerrad567/sentient-media-agent/internal/infrastructure/config"
	"github.com/nerrad567/sentient-media-agent/internal/infrastructure/influxdb"
	"github.com/nerrad567/sentient-media-agent/internal/infrastructure/mqtt"
	"github.com/nerrad567/sentient-media-agent/internal/manifest"
	"github.com/nerrad567/sentient-media-agent/internal/playback"
	"github.com/nerrad567/sentient-media-agent/internal/registration"
)

// shutdownTimeout bounds the player teardown during Shutdown.
const shutdownTimeout = 10 * time.Second

// Transport is the MQTT session the agent drives.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
	ConnectWithRetry(ctx context.Context) error
	SetOnConnect(callback func())
	SetOnDisconnect(callback func(err error))
	ClientID() string
	Broker() string
	Close() error
}

// Playback is the coordinator the agent routes commands to.
type Playback interface {
	Start(ctx context.Context) error
	Select(ctx context.Context, name string) error
	Stop(ctx context.Context) error
	Snapshot() playback.Snapshot
	DefaultAsset() string
	Close(ctx context.Context) error
}

// Telemetry receives time-series records. *influxdb.Client satisfies it,
// including when nil.
type Telemetry interface {
	WriteHeartbeat(p influxdb.HeartbeatPoint)
	WritePlaybackTransition(p influxdb.TransitionPoint)
	WriteRegistration(p influxdb.RegistrationPoint)
	Close() error
}

// Logger defines the logging interface for the agent.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Deps are the collaborators an Agent supervises.
type Deps struct {
	Transport Transport
	Playback  Playback

	// Telemetry is optional.
	Telemetry Telemetry

	// Identity is the merged configured and probed controller identity.
	Identity manifest.Identity

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Started is when the process started; heartbeat uptime counts from it.
	// Defaults to the clock's time in New.
	Started time.Time

	Logger Logger
}

// Agent wires the registration session, command dispatch, playback and
// heartbeat together and owns their lifecycle.
//
// Thread Safety:
//   - Run is called once. Shutdown may be called from any goroutine and
//     more than once.
//   - Connect events are handled on a single goroutine, so registration,
//     subscription and heartbeat restarts never overlap.
type Agent struct {
	cfg       *config.Config
	manifest  *manifest.Manifest
	transport Transport
	playback  Playback
	telemetry Telemetry
	session   *registration.Session
	heartbeat *heartbeat.Scheduler
	actions   map[commandKey]action
	clock     clock.Clock
	logger    Logger

	// connects carries connect events from the transport callback to the
	// connect worker. A pending event absorbs later ones.
	connects chan struct{}

	shutdownOnce sync.Once
	shutdownErr  error
}

// New builds an Agent from configuration and its collaborators. The
// manifest is built here, so a bad declaration fails before anything runs.
//
// Parameters:
//   - cfg: Validated configuration
//   - deps: Transport, playback and optional telemetry
//
// Returns:
//   - *Agent: Ready to Run
//   - error: manifest.ErrInvalidDeclaration on a bad device or command
func New(cfg *config.Config, deps Deps) (*Agent, error) {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	if deps.Telemetry == nil {
		deps.Telemetry = noopTelemetry{}
	}

	m, err := buildManifest(cfg, deps.Identity)
	if err != nil {
		return nil, fmt.Errorf("building manifest: %w", err)
	}

	topics := Topics(cfg)

	a := &Agent{
		cfg:       cfg,
		manifest:  m,
		transport: deps.Transport,
		playback:  deps.Playback,
		telemetry: deps.Telemetry,
		actions:   bindActions(cfg.Devices),
		clock:     deps.Clock,
		logger:    deps.Logger,
		connects:  make(chan struct{}, 1),
	}

	a.session = registration.NewSession(m, deps.Transport, registration.Options{
		Topics: topics,
		Info: registration.RecordInfo{
			HeartbeatIntervalMS: cfg.Heartbeat.Interval.Milliseconds(),
			ClientID:            deps.Transport.ClientID(),
			BaseTopic:           topics.BaseTopic(),
		},
		Legacy: cfg.Legacy.Enabled,
		Logger: deps.Logger,
	})

	a.heartbeat = heartbeat.New(heartbeat.Config{
		Topic:           topics.Heartbeat(),
		ControllerID:    m.Identity.ControllerID,
		FirmwareVersion: m.Identity.FirmwareVersion,
		Interval:        cfg.Heartbeat.Interval,
		Publisher:       deps.Transport,
		Video:           heartbeat.VideoSourceFunc(a.currentVideo),
		Recorder:        heartbeatRecorder{a.telemetry},
		Clock:           deps.Clock,
		Started:         deps.Started,
	})
	a.heartbeat.SetLogger(deps.Logger)

	return a, nil
}

// Topics returns the fixed topics for the configured controller.
func Topics(cfg *config.Config) mqtt.Topics {
	return mqtt.Topics{
		Namespace:    cfg.MQTT.Namespace,
		Root:         cfg.MQTT.RegistrationRoot,
		RoomID:       cfg.Controller.RoomID,
		ControllerID: cfg.Controller.ID,
	}
}

// Manifest returns the agent's capability manifest.
func (a *Agent) Manifest() *manifest.Manifest {
	return a.manifest
}

// Run starts local playback, connects to the broker in the background and
// serves commands until ctx is cancelled. Playback keeps running with no
// broker reachable. Shutdown runs before Run returns.
//
// Returns:
//   - error: nil on clean shutdown
func (a *Agent) Run(ctx context.Context) error {
	for _, asset := range missingAssets(a.cfg) {
		a.logger.Warn("asset file not found", "asset", asset.Name, "path", asset.Path)
	}

	if err := a.playback.Start(ctx); err != nil {
		a.logger.Error("player failed to start; next command will retry", "error", err)
	} else {
		a.logger.Info("playback started", "asset", a.playback.DefaultAsset())
	}

	a.transport.SetOnConnect(a.onConnect)
	a.transport.SetOnDisconnect(a.onDisconnect)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.transport.ConnectWithRetry(gctx)
	})
	g.Go(func() error {
		return a.session.Run(gctx, a)
	})
	g.Go(func() error {
		return a.connectLoop(gctx)
	})

	err := g.Wait()

	if shutdownErr := a.Shutdown(context.Background()); shutdownErr != nil {
		a.logger.Error("shutdown error", "error", shutdownErr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// onConnect runs on the transport's callback goroutine.
func (a *Agent) onConnect() {
	select {
	case a.connects <- struct{}{}:
	default:
	}
}

func (a *Agent) onDisconnect(err error) {
	a.logger.Warn("MQTT connection lost", "error", err)
	a.heartbeat.Stop()
}

// connectLoop re-announces the controller after every (re)connect.
func (a *Agent) connectLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.connects:
			a.handleConnect(ctx)
		}
	}
}

// handleConnect registers, subscribes and restarts the heartbeat. Failures
// are logged; the next reconnect tries again.
func (a *Agent) handleConnect(ctx context.Context) {
	a.logger.Info("MQTT connected, registering",
		"controller_id", a.manifest.Identity.ControllerID,
		"broker", a.transport.Broker(),
	)

	result, err := a.session.Register(ctx)
	a.telemetry.WriteRegistration(influxdb.RegistrationPoint{
		Attempted: result.Attempted,
		Published: len(result.Published),
		Failed:    len(result.Failed),
		OK:        err == nil,
		At:        a.clock.Now(),
	})
	if err != nil {
		a.logger.Error("registration incomplete", "error", err)
	}

	if err := a.session.Subscribe(); err != nil {
		a.logger.Error("subscribing command topics", "error", err)
	}

	a.heartbeat.Start(ctx)
}

// Shutdown stops the heartbeat, closes the coordinator (cancelling timers
// and stopping the player), closes the transport (offline notification)
// and flushes telemetry. Safe to call more than once.
func (a *Agent) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		a.logger.Info("shutting down")

		a.heartbeat.Stop()

		closeCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		var errs []error
		if err := a.playback.Close(closeCtx); err != nil {
			errs = append(errs, fmt.Errorf("closing playback: %w", err))
		}
		if err := a.transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing MQTT: %w", err))
		}
		if err := a.telemetry.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing InfluxDB: %w", err))
		}
		a.shutdownErr = errors.Join(errs...)

		a.logger.Info("shutdown complete")
	})
	return a.shutdownErr
}

func (a *Agent) currentVideo() string {
	return a.playback.Snapshot().Asset
}

// RecordTransition writes a playback transition to telemetry. It is
// installed as the coordinator's OnTransition callback.
func RecordTransition(t Telemetry, logger Logger) func(playback.Transition) {
	return func(tr playback.Transition) {
		logger.Info("playback transition",
			"from", string(tr.From),
			"to", string(tr.To),
			"asset", tr.Asset,
			"reason", tr.Reason,
		)
		t.WritePlaybackTransition(influxdb.TransitionPoint{
			From:   string(tr.From),
			To:     string(tr.To),
			Asset:  tr.Asset,
			Reason: tr.Reason,
			At:     tr.At,
		})
	}
}

// heartbeatRecorder forwards heartbeats to telemetry.
type heartbeatRecorder struct {
	telemetry Telemetry
}

func (r heartbeatRecorder) RecordHeartbeat(p heartbeat.Payload) {
	r.telemetry.WriteHeartbeat(influxdb.HeartbeatPoint{
		FirmwareVersion: p.FirmwareVersion,
		UptimeSeconds:   p.UptimeSeconds,
		CurrentVideo:    p.CurrentVideo,
		At:              time.UnixMilli(p.TimestampMS),
	})
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopTelemetry struct{}

func (noopTelemetry) WriteHeartbeat(influxdb.HeartbeatPoint)           {}
func (noopTelemetry) WritePlaybackTransition(influxdb.TransitionPoint) {}
func (noopTelemetry) WriteRegistration(influxdb.RegistrationPoint)     {}
func (noopTelemetry) Close() error                                     { return nil }
