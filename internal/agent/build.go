package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/sentient-media-agent/internal/clock"
	"github.com/nerrad567/sentient-media-agent/internal/hwinfo"
	"github.com/nerrad567/sentient-media-agent/internal/infrastructure/config"
	"github.com/nerrad567/sentient-media-agent/internal/infrastructure/influxdb"
	"github.com/nerrad567/sentient-media-agent/internal/infrastructure/logging"
	"github.com/nerrad567/sentient-media-agent/internal/infrastructure/mqtt"
	"github.com/nerrad567/sentient-media-agent/internal/playback"
	"github.com/nerrad567/sentient-media-agent/internal/player"
)

// Build wires the production collaborators for cfg: host probe, optional
// InfluxDB, the mpv engine, the playback coordinator and the MQTT client.
// Nothing is started; call Run.
//
// Parameters:
//   - ctx: Bounds the InfluxDB connection check
//   - cfg: Validated configuration
//   - log: Structured logger
//   - started: Process start time, reported as heartbeat uptime
//
// Returns:
//   - *Agent: Ready to Run
//   - error: If the manifest or catalog is invalid
func Build(ctx context.Context, cfg *config.Config, log *logging.Logger, started time.Time) (*Agent, error) {
	var hw hwinfo.Info
	if cfg.Hardware.Probe {
		hw = hwinfo.Probe(cfg.Hardware.Interface)
		log.Info("hardware probed",
			"model", hw.Model,
			"revision", hw.Revision,
			"ip_address", hw.IPAddress,
			"mac_address", hw.MACAddress,
		)
	}
	identity := buildIdentity(cfg, hw)

	catalog, err := buildCatalog(cfg)
	if err != nil {
		return nil, err
	}

	telemetry := connectTelemetry(ctx, cfg, log)

	engine := player.New(player.Config{
		Binary:          cfg.Player.Binary,
		Args:            cfg.Player.Args,
		Env:             cfg.Player.Env,
		SocketPath:      cfg.Player.SocketPath,
		ReadyTimeout:    cfg.Player.ReadyTimeout,
		GracefulTimeout: cfg.Player.GracefulTimeout,
	})
	engine.SetLogger(log.With("component", "player"))

	coordinator := playback.New(engine, catalog, playback.Options{
		GracePeriod:  cfg.Assets.GracePeriod,
		Clock:        clock.Real(),
		Logger:       log.With("component", "playback"),
		OnTransition: RecordTransition(telemetry, log),
	})

	transport := mqtt.New(cfg.MQTT, Topics(cfg))
	transport.SetLogger(log.With("component", "mqtt"))

	a, err := New(cfg, Deps{
		Transport: transport,
		Playback:  coordinator,
		Telemetry: telemetry,
		Identity:  identity,
		Started:   started,
		Logger:    log,
	})
	if err != nil {
		//nolint:errcheck // coordinator has not started the player yet
		coordinator.Close(ctx)
		//nolint:errcheck // best-effort cleanup on a failed build
		telemetry.Close()
		return nil, err
	}
	return a, nil
}

// connectTelemetry connects to InfluxDB when enabled. An unreachable
// server is logged and telemetry is skipped; it never blocks playback.
func connectTelemetry(ctx context.Context, cfg *config.Config, log *logging.Logger) Telemetry {
	client, err := influxdb.Connect(ctx, cfg.InfluxDB, map[string]string{
		"controller_id": cfg.Controller.ID,
		"room_id":       cfg.Controller.RoomID,
	})
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
		return noopTelemetry{}
	case err != nil:
		log.Warn("InfluxDB unavailable, telemetry disabled", "error", err)
		return noopTelemetry{}
	}

	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client
}

// Describe returns a one-line summary of the agent for startup logs.
func (a *Agent) Describe() string {
	id := a.manifest.Identity
	return fmt.Sprintf("%s in %s (%d devices, %d commands)",
		id.ControllerID, id.RoomID, len(a.manifest.Devices), len(a.manifest.AllCommands()))
}
