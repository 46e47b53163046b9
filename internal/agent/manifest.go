package agent

import (
	"fmt"
	"os"

	"github.com/nerrad567/sentient-media-agent/internal/hwinfo"
	"github.com/nerrad567/sentient-media-agent/internal/infrastructure/config"
	"github.com/nerrad567/sentient-media-agent/internal/manifest"
	"github.com/nerrad567/sentient-media-agent/internal/playback"
)

// Fallbacks for identity fields that are neither configured nor probed.
const (
	fallbackHardwareType = "Raspberry Pi"

	heartbeatSensorName = "status"
	heartbeatMessage    = "heartbeat"
)

// heartbeatSchema describes the heartbeat payload to the registry.
var heartbeatSchema = map[string]string{
	"controller_id":    "string",
	"firmware_version": "string",
	"uptime_seconds":   "number",
	"current_video":    "string",
	"timestamp_ms":     "number",
}

// buildIdentity merges configured identity with probed host values.
// Configured hardware fields win over probed ones.
func buildIdentity(cfg *config.Config, hw hwinfo.Info) manifest.Identity {
	c := cfg.Controller

	id := manifest.Identity{
		ControllerID:     c.ID,
		RoomID:           c.RoomID,
		ControllerType:   c.Type,
		FriendlyName:     c.FriendlyName,
		Description:      c.Description,
		PhysicalLocation: c.PhysicalLocation,
		FirmwareVersion:  c.FirmwareVersion,
		HardwareType:     firstNonEmpty(c.HardwareType, hw.Model, fallbackHardwareType),
		HardwareVersion:  firstNonEmpty(c.HardwareVersion, hw.Revision),
		IPAddress:        hw.IPAddress,
		MACAddress:       hw.MACAddress,
	}
	return id
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// buildManifest declares every configured device and command, the
// controller heartbeat sensor, and any configured sensors.
//
// Returns:
//   - *manifest.Manifest: Immutable capability manifest
//   - error: manifest.ErrInvalidDeclaration on a bad declaration
func buildManifest(cfg *config.Config, identity manifest.Identity) (*manifest.Manifest, error) {
	b, err := manifest.NewBuilder(cfg.MQTT.Namespace, identity)
	if err != nil {
		return nil, err
	}

	for _, d := range cfg.Devices {
		if err := b.DeclareDevice(manifest.Device{
			ID:           d.ID,
			Type:         d.Type,
			FriendlyName: d.FriendlyName,
			Category:     d.Category,
			Properties:   d.Properties,
		}); err != nil {
			return nil, err
		}

		for _, c := range d.Commands {
			if err := b.DeclareCommand(manifest.Command{
				DeviceID:       d.ID,
				ActionID:       c.ID,
				FriendlyName:   c.FriendlyName,
				Description:    c.Description,
				Parameters:     c.Parameters,
				DurationMS:     commandDuration(cfg, c),
				SafetyCritical: c.SafetyCritical,
			}); err != nil {
				return nil, err
			}
		}
	}

	heartbeat := manifest.Sensor{
		DeviceID:          identity.ControllerID,
		Name:              heartbeatSensorName,
		MessageType:       heartbeatMessage,
		PublishIntervalMS: int(cfg.Heartbeat.Interval.Milliseconds()),
		Schema:            heartbeatSchema,
	}
	declared := false
	for _, s := range cfg.Sensors {
		if s.DeviceID == heartbeat.DeviceID && s.Name == heartbeat.Name {
			declared = true
		}
		if err := b.DeclareSensor(manifest.Sensor{
			DeviceID:          s.DeviceID,
			Name:              s.Name,
			MessageType:       s.MessageType,
			PublishIntervalMS: s.PublishIntervalMS,
			Schema:            s.Schema,
		}); err != nil {
			return nil, err
		}
	}
	if !declared {
		if err := b.DeclareSensor(heartbeat); err != nil {
			return nil, err
		}
	}

	return b.Build(), nil
}

// commandDuration advertises the bound asset's nominal duration.
func commandDuration(cfg *config.Config, c config.CommandConfig) int {
	if c.Asset == "" {
		return 0
	}
	a, ok := cfg.Asset(c.Asset)
	if !ok {
		return 0
	}
	return a.DurationMS
}

// buildCatalog converts the configured assets into a playback catalog.
func buildCatalog(cfg *config.Config) (*playback.Catalog, error) {
	assets := make([]playback.Asset, 0, len(cfg.Assets.Catalog))
	for _, a := range cfg.Assets.Catalog {
		assets = append(assets, playback.Asset{
			Name:     a.Name,
			Path:     a.Path,
			Duration: a.Duration(),
			Loop:     a.Loop,
		})
	}

	catalog, err := playback.NewCatalog(assets, cfg.Assets.Default)
	if err != nil {
		return nil, fmt.Errorf("building asset catalog: %w", err)
	}
	return catalog, nil
}

// missingAssets returns the catalog entries whose file cannot be found.
// A missing file is not fatal; the player reports it when selected.
func missingAssets(cfg *config.Config) []config.AssetConfig {
	var missing []config.AssetConfig
	for _, a := range cfg.Assets.Catalog {
		if _, err := os.Stat(a.Path); err != nil {
			missing = append(missing, a)
		}
	}
	return missing
}
