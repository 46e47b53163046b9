package agent

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/sentient-media-agent/internal/hwinfo"
	"github.com/nerrad567/sentient-media-agent/internal/infrastructure/config"
)

var hwinfoFixture = hwinfo.Info{
	Model:      "Raspberry Pi 4 Model B Rev 1.4",
	Revision:   "c03114",
	IPAddress:  "10.0.0.42",
	MACAddress: "dc:a6:32:01:02:03",
}

func TestBuildIdentity(t *testing.T) {
	tests := []struct {
		name         string
		hwType       string
		hwVersion    string
		probe        hwinfo.Info
		wantType     string
		wantVersion  string
		wantIP       string
		wantFriendly string
	}{
		{
			name:        "probed values",
			probe:       hwinfoFixture,
			wantType:    "Raspberry Pi 4 Model B Rev 1.4",
			wantVersion: "c03114",
			wantIP:      "10.0.0.42",
		},
		{
			name:        "configured values win",
			hwType:      "Raspberry Pi 5",
			hwVersion:   "d04170",
			probe:       hwinfoFixture,
			wantType:    "Raspberry Pi 5",
			wantVersion: "d04170",
			wantIP:      "10.0.0.42",
		},
		{
			name:     "nothing probed",
			wantType: "Raspberry Pi",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Controller.HardwareType = tt.hwType
			cfg.Controller.HardwareVersion = tt.hwVersion

			id := buildIdentity(cfg, tt.probe)
			if id.HardwareType != tt.wantType {
				t.Errorf("HardwareType = %q, want %q", id.HardwareType, tt.wantType)
			}
			if id.HardwareVersion != tt.wantVersion {
				t.Errorf("HardwareVersion = %q, want %q", id.HardwareVersion, tt.wantVersion)
			}
			if id.IPAddress != tt.wantIP {
				t.Errorf("IPAddress = %q, want %q", id.IPAddress, tt.wantIP)
			}
			if id.ControllerID != "intro_player" || id.RoomID != "clockwork" {
				t.Errorf("identity = (%s, %s)", id.ControllerID, id.RoomID)
			}
		})
	}
}

func TestBuildManifest(t *testing.T) {
	cfg := testConfig()
	m, err := buildManifest(cfg, buildIdentity(cfg, hwinfoFixture))
	if err != nil {
		t.Fatalf("buildManifest() error = %v", err)
	}

	if m.Namespace != "paragon" {
		t.Errorf("Namespace = %q, want paragon", m.Namespace)
	}
	if len(m.Devices) != 1 || m.Devices[0].Category != "media_playback" {
		t.Fatalf("Devices = %+v", m.Devices)
	}

	cmds := m.DeviceCommands("intro_tv")
	if len(cmds) != 3 {
		t.Fatalf("commands = %d, want 3", len(cmds))
	}
	if cmds[1].ActionID != "play_intro" || cmds[1].DurationMS != 150000 {
		t.Errorf("play_intro = %+v, want duration from the asset", cmds[1])
	}
	if cmds[2].DurationMS != 0 {
		t.Errorf("stop duration = %d, want 0", cmds[2].DurationMS)
	}

	if len(m.Sensors) != 1 {
		t.Fatalf("sensors = %d, want the heartbeat sensor", len(m.Sensors))
	}
	s := m.Sensors[0]
	if s.DeviceID != "intro_player" || s.Name != "status" || s.MessageType != "heartbeat" {
		t.Errorf("heartbeat sensor = %+v", s)
	}
	if s.PublishIntervalMS != 5000 {
		t.Errorf("PublishIntervalMS = %d, want 5000", s.PublishIntervalMS)
	}
}

func TestBuildManifest_ConfiguredHeartbeatSensor(t *testing.T) {
	cfg := testConfig()
	cfg.Sensors = []config.SensorConfig{
		{DeviceID: "intro_player", Name: "status", MessageType: "heartbeat", PublishIntervalMS: 10000},
		{DeviceID: "intro_tv", Name: "state", MessageType: "state"},
	}

	m, err := buildManifest(cfg, buildIdentity(cfg, hwinfo.Info{}))
	if err != nil {
		t.Fatalf("buildManifest() error = %v", err)
	}
	if len(m.Sensors) != 2 {
		t.Fatalf("sensors = %d, want 2 (no duplicate heartbeat)", len(m.Sensors))
	}
	if m.Sensors[0].PublishIntervalMS != 10000 {
		t.Errorf("configured heartbeat interval = %d, want 10000", m.Sensors[0].PublishIntervalMS)
	}
}

func TestBuildCatalog(t *testing.T) {
	cfg := testConfig()
	catalog, err := buildCatalog(cfg)
	if err != nil {
		t.Fatalf("buildCatalog() error = %v", err)
	}
	if catalog.Default().Name != "loop" {
		t.Errorf("Default() = %q, want loop", catalog.Default().Name)
	}
	intro, ok := catalog.Lookup("intro")
	if !ok || intro.Duration != 150*time.Second || intro.Loop {
		t.Errorf("Lookup(intro) = %+v, %v", intro, ok)
	}

	cfg.Assets.Default = "intro"
	if _, err := buildCatalog(cfg); err == nil {
		t.Error("buildCatalog() with a one-shot default should fail")
	}
}

func TestMissingAssets(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "loop.mp4")
	if err := os.WriteFile(present, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg := testConfig()
	cfg.Assets.Catalog[0].Path = present
	cfg.Assets.Catalog[1].Path = filepath.Join(dir, "intro.mp4")

	missing := missingAssets(cfg)
	if len(missing) != 1 || missing[0].Name != "intro" {
		t.Errorf("missingAssets() = %+v, want [intro]", missing)
	}
}
