package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the media agent.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	Hardware   HardwareConfig   `yaml:"hardware"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Player     PlayerConfig     `yaml:"player"`
	Assets     AssetsConfig     `yaml:"assets"`
	Devices    []DeviceConfig   `yaml:"devices"`
	Sensors    []SensorConfig   `yaml:"sensors"`
	Legacy     LegacyConfig     `yaml:"legacy"`
	Heartbeat  HeartbeatConfig  `yaml:"heartbeat"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ControllerConfig contains the identity announced during registration.
type ControllerConfig struct {
	ID               string `yaml:"id"`
	RoomID           string `yaml:"room_id"`
	Type             string `yaml:"type"`
	FriendlyName     string `yaml:"friendly_name"`
	Description      string `yaml:"description"`
	PhysicalLocation string `yaml:"physical_location"`
	FirmwareVersion  string `yaml:"firmware_version"`

	// HardwareType and HardwareVersion override the probed values when set.
	HardwareType    string `yaml:"hardware_type"`
	HardwareVersion string `yaml:"hardware_version"`
}

// HardwareConfig controls hardware identity probing.
type HardwareConfig struct {
	// Probe enables reading model, revision, IP and MAC from the host.
	Probe bool `yaml:"probe"`

	// Interface is the network interface whose MAC address is reported.
	// Default: "eth0"
	Interface string `yaml:"interface"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	// Brokers is the ordered candidate list. The first reachable broker wins.
	Brokers          []MQTTBrokerConfig  `yaml:"brokers"`
	Auth             MQTTAuthConfig      `yaml:"auth"`
	QoS              int                 `yaml:"qos"`
	KeepAlive        int                 `yaml:"keep_alive"`
	ClientIDPrefix   string              `yaml:"client_id_prefix"`
	Namespace        string              `yaml:"namespace"`
	RegistrationRoot string              `yaml:"registration_root"`
	Reconnect        MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`
}

// Address returns the broker in host:port form.
func (b MQTTBrokerConfig) Address() string {
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (in seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// PlayerConfig contains settings for the supervised mpv process.
type PlayerConfig struct {
	// Binary is the path to the mpv executable.
	// Default: "mpv"
	Binary string `yaml:"binary"`

	// Args are passed to mpv in addition to the IPC and idle flags.
	Args []string `yaml:"args"`

	// Env entries in KEY=VALUE form, appended to the agent's environment.
	Env []string `yaml:"env"`

	// SocketPath is the JSON IPC socket mpv listens on.
	// Default: "/tmp/mpv-socket"
	SocketPath string `yaml:"socket_path"`

	// ReadyTimeout bounds the wait for the IPC socket after launch.
	// Default: 2s
	ReadyTimeout time.Duration `yaml:"ready_timeout"`

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	// Default: 3s
	GracefulTimeout time.Duration `yaml:"graceful_timeout"`
}

// AssetsConfig contains the media catalog.
type AssetsConfig struct {
	// Default names the looping asset the agent returns to.
	Default string `yaml:"default"`

	// GracePeriod is added to a one-shot asset's duration before reverting.
	// Default: 1s
	GracePeriod time.Duration `yaml:"grace_period"`

	Catalog []AssetConfig `yaml:"catalog"`
}

// AssetConfig describes a single playable file.
type AssetConfig struct {
	Name        string `yaml:"name"`
	Path        string `yaml:"path"`
	DurationMS  int    `yaml:"duration_ms"`
	Loop        bool   `yaml:"loop"`
	Description string `yaml:"description"`
}

// Duration returns the nominal duration as a time.Duration.
func (a AssetConfig) Duration() time.Duration {
	return time.Duration(a.DurationMS) * time.Millisecond
}

// DeviceConfig declares a device exposed by this controller.
type DeviceConfig struct {
	ID           string          `yaml:"id"`
	Type         string          `yaml:"type"`
	FriendlyName string          `yaml:"friendly_name"`
	Category     string          `yaml:"category"`
	Properties   map[string]any  `yaml:"properties"`
	Commands     []CommandConfig `yaml:"commands"`
}

// CommandConfig declares a remotely invokable action on a device.
// Exactly one of Asset or Stop must be set.
type CommandConfig struct {
	ID             string           `yaml:"id"`
	FriendlyName   string           `yaml:"friendly_name"`
	Description    string           `yaml:"description"`
	Parameters     []map[string]any `yaml:"parameters"`
	SafetyCritical bool             `yaml:"safety_critical"`

	// Asset selects a catalog entry when the command fires.
	Asset string `yaml:"asset"`

	// Stop tears the player down and returns to the default asset.
	Stop bool `yaml:"stop"`
}

// SensorConfig declares a telemetry topic published by this controller.
type SensorConfig struct {
	// DeviceID may name the controller itself for controller-level telemetry.
	DeviceID          string            `yaml:"device_id"`
	Name              string            `yaml:"name"`
	MessageType       string            `yaml:"message_type"`
	PublishIntervalMS int               `yaml:"publish_interval_ms"`
	Schema            map[string]string `yaml:"schema"`
}

// LegacyConfig controls the game/start and game/reset alias topics.
// They are subscribed unless explicitly disabled.
type LegacyConfig struct {
	Enabled bool `yaml:"enabled"`

	// StartAsset is selected on game/start. When empty, the first one-shot
	// asset in the catalog is used. game/reset always selects the default.
	StartAsset string `yaml:"start_asset"`
}

// HeartbeatConfig contains liveness publishing settings.
type HeartbeatConfig struct {
	// Interval between heartbeats. Default: 5s
	Interval time.Duration `yaml:"interval"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path string `yaml:"path"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MEDIAAGENT_SECTION_KEY
// For example: MEDIAAGENT_MQTT_HOST, MEDIAAGENT_CONTROLLER_ID
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Controller: ControllerConfig{
			Type:            "video_manager",
			FirmwareVersion: "dev",
		},
		Hardware: HardwareConfig{
			Probe:     true,
			Interface: "eth0",
		},
		MQTT: MQTTConfig{
			QoS:              1,
			KeepAlive:        60,
			ClientIDPrefix:   "media-agent",
			Namespace:        "paragon",
			RegistrationRoot: "sentient",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Player: PlayerConfig{
			Binary:          "mpv",
			SocketPath:      "/tmp/mpv-socket",
			ReadyTimeout:    2 * time.Second,
			GracefulTimeout: 3 * time.Second,
		},
		Assets: AssetsConfig{
			GracePeriod: time.Second,
		},
		Legacy: LegacyConfig{
			Enabled: true,
		},
		Heartbeat: HeartbeatConfig{
			Interval: 5 * time.Second,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MEDIAAGENT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Controller
	if v := os.Getenv("MEDIAAGENT_CONTROLLER_ID"); v != "" {
		cfg.Controller.ID = v
	}
	if v := os.Getenv("MEDIAAGENT_ROOM_ID"); v != "" {
		cfg.Controller.RoomID = v
	}

	// MQTT. A host override replaces the candidate list with a single broker.
	if v := os.Getenv("MEDIAAGENT_MQTT_HOST"); v != "" {
		port := 1883
		if len(cfg.MQTT.Brokers) > 0 && cfg.MQTT.Brokers[0].Port != 0 {
			port = cfg.MQTT.Brokers[0].Port
		}
		cfg.MQTT.Brokers = []MQTTBrokerConfig{{Host: v, Port: port}}
	}
	if v := os.Getenv("MEDIAAGENT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MEDIAAGENT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Logging
	if v := os.Getenv("MEDIAAGENT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// InfluxDB
	if v := os.Getenv("MEDIAAGENT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Identity is embedded verbatim in every topic.
	errs = append(errs, validateTopicSegment("controller.id", c.Controller.ID)...)
	errs = append(errs, validateTopicSegment("controller.room_id", c.Controller.RoomID)...)

	// MQTT validation
	if len(c.MQTT.Brokers) == 0 {
		errs = append(errs, "mqtt.brokers must list at least one broker")
	}
	for i, b := range c.MQTT.Brokers {
		if b.Host == "" {
			errs = append(errs, fmt.Sprintf("mqtt.brokers[%d].host is required", i))
		}
		if b.Port < 1 || b.Port > 65535 {
			errs = append(errs, fmt.Sprintf("mqtt.brokers[%d].port must be between 1 and 65535", i))
		}
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	errs = append(errs, validateTopicSegment("mqtt.namespace", c.MQTT.Namespace)...)
	errs = append(errs, validateTopicSegment("mqtt.registration_root", c.MQTT.RegistrationRoot)...)

	// Player validation
	if c.Player.Binary == "" {
		errs = append(errs, "player.binary is required")
	}
	if c.Player.SocketPath == "" {
		errs = append(errs, "player.socket_path is required")
	}
	if c.Player.ReadyTimeout <= 0 {
		errs = append(errs, "player.ready_timeout must be positive")
	}

	errs = append(errs, c.validateAssets()...)
	errs = append(errs, c.validateDevices()...)

	if c.Legacy.Enabled && c.Legacy.StartAsset != "" {
		if _, ok := c.Asset(c.Legacy.StartAsset); !ok {
			errs = append(errs, fmt.Sprintf("legacy.start_asset %q is not in the asset catalog", c.Legacy.StartAsset))
		}
	}

	if c.Heartbeat.Interval <= 0 {
		errs = append(errs, "heartbeat.interval must be positive")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if strings.EqualFold(c.Logging.Output, "file") && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required when logging.output is file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateAssets() []string {
	var errs []string

	seen := make(map[string]bool, len(c.Assets.Catalog))
	for i, a := range c.Assets.Catalog {
		switch {
		case a.Name == "":
			errs = append(errs, fmt.Sprintf("assets.catalog[%d].name is required", i))
		case seen[a.Name]:
			errs = append(errs, fmt.Sprintf("assets.catalog[%d].name %q is duplicated", i, a.Name))
		}
		seen[a.Name] = true

		if a.Path == "" {
			errs = append(errs, fmt.Sprintf("assets.catalog[%d].path is required", i))
		}
		if !a.Loop && a.DurationMS <= 0 {
			errs = append(errs, fmt.Sprintf("assets.catalog[%d].duration_ms must be positive for a non-looping asset", i))
		}
	}

	def, ok := c.Asset(c.Assets.Default)
	switch {
	case !ok:
		errs = append(errs, fmt.Sprintf("assets.default %q is not in the asset catalog", c.Assets.Default))
	case !def.Loop:
		errs = append(errs, "assets.default must be a looping asset")
	}

	if c.Assets.GracePeriod < 0 {
		errs = append(errs, "assets.grace_period must not be negative")
	}

	return errs
}

func (c *Config) validateDevices() []string {
	var errs []string

	for i, d := range c.Devices {
		for j, cmd := range d.Commands {
			field := fmt.Sprintf("devices[%d].commands[%d]", i, j)
			switch {
			case cmd.Stop && cmd.Asset != "":
				errs = append(errs, field+" must set either asset or stop, not both")
			case !cmd.Stop && cmd.Asset == "":
				errs = append(errs, field+" must set asset or stop")
			case cmd.Asset != "":
				if _, ok := c.Asset(cmd.Asset); !ok {
					errs = append(errs, fmt.Sprintf("%s.asset %q is not in the asset catalog", field, cmd.Asset))
				}
			}
		}
	}

	return errs
}

// validateTopicSegment rejects values that would corrupt a derived MQTT topic.
func validateTopicSegment(field, v string) []string {
	if v == "" {
		return []string{field + " is required"}
	}
	if strings.ContainsAny(v, "/+#") {
		return []string{field + " must not contain '/', '+' or '#'"}
	}
	return nil
}

// Asset looks up a catalog entry by name.
func (c *Config) Asset(name string) (AssetConfig, bool) {
	for _, a := range c.Assets.Catalog {
		if a.Name == name {
			return a, true
		}
	}
	return AssetConfig{}, false
}

// LegacyStartAsset returns the asset game/start selects: legacy.start_asset,
// else the first one-shot asset in catalog order, else the default asset.
func (c *Config) LegacyStartAsset() string {
	if c.Legacy.StartAsset != "" {
		return c.Legacy.StartAsset
	}
	for _, a := range c.Assets.Catalog {
		if !a.Loop {
			return a.Name
		}
	}
	return c.Assets.Default
}

// GetInitialDelay returns the first broker re-scan delay as a Duration.
func (r MQTTReconnectConfig) GetInitialDelay() time.Duration {
	return time.Duration(r.InitialDelay) * time.Second
}

// GetMaxDelay returns the broker backoff ceiling as a Duration. It bounds
// both the candidate re-scan and paho's own reconnect interval.
func (r MQTTReconnectConfig) GetMaxDelay() time.Duration {
	return time.Duration(r.MaxDelay) * time.Second
}
