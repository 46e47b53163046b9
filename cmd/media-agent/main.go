// Sentient Media Agent - video playback controller for escape rooms
//
// This is the main entry point for the media agent. The agent:
//   - Registers its controller and devices with the Sentient registry over MQTT
//   - Plays a looping default video and switches to one-shot assets on command
//   - Publishes a periodic heartbeat while connected
//   - Keeps playing locally when no broker is reachable
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nerrad567/sentient-media-agent/internal/agent"
	"github.com/nerrad567/sentient-media-agent/internal/infrastructure/config"
	"github.com/nerrad567/sentient-media-agent/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default file locations.
const (
	defaultConfigPath = "configs/config.yaml"
	defaultEnvFile    = ".env"
)

// options are the parsed command-line flags.
type options struct {
	configPath  string
	envFile     string
	showVersion bool
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if opts.showVersion {
		fmt.Printf("media-agent %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses args. The config path defaults to MEDIAAGENT_CONFIG,
// then configs/config.yaml.
func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options

	flagSet := pflag.NewFlagSet("media-agent", pflag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML configuration file (env MEDIAAGENT_CONFIG)")
	flagSet.StringVar(&opts.envFile, "env-file", defaultEnvFile, "dotenv file loaded before configuration; missing files are ignored")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version and exit")

	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return opts, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - opts: Parsed command-line options
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, opts options) error {
	started := time.Now()

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting media agent",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	if err := loadDotEnv(opts.envFile); err != nil {
		return fmt.Errorf("loading env file: %w", err)
	}

	configPath := getConfigPath(opts.configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log, err = logging.New(cfg.Logging, version)
	if err != nil {
		return fmt.Errorf("initialising logger: %w", err)
	}
	defer log.Close() //nolint:errcheck // nothing useful to do on exit

	a, err := agent.Build(ctx, cfg, log, started)
	if err != nil {
		return fmt.Errorf("building agent: %w", err)
	}
	log.Info("agent ready", "controller", a.Describe())

	if err := a.Run(ctx); err != nil {
		return fmt.Errorf("running agent: %w", err)
	}

	log.Info("media agent stopped")
	return nil
}

// getConfigPath returns the configuration file path: the flag value, then
// the MEDIAAGENT_CONFIG environment variable, then the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("MEDIAAGENT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
// Variables already set in the environment take precedence.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
