// Package logging provides structured logging for the media agent.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the agent's components.
//
// # Features
//
//   - JSON output for fleet log shipping (machine-parsable)
//   - Text output for bench debugging (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Optional file output mirrored to stdout
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file:
//	    path: "/var/log/media-agent/agent.log"
//
// # Usage
//
//	logger, err := logging.New(cfg.Logging, "1.0.0")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//	logger.Info("asset selected", "asset", "intro")
//
// Never log broker passwords or InfluxDB tokens.
package logging
