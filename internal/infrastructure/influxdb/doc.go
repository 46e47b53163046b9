// Package influxdb provides the media agent's optional telemetry sink.
//
// It wraps the official influxdb-client-go v2 library. When enabled, the
// agent records every heartbeat, every playback transition and the outcome
// of each registration attempt, tagged with controller_id and room_id.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, map[string]string{
//	    "controller_id": "media_tv",
//	    "room_id":       "clockwork",
//	})
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
// # Error Handling
//
// Write operations are non-blocking; batch errors are reported via the
// SetOnError callback. Connection errors are returned directly and never
// stop playback.
package influxdb
