package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementHeartbeat    = "media_heartbeat"
	measurementPlayback     = "media_playback"
	measurementRegistration = "media_registration"
)

// HeartbeatPoint is one liveness sample.
type HeartbeatPoint struct {
	FirmwareVersion string
	UptimeSeconds   int64
	CurrentVideo    string
	At              time.Time
}

// TransitionPoint is one playback state change.
type TransitionPoint struct {
	From   string
	To     string
	Asset  string
	Reason string
	At     time.Time
}

// RegistrationPoint is the outcome of one registration attempt.
type RegistrationPoint struct {
	Attempted int
	Published int
	Failed    int
	OK        bool
	At        time.Time
}

// WriteHeartbeat records a heartbeat. The write is non-blocking; data is
// batched and sent asynchronously.
func (c *Client) WriteHeartbeat(p HeartbeatPoint) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(heartbeatPoint(p))
}

// WritePlaybackTransition records a playback state change.
//
// Example:
//
//	client.WritePlaybackTransition(influxdb.TransitionPoint{
//	    From: "default_loop", To: "playing_one_shot", Asset: "intro_tv", Reason: "select", At: time.Now(),
//	})
func (c *Client) WritePlaybackTransition(p TransitionPoint) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(transitionPoint(p))
}

// WriteRegistration records the outcome of a registration attempt.
func (c *Client) WriteRegistration(p RegistrationPoint) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(registrationPoint(p))
}

func heartbeatPoint(p HeartbeatPoint) *write.Point {
	return write.NewPoint(
		measurementHeartbeat,
		map[string]string{
			"firmware_version": p.FirmwareVersion,
		},
		map[string]interface{}{
			"uptime_seconds": p.UptimeSeconds,
			"current_video":  p.CurrentVideo,
		},
		p.At,
	)
}

func transitionPoint(p TransitionPoint) *write.Point {
	fields := map[string]interface{}{
		"from":   p.From,
		"reason": p.Reason,
	}
	if p.Asset != "" {
		fields["asset"] = p.Asset
	}

	return write.NewPoint(
		measurementPlayback,
		map[string]string{
			"state": p.To,
		},
		fields,
		p.At,
	)
}

func registrationPoint(p RegistrationPoint) *write.Point {
	return write.NewPoint(
		measurementRegistration,
		nil,
		map[string]interface{}{
			"attempted": p.Attempted,
			"published": p.Published,
			"failed":    p.Failed,
			"ok":        p.OK,
		},
		p.At,
	)
}
