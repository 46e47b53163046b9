// Package heartbeat publishes the controller's periodic liveness record.
//
// Each heartbeat is a JSON object sent at QoS 1, not retained, to
// <namespace>/<room>/status/<controller_id>/heartbeat:
//
//	{"controller_id":"intro_player","firmware_version":"2.1.0",
//	 "uptime_seconds":3600,"current_video":"intro_tv","timestamp_ms":1767225600000}
//
// The scheduler runs on its own goroutine and reads current_video from a
// lock-protected snapshot, so a slow media engine never delays it. It stops
// at the first tick that finds the transport disconnected; the agent
// restarts it from the transport's connect callback.
package heartbeat
