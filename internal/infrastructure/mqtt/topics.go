package mqtt

import "fmt"

// Default topic roots.
const (
	// DefaultNamespace prefixes per-room traffic (commands, status, legacy).
	DefaultNamespace = "paragon"

	// DefaultRegistrationRoot prefixes the registration topics.
	DefaultRegistrationRoot = "sentient"
)

// Topics builds the fixed topics for one controller.
// Using these helpers keeps topic naming consistent across the codebase.
//
// Per-device command and sensor topics are derived by the manifest
// package, since they depend on declared devices.
//
//	topics := mqtt.Topics{Namespace: "paragon", Root: "sentient", RoomID: "clockwork", ControllerID: "media_tv"}
//	topics.Heartbeat()
//	// Returns: "paragon/clockwork/status/media_tv/heartbeat"
type Topics struct {
	Namespace    string
	Root         string
	RoomID       string
	ControllerID string
}

// RegisterController returns the phase-one registration topic.
//
// Example: sentient/system/register/controller
func (t Topics) RegisterController() string {
	return fmt.Sprintf("%s/system/register/controller", t.Root)
}

// RegisterDevice returns the phase-two registration topic.
//
// Example: sentient/system/register/device
func (t Topics) RegisterDevice() string {
	return fmt.Sprintf("%s/system/register/device", t.Root)
}

// Heartbeat returns the liveness topic.
//
// Example: paragon/clockwork/status/media_tv/heartbeat
func (t Topics) Heartbeat() string {
	return t.status("heartbeat")
}

// Connection returns the retained online/offline topic (also the LWT topic).
//
// Example: paragon/clockwork/status/media_tv/connection
func (t Topics) Connection() string {
	return t.status("connection")
}

// LegacyStart returns the room-wide game start alias.
//
// Example: paragon/clockwork/game/start
func (t Topics) LegacyStart() string {
	return fmt.Sprintf("%s/%s/game/start", t.Namespace, t.RoomID)
}

// LegacyReset returns the room-wide game reset alias.
//
// Example: paragon/clockwork/game/reset
func (t Topics) LegacyReset() string {
	return fmt.Sprintf("%s/%s/game/reset", t.Namespace, t.RoomID)
}

// BaseTopic returns the room prefix advertised in the controller record.
//
// Example: paragon/clockwork
func (t Topics) BaseTopic() string {
	return fmt.Sprintf("%s/%s", t.Namespace, t.RoomID)
}

func (t Topics) status(name string) string {
	return fmt.Sprintf("%s/%s/status/%s/%s", t.Namespace, t.RoomID, t.ControllerID, name)
}
