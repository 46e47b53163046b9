// Package manifest builds the capability manifest a controller announces
// during registration.
//
// A Builder accumulates devices, per-device commands and telemetry sensors,
// rejecting duplicates and dangling references with ErrInvalidDeclaration.
// Build returns an immutable, deterministic snapshot, so re-registration
// after a reconnect always publishes the same structure.
//
// Every command and sensor topic is derived, never stored:
//
//	<namespace>/<room_id>/<category>/<controller_id>/<device_id>/<name>
//
// Usage:
//
//	b, err := manifest.NewBuilder("paragon", manifest.Identity{
//	    ControllerID: "intro_player",
//	    RoomID:       "clockwork",
//	})
//	if err != nil {
//	    return err
//	}
//	_ = b.DeclareDevice(manifest.Device{ID: "intro_tv", Type: "video_display"})
//	_ = b.DeclareCommand(manifest.Command{DeviceID: "intro_tv", ActionID: "play_intro"})
//	m := b.Build()
//	m.CommandTopic(m.Commands["intro_tv"][0])
//	// paragon/clockwork/commands/intro_player/intro_tv/play_intro
package manifest
