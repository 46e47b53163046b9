// Package agent supervises the media agent: it builds the capability
// manifest from configuration, binds each declared command to a playback
// action, and owns the connect, disconnect and shutdown lifecycle.
//
// Command bindings:
//
//	asset: <name>   select the asset
//	stop: true      stop the player, then select the default asset
//	game/start      select legacy.start_asset
//	game/reset      select the default asset
//
// Startup order: warn about missing asset files, start playback (a player
// that cannot start is logged and retried on the next command), then
// connect to the broker in the background. Playback continues with no
// broker. Every (re)connect registers, subscribes and restarts the
// heartbeat; a disconnect stops the heartbeat.
package agent
