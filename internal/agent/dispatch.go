package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/sentient-media-agent/internal/infrastructure/config"
	"github.com/nerrad567/sentient-media-agent/internal/registration"
)

// ErrUnboundCommand is returned for a routed command with no bound action.
var ErrUnboundCommand = errors.New("agent: command has no bound action")

// action is what a declared command does when it fires.
type action struct {
	// asset is selected when set.
	asset string

	// stop tears down the player, then selects the default asset.
	stop bool
}

type commandKey struct {
	deviceID string
	actionID string
}

// bindActions maps every declared command to its action.
func bindActions(devices []config.DeviceConfig) map[commandKey]action {
	actions := make(map[commandKey]action)
	for _, d := range devices {
		for _, c := range d.Commands {
			actions[commandKey{deviceID: d.ID, actionID: c.ID}] = action{asset: c.Asset, stop: c.Stop}
		}
	}
	return actions
}

// Dispatch executes a routed command against the playback coordinator.
// It is called by the registration session's single worker.
func (a *Agent) Dispatch(ctx context.Context, route registration.Route) error {
	switch route.Kind {
	case registration.RouteCommand:
		act, ok := a.actions[commandKey{deviceID: route.DeviceID, actionID: route.ActionID}]
		if !ok {
			return fmt.Errorf("%w: %s/%s", ErrUnboundCommand, route.DeviceID, route.ActionID)
		}
		if act.stop {
			return a.stopAndResume(ctx)
		}
		return a.playback.Select(ctx, act.asset)

	case registration.RouteLegacyStart:
		return a.playback.Select(ctx, a.cfg.LegacyStartAsset())

	case registration.RouteLegacyReset:
		return a.playback.Select(ctx, a.playback.DefaultAsset())

	default:
		return fmt.Errorf("%w: route kind %q", ErrUnboundCommand, route.Kind)
	}
}

// stopAndResume stops the player, then brings the default loop back up.
func (a *Agent) stopAndResume(ctx context.Context) error {
	if err := a.playback.Stop(ctx); err != nil {
		return fmt.Errorf("stopping playback: %w", err)
	}
	if err := a.playback.Select(ctx, a.playback.DefaultAsset()); err != nil {
		return fmt.Errorf("resuming default asset: %w", err)
	}
	return nil
}
