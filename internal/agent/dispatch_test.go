package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/sentient-media-agent/internal/playback"
	"github.com/nerrad567/sentient-media-agent/internal/registration"
)

func TestDispatch(t *testing.T) {
	tests := []struct {
		name      string
		route     registration.Route
		wantCalls []string
		wantErr   error
	}{
		{
			name:      "asset command",
			route:     registration.Route{Kind: registration.RouteCommand, DeviceID: "intro_tv", ActionID: "play_intro"},
			wantCalls: []string{"select intro"},
		},
		{
			name:      "loop command",
			route:     registration.Route{Kind: registration.RouteCommand, DeviceID: "intro_tv", ActionID: "play_loop"},
			wantCalls: []string{"select loop"},
		},
		{
			name:      "stop resumes default",
			route:     registration.Route{Kind: registration.RouteCommand, DeviceID: "intro_tv", ActionID: "stop"},
			wantCalls: []string{"stop", "select loop"},
		},
		{
			name:      "legacy start",
			route:     registration.Route{Kind: registration.RouteLegacyStart},
			wantCalls: []string{"select intro"},
		},
		{
			name:      "legacy reset",
			route:     registration.Route{Kind: registration.RouteLegacyReset},
			wantCalls: []string{"select loop"},
		},
		{
			name:    "unbound command",
			route:   registration.Route{Kind: registration.RouteCommand, DeviceID: "intro_tv", ActionID: "rewind"},
			wantErr: ErrUnboundCommand,
		},
		{
			name:    "unknown kind",
			route:   registration.Route{Kind: "bogus"},
			wantErr: ErrUnboundCommand,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			err := h.agent.Dispatch(context.Background(), tt.route)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Dispatch() error = %v, want %v", err, tt.wantErr)
			}

			calls := h.playback.getCalls()
			if len(calls) != len(tt.wantCalls) {
				t.Fatalf("calls = %v, want %v", calls, tt.wantCalls)
			}
			for i := range calls {
				if calls[i] != tt.wantCalls[i] {
					t.Errorf("calls[%d] = %q, want %q", i, calls[i], tt.wantCalls[i])
				}
			}
		})
	}
}

func TestDispatch_PlaybackError(t *testing.T) {
	h := newHarness(t)
	h.playback.selectErr = playback.ErrEngineUnavailable

	err := h.agent.Dispatch(context.Background(), registration.Route{Kind: registration.RouteCommand, DeviceID: "intro_tv", ActionID: "stop"})
	if !errors.Is(err, playback.ErrEngineUnavailable) {
		t.Errorf("Dispatch() error = %v, want ErrEngineUnavailable", err)
	}
}
