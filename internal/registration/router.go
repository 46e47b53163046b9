package registration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/nerrad567/sentient-media-agent/internal/infrastructure/mqtt"
	"github.com/nerrad567/sentient-media-agent/internal/manifest"
)

// maxPayloadSize is the largest inbound command payload accepted.
const maxPayloadSize = 64 << 10

var (
	// ErrUnknownTopic is returned for a message on a topic with no route.
	ErrUnknownTopic = errors.New("registration: no route for topic")

	// ErrMalformedPayload is returned for payloads that are not UTF-8 or
	// exceed 64 KiB.
	ErrMalformedPayload = errors.New("registration: malformed payload")

	// ErrQueueFull is returned when the inbound queue cannot take a message.
	ErrQueueFull = errors.New("registration: inbound queue full")
)

// RouteKind says what a routed message triggers.
type RouteKind string

const (
	RouteCommand     RouteKind = "command"
	RouteLegacyStart RouteKind = "legacy-start"
	RouteLegacyReset RouteKind = "legacy-reset"
)

// Route is the target of a subscribed topic. DeviceID and ActionID are
// empty for legacy routes.
type Route struct {
	Kind     RouteKind
	DeviceID string
	ActionID string
}

// Router maps exact topics to routes. It is built once and read-only
// afterwards, so it is safe for concurrent use.
type Router struct {
	routes map[string]Route
}

// NewRouter builds the routing table for every command in m, plus the
// legacy game/start and game/reset aliases when legacy is set.
func NewRouter(m *manifest.Manifest, topics mqtt.Topics, legacy bool) *Router {
	r := &Router{routes: make(map[string]Route)}

	for _, c := range m.AllCommands() {
		r.routes[m.CommandTopic(c)] = Route{
			Kind:     RouteCommand,
			DeviceID: c.DeviceID,
			ActionID: c.ActionID,
		}
	}

	if legacy {
		r.routes[topics.LegacyStart()] = Route{Kind: RouteLegacyStart}
		r.routes[topics.LegacyReset()] = Route{Kind: RouteLegacyReset}
	}

	return r
}

// Lookup returns the route for topic.
func (r *Router) Lookup(topic string) (Route, error) {
	route, ok := r.routes[topic]
	if !ok {
		return Route{}, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	return route, nil
}

// Topics returns every routed topic, sorted.
func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.routes))
	for t := range r.routes {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// validatePayload rejects payloads the agent will not act on. Command
// payloads carry no arguments, but are still bounded and must be text.
func validatePayload(payload []byte) error {
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrMalformedPayload, len(payload), maxPayloadSize)
	}
	if !utf8.Valid(payload) {
		return fmt.Errorf("%w: not valid UTF-8", ErrMalformedPayload)
	}
	return nil
}

// handle is the transport message handler. It runs on the transport's
// goroutine, so it only validates and queues. Returned errors are logged
// by the transport as warnings.
func (s *Session) handle(topic string, payload []byte) error {
	route, err := s.router.Lookup(topic)
	if err != nil {
		return err
	}
	if err := validatePayload(payload); err != nil {
		return fmt.Errorf("%s: %w", topic, err)
	}

	select {
	case s.queue <- inbound{topic: topic, route: route}:
		return nil
	default:
		return fmt.Errorf("%w: dropping %s", ErrQueueFull, topic)
	}
}

// Run drains the inbound queue, dispatching one command at a time, until
// ctx is cancelled. It is the only goroutine that calls the dispatcher.
func (s *Session) Run(ctx context.Context, dispatcher Dispatcher) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-s.queue:
			s.logger.Info("command received",
				"topic", msg.topic,
				"kind", string(msg.route.Kind),
				"device_id", msg.route.DeviceID,
				"action_id", msg.route.ActionID,
			)
			if err := dispatcher.Dispatch(ctx, msg.route); err != nil {
				s.logger.Error("command failed",
					"topic", msg.topic,
					"error", err,
				)
			}
		}
	}
}
