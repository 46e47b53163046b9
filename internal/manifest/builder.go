package manifest

import (
	"errors"
	"fmt"
	"maps"
	"strings"
)

// ErrInvalidDeclaration is returned when a declaration would violate a
// manifest invariant. The builder is left unchanged.
var ErrInvalidDeclaration = errors.New("manifest: invalid declaration")

// Builder accumulates declarations into a Manifest.
//
// Thread Safety:
//   - Builder is not safe for concurrent use. Declarations are made once
//     at startup from a single goroutine.
type Builder struct {
	namespace string
	identity  Identity
	devices   []Device
	commands  map[string][]Command
	sensors   []Sensor
}

// NewBuilder creates a Builder for the given controller.
//
// Returns:
//   - *Builder: Ready for declarations
//   - error: ErrInvalidDeclaration if namespace, controller ID or room ID
//     is empty or contains a topic separator or wildcard
func NewBuilder(namespace string, identity Identity) (*Builder, error) {
	if err := validateSegment("namespace", namespace); err != nil {
		return nil, err
	}
	if err := validateSegment("controller_id", identity.ControllerID); err != nil {
		return nil, err
	}
	if err := validateSegment("room_id", identity.RoomID); err != nil {
		return nil, err
	}
	if identity.FriendlyName == "" {
		identity.FriendlyName = FriendlyName(identity.ControllerID)
	}
	return &Builder{
		namespace: namespace,
		identity:  identity,
		commands:  make(map[string][]Command),
	}, nil
}

// DeclareDevice appends a device. FriendlyName and Category are defaulted
// when empty.
func (b *Builder) DeclareDevice(d Device) error {
	if err := validateSegment("device_id", d.ID); err != nil {
		return err
	}
	if b.hasDevice(d.ID) {
		return fmt.Errorf("%w: device %q already declared", ErrInvalidDeclaration, d.ID)
	}

	if d.FriendlyName == "" {
		d.FriendlyName = FriendlyName(d.ID)
	}
	if d.Category == "" {
		d.Category = DefaultDeviceCategory
	}
	d.Properties = cloneMap(d.Properties)

	b.devices = append(b.devices, d)
	return nil
}

// DeclareCommand appends a command to a previously declared device.
func (b *Builder) DeclareCommand(c Command) error {
	if !b.hasDevice(c.DeviceID) {
		return fmt.Errorf("%w: command %q references undeclared device %q", ErrInvalidDeclaration, c.ActionID, c.DeviceID)
	}
	if err := validateSegment("action_id", c.ActionID); err != nil {
		return err
	}
	for _, existing := range b.commands[c.DeviceID] {
		if existing.ActionID == c.ActionID {
			return fmt.Errorf("%w: action %q already declared on device %q", ErrInvalidDeclaration, c.ActionID, c.DeviceID)
		}
	}
	if c.DurationMS < 0 {
		return fmt.Errorf("%w: action %q has negative duration", ErrInvalidDeclaration, c.ActionID)
	}

	if c.FriendlyName == "" {
		c.FriendlyName = FriendlyName(c.ActionID)
	}
	c.Parameters = cloneParams(c.Parameters)

	b.commands[c.DeviceID] = append(b.commands[c.DeviceID], c)
	return nil
}

// DeclareSensor appends a telemetry topic. The sensor's device need not
// be declared; controller-level telemetry uses the controller ID.
func (b *Builder) DeclareSensor(s Sensor) error {
	if err := validateSegment("sensor device_id", s.DeviceID); err != nil {
		return err
	}
	if err := validateSegment("sensor name", s.Name); err != nil {
		return err
	}
	if s.MessageType == "" {
		return fmt.Errorf("%w: sensor %q has no message type", ErrInvalidDeclaration, s.Name)
	}
	for _, existing := range b.sensors {
		if existing.DeviceID == s.DeviceID && existing.Name == s.Name {
			return fmt.Errorf("%w: sensor %s/%s already declared", ErrInvalidDeclaration, s.DeviceID, s.Name)
		}
	}

	s.Schema = maps.Clone(s.Schema)
	b.sensors = append(b.sensors, s)
	return nil
}

// Build returns an immutable snapshot of the declarations. It is pure:
// repeated calls yield structurally identical manifests that share no
// mutable state with the builder or with each other.
func (b *Builder) Build() *Manifest {
	m := &Manifest{
		Namespace: b.namespace,
		Identity:  b.identity,
		Devices:   make([]Device, len(b.devices)),
		Commands:  make(map[string][]Command, len(b.commands)),
		Sensors:   make([]Sensor, len(b.sensors)),
	}

	for i, d := range b.devices {
		d.Properties = cloneMap(d.Properties)
		m.Devices[i] = d
	}
	for id, cmds := range b.commands {
		out := make([]Command, len(cmds))
		for i, c := range cmds {
			c.Parameters = cloneParams(c.Parameters)
			out[i] = c
		}
		m.Commands[id] = out
	}
	for i, s := range b.sensors {
		s.Schema = maps.Clone(s.Schema)
		m.Sensors[i] = s
	}

	return m
}

func (b *Builder) hasDevice(id string) bool {
	for _, d := range b.devices {
		if d.ID == id {
			return true
		}
	}
	return false
}

// validateSegment rejects identifiers that would corrupt a derived topic.
func validateSegment(field, v string) error {
	if v == "" {
		return fmt.Errorf("%w: %s is empty", ErrInvalidDeclaration, field)
	}
	if strings.ContainsAny(v, "/+#") {
		return fmt.Errorf("%w: %s %q contains '/', '+' or '#'", ErrInvalidDeclaration, field, v)
	}
	return nil
}

func cloneParams(in []map[string]any) []map[string]any {
	if in == nil {
		return nil
	}
	out := make([]map[string]any, len(in))
	for i, p := range in {
		out[i] = cloneMap(p)
	}
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
