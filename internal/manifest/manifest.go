package manifest

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Category is the third segment of a derived topic.
type Category string

// Topic categories.
const (
	CategoryCommands Category = "commands"
	CategorySensors  Category = "sensors"
	CategoryStatus   Category = "status"
	CategoryEvents   Category = "events"
)

// DefaultDeviceCategory is applied when a device declares no category.
const DefaultDeviceCategory = "puzzle"

// Identity describes the controller. ControllerID and RoomID appear
// verbatim in every derived topic.
type Identity struct {
	ControllerID     string `json:"controller_id"`
	RoomID           string `json:"room_id"`
	ControllerType   string `json:"controller_type"`
	FriendlyName     string `json:"friendly_name"`
	Description      string `json:"description,omitempty"`
	PhysicalLocation string `json:"physical_location,omitempty"`
	FirmwareVersion  string `json:"firmware_version"`
	HardwareType     string `json:"hardware_type"`
	HardwareVersion  string `json:"hardware_version,omitempty"`
	IPAddress        string `json:"ip_address,omitempty"`
	MACAddress       string `json:"mac_address,omitempty"`
}

// Device is a logical capability unit exposed by the controller.
type Device struct {
	ID           string
	Type         string
	FriendlyName string
	Category     string
	Properties   map[string]any
}

// Command is a remotely invokable action bound to a device.
type Command struct {
	DeviceID       string
	ActionID       string
	FriendlyName   string
	Description    string
	Parameters     []map[string]any
	DurationMS     int
	SafetyCritical bool
}

// Sensor is a telemetry topic the controller publishes. DeviceID may be
// the controller's own ID for controller-level telemetry.
type Sensor struct {
	DeviceID          string
	Name              string
	MessageType       string
	PublishIntervalMS int
	Schema            map[string]string
}

// Manifest is an immutable snapshot of a controller's capabilities.
// Obtain one from Builder.Build; do not modify its fields.
type Manifest struct {
	Namespace string
	Identity  Identity
	Devices   []Device
	Commands  map[string][]Command
	Sensors   []Sensor
}

// Topic derives a topic of the form
// <namespace>/<room>/<category>/<controller>/<device>/<name>.
func Topic(namespace, room string, category Category, controller, device, name string) string {
	return strings.Join([]string{namespace, room, string(category), controller, device, name}, "/")
}

// Topic derives a topic under this manifest's namespace and identity.
func (m *Manifest) Topic(category Category, deviceID, name string) string {
	return Topic(m.Namespace, m.Identity.RoomID, category, m.Identity.ControllerID, deviceID, name)
}

// CommandTopic returns the topic a command is invoked on.
func (m *Manifest) CommandTopic(c Command) string {
	return m.Topic(CategoryCommands, c.DeviceID, c.ActionID)
}

// SensorTopic returns the topic a sensor publishes on.
func (m *Manifest) SensorTopic(s Sensor) string {
	return m.Topic(CategorySensors, s.DeviceID, s.Name)
}

// DeviceCommands returns the commands declared for a device, in
// declaration order.
func (m *Manifest) DeviceCommands(deviceID string) []Command {
	return m.Commands[deviceID]
}

// AllCommands returns every command in device order, then declaration order.
func (m *Manifest) AllCommands() []Command {
	var out []Command
	for _, d := range m.Devices {
		out = append(out, m.Commands[d.ID]...)
	}
	return out
}

// FriendlyName derives a display name from a snake_case identifier:
// "play_intro" becomes "Play Intro".
func FriendlyName(id string) string {
	words := strings.Fields(strings.ReplaceAll(id, "_", " "))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}
