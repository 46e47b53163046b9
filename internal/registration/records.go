package registration

import (
	"github.com/nerrad567/sentient-media-agent/internal/manifest"
)

// ControllerRecord is the phase-one registration payload.
type ControllerRecord struct {
	RoomID              string             `json:"room_id"`
	ControllerID        string             `json:"controller_id"`
	FriendlyName        string             `json:"friendly_name"`
	Description         string             `json:"description,omitempty"`
	PhysicalLocation    string             `json:"physical_location,omitempty"`
	ControllerType      string             `json:"controller_type"`
	HardwareType        string             `json:"hardware_type"`
	HardwareVersion     string             `json:"hardware_version,omitempty"`
	FirmwareVersion     string             `json:"firmware_version"`
	IPAddress           string             `json:"ip_address,omitempty"`
	MACAddress          string             `json:"mac_address,omitempty"`
	HeartbeatIntervalMS int64              `json:"heartbeat_interval_ms,omitempty"`
	MQTTClientID        string             `json:"mqtt_client_id,omitempty"`
	MQTTBaseTopic       string             `json:"mqtt_base_topic"`
	DeviceCount         int                `json:"device_count"`
	CapabilityManifest  CapabilityManifest `json:"capability_manifest"`
}

// CapabilityManifest is the capability section of the controller record.
type CapabilityManifest struct {
	Devices             []DeviceEntry    `json:"devices,omitempty"`
	MQTTTopicsPublish   []PublishTopic   `json:"mqtt_topics_publish,omitempty"`
	MQTTTopicsSubscribe []SubscribeTopic `json:"mqtt_topics_subscribe,omitempty"`
	Actions             []Action         `json:"actions,omitempty"`
}

// DeviceEntry summarises a device inside the controller record.
type DeviceEntry struct {
	DeviceID       string         `json:"device_id"`
	DeviceType     string         `json:"device_type"`
	FriendlyName   string         `json:"friendly_name"`
	DeviceCategory string         `json:"device_category"`
	Properties     map[string]any `json:"properties,omitempty"`
}

// PublishTopic advertises a telemetry topic.
type PublishTopic struct {
	Topic             string            `json:"topic"`
	MessageType       string            `json:"message_type"`
	PublishIntervalMS int               `json:"publish_interval_ms,omitempty"`
	Schema            map[string]string `json:"schema,omitempty"`
}

// SubscribeTopic advertises a command topic the controller listens on.
type SubscribeTopic struct {
	Topic          string           `json:"topic"`
	MessageType    string           `json:"message_type"`
	Description    string           `json:"description,omitempty"`
	Parameters     []map[string]any `json:"parameters,omitempty"`
	SafetyCritical bool             `json:"safety_critical,omitempty"`
}

// Action advertises an invokable command.
type Action struct {
	ActionID       string           `json:"action_id"`
	DeviceID       string           `json:"device_id"`
	FriendlyName   string           `json:"friendly_name"`
	MQTTTopic      string           `json:"mqtt_topic"`
	Description    string           `json:"description,omitempty"`
	Parameters     []map[string]any `json:"parameters,omitempty"`
	DurationMS     int              `json:"duration_ms,omitempty"`
	SafetyCritical bool             `json:"safety_critical,omitempty"`
}

// DeviceRecord is a phase-two registration payload, one per device.
type DeviceRecord struct {
	RoomID         string         `json:"room_id"`
	ControllerID   string         `json:"controller_id"`
	DeviceIndex    int            `json:"device_index"`
	DeviceID       string         `json:"device_id"`
	FriendlyName   string         `json:"friendly_name"`
	DeviceType     string         `json:"device_type"`
	DeviceCategory string         `json:"device_category"`
	Properties     map[string]any `json:"properties"`
	MQTTTopics     []DeviceTopic  `json:"mqtt_topics"`
}

// DeviceTopic is a topic suffix relative to the device, as the registry
// expects it: {"topic":"commands/play_intro","topic_type":"command"}.
type DeviceTopic struct {
	Topic     string `json:"topic"`
	TopicType string `json:"topic_type"`
}

// RecordInfo carries controller-record fields that are not part of the
// manifest itself.
type RecordInfo struct {
	HeartbeatIntervalMS int64
	ClientID            string
	BaseTopic           string
}

const messageTypeCommand = "command"

// BuildControllerRecord assembles the phase-one record from m.
func BuildControllerRecord(m *manifest.Manifest, info RecordInfo) ControllerRecord {
	id := m.Identity
	rec := ControllerRecord{
		RoomID:              id.RoomID,
		ControllerID:        id.ControllerID,
		FriendlyName:        id.FriendlyName,
		Description:         id.Description,
		PhysicalLocation:    id.PhysicalLocation,
		ControllerType:      id.ControllerType,
		HardwareType:        id.HardwareType,
		HardwareVersion:     id.HardwareVersion,
		FirmwareVersion:     id.FirmwareVersion,
		IPAddress:           id.IPAddress,
		MACAddress:          id.MACAddress,
		HeartbeatIntervalMS: info.HeartbeatIntervalMS,
		MQTTClientID:        info.ClientID,
		MQTTBaseTopic:       info.BaseTopic,
		DeviceCount:         len(m.Devices),
	}

	for _, d := range m.Devices {
		rec.CapabilityManifest.Devices = append(rec.CapabilityManifest.Devices, DeviceEntry{
			DeviceID:       d.ID,
			DeviceType:     d.Type,
			FriendlyName:   d.FriendlyName,
			DeviceCategory: d.Category,
			Properties:     d.Properties,
		})
	}

	for _, s := range m.Sensors {
		rec.CapabilityManifest.MQTTTopicsPublish = append(rec.CapabilityManifest.MQTTTopicsPublish, PublishTopic{
			Topic:             m.SensorTopic(s),
			MessageType:       s.MessageType,
			PublishIntervalMS: s.PublishIntervalMS,
			Schema:            s.Schema,
		})
	}

	for _, c := range m.AllCommands() {
		topic := m.CommandTopic(c)

		description := c.Description
		if description == "" {
			description = "Execute " + c.ActionID
		}
		rec.CapabilityManifest.MQTTTopicsSubscribe = append(rec.CapabilityManifest.MQTTTopicsSubscribe, SubscribeTopic{
			Topic:          topic,
			MessageType:    messageTypeCommand,
			Description:    description,
			Parameters:     c.Parameters,
			SafetyCritical: c.SafetyCritical,
		})

		rec.CapabilityManifest.Actions = append(rec.CapabilityManifest.Actions, Action{
			ActionID:       c.ActionID,
			DeviceID:       c.DeviceID,
			FriendlyName:   c.FriendlyName,
			MQTTTopic:      topic,
			Description:    c.Description,
			Parameters:     c.Parameters,
			DurationMS:     c.DurationMS,
			SafetyCritical: c.SafetyCritical,
		})
	}

	return rec
}

// BuildDeviceRecord assembles the phase-two record for the device at
// index in m.Devices.
func BuildDeviceRecord(m *manifest.Manifest, index int) DeviceRecord {
	d := m.Devices[index]

	props := d.Properties
	if props == nil {
		props = map[string]any{}
	}

	topics := []DeviceTopic{}
	for _, c := range m.DeviceCommands(d.ID) {
		topics = append(topics, DeviceTopic{
			Topic:     string(manifest.CategoryCommands) + "/" + c.ActionID,
			TopicType: messageTypeCommand,
		})
	}

	return DeviceRecord{
		RoomID:         m.Identity.RoomID,
		ControllerID:   m.Identity.ControllerID,
		DeviceIndex:    index,
		DeviceID:       d.ID,
		FriendlyName:   d.FriendlyName,
		DeviceType:     d.Type,
		DeviceCategory: d.Category,
		Properties:     props,
		MQTTTopics:     topics,
	}
}
