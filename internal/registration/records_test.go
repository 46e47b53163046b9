package registration

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestBuildControllerRecord(t *testing.T) {
	m := testManifest(t)
	rec := BuildControllerRecord(m, RecordInfo{
		HeartbeatIntervalMS: 5000,
		ClientID:            "media-agent_1a2b3c4d",
		BaseTopic:           "paragon/clockwork",
	})

	if rec.ControllerID != "intro_player" || rec.RoomID != "clockwork" {
		t.Errorf("identity = (%s, %s), want (intro_player, clockwork)", rec.ControllerID, rec.RoomID)
	}
	if rec.FriendlyName != "Intro Player" {
		t.Errorf("FriendlyName = %q, want derived %q", rec.FriendlyName, "Intro Player")
	}
	if rec.DeviceCount != 3 {
		t.Errorf("DeviceCount = %d, want 3", rec.DeviceCount)
	}

	cm := rec.CapabilityManifest
	if len(cm.Devices) != 3 || cm.Devices[1].DeviceCategory != "puzzle" {
		t.Errorf("Devices = %+v, want 3 with default category on lobby_tv", cm.Devices)
	}
	if len(cm.Actions) != 4 || len(cm.MQTTTopicsSubscribe) != 4 {
		t.Fatalf("actions/subscribe = %d/%d, want 4/4", len(cm.Actions), len(cm.MQTTTopicsSubscribe))
	}

	intro := cm.Actions[1]
	if intro.ActionID != "play_intro" || intro.DurationMS != 150000 {
		t.Errorf("Actions[1] = %+v, want play_intro with duration 150000", intro)
	}
	if intro.MQTTTopic != "paragon/clockwork/commands/intro_player/intro_tv/play_intro" {
		t.Errorf("Actions[1].MQTTTopic = %q", intro.MQTTTopic)
	}
	if intro.FriendlyName != "Play Intro" {
		t.Errorf("Actions[1].FriendlyName = %q, want %q", intro.FriendlyName, "Play Intro")
	}

	if got := cm.MQTTTopicsSubscribe[0].Description; got != "Execute play_loop" {
		t.Errorf("default subscribe description = %q, want %q", got, "Execute play_loop")
	}
	if got := cm.MQTTTopicsSubscribe[1].Description; got != "Play the intro once" {
		t.Errorf("declared subscribe description = %q", got)
	}
	if got := cm.MQTTTopicsSubscribe[0].MessageType; got != "command" {
		t.Errorf("subscribe message_type = %q, want command", got)
	}

	if len(cm.MQTTTopicsPublish) != 1 {
		t.Fatalf("publish topics = %d, want 1", len(cm.MQTTTopicsPublish))
	}
	if got := cm.MQTTTopicsPublish[0].Topic; got != "paragon/clockwork/sensors/intro_player/intro_player/status" {
		t.Errorf("publish topic = %q", got)
	}
}

func TestControllerRecord_JSON(t *testing.T) {
	rec := BuildControllerRecord(testManifest(t), RecordInfo{BaseTopic: "paragon/clockwork"})
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	for _, key := range []string{"room_id", "controller_id", "controller_type", "firmware_version", "mqtt_base_topic", "device_count", "capability_manifest", "ip_address"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("controller record missing %q", key)
		}
	}
	for _, key := range []string{"mac_address", "mqtt_client_id", "heartbeat_interval_ms"} {
		if _, ok := raw[key]; ok {
			t.Errorf("controller record has empty optional %q", key)
		}
	}

	cm := raw["capability_manifest"].(map[string]any)
	for _, key := range []string{"devices", "mqtt_topics_publish", "mqtt_topics_subscribe", "actions"} {
		if _, ok := cm[key]; !ok {
			t.Errorf("capability_manifest missing %q", key)
		}
	}

	// stop has no duration; it must not advertise duration_ms: 0.
	stop := cm["actions"].([]any)[2].(map[string]any)
	if _, ok := stop["duration_ms"]; ok {
		t.Error("stop action has duration_ms")
	}
}

func TestBuildDeviceRecord(t *testing.T) {
	m := testManifest(t)

	tests := []struct {
		name      string
		index     int
		wantID    string
		wantProps map[string]any
		wantTopic []DeviceTopic
	}{
		{
			name:      "with commands",
			index:     0,
			wantID:    "intro_tv",
			wantProps: map[string]any{"resolution": "1920x1080"},
			wantTopic: []DeviceTopic{
				{Topic: "commands/play_loop", TopicType: "command"},
				{Topic: "commands/play_intro", TopicType: "command"},
				{Topic: "commands/stop", TopicType: "command"},
			},
		},
		{
			name:      "no commands",
			index:     2,
			wantID:    "exit_tv",
			wantProps: map[string]any{},
			wantTopic: []DeviceTopic{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := BuildDeviceRecord(m, tt.index)
			if rec.DeviceID != tt.wantID || rec.DeviceIndex != tt.index {
				t.Errorf("device = (%s, %d), want (%s, %d)", rec.DeviceID, rec.DeviceIndex, tt.wantID, tt.index)
			}
			if rec.ControllerID != "intro_player" || rec.RoomID != "clockwork" {
				t.Errorf("controller = (%s, %s)", rec.ControllerID, rec.RoomID)
			}
			if !reflect.DeepEqual(rec.Properties, tt.wantProps) {
				t.Errorf("Properties = %v, want %v", rec.Properties, tt.wantProps)
			}
			if !reflect.DeepEqual(rec.MQTTTopics, tt.wantTopic) {
				t.Errorf("MQTTTopics = %v, want %v", rec.MQTTTopics, tt.wantTopic)
			}
		})
	}
}

func TestDeviceRecord_EmptyCollectionsEncoded(t *testing.T) {
	data, err := json.Marshal(BuildDeviceRecord(testManifest(t), 2))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	s := string(data)
	for _, want := range []string{`"properties":{}`, `"mqtt_topics":[]`, `"device_category":"puzzle"`, `"friendly_name":"Exit Tv"`} {
		if !strings.Contains(s, want) {
			t.Errorf("device record %s missing %s", s, want)
		}
	}
}

