package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/sentient-media-agent/internal/clock"
	"github.com/nerrad567/sentient-media-agent/internal/infrastructure/config"
	"github.com/nerrad567/sentient-media-agent/internal/infrastructure/influxdb"
	"github.com/nerrad567/sentient-media-agent/internal/infrastructure/mqtt"
	"github.com/nerrad567/sentient-media-agent/internal/manifest"
	"github.com/nerrad567/sentient-media-agent/internal/playback"
)

// MockTransport implements Transport for testing. ConnectWithRetry
// "connects" immediately and fires the connect callback.
type MockTransport struct {
	mu           sync.Mutex
	connected    bool
	published    []mockPublish
	handlers     map[string]mqtt.MessageHandler
	onConnect    func()
	onDisconnect func(error)
	closed       int

	// unreachable makes ConnectWithRetry block until cancelled.
	unreachable bool
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockTransport() *MockTransport {
	return &MockTransport{handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *MockTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return mqtt.ErrNotConnected
	}
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *MockTransport) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockTransport) ConnectWithRetry(ctx context.Context) error {
	m.mu.Lock()
	if m.unreachable {
		m.mu.Unlock()
		<-ctx.Done()
		return ctx.Err()
	}
	m.connected = true
	callback := m.onConnect
	m.mu.Unlock()

	if callback != nil {
		go callback()
	}
	return nil
}

func (m *MockTransport) SetOnConnect(callback func()) {
	m.mu.Lock()
	m.onConnect = callback
	m.mu.Unlock()
}

func (m *MockTransport) SetOnDisconnect(callback func(error)) {
	m.mu.Lock()
	m.onDisconnect = callback
	m.mu.Unlock()
}

func (m *MockTransport) ClientID() string { return "media-agent_test" }

func (m *MockTransport) Broker() string { return "tcp://127.0.0.1:1883" }

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	m.connected = false
	return nil
}

// SimulateDisconnect drops the connection and fires the callback.
func (m *MockTransport) SimulateDisconnect() {
	m.mu.Lock()
	m.connected = false
	callback := m.onDisconnect
	m.mu.Unlock()
	if callback != nil {
		callback(errors.New("connection reset"))
	}
}

// SimulateReconnect restores the connection and fires the callback.
func (m *MockTransport) SimulateReconnect() {
	m.mu.Lock()
	m.connected = true
	callback := m.onConnect
	m.mu.Unlock()
	if callback != nil {
		callback()
	}
}

// SimulateMessage delivers a message to the subscribed handler.
func (m *MockTransport) SimulateMessage(topic string, payload []byte) error {
	m.mu.Lock()
	handler, ok := m.handlers[topic]
	m.mu.Unlock()
	if !ok {
		return errors.New("not subscribed: " + topic)
	}
	return handler(topic, payload)
}

func (m *MockTransport) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

func (m *MockTransport) countTopic(topic string) int {
	n := 0
	for _, p := range m.GetPublished() {
		if p.Topic == topic {
			n++
		}
	}
	return n
}

func (m *MockTransport) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockTransport) subscribed(topic string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handlers[topic]
	return ok
}

// fakePlayback implements Playback and records every call.
type fakePlayback struct {
	mu        sync.Mutex
	calls     []string
	startErr  error
	selectErr error
	snap      playback.Snapshot
	closed    int
	called    chan string
}

func newFakePlayback() *fakePlayback {
	return &fakePlayback{
		snap:   playback.Snapshot{State: playback.StateDefaultLoop, Asset: "loop"},
		called: make(chan string, 32),
	}
}

func (f *fakePlayback) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	f.called <- call
}

func (f *fakePlayback) Start(context.Context) error {
	f.record("start")
	return f.startErr
}

func (f *fakePlayback) Select(_ context.Context, name string) error {
	f.record("select " + name)
	return f.selectErr
}

func (f *fakePlayback) Stop(context.Context) error {
	f.record("stop")
	return nil
}

func (f *fakePlayback) Snapshot() playback.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakePlayback) DefaultAsset() string { return "loop" }

func (f *fakePlayback) Close(context.Context) error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

func (f *fakePlayback) getCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakePlayback) waitCall(t *testing.T, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-f.called:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q (calls: %v)", want, f.getCalls())
		}
	}
}

// recordingTelemetry implements Telemetry.
type recordingTelemetry struct {
	mu            sync.Mutex
	heartbeats    []influxdb.HeartbeatPoint
	transitions   []influxdb.TransitionPoint
	registrations []influxdb.RegistrationPoint
	closed        int
}

func (r *recordingTelemetry) WriteHeartbeat(p influxdb.HeartbeatPoint) {
	r.mu.Lock()
	r.heartbeats = append(r.heartbeats, p)
	r.mu.Unlock()
}

func (r *recordingTelemetry) WritePlaybackTransition(p influxdb.TransitionPoint) {
	r.mu.Lock()
	r.transitions = append(r.transitions, p)
	r.mu.Unlock()
}

func (r *recordingTelemetry) WriteRegistration(p influxdb.RegistrationPoint) {
	r.mu.Lock()
	r.registrations = append(r.registrations, p)
	r.mu.Unlock()
}

func (r *recordingTelemetry) Close() error {
	r.mu.Lock()
	r.closed++
	r.mu.Unlock()
	return nil
}

func (r *recordingTelemetry) registrationCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.registrations)
}

// testConfig returns a valid configuration for the intro player.
func testConfig() *config.Config {
	return &config.Config{
		Controller: config.ControllerConfig{
			ID:              "intro_player",
			RoomID:          "clockwork",
			Type:            "video_manager",
			FirmwareVersion: "2.1.0",
		},
		MQTT: config.MQTTConfig{
			Brokers:          []config.MQTTBrokerConfig{{Host: "127.0.0.1", Port: 1883}},
			QoS:              1,
			ClientIDPrefix:   "media-agent",
			Namespace:        "paragon",
			RegistrationRoot: "sentient",
		},
		Assets: config.AssetsConfig{
			Default:     "loop",
			GracePeriod: time.Second,
			Catalog: []config.AssetConfig{
				{Name: "loop", Path: "/opt/media/loop.mp4", Loop: true},
				{Name: "intro", Path: "/opt/media/intro.mp4", DurationMS: 150000},
			},
		},
		Devices: []config.DeviceConfig{
			{
				ID:       "intro_tv",
				Type:     "video_display",
				Category: "media_playback",
				Commands: []config.CommandConfig{
					{ID: "play_loop", Asset: "loop"},
					{ID: "play_intro", Asset: "intro"},
					{ID: "stop", Stop: true},
				},
			},
		},
		Legacy:    config.LegacyConfig{Enabled: true, StartAsset: "intro"},
		Heartbeat: config.HeartbeatConfig{Interval: 5 * time.Second},
	}
}

var testStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type harness struct {
	agent     *Agent
	transport *MockTransport
	playback  *fakePlayback
	telemetry *recordingTelemetry
	clock     *clock.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		transport: NewMockTransport(),
		playback:  newFakePlayback(),
		telemetry: &recordingTelemetry{},
		clock:     clock.Fake(testStart),
	}

	cfg := testConfig()
	a, err := New(cfg, Deps{
		Transport: h.transport,
		Playback:  h.playback,
		Telemetry: h.telemetry,
		Identity:  buildIdentity(cfg, hwinfoFixture),
		Clock:     h.clock,
		Started:   testStart.Add(-90 * time.Second),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.agent = a
	return h
}

// run starts the agent and returns a function that cancels and waits.
func (h *harness) run(t *testing.T) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.agent.Run(ctx) }()

	return func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Run() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Run() did not return after cancel")
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

const (
	controllerTopic = "sentient/system/register/controller"
	deviceTopic     = "sentient/system/register/device"
	heartbeatTopic  = "paragon/clockwork/status/intro_player/heartbeat"
	playIntroTopic  = "paragon/clockwork/commands/intro_player/intro_tv/play_intro"
	stopTopic       = "paragon/clockwork/commands/intro_player/intro_tv/stop"
)

func TestAgent_ConnectRegistersSubscribesAndBeats(t *testing.T) {
	h := newHarness(t)
	stop := h.run(t)

	h.playback.waitCall(t, "start")
	waitFor(t, "heartbeat", func() bool { return h.transport.countTopic(heartbeatTopic) == 1 })

	published := h.transport.GetPublished()
	if published[0].Topic != controllerTopic {
		t.Errorf("first publish = %q, want controller registration", published[0].Topic)
	}
	if published[1].Topic != deviceTopic {
		t.Errorf("second publish = %q, want device registration", published[1].Topic)
	}

	var record map[string]any
	if err := json.Unmarshal(published[0].Payload, &record); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if record["mqtt_client_id"] != "media-agent_test" {
		t.Errorf("mqtt_client_id = %v, want media-agent_test", record["mqtt_client_id"])
	}
	if record["heartbeat_interval_ms"] != float64(5000) {
		t.Errorf("heartbeat_interval_ms = %v, want 5000", record["heartbeat_interval_ms"])
	}

	for _, topic := range []string{playIntroTopic, stopTopic, "paragon/clockwork/game/start", "paragon/clockwork/game/reset"} {
		if !h.transport.subscribed(topic) {
			t.Errorf("not subscribed to %q", topic)
		}
	}

	if n := h.telemetry.registrationCount(); n != 1 {
		t.Errorf("registration records = %d, want 1", n)
	}

	stop()

	if n := h.transport.closeCount(); n != 1 {
		t.Errorf("transport closed %d times, want 1", n)
	}
	if h.playback.closed != 1 || h.telemetry.closed != 1 {
		t.Errorf("playback/telemetry closed = %d/%d, want 1/1", h.playback.closed, h.telemetry.closed)
	}
}

func TestAgent_CommandReachesPlayback(t *testing.T) {
	h := newHarness(t)
	stop := h.run(t)
	defer stop()

	waitFor(t, "subscription", func() bool { return h.transport.subscribed(playIntroTopic) })

	if err := h.transport.SimulateMessage(playIntroTopic, []byte("{}")); err != nil {
		t.Fatalf("SimulateMessage() error = %v", err)
	}
	h.playback.waitCall(t, "select intro")

	if err := h.transport.SimulateMessage(stopTopic, nil); err != nil {
		t.Fatalf("SimulateMessage() error = %v", err)
	}
	h.playback.waitCall(t, "stop")
	h.playback.waitCall(t, "select loop")
}

func TestAgent_ReconnectReregisters(t *testing.T) {
	h := newHarness(t)
	stop := h.run(t)
	defer stop()

	waitFor(t, "first heartbeat", func() bool { return h.transport.countTopic(heartbeatTopic) == 1 })

	h.transport.SimulateDisconnect()
	if h.agent.heartbeat.Running() {
		t.Error("heartbeat still running after disconnect")
	}

	h.transport.SimulateReconnect()
	waitFor(t, "re-registration", func() bool { return h.transport.countTopic(controllerTopic) == 2 })
	waitFor(t, "restarted heartbeat", func() bool { return h.transport.countTopic(heartbeatTopic) == 2 })

	if n := h.telemetry.registrationCount(); n != 2 {
		t.Errorf("registration records = %d, want 2", n)
	}
}

func TestAgent_HeartbeatReportsCurrentVideo(t *testing.T) {
	h := newHarness(t)
	h.playback.snap = playback.Snapshot{State: playback.StatePlayingOneShot, Asset: "intro"}
	stop := h.run(t)
	defer stop()

	waitFor(t, "heartbeat", func() bool { return h.transport.countTopic(heartbeatTopic) == 1 })

	for _, p := range h.transport.GetPublished() {
		if p.Topic != heartbeatTopic {
			continue
		}
		if !strings.Contains(string(p.Payload), `"current_video":"intro"`) {
			t.Errorf("heartbeat %s missing current_video intro", p.Payload)
		}
		// Uptime counts from process start, not from when the agent was built.
		if !strings.Contains(string(p.Payload), `"uptime_seconds":90`) {
			t.Errorf("heartbeat %s, want uptime_seconds 90", p.Payload)
		}
	}
}

func TestAgent_PlayerStartFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.playback.startErr = playback.ErrEngineUnavailable
	stop := h.run(t)

	h.playback.waitCall(t, "start")
	waitFor(t, "registration", func() bool { return h.transport.countTopic(controllerTopic) == 1 })

	stop()
}

func TestAgent_NoBrokerKeepsPlaying(t *testing.T) {
	h := newHarness(t)
	h.transport.unreachable = true
	stop := h.run(t)

	h.playback.waitCall(t, "start")
	stop()

	if n := len(h.transport.GetPublished()); n != 0 {
		t.Errorf("published %d messages without a broker", n)
	}
}

func TestAgent_ShutdownIdempotent(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < 2; i++ {
		if err := h.agent.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown() #%d error = %v", i+1, err)
		}
	}
	if n := h.transport.closeCount(); n != 1 {
		t.Errorf("transport closed %d times, want 1", n)
	}
	if h.playback.closed != 1 {
		t.Errorf("playback closed %d times, want 1", h.playback.closed)
	}
}

func TestNew_InvalidDeclaration(t *testing.T) {
	cfg := testConfig()
	cfg.Devices = append(cfg.Devices, config.DeviceConfig{ID: "intro_tv", Type: "video_display"})

	_, err := New(cfg, Deps{
		Transport: NewMockTransport(),
		Playback:  newFakePlayback(),
		Identity:  buildIdentity(cfg, hwinfoFixture),
	})
	if !errors.Is(err, manifest.ErrInvalidDeclaration) {
		t.Errorf("New() error = %v, want ErrInvalidDeclaration", err)
	}
}

func TestRecordTransition(t *testing.T) {
	telemetry := &recordingTelemetry{}
	record := RecordTransition(telemetry, noopLogger{})

	record(playback.Transition{
		From:   playback.StateDefaultLoop,
		To:     playback.StatePlayingOneShot,
		Asset:  "intro",
		Reason: "select",
		At:     testStart,
	})

	want := influxdb.TransitionPoint{From: "default_loop", To: "playing_one_shot", Asset: "intro", Reason: "select", At: testStart}
	if len(telemetry.transitions) != 1 || telemetry.transitions[0] != want {
		t.Errorf("transitions = %+v, want [%+v]", telemetry.transitions, want)
	}
}
