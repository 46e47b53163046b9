//go:build integration

package mqtt

import (
	"context"
	"slices"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/sentient-media-agent/internal/infrastructure/config"
)

// Integration tests for broker selection and reconnection.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

// TestIntegration_ConnectWithRetryFallsThrough verifies that a dead first
// candidate does not prevent the retry loop from reaching a live one.
func TestIntegration_ConnectWithRetryFallsThrough(t *testing.T) {
	requireBroker(t)

	cfg := testConfig()
	cfg.Brokers = []config.MQTTBrokerConfig{
		{Host: "127.0.0.1", Port: 1},
		{Host: "127.0.0.1", Port: 1883},
	}

	client := New(cfg, testTopics())
	defer client.Close()

	var connects atomic.Int32
	client.SetOnConnect(func() { connects.Add(1) })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.ConnectWithRetry(ctx); err != nil {
		t.Fatalf("ConnectWithRetry() error = %v", err)
	}
	if got := client.Broker(); got != "tcp://127.0.0.1:1883" {
		t.Errorf("Broker() = %q, want tcp://127.0.0.1:1883", got)
	}

	deadline := time.Now().Add(5 * time.Second)
	for connects.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if connects.Load() != 1 {
		t.Errorf("OnConnect calls = %d, want 1", connects.Load())
	}
}

// TestIntegration_SubscriptionTracking verifies subscriptions are tracked
// for restoration after a reconnect.
func TestIntegration_SubscriptionTracking(t *testing.T) {
	client := connectedClient(t)

	topics := []string{
		"paragon/testroom/commands/media_test/tv/play_loop",
		"paragon/testroom/commands/media_test/tv/play_intro",
		"paragon/testroom/game/start",
	}
	for _, topic := range topics {
		if err := client.Subscribe(topic, 1, func(string, []byte) error { return nil }); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}

	// Subscribing the same topic again replaces the tracked entry.
	if err := client.Subscribe(topics[0], 1, func(string, []byte) error { return nil }); err != nil {
		t.Fatalf("re-Subscribe error = %v", err)
	}

	got := client.Subscriptions()
	sort.Strings(topics)
	if !slices.Equal(got, topics) {
		t.Errorf("Subscriptions() = %v, want %v", got, topics)
	}
}
