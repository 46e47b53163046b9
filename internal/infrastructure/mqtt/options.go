package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/sentient-media-agent/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for one broker candidate.
	defaultConnectTimeout = 5 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is used when keep_alive is not configured.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Connection status values published on the connection topic.
const (
	statusOnline  = "online"
	statusOffline = "offline"

	reasonGraceful   = "graceful_shutdown"
	reasonUnexpected = "unexpected_disconnect"
)

// brokerURL returns tcp:// or ssl:// for broker.
func brokerURL(broker config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s", scheme, broker.Address())
}

// buildClientOptions creates paho MQTT options for one broker candidate.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - Client ID for identification
//   - Authentication credentials (if provided)
//   - Auto-reconnect with exponential backoff once connected
//   - TLS configuration (if enabled)
//   - Clean session mode
//
// Connect retry is disabled so that an unreachable candidate fails fast
// and the next one can be tried.
func buildClientOptions(cfg config.MQTTConfig, broker config.MQTTBrokerConfig, clientID string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(brokerURL(broker))
	opts.SetClientID(clientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetMaxReconnectInterval(cfg.Reconnect.GetMaxDelay())

	opts.SetConnectTimeout(defaultConnectTimeout)

	keepAlive := defaultKeepAlive
	if cfg.KeepAlive > 0 {
		keepAlive = time.Duration(cfg.KeepAlive) * time.Second
	}
	opts.SetKeepAlive(keepAlive)

	if broker.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}

// configureLWT sets up Last Will and Testament for offline detection.
//
// The LWT message is published by the broker if the agent disconnects
// unexpectedly (crash, power loss, network failure). The room controller
// uses it to mark the media controller offline.
//
// QoS: 1 (guaranteed delivery)
// Retained: true (new subscribers see last status)
func configureLWT(opts *pahomqtt.ClientOptions, topic, clientID, controllerID string) {
	payload := buildStatusPayload(statusOffline, reasonUnexpected, clientID, controllerID)
	opts.SetBinaryWill(topic, payload, 1, true)
}

// statusPayload is the record published on the connection topic.
type statusPayload struct {
	Status       string `json:"status"`
	ControllerID string `json:"controller_id"`
	ClientID     string `json:"client_id"`
	Reason       string `json:"reason,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// buildStatusPayload creates the JSON payload for connection status messages.
func buildStatusPayload(status, reason, clientID, controllerID string) []byte {
	data, _ := json.Marshal(statusPayload{
		Status:       status,
		ControllerID: controllerID,
		ClientID:     clientID,
		Reason:       reason,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	})
	return data
}
