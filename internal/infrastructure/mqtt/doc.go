// Package mqtt provides MQTT client connectivity for the media agent.
//
// This package manages:
//   - Broker selection from an ordered candidate list
//   - Message publishing with QoS guarantees
//   - Topic subscriptions restored on reconnect
//   - Last Will and Testament (LWT) for offline detection
//   - Connection status publication
//
// # Architecture
//
// The agent is one controller among many in an escape room. The room
// controller and the Sentient registry listen on the broker; the agent
// registers its capabilities there and receives commands from it.
//
//	Room controller ↔ MQTT Broker ↔ Media agent ↔ mpv
//
// # Broker Selection
//
// Connect walks the configured brokers in order and keeps the first that
// accepts the connection. After that paho reconnects to the same broker on
// its own. ConnectWithRetry repeats the scan with exponential backoff while
// no broker is reachable; playback continues locally in the meantime.
//
// # Security Considerations
//
//   - TLS is enabled per broker (tls: true)
//   - Credentials may come from the environment instead of config.yaml
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client := mqtt.New(cfg.MQTT, topics)
//	client.SetOnConnect(func() { ... register and subscribe ... })
//	go client.ConnectWithRetry(ctx)
//	defer client.Close()
//
//	client.Publish(topics.Heartbeat(), payload, 1, false)
package mqtt
