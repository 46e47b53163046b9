package mqtt

import "errors"

// Errors for MQTT operations. Use errors.Is() to check for them.
var (
	// ErrNotConnected is returned when publishing or subscribing while no
	// broker connection is up. Callers degrade to local-only operation.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when no broker candidate accepts the
	// connection.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when a publish is not acknowledged.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty topic is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
