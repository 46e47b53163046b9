package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/sentient-media-agent/internal/clock"
	"github.com/nerrad567/sentient-media-agent/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for a single media controller.
//
// It provides broker selection, message publishing, subscription handling,
// connection status publication and automatic reconnection.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are automatically restored on reconnection.
type Client struct {
	cfg      config.MQTTConfig
	topics   Topics
	clientID string
	clock    clock.Clock

	// client is the paho client for the selected broker; nil until a
	// candidate has been tried.
	client    pahomqtt.Client
	brokerURL string
	clientMu  sync.RWMutex

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	// connected tracks current connection state.
	connected bool
	closed    bool
	connMu    sync.RWMutex

	// Callbacks for connection events (optional, set via SetOnConnect/SetOnDisconnect).
	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked in separate goroutines by the paho library.
// They should not block for extended periods.
//
// Parameters:
//   - topic: The topic the message was received on
//   - payload: The raw message payload
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// New creates a Client for cfg. No connection is made until Connect.
//
// The client id is the configured prefix plus a random suffix so that a
// restarted agent never collides with its own stale broker session.
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//   - topics: Topic builder for this controller (connection status, LWT)
func New(cfg config.MQTTConfig, topics Topics) *Client {
	return &Client{
		cfg:           cfg,
		topics:        topics,
		clientID:      newClientID(cfg.ClientIDPrefix),
		clock:         clock.Real(),
		subscriptions: make(map[string]subscription),
	}
}

// newClientID returns "<prefix>_<8 hex>".
func newClientID(prefix string) string {
	if prefix == "" {
		prefix = "media-agent"
	}
	suffix := uuid.NewString()[:8]
	return prefix + "_" + suffix
}

// ClientID returns the MQTT client id used for every broker candidate.
func (c *Client) ClientID() string {
	return c.clientID
}

// Broker returns the URL of the broker the client last connected to, or
// "" if no candidate has succeeded.
func (c *Client) Broker() string {
	c.clientMu.RLock()
	defer c.clientMu.RUnlock()
	return c.brokerURL
}

// Connect tries each configured broker in order and keeps the first that
// accepts the connection.
//
// Once connected, paho reconnects to the same broker on its own; the
// candidate list is not re-scanned.
//
// It performs the following setup per candidate:
//  1. Builds connection options (broker URL, auth, TLS, keepalive)
//  2. Configures Last Will and Testament (LWT) on the connection topic
//  3. Attempts the connection within the connect timeout
//
// Returns:
//   - error: ErrConnectionFailed (wrapped) if no candidate is reachable
func (c *Client) Connect(ctx context.Context) error {
	if len(c.cfg.Brokers) == 0 {
		return fmt.Errorf("%w: no brokers configured", ErrConnectionFailed)
	}

	var errs []error
	for _, broker := range c.cfg.Brokers {
		if err := ctx.Err(); err != nil {
			return err
		}

		url := brokerURL(broker)
		if err := c.connectTo(ctx, broker); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.warn("MQTT broker unreachable", "broker", url, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", url, err))
			continue
		}

		if logger := c.getLogger(); logger != nil {
			logger.Info("connected to MQTT broker", "broker", c.Broker(), "client_id", c.clientID)
		}
		return nil
	}

	return fmt.Errorf("%w: %w", ErrConnectionFailed, errors.Join(errs...))
}

// connectTo makes one connection attempt against broker.
func (c *Client) connectTo(ctx context.Context, broker config.MQTTBrokerConfig) error {
	opts := buildClientOptions(c.cfg, broker, c.clientID)
	configureLWT(opts, c.topics.Connection(), c.clientID, c.topics.ControllerID)

	url := brokerURL(broker)
	opts.SetOnConnectHandler(func(pc pahomqtt.Client) {
		c.handleConnect(pc, url)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.warn("MQTT reconnecting", "broker", url)
	})

	pc := pahomqtt.NewClient(opts)
	token := pc.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		pc.Disconnect(0)
		return ctx.Err()
	case <-time.After(defaultConnectTimeout):
		pc.Disconnect(0)
		return fmt.Errorf("timeout after %v", defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return err
	}

	c.clientMu.Lock()
	c.client = pc
	c.brokerURL = url
	c.clientMu.Unlock()

	// The OnConnect handler runs asynchronously and may not have executed
	// yet, so connected is set here too.
	c.connMu.Lock()
	c.connected = true
	c.closed = false
	c.connMu.Unlock()

	return nil
}

// ConnectWithRetry calls Connect until it succeeds or ctx is cancelled,
// doubling the wait between scans from reconnect.initial_delay up to
// reconnect.max_delay.
//
// Returns:
//   - error: nil once connected, or the context's error
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	delay := c.cfg.Reconnect.GetInitialDelay()
	maxDelay := c.cfg.Reconnect.GetMaxDelay()

	for {
		err := c.Connect(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.warn("no MQTT broker reachable, operating locally", "retry_in", delay, "error", err)

		wake := make(chan struct{})
		timer := c.clock.AfterFunc(delay, func() { close(wake) })
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-wake:
		}

		delay = nextBackoff(delay, maxDelay)
	}
}

// nextBackoff doubles d, capped at maxDelay.
func nextBackoff(d, maxDelay time.Duration) time.Duration {
	if d <= 0 {
		d = time.Second
	}
	d *= 2
	if maxDelay > 0 && d > maxDelay {
		d = maxDelay
	}
	return d
}

// handleConnect is called on the initial connection and every reconnect.
func (c *Client) handleConnect(pc pahomqtt.Client, url string) {
	// On the first connect this may run before connectTo stores pc, and
	// the callback below publishes through getClient.
	c.clientMu.Lock()
	c.client = pc
	c.brokerURL = url
	c.clientMu.Unlock()

	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.restoreSubscriptions(pc)
	c.publishStatus(pc, statusOnline, "")

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.warn("MQTT connection lost", "error", err)

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// publishStatus publishes a retained status record to the connection topic.
func (c *Client) publishStatus(pc pahomqtt.Client, status, reason string) pahomqtt.Token {
	payload := buildStatusPayload(status, reason, c.clientID, c.topics.ControllerID)
	return pc.Publish(c.topics.Connection(), byte(c.cfg.QoS), true, payload)
}

// Close gracefully disconnects from the MQTT broker.
//
// It performs:
//  1. Publishes graceful offline status (different from LWT crash status)
//  2. Waits for pending publish operations
//  3. Disconnects from broker
//
// Calling Close more than once is a no-op.
func (c *Client) Close() error {
	pc := c.getClient()
	if pc == nil {
		return nil
	}

	c.connMu.Lock()
	if c.closed {
		c.connMu.Unlock()
		return nil
	}
	wasConnected := c.connected && pc.IsConnected()
	c.closed = true
	c.connMu.Unlock()

	if wasConnected {
		token := c.publishStatus(pc, statusOffline, reasonGraceful)
		token.WaitTimeout(defaultPublishTimeout)
	}

	pc.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	pc := c.getClient()
	if pc == nil {
		return false
	}

	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && !c.closed && pc.IsConnected()
}

// SetOnConnect sets a callback to be invoked when connection is established.
// This is called on initial connect and on every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when connection is lost.
// The error parameter describes why the connection was lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for connection, error and panic logging.
// If not set, errors in handlers are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getClient() pahomqtt.Client {
	c.clientMu.RLock()
	defer c.clientMu.RUnlock()
	return c.client
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) warn(msg string, args ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Warn(msg, args...)
	}
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.warn("MQTT handler returned error",
				"topic", msg.Topic(),
				"error", err,
			)
		}
	}
}
