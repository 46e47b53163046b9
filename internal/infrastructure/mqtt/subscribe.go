package mqtt

import (
	"fmt"
	"sort"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscribe routes messages on topic to handler and remembers the
// subscription so it is restored after every reconnect. Subscribing a topic
// that is already tracked replaces its handler.
//
// The agent subscribes exact command topics only; wildcards are passed
// through to the broker unchanged.
//
// Handlers run on paho's delivery goroutines. A handler error is logged;
// a panic is recovered and logged.
//
// Example:
//
//	err := client.Subscribe(topics.LegacyStart(), 1,
//	    func(topic string, payload []byte) error {
//	        return queue.Push(topic, payload)
//	    })
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := validate(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	sub := subscription{topic: topic, qos: qos, handler: handler}
	c.track(sub)

	token := c.getClient().Subscribe(topic, qos, c.wrapHandler(handler))
	if err := awaitToken(token, ErrSubscribeFailed); err != nil {
		c.untrack(topic)
		return err
	}
	return nil
}

// Subscriptions returns the tracked topics in sorted order.
func (c *Client) Subscriptions() []string {
	c.subMu.RLock()
	topics := make([]string, 0, len(c.subscriptions))
	for topic := range c.subscriptions {
		topics = append(topics, topic)
	}
	c.subMu.RUnlock()

	sort.Strings(topics)
	return topics
}

func (c *Client) track(sub subscription) {
	c.subMu.Lock()
	c.subscriptions[sub.topic] = sub
	c.subMu.Unlock()
}

func (c *Client) untrack(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

// restoreSubscriptions re-issues every tracked subscription on pc. It does
// not wait for acknowledgements: it runs inside paho's OnConnect callback,
// and a subscription lost here is issued again by the registration pass that
// follows every connect.
func (c *Client) restoreSubscriptions(pc pahomqtt.Client) {
	c.subMu.RLock()
	subs := make([]subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subs = append(subs, sub)
	}
	c.subMu.RUnlock()

	for _, sub := range subs {
		pc.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
	if logger := c.getLogger(); logger != nil && len(subs) > 0 {
		logger.Info("MQTT subscriptions restored", "count", len(subs))
	}
}

// awaitToken waits for token up to the publish timeout and wraps any
// failure in kind.
func awaitToken(token pahomqtt.Token, kind error) error {
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", kind, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return nil
}

// validate checks the topic and QoS shared by Publish and Subscribe.
func validate(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}
