package mqttbus

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Handler receives the raw payload of a message delivered on channel.
type Handler func(channel string, payload []byte) error

// Publish sends message as a JSON object on channel and waits for the transport.
// A missing timestamp is filled with the current UTC time.
// Any error means the message was not delivered; there is no retry.
func (c *Client) Publish(channel string, message any) error {
	payload, err := encode(message, c.now())
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPublish, channel, err)
	}
	tok := c.conn.Publish(channel, c.cfg.QoS, false, payload)
	if !tok.WaitTimeout(c.cfg.PublishTimeout) {
		return fmt.Errorf("%w: %s: timed out after %s", ErrPublish, channel, c.cfg.PublishTimeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPublish, channel, err)
	}
	return nil
}

func encode(message any, now time.Time) ([]byte, error) {
	raw, err := json.Marshal(message)
	if err != nil {
		return nil, err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("message is not a JSON object")
	}
	if ts, ok := obj["timestamp"]; !ok || string(ts) == "null" || string(ts) == `""` {
		obj["timestamp"], _ = json.Marshal(now.UTC().Format(time.RFC3339Nano))
	}
	return json.Marshal(obj)
}

// AddHandler installs fn for channel. One handler per channel: a second
// registration replaces the first and is reported.
func (c *Client) AddHandler(channel string, fn Handler) (replaced bool) {
	c.mu.Lock()
	_, replaced = c.handlers[channel]
	c.handlers[channel] = fn
	c.mu.Unlock()
	if replaced {
		log.Printf("mqttbus: WARNING handler for %s replaced, the previous one will no longer run", channel)
	}
	return replaced
}

// Subscribe attaches the dispatcher to each channel. With presence it also
// follows peers announcing on the presence root.
func (c *Client) Subscribe(channels []string, withPresence bool) error {
	for _, ch := range channels {
		ch = strings.TrimSpace(ch)
		if ch == "" {
			continue
		}
		tok := c.conn.Subscribe(ch, c.cfg.QoS, c.dispatch(ch))
		if err := c.await(tok); err != nil {
			return fmt.Errorf("mqttbus: subscribe %s: %w", ch, err)
		}
		c.mu.Lock()
		c.subscribed[ch] = false
		c.mu.Unlock()
		log.Printf("mqttbus: subscribed to %s", ch)
	}

	if withPresence && c.cfg.PresenceTopic != "" {
		root := strings.TrimRight(c.cfg.PresenceTopic, "/") + "/+"
		tok := c.conn.Subscribe(root, 1, c.logPresence)
		if err := c.await(tok); err != nil {
			return fmt.Errorf("mqttbus: subscribe %s: %w", root, err)
		}
		c.mu.Lock()
		c.subscribed[root] = true
		c.mu.Unlock()
	}
	return nil
}

// Unsubscribe detaches channels and drops their handlers. A message already
// inside its handler finishes; nothing is dispatched to these channels afterwards.
func (c *Client) Unsubscribe(channels ...string) error {
	c.mu.Lock()
	for _, ch := range channels {
		delete(c.handlers, ch)
		delete(c.subscribed, ch)
	}
	c.mu.Unlock()
	if len(channels) == 0 || !c.IsConnected() {
		return nil
	}
	if err := c.await(c.conn.Unsubscribe(channels...)); err != nil {
		return fmt.Errorf("mqttbus: unsubscribe %s: %w", strings.Join(channels, ","), err)
	}
	log.Printf("mqttbus: unsubscribed from %s", strings.Join(channels, ","))
	return nil
}

// await waits for tok at most PublishTimeout.
func (c *Client) await(tok mqtt.Token) error {
	if !tok.WaitTimeout(c.cfg.PublishTimeout) {
		return fmt.Errorf("timed out after %s", c.cfg.PublishTimeout)
	}
	return tok.Error()
}

func (c *Client) dispatch(channel string) mqtt.MessageHandler {
	return func(_ mqtt.Client, m mqtt.Message) {
		c.mu.RLock()
		h := c.handlers[channel]
		c.mu.RUnlock()
		if h == nil {
			log.Printf("mqttbus: no handler for %s, message dropped", channel)
			return
		}
		if err := h(channel, m.Payload()); err != nil {
			log.Printf("mqttbus: handling message on %s: %v", channel, err)
		}
	}
}

func (c *Client) logPresence(_ mqtt.Client, m mqtt.Message) {
	peer := m.Topic()
	if i := strings.LastIndex(peer, "/"); i >= 0 {
		peer = peer[i+1:]
	}
	if peer == c.cfg.ClientID {
		return
	}
	log.Printf("mqttbus: peer %s is %s", peer, string(m.Payload()))
}
