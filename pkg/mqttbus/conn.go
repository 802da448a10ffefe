package mqttbus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var (
	ErrConfig  = errors.New("mqttbus: invalid configuration")
	ErrPublish = errors.New("mqttbus: publish failed")
)

type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	ClientID string `mapstructure:"client_id"`
	QoS      byte   `mapstructure:"qos"`

	// PresenceTopic is the root under which clients announce themselves
	// as <root>/<client id>. Empty disables presence.
	PresenceTopic string `mapstructure:"presence_topic"`

	ConnectRetries int           `mapstructure:"connect_retries"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Host) == "" {
		missing = append(missing, "host")
	}
	if strings.TrimSpace(c.ClientID) == "" {
		missing = append(missing, "client id")
	}
	if strings.TrimSpace(c.User) == "" || c.Password == "" {
		missing = append(missing, "credentials")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrConfig, strings.Join(missing, ", "))
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrConfig, c.Port)
	}
	if c.QoS > 2 {
		return fmt.Errorf("%w: qos %d", ErrConfig, c.QoS)
	}
	return nil
}

func (c Config) brokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

func (c Config) ownPresenceTopic() string {
	if c.PresenceTopic == "" {
		return ""
	}
	return strings.TrimRight(c.PresenceTopic, "/") + "/" + c.ClientID
}

// State is a connection transition reported to a state listener.
type State string

const (
	StateConnected    State = "connected"
	StateReconnected  State = "reconnected"
	StateDisconnected State = "disconnected"
)

const (
	presenceOnline  = "online"
	presenceOffline = "offline"
)

type Option func(*Client)

// WithStateListener observes connection transitions. It runs on paho's goroutines.
func WithStateListener(fn func(State)) Option {
	return func(c *Client) { c.listener = fn }
}

// WithClientFactory replaces mqtt.NewClient; tests pass a fake.
func WithClientFactory(fn func(*mqtt.ClientOptions) mqtt.Client) Option {
	return func(c *Client) { c.newClient = fn }
}

func withBackOff(fn func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = fn }
}

// Client is a JSON message bus over one MQTT connection.
type Client struct {
	cfg  Config
	conn mqtt.Client

	mu         sync.RWMutex
	handlers   map[string]Handler
	subscribed map[string]bool // channel -> presence dispatcher

	listener   func(State)
	newClient  func(*mqtt.ClientOptions) mqtt.Client
	newBackOff func() backoff.BackOff
	now        func() time.Time

	connectedOnce atomic.Bool
	closeOnce     sync.Once
}

// Dial connects with exponential backoff. Once connected, reconnection is left to paho.
// The connection is closed when ctx is cancelled.
func Dial(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ConnectRetries <= 0 {
		cfg.ConnectRetries = 5
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}

	c := &Client{
		cfg:        cfg,
		handlers:   make(map[string]Handler),
		subscribed: make(map[string]bool),
		newClient:  mqtt.NewClient,
		now:        time.Now,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = 10 * time.Second
			return bo
		},
	}
	for _, o := range opts {
		o(c)
	}

	mopts := c.clientOptions()
	bo := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(cfg.ConnectRetries-1)), ctx)
	err := backoff.Retry(func() error {
		conn := c.newClient(mopts)
		if token := conn.Connect(); token.Wait() && token.Error() != nil {
			log.Printf("mqttbus: connect to %s failed: %v", cfg.brokerURL(), token.Error())
			return token.Error()
		}
		c.conn = conn
		return nil
	}, bo)
	if err != nil {
		return nil, fmt.Errorf("mqttbus: could not connect to %s after retries: %w", cfg.brokerURL(), err)
	}
	log.Printf("mqttbus: connected to %s as %s", cfg.brokerURL(), cfg.ClientID)

	go func() {
		<-ctx.Done()
		c.Close()
	}()
	return c, nil
}

func (c *Client) clientOptions() *mqtt.ClientOptions {
	o := mqtt.NewClientOptions()
	o.AddBroker(c.cfg.brokerURL())
	o.SetUsername(c.cfg.User)
	o.SetPassword(c.cfg.Password)
	o.SetClientID(c.cfg.ClientID)
	o.SetCleanSession(true)
	o.SetAutoReconnect(true)
	o.SetKeepAlive(30 * time.Second)
	o.SetConnectTimeout(5 * time.Second)
	// handlers publish from inside callbacks; ordered delivery would deadlock on the token wait
	o.SetOrderMatters(false)
	if t := c.cfg.ownPresenceTopic(); t != "" {
		o.SetWill(t, presenceOffline, 1, true)
	}
	o.SetOnConnectHandler(c.onConnect)
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("mqttbus: connection lost: %v", err)
		c.notify(StateDisconnected)
	})
	o.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		log.Printf("mqttbus: reconnecting to %s", c.cfg.brokerURL())
	})
	return o
}

func (c *Client) onConnect(conn mqtt.Client) {
	if t := c.cfg.ownPresenceTopic(); t != "" {
		tok := conn.Publish(t, 1, true, presenceOnline)
		if tok.WaitTimeout(c.cfg.PublishTimeout) && tok.Error() != nil {
			log.Printf("mqttbus: presence announce failed: %v", tok.Error())
		}
	}
	if !c.connectedOnce.CompareAndSwap(false, true) {
		c.resubscribe(conn)
		log.Printf("mqttbus: reconnected to %s", c.cfg.brokerURL())
		c.notify(StateReconnected)
		return
	}
	c.notify(StateConnected)
}

// resubscribe re-issues active subscriptions, which a clean session drops.
func (c *Client) resubscribe(conn mqtt.Client) {
	c.mu.RLock()
	subs := make(map[string]bool, len(c.subscribed))
	for ch, p := range c.subscribed {
		subs[ch] = p
	}
	c.mu.RUnlock()
	for ch, presence := range subs {
		cb := c.dispatch(ch)
		if presence {
			cb = c.logPresence
		}
		tok := conn.Subscribe(ch, c.cfg.QoS, cb)
		if tok.WaitTimeout(c.cfg.PublishTimeout) && tok.Error() != nil {
			log.Printf("mqttbus: resubscribe %s failed: %v", ch, tok.Error())
		}
	}
}

func (c *Client) notify(s State) {
	if c.listener != nil {
		c.listener(s)
	}
}

// IsConnected reports whether the transport currently has an open connection.
func (c *Client) IsConnected() bool {
	return c != nil && c.conn != nil && c.conn.IsConnectionOpen()
}

// Close unsubscribes every channel, withdraws presence and disconnects. Safe to call twice.
func (c *Client) Close() {
	if c == nil || c.conn == nil {
		return
	}
	c.closeOnce.Do(func() {
		c.mu.Lock()
		channels := make([]string, 0, len(c.subscribed))
		for ch := range c.subscribed {
			channels = append(channels, ch)
		}
		c.subscribed = make(map[string]bool)
		c.mu.Unlock()

		if len(channels) > 0 && c.conn.IsConnectionOpen() {
			tok := c.conn.Unsubscribe(channels...)
			tok.WaitTimeout(c.cfg.PublishTimeout)
		}
		if t := c.cfg.ownPresenceTopic(); t != "" && c.conn.IsConnectionOpen() {
			tok := c.conn.Publish(t, 1, true, presenceOffline)
			tok.WaitTimeout(c.cfg.PublishTimeout)
		}
		c.conn.Disconnect(250)
		c.notify(StateDisconnected)
		log.Println("mqttbus: connection closed")
	})
}
