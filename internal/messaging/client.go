package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Handler receives inbound messages
type Handler func(topic string, payload []byte)

// Config holds MQTT client configuration
type Config struct {
	BrokerURL string `yaml:"broker_url"`
	ClientID  string `yaml:"client_id"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	QoS       byte   `yaml:"qos"`

	PublishTimeout time.Duration `yaml:"-"`
	ConnectTimeout time.Duration `yaml:"-"`

	// Initial connect attempts (exponential backoff). Paho handles
	// reconnects after the first successful connection.
	ConnectRetries    int           `yaml:"-"`
	InitialRetryDelay time.Duration `yaml:"-"`
	MaxRetryDelay     time.Duration `yaml:"-"`
	JitterPercent     float64       `yaml:"-"`
}

// DefaultConfig returns default MQTT client configuration
func DefaultConfig() Config {
	return Config{
		BrokerURL:         "tcp://localhost:1883",
		ClientID:          "agri-controller",
		QoS:               1,
		PublishTimeout:    3 * time.Second,
		ConnectTimeout:    5 * time.Second,
		ConnectRetries:    5,
		InitialRetryDelay: 1 * time.Second,
		MaxRetryDelay:     16 * time.Second,
		JitterPercent:     0.25,
	}
}

// Client is an explicitly owned MQTT connection. Subscriptions are
// remembered and replayed on every (re)connect.
type Client struct {
	config Config
	conn   mqtt.Client

	mu        sync.RWMutex
	connected bool

	subMu sync.Mutex
	subs  map[string]Handler
}

// NewClient creates a client for the configured broker. It does not connect.
func NewClient(config Config) *Client {
	c := &Client{
		config: config,
		subs:   make(map[string]Handler),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.BrokerURL)
	opts.SetClientID(fmt.Sprintf("%s-%s", config.ClientID, uuid.New().String()[:8]))
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(config.ConnectTimeout)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(false)
	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}

	opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		log.Printf("MQTT: unhandled message on %s", msg.Topic())
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v", err)
		c.setConnected(false)
	})
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		log.Println("MQTT reconnecting...")
	})

	c.conn = mqtt.NewClient(opts)
	return c
}

func newClientWithConn(config Config, conn mqtt.Client) *Client {
	return &Client{
		config: config,
		conn:   conn,
		subs:   make(map[string]Handler),
	}
}

// Connect dials the broker, retrying with backoff until the retry budget
// or ctx runs out
func (c *Client) Connect(ctx context.Context) error {
	if c.IsConnected() {
		return nil
	}

	log.Printf("Connecting to MQTT broker %s", c.config.BrokerURL)

	delay := c.config.InitialRetryDelay
	var err error
	for attempt := 1; attempt <= c.config.ConnectRetries; attempt++ {
		token := c.conn.Connect()
		if token.WaitTimeout(c.config.ConnectTimeout) && token.Error() == nil {
			c.setConnected(true)
			return nil
		}
		err = token.Error()
		if err == nil {
			err = fmt.Errorf("timed out after %v", c.config.ConnectTimeout)
		}

		if attempt == c.config.ConnectRetries {
			break
		}
		log.Printf("MQTT connect attempt %d/%d failed: %v, retrying in %v", attempt, c.config.ConnectRetries, err, delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.jitter(delay)):
		}

		delay *= 2
		if delay > c.config.MaxRetryDelay {
			delay = c.config.MaxRetryDelay
		}
	}

	return fmt.Errorf("failed to connect to %s after %d attempts: %w", c.config.BrokerURL, c.config.ConnectRetries, err)
}

// Disconnect closes the connection
func (c *Client) Disconnect() {
	c.setConnected(false)
	if c.conn != nil && c.conn.IsConnected() {
		c.conn.Disconnect(250)
	}
}

// IsConnected reports whether the broker session is up
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.conn.IsConnected()
}

// Subscribe registers handler for filter. The subscription is sent now if
// connected and again after every reconnect.
func (c *Client) Subscribe(filter string, handler Handler) error {
	c.subMu.Lock()
	c.subs[filter] = handler
	c.subMu.Unlock()

	if !c.IsConnected() {
		return nil
	}
	return c.subscribe(filter, handler)
}

// Publish sends payload with the configured QoS and waits briefly for the
// broker's acknowledgment
func (c *Client) Publish(topic string, payload []byte) Result {
	if !c.IsConnected() {
		return failed("not connected")
	}

	token := c.conn.Publish(topic, c.config.QoS, false, payload)
	if !token.WaitTimeout(c.config.PublishTimeout) {
		return attempted(fmt.Sprintf("no broker ack within %v", c.config.PublishTimeout))
	}
	if err := token.Error(); err != nil {
		return failed("publish: %v", err)
	}
	return delivered()
}

// PublishJSON marshals v and publishes it
func (c *Client) PublishJSON(topic string, v any) Result {
	data, err := json.Marshal(v)
	if err != nil {
		return failed("marshal payload: %v", err)
	}
	return c.Publish(topic, data)
}

func (c *Client) onConnect(_ mqtt.Client) {
	log.Printf("Connected to MQTT broker %s", c.config.BrokerURL)
	c.setConnected(true)

	c.subMu.Lock()
	subs := make(map[string]Handler, len(c.subs))
	for filter, h := range c.subs {
		subs[filter] = h
	}
	c.subMu.Unlock()

	for filter, h := range subs {
		if err := c.subscribe(filter, h); err != nil {
			log.Printf("Failed to subscribe: %v", err)
		}
	}
}

func (c *Client) subscribe(filter string, handler Handler) error {
	token := c.conn.Subscribe(filter, c.config.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", filter, token.Error())
	}
	log.Printf("Subscribed to %s", filter)
	return nil
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Client) jitter(d time.Duration) time.Duration {
	j := d.Seconds() * c.config.JitterPercent * (rand.Float64()*2 - 1)
	return d + time.Duration(j*float64(time.Second))
}
