package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/luke-wagner/PlantCare-Monitor/config"
	"github.com/luke-wagner/PlantCare-Monitor/internal/logger"
	"github.com/luke-wagner/PlantCare-Monitor/models"
)

var (
	// ErrNoServer broker address not configured
	ErrNoServer = errors.New("mqtt: server not configured")
	// ErrNotConnected publish or subscribe while offline
	ErrNotConnected = errors.New("mqtt: not connected")
)

const opTimeout = 5 * time.Second

// Client MQTT client
type Client interface {
	Connect() error
	Disconnect() error
	IsConnected() bool
	Publish(topic string, message interface{}) error
	PublishRetained(topic string, message interface{}) error
	Subscribe(topic string, handler MessageHandler) error
	GetStatus() (*Status, error)
}

// MessageHandler receives subscribed messages
type MessageHandler func(topic string, payload []byte)

// LogSink stores the message log
type LogSink interface {
	InsertMQTTLog(models.MQTTLog) error
}

// Status connection summary for the admin API
type Status struct {
	Connected        bool     `json:"connected"`
	Server           string   `json:"server"`
	ClientID         string   `json:"client_id"`
	ConnectedAt      string   `json:"connected_at"`
	SubscribedTopics []string `json:"subscribed_topics"`
	PublishedTopics  []string `json:"published_topics"`
}

type client struct {
	cfg    config.MQTTConfig
	topics Topics
	sink   LogSink

	mu               sync.RWMutex
	client           paho.Client
	connected        bool
	connectedAt      time.Time
	subscribedTopics map[string]MessageHandler
	publishedTopics  map[string]bool
}

// NewClient builds an unconnected client; sink may be nil
func NewClient(cfg config.MQTTConfig, sink LogSink) Client {
	return &client{
		cfg:              cfg,
		topics:           NewTopics(cfg.TopicPrefix, cfg.ClientID),
		sink:             sink,
		subscribedTopics: make(map[string]MessageHandler),
		publishedTopics:  make(map[string]bool),
	}
}

// Connect dials the broker; paho keeps reconnecting afterwards
func (c *client) Connect() error {
	if strings.TrimSpace(c.cfg.Server) == "" {
		return ErrNoServer
	}

	c.mu.Lock()
	if c.client != nil && c.client.IsConnected() {
		c.mu.Unlock()
		return nil
	}

	pc := paho.NewClient(c.options())
	c.client = pc
	c.mu.Unlock()

	token := pc.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return fmt.Errorf("mqtt: connect timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: connect: %w", err)
	}
	return nil
}

// options broker settings, last will and the connect/lost callbacks
func (c *client) options() *paho.ClientOptions {
	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", c.cfg.Server, c.cfg.Port))
	opts.SetClientID(c.cfg.ClientID)
	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetWill(c.topics.Status(), `{"status":"offline"}`, 1, true)

	opts.OnConnect = func(pc paho.Client) {
		logger.Info("MQTT connected to %s:%d", c.cfg.Server, c.cfg.Port)
		c.mu.Lock()
		c.connected = true
		c.connectedAt = time.Now()
		subs := make(map[string]MessageHandler, len(c.subscribedTopics))
		for t, h := range c.subscribedTopics {
			subs[t] = h
		}
		c.mu.Unlock()

		go func() {
			c.publishStatus(pc, "online")
			for topic, handler := range subs {
				if err := c.subscribeOn(pc, topic, handler); err != nil {
					logger.Warn("MQTT resubscribe %s: %v", topic, err)
				}
			}
		}()
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.Warn("MQTT connection lost: %v", err)
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}
	return opts
}

// Disconnect publishes offline status and closes the connection
func (c *client) Disconnect() error {
	c.mu.Lock()
	pc := c.client
	c.mu.Unlock()
	if pc == nil {
		return nil
	}
	if pc.IsConnected() {
		c.publishStatus(pc, "offline")
	}
	pc.Disconnect(250)

	c.mu.Lock()
	c.connected = false
	c.client = nil
	c.mu.Unlock()
	logger.Info("MQTT disconnected")
	return nil
}

// IsConnected broker session is up
func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// Publish QoS 1, not retained
func (c *client) Publish(topic string, message interface{}) error {
	return c.publish(topic, message, false)
}

// PublishRetained QoS 1, retained so a rebooting display gets the last value
func (c *client) PublishRetained(topic string, message interface{}) error {
	return c.publish(topic, message, true)
}

func (c *client) publish(topic string, message interface{}, retained bool) error {
	c.mu.RLock()
	pc := c.client
	c.mu.RUnlock()
	if pc == nil || !c.IsConnected() {
		return ErrNotConnected
	}
	return c.publishOn(pc, topic, message, retained)
}

func (c *client) publishOn(pc paho.Client, topic string, message interface{}, retained bool) error {
	payload, err := encode(message)
	if err != nil {
		return err
	}

	token := pc.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(opTimeout) {
		go c.logMessage("publish", topic, payload, 1, "timeout")
		return fmt.Errorf("mqtt: publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		go c.logMessage("publish", topic, payload, 1, "failed")
		return fmt.Errorf("mqtt: publish %s: %w", topic, err)
	}
	go c.logMessage("publish", topic, payload, 1, "success")

	c.mu.Lock()
	c.publishedTopics[topic] = true
	c.mu.Unlock()
	return nil
}

// Subscribe remembers the handler so it survives reconnects
func (c *client) Subscribe(topic string, handler MessageHandler) error {
	c.mu.Lock()
	c.subscribedTopics[topic] = handler
	pc := c.client
	c.mu.Unlock()

	if pc == nil || !c.IsConnected() {
		return ErrNotConnected
	}
	return c.subscribeOn(pc, topic, handler)
}

func (c *client) subscribeOn(pc paho.Client, topic string, handler MessageHandler) error {
	token := pc.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
		go c.logMessage("receive", msg.Topic(), msg.Payload(), int(msg.Qos()), "success")
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(opTimeout) {
		return fmt.Errorf("mqtt: subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: subscribe %s: %w", topic, err)
	}
	logger.Info("MQTT subscribed: %s", topic)
	return nil
}

// GetStatus connection summary
func (c *client) GetStatus() (*Status, error) {
	connected := c.IsConnected()

	c.mu.RLock()
	defer c.mu.RUnlock()

	subscribed := make([]string, 0, len(c.subscribedTopics))
	for topic := range c.subscribedTopics {
		subscribed = append(subscribed, topic)
	}
	sort.Strings(subscribed)
	published := make([]string, 0, len(c.publishedTopics))
	for topic := range c.publishedTopics {
		published = append(published, topic)
	}
	sort.Strings(published)

	connectedAt := ""
	if !c.connectedAt.IsZero() {
		connectedAt = c.connectedAt.Format(time.RFC3339)
	}
	server := ""
	if c.cfg.Server != "" {
		server = fmt.Sprintf("%s:%d", c.cfg.Server, c.cfg.Port)
	}
	return &Status{
		Connected:        connected,
		Server:           server,
		ClientID:         c.cfg.ClientID,
		ConnectedAt:      connectedAt,
		SubscribedTopics: subscribed,
		PublishedTopics:  published,
	}, nil
}

func (c *client) publishStatus(pc paho.Client, status string) {
	msg := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"device_id": c.cfg.ClientID,
	}
	if err := c.publishOn(pc, c.topics.Status(), msg, true); err != nil {
		logger.Warn("MQTT status publish: %v", err)
	}
}

func (c *client) logMessage(direction, topic string, payload []byte, qos int, status string) {
	if c.sink == nil {
		return
	}
	err := c.sink.InsertMQTTLog(models.MQTTLog{
		Timestamp: time.Now(),
		Direction: direction,
		Topic:     topic,
		QoS:       qos,
		Payload:   string(payload),
		Status:    status,
	})
	if err != nil {
		logger.Error("save MQTT log: %v", err)
	}
}

func encode(message interface{}) ([]byte, error) {
	switch v := message.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		b, err := json.Marshal(message)
		if err != nil {
			return nil, fmt.Errorf("mqtt: encode: %w", err)
		}
		return b, nil
	}
}
