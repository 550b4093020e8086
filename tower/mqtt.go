package tower

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// HandoffHandler is called for every hand-off message received.
// Parameters: topic, decoded fixes, decode error
type HandoffHandler func(topic string, fixes []Handoff, err error)

// MQTTClient manages the MQTT connection and the hand-off subscription
type MQTTClient struct {
	client      mqtt.Client
	config      *Config
	handler     HandoffHandler
	isConnected bool
	mu          sync.RWMutex
}

// ResolveMQTT applies the MQTT_* environment overrides to the config values
func ResolveMQTT(cfg MQTTConfig) MQTTConfig {
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		cfg.Broker = v
	}
	if v := os.Getenv("MQTT_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "celltower"
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("MQTT_PUBLISH_PREFIX"); v != "" {
		cfg.PublishPrefix = v
	}
	return cfg
}

// InitMQTT builds an MQTT client with the provided configuration. It does not
// connect; call Start once everything the handler touches is in place.
// If neither MQTT_BROKER nor mqtt.broker is set, MQTT is disabled and this returns nil
func InitMQTT(config *Config, handler HandoffHandler) (*MQTTClient, error) {
	if config == nil {
		return nil, fmt.Errorf("MQTT requires a configuration")
	}

	settings := ResolveMQTT(config.MQTT)
	if settings.Broker == "" {
		log.Println("MQTT disabled: MQTT_BROKER not set")
		return nil, nil
	}
	if settings.Topic == "" {
		return nil, fmt.Errorf("MQTT enabled but no hand-off topic configured")
	}

	resolved := *config
	resolved.MQTT = settings
	client := &MQTTClient{
		config:  &resolved,
		handler: handler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(settings.Broker)
	opts.SetClientID(settings.ClientID)
	if settings.Username != "" {
		opts.SetUsername(settings.Username)
		opts.SetPassword(settings.Password)
	}

	// Connection settings
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false) // Preserve subscriptions on reconnect
	opts.SetOrderMatters(false)

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)
	return client, nil
}

// onConnectSetter is implemented by clients that take their connect handler
// after construction, such as MockClient
type onConnectSetter interface {
	SetOnConnect(handler mqtt.OnConnectHandler)
}

// NewMQTTClient wraps an existing mqtt.Client. The hand-off subscription is
// registered on connect, so nothing reaches handler before Start.
func NewMQTTClient(client mqtt.Client, config *Config, handler HandoffHandler) *MQTTClient {
	c := &MQTTClient{
		client:  client,
		config:  config,
		handler: handler,
	}
	if s, ok := client.(onConnectSetter); ok {
		s.SetOnConnect(c.onConnect)
	}
	return c
}

// Start connects to the broker in the background. The hand-off subscription
// is made from the connect handler.
func (c *MQTTClient) Start() {
	go c.connectWithRetry()
}

// connectWithRetry attempts to connect to the MQTT broker with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("[MQTT] Connecting to broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("[MQTT] Connected to broker")
				c.setConnected(true)
				return
			}
			log.Printf("[MQTT] Connection failed: %v", token.Error())
		} else {
			log.Println("[MQTT] Connection timeout")
		}

		log.Printf("[MQTT] Retrying connection in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect subscribes to the hand-off topic; it runs again after every reconnect
func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)

	topic := c.config.MQTT.Topic
	log.Printf("[MQTT] Subscribing to %s", topic)
	token := client.Subscribe(topic, 0, c.handleMessage)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("[MQTT] Error subscribing to %s: %v", topic, token.Error())
		return
	}
	log.Printf("[MQTT] Subscribed to %s", topic)
}

// onConnectionLost is called when the MQTT connection is lost
// Auto-reconnect is enabled, so this is typically a transient event
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("[MQTT] Connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("[MQTT] Reconnecting...")
}

// handleMessage decodes a hand-off payload and passes it to the handler
func (c *MQTTClient) handleMessage(client mqtt.Client, msg mqtt.Message) {
	fixes, err := DecodeHandoff(msg.Topic(), msg.Payload())
	if err != nil {
		log.Printf("[MQTT] Error decoding hand-off on %s: %v", msg.Topic(), err)
	}
	if c.handler != nil {
		c.handler(msg.Topic(), fixes, err)
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("[MQTT] Disconnecting from broker...")
		c.client.Disconnect(250) // 250ms quiesce time
		c.setConnected(false)
	}
}

// PublishPrefix returns the resolved topic prefix for published estimates
func (c *MQTTClient) PublishPrefix() string {
	return c.config.MQTT.PublishPrefix
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}
