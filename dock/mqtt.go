package dock

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ScanHandler is called for every message on the scan topic.
// Exactly one of scan and err is non-nil.
type ScanHandler func(scan *LaserScan, err error)

// PayloadHandler handles the raw payload of an auxiliary topic
type PayloadHandler func(payload []byte) error

// MQTTClient manages the broker connection and the scan, tf and goal result subscriptions
type MQTTClient struct {
	client      mqtt.Client
	config      *Config
	scanHandler ScanHandler
	routes      map[string]PayloadHandler
	isConnected bool
	mu          sync.RWMutex
}

var (
	globalClient *MQTTClient
	clientMu     sync.Mutex
)

// InitMQTT initializes the global MQTT client with the provided configuration
// If neither MQTT_BROKER nor mqtt.broker is set, MQTT is disabled and this returns nil
func InitMQTT(config *Config, handler ScanHandler) (*MQTTClient, error) {
	clientMu.Lock()
	defer clientMu.Unlock()

	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil && config.MQTT.Broker != "" {
		broker = config.MQTT.Broker
	}

	if broker == "" {
		log.Println("[MQTT] disabled: MQTT_BROKER not set")
		return nil, nil
	}

	if config == nil || config.MQTT.ScanTopic == "" {
		return nil, fmt.Errorf("MQTT enabled but mqtt.scanTopic is not configured")
	}

	client := newMQTTClient(nil, config, handler)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" && config.MQTT.ClientID != "" {
		clientID = config.MQTT.ClientID
	}
	if clientID == "" {
		clientID = "dockfinder"
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" && config.MQTT.Username != "" {
		username = config.MQTT.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" && config.MQTT.Password != "" {
			password = config.MQTT.Password
		}
		opts.SetPassword(password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false) // keep subscriptions across reconnects
	// Goal results must be able to arrive while a scan cycle waits on them.
	opts.SetOrderMatters(false)

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	go client.connectWithRetry()

	globalClient = client
	return client, nil
}

// GetMQTTClient returns the global MQTT client instance
func GetMQTTClient() *MQTTClient {
	clientMu.Lock()
	defer clientMu.Unlock()
	return globalClient
}

func newMQTTClient(client mqtt.Client, config *Config, handler ScanHandler) *MQTTClient {
	return &MQTTClient{
		client:      client,
		config:      config,
		scanHandler: handler,
		routes:      make(map[string]PayloadHandler),
	}
}

// connectWithRetry attempts to connect to the MQTT broker with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("[MQTT] connecting to broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("[MQTT] connected to broker")
				c.setConnected(true)
				return
			}
			log.Printf("[MQTT] connection failed: %v", token.Error())
		} else {
			log.Println("[MQTT] connection timeout")
		}

		log.Printf("[MQTT] retrying connection in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// Route registers a handler for an auxiliary topic (tf, goal results). Routes are
// subscribed on every (re)connect, and immediately if already connected.
func (c *MQTTClient) Route(topic string, handler PayloadHandler) {
	c.mu.Lock()
	c.routes[topic] = handler
	connected := c.isConnected
	c.mu.Unlock()

	if connected {
		c.subscribe(c.client, topic, c.createRouteHandler(topic, handler))
	}
}

// onConnect is called when the MQTT connection is established
func (c *MQTTClient) onConnect(client mqtt.Client) {
	log.Println("[MQTT] connected, subscribing...")
	c.setConnected(true)

	c.subscribe(client, c.config.MQTT.ScanTopic, c.createScanHandler())

	c.mu.RLock()
	routes := make(map[string]PayloadHandler, len(c.routes))
	for topic, h := range c.routes {
		routes[topic] = h
	}
	c.mu.RUnlock()

	for topic, h := range routes {
		c.subscribe(client, topic, c.createRouteHandler(topic, h))
	}
}

func (c *MQTTClient) subscribe(client mqtt.Client, topic string, handler mqtt.MessageHandler) {
	token := client.Subscribe(topic, 0, handler)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("[MQTT] error subscribing to %s: %v", topic, token.Error())
		return
	}
	log.Printf("[MQTT] subscribed to %s", topic)
}

// onConnectionLost is called when the MQTT connection is lost
// Auto-reconnect is enabled, so this is typically a transient event
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("[MQTT] connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("[MQTT] reconnecting...")
}

// createScanHandler decodes scan payloads (JSON or zlib JSON) for the scan handler
func (c *MQTTClient) createScanHandler() mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		payload := msg.Payload()

		scan, err := DecodeScan(payload)
		if err != nil {
			log.Printf("[MQTT] error decoding scan on %s (%d bytes): %v", msg.Topic(), len(payload), err)
		}
		if c.scanHandler != nil {
			c.scanHandler(scan, err)
		}
	}
}

func (c *MQTTClient) createRouteHandler(topic string, handler PayloadHandler) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		if err := handler(msg.Payload()); err != nil {
			log.Printf("[MQTT] error handling message on %s: %v", topic, err)
		}
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
		log.Println("[MQTT] disconnecting from broker...")
		c.client.Disconnect(250) // 250ms quiesce time
		c.setConnected(false)
	}
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}
