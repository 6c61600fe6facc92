package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// ReadingHandler is called with the trial readings decoded from one message
type ReadingHandler func(values []float64)

// MQTTClient manages the broker connection and the readings subscription
type MQTTClient struct {
	client         mqtt.Client
	config         *Config
	readingHandler ReadingHandler
	logger         *zap.Logger
	isConnected    bool
	mu             sync.RWMutex
}

// InitMQTT creates and connects the MQTT client. If neither MQTT_BROKER nor
// the config names a broker, MQTT is disabled and this returns nil, nil.
func InitMQTT(config *Config, handler ReadingHandler, logger *zap.Logger) (*MQTTClient, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	broker := envOr("MQTT_BROKER", config.MQTT.Broker)
	if broker == "" {
		logger.Info("MQTT disabled: MQTT_BROKER not set")
		return nil, nil
	}
	if config.MQTT.ReadingsTopic == "" {
		return nil, fmt.Errorf("MQTT enabled but no readings topic configured")
	}

	client := &MQTTClient{
		config:         config,
		readingHandler: handler,
		logger:         logger.Named("mqtt"),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := envOr("MQTT_CLIENT_ID", config.MQTT.ClientID)
	if clientID == "" {
		clientID = "fsaudit"
	}
	opts.SetClientID(clientID)

	if username := envOr("MQTT_USERNAME", config.MQTT.Username); username != "" {
		opts.SetUsername(username)
		opts.SetPassword(envOr("MQTT_PASSWORD", config.MQTT.Password))
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false)
	// Trials are order-sensitive.
	opts.SetOrderMatters(true)

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		client.logger.Info("MQTT reconnecting")
	})

	client.client = mqtt.NewClient(opts)
	go client.connectWithRetry()

	return client, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// connectWithRetry attempts to connect with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		c.logger.Info("connecting to MQTT broker")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				c.logger.Info("connected to MQTT broker")
				c.setConnected(true)
				return
			}
			c.logger.Warn("MQTT connection failed", zap.Error(token.Error()))
		} else {
			c.logger.Warn("MQTT connection timeout")
		}

		c.logger.Info("retrying MQTT connection", zap.Duration("delay", retryDelay))
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)

	topic := c.config.MQTT.ReadingsTopic
	token := client.Subscribe(topic, 1, c.createReadingsHandler())
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		c.logger.Error("subscribe failed", zap.String("topic", topic), zap.Error(token.Error()))
		return
	}
	c.logger.Info("subscribed to readings", zap.String("topic", topic))
}

func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	c.logger.Warn("MQTT connection interrupted, auto-reconnect will retry", zap.Error(err))
	c.setConnected(false)
}

func (c *MQTTClient) createReadingsHandler() mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		values, err := parseReadingsPayload(msg.Payload())
		if err != nil {
			c.logger.Warn("dropping readings message",
				zap.String("topic", msg.Topic()), zap.Int("size", len(msg.Payload())), zap.Error(err))
			return
		}
		c.logger.Debug("received readings", zap.String("topic", msg.Topic()), zap.Float64s("values", values))
		if c.readingHandler != nil {
			c.readingHandler(values)
		}
	}
}

type readingsPayload struct {
	Value  *float64  `json:"value"`
	Values []float64 `json:"values"`
}

// parseReadingsPayload accepts {"value": x}, {"values": [...]}, a JSON
// number or string, or a bare decimal.
func parseReadingsPayload(payload []byte) ([]float64, error) {
	raw := strings.TrimSpace(string(payload))
	if raw == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidValue)
	}

	var obj readingsPayload
	if err := json.Unmarshal([]byte(raw), &obj); err == nil && (obj.Value != nil || obj.Values != nil) {
		var values []float64
		if obj.Value != nil {
			values = append(values, *obj.Value)
		}
		values = append(values, obj.Values...)
		if len(values) == 0 {
			return nil, fmt.Errorf("%w: no values in payload", ErrInvalidValue)
		}
		return checkReadings(values)
	}

	var str string
	if err := json.Unmarshal([]byte(raw), &str); err == nil {
		raw = strings.TrimSpace(str)
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidValue, raw)
	}
	return checkReadings([]float64{v})
}

func checkReadings(values []float64) ([]float64, error) {
	for _, v := range values {
		if err := checkFinite(v); err != nil {
			return nil, err
		}
	}
	return values, nil
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
		c.logger.Info("disconnecting from MQTT broker")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock wires an MQTTClient around a provided mqtt.Client
func newMQTTClientWithMock(client mqtt.Client, config *Config, handler ReadingHandler) *MQTTClient {
	return &MQTTClient{
		client:         client,
		config:         config,
		readingHandler: handler,
		logger:         zap.NewNop(),
	}
}
