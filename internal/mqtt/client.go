package mqtt

import (
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Config configures the broker connection
type Config struct {
	Broker      string // host:port or tcp://host:port
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// Client is a connected MQTT client
type Client struct {
	client paho.Client
	qos    byte
}

// NewClient connects to the broker
func NewClient(cfg Config) (*Client, error) {
	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "hound"
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetOnConnectHandler(func(paho.Client) {
			log.Infof("[MQTT] Connected to %s", broker)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warnf("[MQTT] Connection lost: %v", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", broker, token.Error())
	}

	return &Client{client: client, qos: cfg.QoS}, nil
}

// Publish sends a payload and waits for the broker to accept it
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	token := c.client.Publish(topic, c.qos, retained, payload)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("timed out publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker
func (c *Client) Close() {
	c.client.Disconnect(250)
}
