// Package mqtt adapts Eclipse Paho to the core bus interface.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/evbridge/voc2mqtt/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker     string `json:"broker"`
	ClientID   string `json:"client_id"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	UseTLS     bool   `json:"use_tls"`
	ClientCert string `json:"client_cert"`
	ClientKey  string `json:"client_key"`
	CABundle   string `json:"ca_bundle"`
	// CleanSession starts a fresh broker session on connect. The default
	// (false) lets the broker resume subscriptions across restarts.
	CleanSession bool   `json:"clean_session"`
	QoS          byte   `json:"qos"`
	LWTTopic     string `json:"lwt_topic"`
	LWTPayload   string `json:"lwt_payload"`
	LWTRetain    bool   `json:"lwt_retain"`

	TLSConfig *tls.Config   `json:"-"`
	Logger    logger.Logger `json:"-"`
}

// SetDefaults fills a client id when none is configured.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "voc2mqtt-" + uuid.NewString()[:8]
	}
}

// LoadTLSConfig loads the TLS configuration from the file paths in the
// config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// Client implements the core bus.Bus interface on top of Paho.
type Client struct {
	cli          pahoClient
	qos          byte
	cleanSession bool
	log          logger.Logger

	mu            sync.Mutex
	onMessage     func(topic string, payload []byte)
	onConnect     func(resumed bool)
	onDisconnect  func(err error)
	connected     bool
	connectedOnce bool
}

var newPahoClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewClient connects to the broker and returns the bus adapter. Connect
// failure at startup is fatal to the caller; later drops are handled by
// Paho's auto-reconnect.
func NewClient(cfg Config) (*Client, error) {
	cfg.SetDefaults()
	log := cfg.Logger
	if log == nil {
		log = logger.New("mqtt_client")
	}

	c := &Client{qos: cfg.QoS, cleanSession: cfg.CleanSession, log: log}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(cfg.CleanSession).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.QoS, cfg.LWTRetain)
	}

	opts.OnConnect = func(_ paho.Client) { c.handleConnect() }
	opts.OnConnectionLost = func(_ paho.Client, err error) { c.handleDisconnect(err) }
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}

	cli := newPahoClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, token.Error())
	}
	c.cli = cli
	return c, nil
}

// Publish sends payload to topic and waits for the token.
func (c *Client) Publish(topic string, payload []byte, retain bool) error {
	token := c.cli.Publish(topic, c.qos, retain, payload)
	token.Wait()
	return token.Error()
}

// Subscribe routes inbound messages on topic to the message handler.
func (c *Client) Subscribe(topic string) error {
	token := c.cli.Subscribe(topic, c.qos, func(_ paho.Client, msg paho.Message) {
		c.mu.Lock()
		h := c.onMessage
		c.mu.Unlock()
		if h != nil {
			h(msg.Topic(), msg.Payload())
		}
	})
	token.Wait()
	return token.Error()
}

func (c *Client) SetMessageHandler(fn func(topic string, payload []byte)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

// SetConnectHandler installs the connect callback. When the client is
// already connected the callback fires immediately, so handlers
// installed after the initial connect still see the cold start.
func (c *Client) SetConnectHandler(fn func(resumed bool)) {
	c.mu.Lock()
	c.onConnect = fn
	connected := c.connected
	c.mu.Unlock()
	if connected && fn != nil {
		fn(false)
	}
}

func (c *Client) SetDisconnectHandler(fn func(err error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// Close disconnects from the broker.
func (c *Client) Close() {
	if c.cli != nil && c.cli.IsConnected() {
		c.cli.Disconnect(250)
	}
}

func (c *Client) handleConnect() {
	c.mu.Lock()
	// A persistent session restored on reconnect keeps its server-side
	// subscriptions and the retained discovery messages.
	resumed := c.connectedOnce && !c.cleanSession
	c.connected = true
	c.connectedOnce = true
	h := c.onConnect
	c.mu.Unlock()

	c.log.Infof("MQTT connected (resumed=%t)", resumed)
	if h != nil {
		h(resumed)
	}
}

func (c *Client) handleDisconnect(err error) {
	c.mu.Lock()
	c.connected = false
	h := c.onDisconnect
	c.mu.Unlock()

	c.log.Errorf("MQTT connection lost: %v", err)
	if h != nil {
		h(err)
	}
}
