package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultMQTTPrefix         = "devhost"
	defaultMQTTConnectTimeout = 10 * time.Second
	defaultMQTTPublishTimeout = 5 * time.Second
	defaultMQTTQuiesce        = 250 // milliseconds
	defaultMQTTKeepAlive      = 30 * time.Second
	mqttInboundBuffer         = 64
)

// MQTTConfig configures MQTTTransport.
type MQTTConfig struct {
	// Broker is the broker URL, such as "tcp://localhost:1883".
	Broker string `yaml:"broker"`

	// ClientID defaults to "devhost-<hostID>".
	ClientID string `yaml:"client_id"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// TopicPrefix defaults to "devhost".
	TopicPrefix string `yaml:"topic_prefix"`

	// ConnectTimeout defaults to 10s.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// MQTTTransport carries envelopes over an MQTT broker. The host publishes on
// <prefix>/host/<hostID>/up and receives instructions on
// <prefix>/host/<hostID>/down, both with QoS 1.
type MQTTTransport struct {
	cfg    MQTTConfig
	hostID string
}

// NewMQTTTransport creates an MQTT transport for hostID.
func NewMQTTTransport(cfg MQTTConfig, hostID string) *MQTTTransport {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = defaultMQTTPrefix
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "devhost-" + hostID
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultMQTTConnectTimeout
	}
	return &MQTTTransport{cfg: cfg, hostID: hostID}
}

// UpTopic is the topic the host publishes on.
func (t *MQTTTransport) UpTopic() string {
	return fmt.Sprintf("%s/host/%s/up", t.cfg.TopicPrefix, t.hostID)
}

// DownTopic is the topic the host receives instructions on.
func (t *MQTTTransport) DownTopic() string {
	return fmt.Sprintf("%s/host/%s/down", t.cfg.TopicPrefix, t.hostID)
}

func (t *MQTTTransport) String() string { return t.cfg.Broker }

// buildClientOptions creates paho options. Reconnection is left to the
// Link, which replays unacknowledged messages on every new channel.
func (t *MQTTTransport) buildClientOptions() *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(t.cfg.Broker)
	opts.SetClientID(t.cfg.ClientID)
	if t.cfg.Username != "" {
		opts.SetUsername(t.cfg.Username)
		opts.SetPassword(t.cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(t.cfg.ConnectTimeout)
	opts.SetKeepAlive(defaultMQTTKeepAlive)
	opts.SetOrderMatters(true)
	return opts
}

// Connect connects to the broker and subscribes to the down topic.
func (t *MQTTTransport) Connect(ctx context.Context) (Channel, error) {
	ch := &mqttChannel{
		upTopic: t.UpTopic(),
		inbound: make(chan []byte, mqttInboundBuffer),
		done:    make(chan struct{}),
	}

	opts := t.buildClientOptions()
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		ch.fail(fmt.Errorf("mqtt connection lost: %w", err))
	})

	ch.client = pahomqtt.NewClient(opts)
	if err := waitToken(ctx, ch.client.Connect(), t.cfg.ConnectTimeout); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", t.cfg.Broker, err)
	}

	sub := ch.client.Subscribe(t.DownTopic(), 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		select {
		case ch.inbound <- msg.Payload():
		case <-ch.done:
		}
	})
	if err := waitToken(ctx, sub, t.cfg.ConnectTimeout); err != nil {
		ch.client.Disconnect(defaultMQTTQuiesce)
		return nil, fmt.Errorf("mqtt subscribe %s: %w", t.DownTopic(), err)
	}
	return ch, nil
}

func waitToken(ctx context.Context, tok pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
		return tok.Error()
	case <-timer.C:
		return fmt.Errorf("timeout after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

type mqttChannel struct {
	client  pahomqtt.Client
	upTopic string
	inbound chan []byte

	once sync.Once
	done chan struct{}
	mu   sync.Mutex
	err  error
}

func (c *mqttChannel) Send(data []byte) error {
	select {
	case <-c.done:
		return c.failure()
	default:
	}
	return waitToken(context.Background(), c.client.Publish(c.upTopic, 1, false, data), defaultMQTTPublishTimeout)
}

func (c *mqttChannel) Receive() ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case <-c.done:
		return nil, c.failure()
	}
}

func (c *mqttChannel) Close() error {
	c.fail(ErrClosed)
	if c.client.IsConnected() {
		c.client.Disconnect(defaultMQTTQuiesce)
	}
	return nil
}

func (c *mqttChannel) fail(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *mqttChannel) failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
