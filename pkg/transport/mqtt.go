package transport

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pion/logging"
)

// mqttAddr adapts an MQTT topic string to the net.Addr interface so it can
// travel inside a PeerAddress the same way a UDP or TCP socket address
// does.
type mqttAddr struct {
	topic string
}

func (a mqttAddr) Network() string { return "mqtt" }
func (a mqttAddr) String() string  { return a.topic }

// MQTT provides an MQTT-broker-backed transport for UADP messages, the
// third socket kind (alongside UDP multicast and raw Ethernet) a
// Subscriber's reception scheduler may multiplex across. Unlike UDP/TCP,
// delivery is brokered: publishing means publishing to a topic, and
// receiving means having subscribed to one.
type MQTT struct {
	client mqtt.Client
	topics []string
	qos    byte
	handler MessageHandler
	log     logging.LeveledLogger

	mu      sync.RWMutex
	started bool
	closed  bool
}

// MQTTConfig configures the MQTT transport.
type MQTTConfig struct {
	// BrokerURL is the broker to dial, e.g. "tcp://localhost:1883".
	BrokerURL string

	// ClientID identifies this connection to the broker. If empty, the
	// underlying client library generates one.
	ClientID string

	// Topics is the set of topics to subscribe to on Start.
	Topics []string

	// QoS is the subscribe/publish quality of service level (0, 1, or 2).
	QoS byte

	// ConnectTimeout bounds the initial broker connection. Defaults to
	// 10 seconds.
	ConnectTimeout time.Duration

	// MessageHandler is called for each received message. Required.
	MessageHandler MessageHandler

	// LoggerFactory is the factory for creating loggers. If nil, logging
	// is disabled.
	LoggerFactory logging.LoggerFactory
}

// NewMQTT creates a new MQTT transport. The broker connection itself is
// not established until Start is called.
func NewMQTT(config MQTTConfig) (*MQTT, error) {
	if config.MessageHandler == nil {
		return nil, ErrNoHandler
	}
	if config.BrokerURL == "" {
		return nil, ErrInvalidAddress
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}

	m := &MQTT{
		topics:  config.Topics,
		qos:     config.QoS,
		handler: config.MessageHandler,
	}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("transport-mqtt")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.BrokerURL)
	if config.ClientID != "" {
		opts.SetClientID(config.ClientID)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(config.ConnectTimeout)
	opts.SetDefaultPublishHandler(m.onMessage)

	m.client = mqtt.NewClient(opts)
	return m, nil
}

// Start connects to the broker and subscribes to the configured topics.
func (m *MQTT) Start() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	if token := m.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("transport: mqtt connect: %w", token.Error())
	}

	for _, topic := range m.topics {
		topic := topic
		if token := m.client.Subscribe(topic, m.qos, m.onMessage); token.Wait() && token.Error() != nil {
			m.client.Disconnect(250)
			return fmt.Errorf("transport: mqtt subscribe %q: %w", topic, token.Error())
		}
		if m.log != nil {
			m.log.Infof("subscribed to MQTT topic %s", topic)
		}
	}

	return nil
}

// Stop disconnects from the broker.
func (m *MQTT) Stop() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.closed = true
	m.mu.Unlock()

	m.client.Disconnect(250)
	return nil
}

// onMessage adapts a paho message callback into this package's
// MessageHandler shape.
func (m *MQTT) onMessage(_ mqtt.Client, msg mqtt.Message) {
	m.handler(&ReceivedMessage{
		Data: msg.Payload(),
		PeerAddr: PeerAddress{
			Addr:          mqttAddr{topic: msg.Topic()},
			TransportType: TransportTypeMQTT,
		},
	})
}

// Publish sends payload to the given topic.
func (m *MQTT) Publish(topic string, payload []byte) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	m.mu.RUnlock()

	token := m.client.Publish(topic, m.qos, false, payload)
	token.Wait()
	return token.Error()
}

// Send implements the same shape as the UDP/TCP transports' Send, with
// addr expected to be an mqttAddr naming the destination topic.
func (m *MQTT) Send(data []byte, addr mqttAddr) error {
	return m.Publish(addr.topic, data)
}
