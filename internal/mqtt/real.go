package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/aircon-guard/internal/logic"
)

// bufferCapacity is how many messages are kept while the broker is unreachable.
const bufferCapacity = 256

// publishTimeout bounds how long a publish may block the controller.
const publishTimeout = 5 * time.Second

// RealPublisher publishes to an actual MQTT broker.
// Messages published while disconnected are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	buf    *ringBuffer
}

// NewRealPublisher creates a publisher for the given broker. Connecting
// happens in the background so the daemon starts without a broker.
func NewRealPublisher(broker, clientID string) *RealPublisher {
	p := &RealPublisher{buf: newRingBuffer(bufferCapacity)}

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "LWT"})
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(func(paho.Client) {
			log.Info().Str("broker", broker).Msg("mqtt connected")
			p.flush()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Msg("mqtt connection lost")
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

// Publish sends a controller event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 1: shutdown and escalation events should not be lost.
	return p.publish(bufferedMsg{topic: Topic, payload: payload, qos: 1})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	if n := p.buf.len(); n > 0 {
		log.Warn().Int("messages", n).Msg("mqtt closing with unsent messages")
	}
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (p *RealPublisher) publish(msg bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.buf.push(msg)
		return nil
	}
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		p.buf.push(msg)
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		p.buf.push(msg)
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// flush replays buffered messages after a reconnect.
func (p *RealPublisher) flush() {
	msgs, dropped := p.buf.drain()
	if len(msgs) == 0 {
		return
	}
	log.Info().Int("messages", len(msgs)).Int("dropped", dropped).Msg("mqtt replaying buffered messages")
	for _, m := range msgs {
		p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}
