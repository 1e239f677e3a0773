package mqtt

import (
	"encoding/json"
	"strings"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tomo-delivery/dispatchd/core/realtime"
	"github.com/tomo-delivery/dispatchd/infra/logger"
)

// Publisher bridges the realtime hub to an MQTT broker. Rider and
// customer apps subscribe to their topics through the broker; the admin
// console subscribes to the admin firehose. Delivery is at-least-once
// for QoS >= 1 and publishing never blocks the dispatch path: the
// broker handshake completes in the background and failures are only
// logged.
type Publisher struct {
	cli    pahoClient
	prefix string
	qos    byte
	log    logger.Logger
}

// NewPublisher connects to the MQTT broker. An empty topic prefix
// defaults to "tomo".
func NewPublisher(cfg Config) (*Publisher, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt_publisher")
	opts.OnConnect = func(_ paho.Client) { log.Infof("MQTT connected") }
	opts.OnConnectionLost = func(_ paho.Client, err error) { log.Errorf("connection lost: %v", err) }
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) { log.Warnf("reconnecting to MQTT broker") }

	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "tomo"
	}
	return &Publisher{cli: c, prefix: prefix, qos: cfg.QoS, log: log}, nil
}

// Publish mirrors one hub event to the broker. The event is serialized
// as JSON and the hub topic key maps to a broker topic, e.g. "order:42"
// becomes "tomo/order/42".
func (p *Publisher) Publish(topic realtime.Topic, ev realtime.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	token := p.cli.Publish(p.brokerTopic(topic), p.qos, false, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			p.log.Errorf("publish %s: %v", topic, token.Error())
		}
	}()
	return nil
}

func (p *Publisher) brokerTopic(topic realtime.Topic) string {
	return p.prefix + "/" + strings.ReplaceAll(topic.String(), ":", "/")
}

// Disconnect gracefully closes the MQTT connection.
func (p *Publisher) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
