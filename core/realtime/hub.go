package realtime

import (
	"github.com/tomo-delivery/dispatchd/core/logger"
	"github.com/tomo-delivery/dispatchd/internal/eventbus"
)

// Transport mirrors events to an external delivery channel (MQTT,
// websocket bridge). Implementations must not block: delivery is best
// effort and a slow broker must never stall a dispatch decision.
type Transport interface {
	Publish(topic Topic, ev Event) error
}

// Publisher is the write side of the hub, consumed by the orchestrator
// and the location gate.
type Publisher interface {
	Publish(topic Topic, ev Event)
}

// Hub fans events out to in-process subscribers and configured
// transports. Publish never fails from the caller's perspective;
// transport errors are logged and dropped.
type Hub struct {
	bus        *eventbus.Bus[Event]
	transports []Transport
	log        logger.Logger
}

// NewHub creates a Hub mirroring to the given transports.
func NewHub(log logger.Logger, transports ...Transport) *Hub {
	return &Hub{
		bus:        eventbus.New[Event](),
		transports: transports,
		log:        log,
	}
}

// Publish delivers the event to every subscriber of the topic and to all
// transports.
func (h *Hub) Publish(topic Topic, ev Event) {
	h.bus.Publish(topic.String(), ev)
	for _, tr := range h.transports {
		if err := tr.Publish(topic, ev); err != nil {
			h.log.Warnf("transport publish %s: %v", topic, err)
		}
	}
}

// Subscribe registers an in-process subscriber for the topic.
func (h *Hub) Subscribe(topic Topic) <-chan Event {
	return h.bus.Subscribe(topic.String())
}

// Unsubscribe removes an in-process subscriber.
func (h *Hub) Unsubscribe(topic Topic, sub <-chan Event) {
	h.bus.Unsubscribe(topic.String(), sub)
}

// Close shuts down the in-process bus. Transports are owned by the
// caller and closed separately.
func (h *Hub) Close() { h.bus.Close() }
