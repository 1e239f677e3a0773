package realtime

import (
	"time"

	"github.com/tomo-delivery/dispatchd/core/model"
)

// EventType names a dispatch or tracking occurrence.
type EventType string

const (
	EventOrderUpdated   EventType = "order.updated"
	EventOfferIssued    EventType = "offer.issued"
	EventOfferExpired   EventType = "offer.expired"
	EventOfferCancelled EventType = "offer.cancelled"
	EventFallback       EventType = "dispatch.fallback"
	EventAdminAlert     EventType = "admin.alert"
	EventRiderLocation  EventType = "rider.location"
)

// Event is the payload fanned out to subscribers. Delivery is
// at-least-once and unordered across topics; clients treat an event as a
// dirty flag and refetch state rather than trusting the fields as a full
// snapshot (the reference apps debounce the refetch by ~700ms).
type Event struct {
	Type      EventType         `json:"type"`
	OrderID   string            `json:"order_id,omitempty"`
	Status    model.OrderStatus `json:"status,omitempty"`
	RiderID   string            `json:"rider_id,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Lat       float64           `json:"lat,omitempty"`
	Lng       float64           `json:"lng,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
