package model

import (
	"fmt"
	"time"
)

// OrderStatus identifies a stage of the order delivery lifecycle.
type OrderStatus string

const (
	StatusCreated   OrderStatus = "CREATED"
	StatusAccepted  OrderStatus = "ACCEPTED"
	StatusPreparing OrderStatus = "PREPARING"
	StatusReady     OrderStatus = "READY"
	StatusAssigned  OrderStatus = "ASSIGNED"
	StatusPickedUp  OrderStatus = "PICKED_UP"
	StatusDelivered OrderStatus = "DELIVERED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// validTransitions is the directed lifecycle graph. Orders only move
// forward; CANCELLED is reachable from every state except PICKED_UP and
// DELIVERED, which are points of no return.
var validTransitions = map[OrderStatus][]OrderStatus{
	StatusCreated:   {StatusAccepted, StatusCancelled},
	StatusAccepted:  {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusReady, StatusCancelled},
	StatusReady:     {StatusAssigned, StatusCancelled},
	StatusAssigned:  {StatusPickedUp, StatusCancelled},
	StatusPickedUp:  {StatusDelivered},
	StatusDelivered: {},
	StatusCancelled: {},
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// Terminal reports whether no further transition is possible from s.
func (s OrderStatus) Terminal() bool {
	return len(validTransitions[s]) == 0
}

// Active reports whether a rider holding an order in this status is
// considered on the road for live tracking purposes.
func (s OrderStatus) Active() bool {
	return s == StatusAssigned || s == StatusPickedUp
}

// CanTransitionTo reports whether to is an allowed successor of s.
func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	for _, next := range validTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError reports a rejected status transition.
type InvalidTransitionError struct {
	OrderID string
	From    OrderStatus
	To      OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: invalid transition %s -> %s", e.OrderID, e.From, e.To)
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Order is the delivery view of a storefront order. Catalog, pricing and
// payment data live with their own services; the dispatcher only tracks
// what it needs to move the order from READY to DELIVERED.
type Order struct {
	ID                string      `json:"id"`
	Status            OrderStatus `json:"status"`
	RiderID           string      `json:"rider_id,omitempty"`
	Zone              string      `json:"zone,omitempty"`
	Pickup            Coordinates `json:"pickup"`
	Dropoff           Coordinates `json:"dropoff"`
	NeedsManualAssign bool        `json:"needs_manual_assign,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// Transition moves the order to the given status, stamping the transition
// time. It returns the prior status so callers can detect racing
// transitions. The order is unchanged on error.
func (o *Order) Transition(to OrderStatus, now time.Time) (OrderStatus, error) {
	if !o.Status.CanTransitionTo(to) {
		return o.Status, &InvalidTransitionError{OrderID: o.ID, From: o.Status, To: to}
	}
	prior := o.Status
	o.Status = to
	o.UpdatedAt = now
	return prior, nil
}
