package model

import (
	"errors"
	"testing"
	"time"
)

func TestOrderStatus_ForwardPath(t *testing.T) {
	order := &Order{ID: "o1", Status: StatusCreated}
	path := []OrderStatus{StatusAccepted, StatusPreparing, StatusReady, StatusAssigned, StatusPickedUp, StatusDelivered}
	for _, next := range path {
		prior := order.Status
		got, err := order.Transition(next, time.Now())
		if err != nil {
			t.Fatalf("transition %s -> %s: %v", prior, next, err)
		}
		if got != prior {
			t.Fatalf("expected prior status %s, got %s", prior, got)
		}
	}
	if !order.Status.Terminal() {
		t.Fatal("DELIVERED must be terminal")
	}
}

func TestOrderStatus_NoSkippingOrBackwards(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
	}{
		{StatusCreated, StatusReady},
		{StatusCreated, StatusDelivered},
		{StatusReady, StatusPickedUp},
		{StatusAssigned, StatusDelivered},
		{StatusAssigned, StatusReady},
		{StatusDelivered, StatusCreated},
		{StatusPickedUp, StatusAssigned},
	}
	for _, tc := range cases {
		order := &Order{ID: "o1", Status: tc.from}
		if _, err := order.Transition(tc.to, time.Now()); err == nil {
			t.Errorf("transition %s -> %s should be rejected", tc.from, tc.to)
		}
		if order.Status != tc.from {
			t.Errorf("order mutated on rejected transition %s -> %s", tc.from, tc.to)
		}
	}
}

func TestOrderStatus_CancellableStates(t *testing.T) {
	cancellable := []OrderStatus{StatusCreated, StatusAccepted, StatusPreparing, StatusReady, StatusAssigned}
	for _, from := range cancellable {
		order := &Order{ID: "o1", Status: from}
		if _, err := order.Transition(StatusCancelled, time.Now()); err != nil {
			t.Errorf("cancel from %s: %v", from, err)
		}
	}
	for _, from := range []OrderStatus{StatusPickedUp, StatusDelivered, StatusCancelled} {
		order := &Order{ID: "o1", Status: from}
		_, err := order.Transition(StatusCancelled, time.Now())
		var ite *InvalidTransitionError
		if !errors.As(err, &ite) {
			t.Errorf("cancel from %s should fail with InvalidTransitionError, got %v", from, err)
		}
	}
}

func TestOrder_TransitionStampsTime(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	order := &Order{ID: "o1", Status: StatusReady}
	if _, err := order.Transition(StatusAssigned, now); err != nil {
		t.Fatal(err)
	}
	if !order.UpdatedAt.Equal(now) {
		t.Fatalf("expected UpdatedAt %v, got %v", now, order.UpdatedAt)
	}
}

func TestRider_Eligible(t *testing.T) {
	base := Rider{ID: "r1", Online: true, Approved: true, Active: true, Capacity: 1}
	if !base.Eligible() {
		t.Fatal("base rider should be eligible")
	}
	for name, mutate := range map[string]func(r Rider) Rider{
		"offline":      func(r Rider) Rider { r.Online = false; return r },
		"not approved": func(r Rider) Rider { r.Approved = false; return r },
		"inactive":     func(r Rider) Rider { r.Active = false; return r },
		"at capacity":  func(r Rider) Rider { r.ActiveOrders = 1; return r },
	} {
		if mutate(base).Eligible() {
			t.Errorf("%s rider should not be eligible", name)
		}
	}
}

func TestRider_DefaultCapacityIsOne(t *testing.T) {
	r := Rider{ID: "r1", Online: true, Approved: true, Active: true, ActiveOrders: 1}
	if r.Eligible() {
		t.Fatal("zero-capacity rider with one active order must count as full")
	}
}

func TestCoordinates_DistanceKm(t *testing.T) {
	paris := Coordinates{Lat: 48.8566, Lng: 2.3522}
	london := Coordinates{Lat: 51.5074, Lng: -0.1278}
	d := paris.DistanceKm(london)
	if d < 330 || d > 360 {
		t.Fatalf("Paris-London distance out of range: %.1f km", d)
	}
	if paris.DistanceKm(paris) != 0 {
		t.Fatal("distance to self must be zero")
	}
}

func TestLocationSample_Valid(t *testing.T) {
	good := LocationSample{RiderID: "r1", Lat: 24.77, Lng: 46.74}
	if !good.Valid() {
		t.Fatal("expected valid sample")
	}
	for _, bad := range []LocationSample{
		{Lat: 91, Lng: 0},
		{Lat: 0, Lng: 181},
		{Lat: -91, Lng: 0},
	} {
		if bad.Valid() {
			t.Errorf("sample %+v should be invalid", bad)
		}
	}
}
