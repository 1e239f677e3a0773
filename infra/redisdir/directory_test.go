package redisdir

import (
	"testing"
	"time"
)

func TestParseRider(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := parseRider("r1", map[string]string{
		"online":          "true",
		"approved":        "true",
		"active":          "true",
		"capacity":        "2",
		"active_orders":   "1",
		"zone":            "riyadh-north",
		"lat":             "24.77",
		"lng":             "46.74",
		"acceptance_rate": "0.9",
		"on_time_rate":    "0.8",
		"recent_orders":   "3",
		"location_at":     at.Format(time.RFC3339Nano),
	})
	if !r.Eligible() {
		t.Fatal("rider below capacity must be eligible")
	}
	if r.Zone != "riyadh-north" || r.Location.Lat != 24.77 || r.RecentOrders != 3 {
		t.Fatalf("unexpected rider: %+v", r)
	}
	if !r.LocationAt.Equal(at) {
		t.Fatalf("location_at not parsed: %v", r.LocationAt)
	}
}

func TestParseRider_MissingFieldsAreSafe(t *testing.T) {
	r := parseRider("r1", map[string]string{"online": "true"})
	if r.Eligible() {
		t.Fatal("rider without approval flags must not be eligible")
	}
	// Unset capacity falls back to the single-order default at claim
	// time; here it just parses to zero.
	if r.Capacity != 0 || r.ActiveOrders != 0 {
		t.Fatalf("unexpected defaults: %+v", r)
	}
}
