package model

import "time"

// Rider is a snapshot of a courier as seen by the rider directory.
// The directory owns the authoritative copy; snapshots read during
// scoring are optimistic and may be stale by the time a claim is made.
type Rider struct {
	ID       string `json:"id"`
	Online   bool   `json:"online"`
	Approved bool   `json:"approved"`
	Active   bool   `json:"active"`
	Zone     string `json:"zone,omitempty"`

	// Capacity is the maximum number of concurrent active orders.
	// Defaults to 1 unless multi-drop is enabled for the rider.
	Capacity     int `json:"capacity"`
	ActiveOrders int `json:"active_orders"`

	Location   Coordinates `json:"location"`
	LocationAt time.Time   `json:"location_at"`

	// Rolling performance signals in [0,1].
	AcceptanceRate float64 `json:"acceptance_rate"`
	OnTimeRate     float64 `json:"on_time_rate"`

	// RecentOrders counts orders received in the current rotation
	// window; riders with fewer recent orders rank higher on fairness.
	RecentOrders int `json:"recent_orders"`
}

// Eligible reports whether the rider can be considered for dispatch.
func (r Rider) Eligible() bool {
	return r.Active && r.Approved && r.Online && r.ActiveOrders < r.maxCapacity()
}

func (r Rider) maxCapacity() int {
	if r.Capacity <= 0 {
		return 1
	}
	return r.Capacity
}

// Performance blends the rolling success metrics into a single [0,1]
// score used by the candidate scorer.
func (r Rider) Performance() float64 {
	return clamp01(0.5*r.AcceptanceRate + 0.5*r.OnTimeRate)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
