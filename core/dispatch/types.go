package dispatch

import (
	"context"

	"github.com/tomo-delivery/dispatchd/core/model"
)

// OrderStore is the persistence collaborator for orders. The
// orchestrator reads an order once per dispatch decision and writes
// every committed status transition back synchronously.
type OrderStore interface {
	LoadOrder(ctx context.Context, id string) (*model.Order, error)
	SaveOrderStatus(ctx context.Context, id string, status model.OrderStatus, riderID string) error
	// MarkManualAssign flags a READY order for manual assignment from
	// the admin console (switch_manual / notify_admin fallbacks).
	MarkManualAssign(ctx context.Context, id string) error
}

// RiderDirectory is the read-through view of courier eligibility and the
// owner of the capacity counters. EligibleRiders is an optimistic
// snapshot; ClaimCapacity is the single operation with an atomic
// guarantee (two order workers may race for the same rider there).
type RiderDirectory interface {
	EligibleRiders(ctx context.Context, order *model.Order) ([]model.Rider, error)
	RiderSnapshot(ctx context.Context, id string) (model.Rider, error)
	ClaimCapacity(ctx context.Context, riderID string) (bool, error)
	ReleaseCapacity(ctx context.Context, riderID string) error
	UpdateLocation(ctx context.Context, sample model.LocationSample) error
}

// ConfigSource supplies the current dispatch settings. Each dispatch
// decision reads one snapshot at start; hot reloads apply to the next
// decision, never to an offer already in flight.
type ConfigSource interface {
	DispatchConfig() Config
}

// StaticConfig is a ConfigSource returning a fixed configuration.
type StaticConfig Config

func (c StaticConfig) DispatchConfig() Config { return Config(c) }
