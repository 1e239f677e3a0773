package location

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomo-delivery/dispatchd/core/logger"
	"github.com/tomo-delivery/dispatchd/core/metrics"
	"github.com/tomo-delivery/dispatchd/core/model"
	"github.com/tomo-delivery/dispatchd/core/realtime"
)

// DefaultThrottle matches the rider app's hard client-side throttle; the
// gate enforces the same spacing server-side.
const DefaultThrottle = 5 * time.Second

// ActiveOrderSource reports the orders a rider currently holds in
// ASSIGNED or PICKED_UP state.
type ActiveOrderSource interface {
	ActiveOrdersByRider(ctx context.Context, riderID string) ([]model.Order, error)
}

// DirectoryWriter receives accepted samples.
type DirectoryWriter interface {
	UpdateLocation(ctx context.Context, sample model.LocationSample) error
}

// Gate accepts rider position reports, throttles them per rider and
// forwards only samples from riders with at least one active order.
// Accepted samples update the rider directory and are mirrored to the
// topic of every order the rider holds. Riders with live tracking
// disabled simply never send; there is no server-side preference check.
type Gate struct {
	orders    ActiveOrderSource
	directory DirectoryWriter
	events    realtime.Publisher
	metrics   metrics.Sink
	log       logger.Logger
	throttle  time.Duration
	now       func() time.Time

	mu           sync.Mutex
	lastAccepted map[string]time.Time
}

// NewGate creates a Gate. A throttle of zero selects DefaultThrottle.
func NewGate(orders ActiveOrderSource, directory DirectoryWriter, events realtime.Publisher, sink metrics.Sink, log logger.Logger, throttle time.Duration) (*Gate, error) {
	if orders == nil || directory == nil || events == nil || log == nil {
		return nil, fmt.Errorf("location: nil parameter provided to NewGate")
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	return &Gate{
		orders:       orders,
		directory:    directory,
		events:       events,
		metrics:      sink,
		log:          log,
		throttle:     throttle,
		now:          time.Now,
		lastAccepted: make(map[string]time.Time),
	}, nil
}

// Report ingests one position sample. It returns true when the sample
// was accepted and forwarded, false when it was dropped by throttling or
// because the rider holds no active order. Only malformed input and
// directory write failures surface as errors.
func (g *Gate) Report(ctx context.Context, riderID string, lat, lng float64) (bool, error) {
	now := g.now()
	sample := model.LocationSample{RiderID: riderID, Lat: lat, Lng: lng, Timestamp: now}
	if riderID == "" || !sample.Valid() {
		return false, fmt.Errorf("invalid location sample for rider %q", riderID)
	}

	if !g.passThrottle(riderID, now) {
		g.recordSample(riderID, false)
		return false, nil
	}

	active, err := g.orders.ActiveOrdersByRider(ctx, riderID)
	if err != nil {
		g.rollbackThrottle(riderID)
		g.log.Errorf("active orders for rider %s: %v", riderID, err)
		return false, nil
	}
	held := active[:0]
	for _, o := range active {
		if o.Status.Active() {
			held = append(held, o)
		}
	}
	if len(held) == 0 {
		// Not an accepted sample: the throttle window only spaces
		// samples that actually went through.
		g.rollbackThrottle(riderID)
		g.recordSample(riderID, false)
		return false, nil
	}

	if err := g.directory.UpdateLocation(ctx, sample); err != nil {
		g.rollbackThrottle(riderID)
		return false, fmt.Errorf("update location for rider %s: %w", riderID, err)
	}

	ev := realtime.Event{
		Type:      realtime.EventRiderLocation,
		RiderID:   riderID,
		Lat:       lat,
		Lng:       lng,
		Timestamp: now,
	}
	for _, o := range held {
		ev.OrderID = o.ID
		g.events.Publish(realtime.OrderTopic(o.ID), ev)
	}
	g.recordSample(riderID, true)
	return true, nil
}

// passThrottle reserves the throttle slot for the rider if enough time
// elapsed since the last accepted sample.
func (g *Gate) passThrottle(riderID string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if last, ok := g.lastAccepted[riderID]; ok && now.Sub(last) < g.throttle {
		return false
	}
	g.lastAccepted[riderID] = now
	return true
}

// rollbackThrottle frees the slot when a reserved sample failed to be
// stored, so the rider's next report is not penalized.
func (g *Gate) rollbackThrottle(riderID string) {
	g.mu.Lock()
	delete(g.lastAccepted, riderID)
	g.mu.Unlock()
}

// Forget clears throttle state for a rider, e.g. when the rider goes
// offline.
func (g *Gate) Forget(riderID string) {
	g.rollbackThrottle(riderID)
}

func (g *Gate) recordSample(riderID string, accepted bool) {
	lr, ok := g.metrics.(metrics.LocationRecorder)
	if !ok {
		return
	}
	if err := lr.RecordLocationSample(riderID, accepted); err != nil {
		g.log.Errorf("metrics error: %v", err)
	}
}
