package location

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomo-delivery/dispatchd/core/model"
	"github.com/tomo-delivery/dispatchd/core/realtime"
)

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}

type fakeOrders struct {
	mu     sync.Mutex
	orders map[string][]model.Order
	err    error
}

func (f *fakeOrders) ActiveOrdersByRider(_ context.Context, riderID string) ([]model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.orders[riderID], nil
}

func (f *fakeOrders) set(riderID string, orders ...model.Order) {
	f.mu.Lock()
	f.orders[riderID] = orders
	f.mu.Unlock()
}

type fakeWriter struct {
	mu      sync.Mutex
	samples []model.LocationSample
	err     error
}

func (f *fakeWriter) UpdateLocation(_ context.Context, sample model.LocationSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.samples = append(f.samples, sample)
	return nil
}

func (f *fakeWriter) stored() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.samples)
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []realtime.Event
}

func (p *recordingPublisher) Publish(topic realtime.Topic, ev realtime.Event) {
	p.mu.Lock()
	p.topics = append(p.topics, topic.String())
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func (p *recordingPublisher) published(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, tp := range p.topics {
		if tp == topic {
			n++
		}
	}
	return n
}

func activeOrder(id string, status model.OrderStatus) model.Order {
	return model.Order{ID: id, Status: status, RiderID: "r1"}
}

func newTestGate(t *testing.T, orders *fakeOrders, writer *fakeWriter, events *recordingPublisher) (*Gate, *time.Time) {
	t.Helper()
	g, err := NewGate(orders, writer, events, nil, nopLogger{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	return g, &now
}

func TestGate_AcceptsAndMirrorsToActiveOrders(t *testing.T) {
	orders := &fakeOrders{orders: map[string][]model.Order{
		"r1": {activeOrder("o1", model.StatusAssigned), activeOrder("o2", model.StatusPickedUp)},
	}}
	writer := &fakeWriter{}
	events := &recordingPublisher{}
	g, _ := newTestGate(t, orders, writer, events)

	ok, err := g.Report(context.Background(), "r1", 24.77, 46.74)
	if err != nil || !ok {
		t.Fatalf("expected accepted sample, got ok=%v err=%v", ok, err)
	}
	if writer.stored() != 1 {
		t.Fatalf("expected one stored sample, got %d", writer.stored())
	}
	if events.published("order:o1") != 1 || events.published("order:o2") != 1 {
		t.Fatalf("sample not mirrored to all held orders: %v", events.topics)
	}
	for _, ev := range events.events {
		if ev.Type != realtime.EventRiderLocation || ev.RiderID != "r1" || ev.Lat != 24.77 {
			t.Fatalf("unexpected event payload: %+v", ev)
		}
	}
}

func TestGate_ThrottlesPerRider(t *testing.T) {
	orders := &fakeOrders{orders: map[string][]model.Order{
		"r1": {activeOrder("o1", model.StatusAssigned)},
		"r2": {{ID: "o2", Status: model.StatusAssigned, RiderID: "r2"}},
	}}
	writer := &fakeWriter{}
	g, now := newTestGate(t, orders, writer, &recordingPublisher{})
	ctx := context.Background()

	if ok, _ := g.Report(ctx, "r1", 24.77, 46.74); !ok {
		t.Fatal("first sample must be accepted")
	}
	*now = now.Add(2 * time.Second)
	if ok, _ := g.Report(ctx, "r1", 24.78, 46.75); ok {
		t.Fatal("sample inside the throttle window must be dropped")
	}
	// Another rider is not affected by r1's throttle state.
	if ok, _ := g.Report(ctx, "r2", 24.79, 46.76); !ok {
		t.Fatal("throttle must be tracked per rider")
	}
	*now = now.Add(4 * time.Second)
	if ok, _ := g.Report(ctx, "r1", 24.80, 46.77); !ok {
		t.Fatal("sample after the throttle window must be accepted")
	}
	if writer.stored() != 3 {
		t.Fatalf("expected 3 stored samples, got %d", writer.stored())
	}
}

func TestGate_DropsWithoutActiveOrder(t *testing.T) {
	orders := &fakeOrders{orders: map[string][]model.Order{
		"r1": {activeOrder("o1", model.StatusDelivered)},
	}}
	writer := &fakeWriter{}
	events := &recordingPublisher{}
	g, _ := newTestGate(t, orders, writer, events)
	ctx := context.Background()

	ok, err := g.Report(ctx, "r1", 24.77, 46.74)
	if err != nil || ok {
		t.Fatalf("delivered order must not hold the stream open, got ok=%v err=%v", ok, err)
	}
	if writer.stored() != 0 || len(events.topics) != 0 {
		t.Fatal("dropped sample must not be stored or mirrored")
	}

	// The drop did not burn the throttle slot: once the rider picks up an
	// active order, the very next report goes through.
	orders.set("r1", activeOrder("o1", model.StatusAssigned))
	if ok, _ := g.Report(ctx, "r1", 24.78, 46.75); !ok {
		t.Fatal("sample dropped for inactivity must not consume the throttle window")
	}
}

func TestGate_RejectsMalformedSamples(t *testing.T) {
	orders := &fakeOrders{orders: map[string][]model.Order{}}
	g, _ := newTestGate(t, orders, &fakeWriter{}, &recordingPublisher{})
	ctx := context.Background()

	if _, err := g.Report(ctx, "", 24.77, 46.74); err == nil {
		t.Fatal("empty rider id must be rejected")
	}
	if _, err := g.Report(ctx, "r1", 91, 46.74); err == nil {
		t.Fatal("out-of-range latitude must be rejected")
	}
	if _, err := g.Report(ctx, "r1", 24.77, 181); err == nil {
		t.Fatal("out-of-range longitude must be rejected")
	}
}

func TestGate_WriteFailureFreesThrottleSlot(t *testing.T) {
	orders := &fakeOrders{orders: map[string][]model.Order{
		"r1": {activeOrder("o1", model.StatusAssigned)},
	}}
	writer := &fakeWriter{err: errors.New("redis down")}
	g, _ := newTestGate(t, orders, writer, &recordingPublisher{})
	ctx := context.Background()

	if _, err := g.Report(ctx, "r1", 24.77, 46.74); err == nil {
		t.Fatal("directory failure must surface")
	}
	writer.mu.Lock()
	writer.err = nil
	writer.mu.Unlock()
	if ok, err := g.Report(ctx, "r1", 24.77, 46.74); err != nil || !ok {
		t.Fatalf("retry after failed write must not be throttled, got ok=%v err=%v", ok, err)
	}
}

func TestGate_LookupFailureDropsQuietly(t *testing.T) {
	orders := &fakeOrders{orders: map[string][]model.Order{}, err: errors.New("db down")}
	writer := &fakeWriter{}
	g, _ := newTestGate(t, orders, writer, &recordingPublisher{})

	ok, err := g.Report(context.Background(), "r1", 24.77, 46.74)
	if err != nil || ok {
		t.Fatalf("lookup failure drops the sample without surfacing, got ok=%v err=%v", ok, err)
	}
	if writer.stored() != 0 {
		t.Fatal("nothing must be stored on lookup failure")
	}
}

func TestGate_ForgetClearsThrottle(t *testing.T) {
	orders := &fakeOrders{orders: map[string][]model.Order{
		"r1": {activeOrder("o1", model.StatusAssigned)},
	}}
	g, _ := newTestGate(t, orders, &fakeWriter{}, &recordingPublisher{})
	ctx := context.Background()

	if ok, _ := g.Report(ctx, "r1", 24.77, 46.74); !ok {
		t.Fatal("first sample must be accepted")
	}
	g.Forget("r1")
	if ok, _ := g.Report(ctx, "r1", 24.78, 46.75); !ok {
		t.Fatal("sample after Forget must be accepted")
	}
}
