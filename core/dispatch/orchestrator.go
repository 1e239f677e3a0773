package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomo-delivery/dispatchd/core/logger"
	"github.com/tomo-delivery/dispatchd/core/metrics"
	"github.com/tomo-delivery/dispatchd/core/model"
	"github.com/tomo-delivery/dispatchd/core/realtime"
)

// ErrOrderNotReady is returned when Dispatch is called for an order that
// is not in the READY state.
var ErrOrderNotReady = errors.New("order not ready for dispatch")

// Orchestrator owns the delivery lifecycle of orders from READY to
// ASSIGNED. Each dispatched order gets a dedicated worker goroutine that
// owns all mutation of that order and its offer; external events are
// routed to the worker over its command channel, so no lock is held
// across a dispatch decision. The one cross-order serialization point is
// RiderDirectory.ClaimCapacity.
type Orchestrator struct {
	store     OrderStore
	directory RiderDirectory
	scorer    Scorer
	config    ConfigSource
	events    realtime.Publisher
	metrics   metrics.Sink
	log       logger.Logger
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	workers map[string]*worker
	closed  bool
	wg      sync.WaitGroup
}

// New creates an Orchestrator. A nil scorer defaults to WeightedScorer
// and a nil sink to NopSink.
func New(store OrderStore, directory RiderDirectory, config ConfigSource, events realtime.Publisher, scorer Scorer, sink metrics.Sink, log logger.Logger) (*Orchestrator, error) {
	if store == nil || directory == nil || config == nil || events == nil || log == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to New")
	}
	if scorer == nil {
		scorer = WeightedScorer{}
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:     store,
		directory: directory,
		scorer:    scorer,
		config:    config,
		events:    events,
		metrics:   sink,
		log:       log,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		workers:   make(map[string]*worker),
	}, nil
}

// Dispatch starts the dispatch lifecycle for a READY order. It returns
// once the worker is started; the outcome is observable through the
// event stream and the order store.
func (o *Orchestrator) Dispatch(ctx context.Context, orderID string) error {
	cfg := o.config.DispatchConfig()
	cfg.SetDefaults()
	if !cfg.Enabled {
		return ErrDispatchDisabled
	}
	if !cfg.ScoringWeights.Consistent() {
		o.log.Warnf("scoring weights sum to %.3f, normalizing", cfg.ScoringWeights.Sum())
	}

	order, err := o.store.LoadOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", orderID, err)
	}
	if order.Status != model.StatusReady {
		return fmt.Errorf("%w: order %s is %s", ErrOrderNotReady, orderID, order.Status)
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if _, exists := o.workers[orderID]; exists {
		o.mu.Unlock()
		return ErrDispatchInFlight
	}
	w := newWorker(o, order, cfg)
	o.workers[orderID] = w
	o.wg.Add(1)
	o.mu.Unlock()

	go w.run(o.ctx)
	return nil
}

// AcceptOffer is the rider app accepting the offer currently addressed
// to it. Accepts after the deadline are rejected.
func (o *Orchestrator) AcceptOffer(ctx context.Context, orderID, riderID string) error {
	return o.send(ctx, orderID, command{kind: cmdAccept, riderID: riderID})
}

// DeclineOffer is the rider app explicitly declining; the offer advances
// to the next candidate immediately instead of waiting out the window.
func (o *Orchestrator) DeclineOffer(ctx context.Context, orderID, riderID string) error {
	return o.send(ctx, orderID, command{kind: cmdDecline, riderID: riderID})
}

// ManualAssign is the admin short-circuit. It performs the same atomic
// claim as automated dispatch and cancels any in-flight offer for the
// order. It is accepted at any point before ASSIGNED.
func (o *Orchestrator) ManualAssign(ctx context.Context, orderID, riderID string) error {
	o.mu.Lock()
	w := o.workers[orderID]
	o.mu.Unlock()
	if w != nil {
		err := o.sendTo(ctx, w, command{kind: cmdManual, riderID: riderID})
		if !errors.Is(err, ErrNoActiveOffer) {
			return err
		}
		// Worker exited between lookup and send; fall through to the
		// direct path.
	}

	order, err := o.store.LoadOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", orderID, err)
	}
	return o.assign(ctx, order, riderID, assignMeta{mode: "manual"})
}

// CancelOrder tears down any in-flight offer and moves the order to
// CANCELLED. Cancelling an already assigned order releases the rider's
// capacity.
func (o *Orchestrator) CancelOrder(ctx context.Context, orderID string) error {
	o.mu.Lock()
	w := o.workers[orderID]
	o.mu.Unlock()
	if w != nil {
		err := o.sendTo(ctx, w, command{kind: cmdCancel})
		if !errors.Is(err, ErrNoActiveOffer) {
			return err
		}
	}

	order, err := o.store.LoadOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", orderID, err)
	}
	rider := order.RiderID
	prior, err := order.Transition(model.StatusCancelled, o.now())
	if err != nil {
		return err
	}
	if err := o.store.SaveOrderStatus(ctx, order.ID, model.StatusCancelled, ""); err != nil {
		order.Status = prior
		return fmt.Errorf("save order %s: %w", order.ID, err)
	}
	if rider != "" && prior.Active() {
		if err := o.directory.ReleaseCapacity(ctx, rider); err != nil {
			o.log.Errorf("release capacity for rider %s: %v", rider, err)
		}
	}
	o.publishOrderUpdated(order, rider)
	return nil
}

// Close stops all in-flight workers and waits for them to exit.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()
	o.cancel()
	o.wg.Wait()
	return nil
}

// send routes a command to the order's worker, waiting for its reply.
func (o *Orchestrator) send(ctx context.Context, orderID string, cmd command) error {
	o.mu.Lock()
	w := o.workers[orderID]
	o.mu.Unlock()
	if w == nil {
		return ErrNoActiveOffer
	}
	return o.sendTo(ctx, w, cmd)
}

func (o *Orchestrator) sendTo(ctx context.Context, w *worker, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case w.cmds <- cmd:
	case <-w.done:
		return ErrNoActiveOffer
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-w.done:
		// The worker can exit between the enqueue and the reply. Its
		// drain answers the commands it caught; anything it missed gets
		// the same answer here.
		select {
		case err := <-cmd.reply:
			return err
		default:
			return ErrNoActiveOffer
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) removeWorker(orderID string) {
	o.mu.Lock()
	delete(o.workers, orderID)
	o.mu.Unlock()
	o.wg.Done()
}

type assignMeta struct {
	mode    string
	attempt int
	score   float64
	started time.Time
}

// assign performs the atomic claim and the READY -> ASSIGNED transition.
// A failed claim surfaces as ErrRiderUnavailable so offer flows can
// advance to the next candidate. The committed transition is persisted
// before any event is published.
func (o *Orchestrator) assign(ctx context.Context, order *model.Order, riderID string, meta assignMeta) error {
	if !order.Status.CanTransitionTo(model.StatusAssigned) {
		return &model.InvalidTransitionError{OrderID: order.ID, From: order.Status, To: model.StatusAssigned}
	}
	ok, err := o.directory.ClaimCapacity(ctx, riderID)
	if err != nil {
		o.log.Warnf("claim rider %s for order %s: %v", riderID, order.ID, err)
		return ErrRiderUnavailable
	}
	if !ok {
		return ErrRiderUnavailable
	}
	prior, err := order.Transition(model.StatusAssigned, o.now())
	if err != nil {
		o.releaseClaim(riderID)
		return err
	}
	order.RiderID = riderID
	if err := o.store.SaveOrderStatus(ctx, order.ID, model.StatusAssigned, riderID); err != nil {
		order.Status = prior
		order.RiderID = ""
		o.releaseClaim(riderID)
		return fmt.Errorf("save order %s: %w", order.ID, err)
	}
	o.publishOrderUpdated(order, riderID)
	o.recordAssignment(order.ID, riderID, meta, "assigned")
	return nil
}

func (o *Orchestrator) releaseClaim(riderID string) {
	if err := o.directory.ReleaseCapacity(context.Background(), riderID); err != nil {
		o.log.Errorf("release capacity for rider %s: %v", riderID, err)
	}
}

func (o *Orchestrator) publishOrderUpdated(order *model.Order, riderID string) {
	ev := realtime.Event{
		Type:      realtime.EventOrderUpdated,
		OrderID:   order.ID,
		Status:    order.Status,
		RiderID:   riderID,
		Timestamp: o.now(),
	}
	o.events.Publish(realtime.OrderTopic(order.ID), ev)
	if riderID != "" {
		o.events.Publish(realtime.RiderTopic(riderID), ev)
	}
	o.events.Publish(realtime.AdminTopic(), ev)
}

func (o *Orchestrator) recordAssignment(orderID, riderID string, meta assignMeta, outcome string) {
	var dur time.Duration
	if !meta.started.IsZero() {
		dur = o.now().Sub(meta.started)
	}
	rec := metrics.AssignmentRecord{
		OrderID:  orderID,
		RiderID:  riderID,
		Mode:     meta.mode,
		Attempt:  meta.attempt,
		Score:    meta.score,
		Outcome:  outcome,
		Duration: dur,
		Time:     o.now(),
	}
	if err := o.metrics.RecordAssignment(rec); err != nil {
		o.log.Errorf("metrics error: %v", err)
	}
}

func (o *Orchestrator) recordOffer(rec metrics.OfferRecord) {
	rec.Time = o.now()
	if err := o.metrics.RecordOffer(rec); err != nil {
		o.log.Errorf("metrics error: %v", err)
	}
}
