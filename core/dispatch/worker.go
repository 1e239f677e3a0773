package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/tomo-delivery/dispatchd/core/metrics"
	"github.com/tomo-delivery/dispatchd/core/model"
	"github.com/tomo-delivery/dispatchd/core/realtime"
)

type cmdKind int

const (
	cmdAccept cmdKind = iota
	cmdDecline
	cmdManual
	cmdCancel
	cmdTimeout
)

// command is the only way external events reach a worker. Every command
// dequeued by the worker gets exactly one reply.
type command struct {
	kind       cmdKind
	riderID    string
	generation int
	reply      chan error
}

type roundOutcome int

const (
	// roundExhausted: every candidate was tried (or none existed).
	roundExhausted roundOutcome = iota
	// roundDone: the order reached a terminal dispatch state (assigned
	// or cancelled); the worker exits.
	roundDone
	// roundStopped: the orchestrator is shutting down.
	roundStopped
)

// worker owns the dispatch lifecycle of a single order. All mutation of
// the order and its offer is confined to the worker goroutine; the
// generation counter makes fired timers for already-resolved offers a
// safe no-op.
type worker struct {
	o      *Orchestrator
	order  *model.Order
	cfg    Config
	window time.Duration

	cmds chan command
	done chan struct{}

	offer       *Offer
	timer       *time.Timer
	generation  int
	roundScores map[string]float64
	started     time.Time
}

func newWorker(o *Orchestrator, order *model.Order, cfg Config) *worker {
	return &worker{
		o:      o,
		order:  order,
		cfg:    cfg,
		window: cfg.OfferTimeout(),
		cmds:   make(chan command, 8),
		done:   make(chan struct{}),
	}
}

func (w *worker) run(ctx context.Context) {
	w.started = w.o.now()
	defer func() {
		w.stopTimer()
		close(w.done)
		w.drain()
		w.o.removeWorker(w.order.ID)
	}()

	attempt := 1
	for {
		switch w.runRound(ctx, attempt) {
		case roundDone, roundStopped:
			return
		case roundExhausted:
		}

		if w.cfg.RetryEnabled && attempt < w.cfg.MaxRetries {
			attempt++
			continue
		}

		if w.cfg.FallbackBehavior != FallbackKeepRetrying {
			w.fallback(ctx)
			return
		}
		// keep_retrying restarts rounds until the order is cancelled or
		// manually assigned. Unbounded: with zero eligible riders this
		// loops forever, pacing each idle round by one offer window.
		attempt = 1
		switch w.pause(ctx) {
		case roundDone, roundStopped:
			return
		case roundExhausted:
		}
	}
}

func (w *worker) runRound(ctx context.Context, attempt int) roundOutcome {
	riders, err := w.o.directory.EligibleRiders(ctx, w.order)
	if err != nil {
		w.o.log.Errorf("eligible riders for order %s: %v", w.order.ID, err)
		riders = nil
	}
	ranked := w.o.scorer.Rank(riders, w.order, w.cfg.ScoringWeights)
	if len(ranked) == 0 {
		w.o.log.Warnf("order %s attempt %d: %v", w.order.ID, attempt, ErrNoEligibleRiders)
		return roundExhausted
	}

	if w.cfg.Mode == ModeAutoAssign {
		return w.autoAssign(ctx, ranked, attempt)
	}
	return w.offerRound(ctx, ranked, attempt)
}

// autoAssign claims the top-scored rider directly, falling through to
// the next candidate when a claim loses the capacity race.
func (w *worker) autoAssign(ctx context.Context, ranked []ScoredRider, attempt int) roundOutcome {
	for _, c := range ranked {
		meta := assignMeta{mode: "auto_assign", attempt: attempt, score: c.Score, started: w.started}
		err := w.o.assign(ctx, w.order, c.Rider.ID, meta)
		if err == nil {
			return roundDone
		}
		if errors.Is(err, ErrRiderUnavailable) {
			continue
		}
		var ite *model.InvalidTransitionError
		if errors.As(err, &ite) {
			// The order left READY under us (racing manual action).
			return roundDone
		}
		w.o.log.Errorf("assign order %s to rider %s: %v", w.order.ID, c.Rider.ID, err)
		return roundExhausted
	}
	return roundExhausted
}

// offerRound pushes the offer through up to max_couriers_per_offer
// ranked candidates, one at a time, each with a fresh deadline window.
func (w *worker) offerRound(ctx context.Context, ranked []ScoredRider, attempt int) roundOutcome {
	limit := w.cfg.MaxCouriersPerOffer
	if limit > len(ranked) {
		limit = len(ranked)
	}
	ids := make([]string, limit)
	w.roundScores = make(map[string]float64, limit)
	for i := 0; i < limit; i++ {
		ids[i] = ranked[i].Rider.ID
		w.roundScores[ids[i]] = ranked[i].Score
	}
	w.offer = newOffer(w.order.ID, ids, attempt, w.o.now(), w.window)
	w.issueCurrent()

	for {
		select {
		case <-ctx.Done():
			w.discardOffer()
			return roundStopped
		case cmd := <-w.cmds:
			if out, decided := w.handleCommand(ctx, cmd, attempt); decided {
				return out
			}
		}
	}
}

// handleCommand processes one command during an offer round. The second
// return value reports whether the round is decided.
func (w *worker) handleCommand(ctx context.Context, cmd command, attempt int) (roundOutcome, bool) {
	switch cmd.kind {
	case cmdTimeout:
		if cmd.generation != w.generation {
			return 0, false // stale timer for a resolved offer
		}
		w.expireCurrent()
		if w.advanceOffer() {
			return 0, false
		}
		return roundExhausted, true

	case cmdAccept:
		rider := w.offer.Current()
		if cmd.riderID != rider {
			cmd.reply <- ErrOfferNotForRider
			return 0, false
		}
		if w.o.now().After(w.offer.Deadline) {
			// The window elapsed before the timer was processed; the
			// late accept loses.
			cmd.reply <- ErrOfferExpired
			w.generation++
			w.expireCurrent()
			if w.advanceOffer() {
				return 0, false
			}
			return roundExhausted, true
		}
		meta := assignMeta{mode: "auto_offer", attempt: attempt, score: w.roundScores[rider], started: w.started}
		err := w.o.assign(ctx, w.order, rider, meta)
		cmd.reply <- err
		if err == nil {
			w.o.recordOffer(metrics.OfferRecord{OrderID: w.order.ID, RiderID: rider, Attempt: attempt, Event: "accepted"})
			w.discardOffer()
			return roundDone, true
		}
		if errors.Is(err, ErrRiderUnavailable) {
			w.generation++
			if w.advanceOffer() {
				return 0, false
			}
			return roundExhausted, true
		}
		var ite *model.InvalidTransitionError
		if errors.As(err, &ite) {
			w.discardOffer()
			return roundDone, true
		}
		return 0, false

	case cmdDecline:
		if cmd.riderID != w.offer.Current() {
			cmd.reply <- ErrOfferNotForRider
			return 0, false
		}
		cmd.reply <- nil
		w.o.recordOffer(metrics.OfferRecord{OrderID: w.order.ID, RiderID: cmd.riderID, Attempt: w.offer.Attempt, Event: "declined"})
		w.generation++
		if w.advanceOffer() {
			return 0, false
		}
		return roundExhausted, true

	case cmdManual:
		meta := assignMeta{mode: "manual", attempt: attempt, started: w.started}
		err := w.o.assign(ctx, w.order, cmd.riderID, meta)
		cmd.reply <- err
		if err == nil {
			w.cancelOffer()
			return roundDone, true
		}
		return 0, false

	case cmdCancel:
		if done := w.handleCancel(ctx, cmd); done {
			w.cancelOffer()
			return roundDone, true
		}
		return 0, false
	}
	return 0, false
}

// handleCancel transitions the order to CANCELLED and persists it.
func (w *worker) handleCancel(ctx context.Context, cmd command) bool {
	prior, err := w.order.Transition(model.StatusCancelled, w.o.now())
	if err != nil {
		cmd.reply <- err
		return false
	}
	if err := w.o.store.SaveOrderStatus(ctx, w.order.ID, model.StatusCancelled, ""); err != nil {
		w.order.Status = prior
		cmd.reply <- err
		return false
	}
	cmd.reply <- nil
	w.o.publishOrderUpdated(w.order, "")
	return true
}

// pause idles one offer window between keep_retrying rounds while still
// serving manual assignment and cancellation.
func (w *worker) pause(ctx context.Context) roundOutcome {
	t := time.NewTimer(w.window)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return roundStopped
		case <-t.C:
			return roundExhausted
		case cmd := <-w.cmds:
			switch cmd.kind {
			case cmdTimeout:
				// stale timer from a previous round
			case cmdManual:
				err := w.o.assign(ctx, w.order, cmd.riderID, assignMeta{mode: "manual", started: w.started})
				cmd.reply <- err
				if err == nil {
					return roundDone
				}
			case cmdCancel:
				if w.handleCancel(ctx, cmd) {
					return roundDone
				}
			default:
				cmd.reply <- ErrNoActiveOffer
			}
		}
	}
}

// issueCurrent pushes the offer to the current candidate and arms its
// expiry timer under a fresh generation.
func (w *worker) issueCurrent() {
	w.generation++
	gen := w.generation
	w.stopTimer()
	w.timer = time.AfterFunc(w.window, func() {
		select {
		case w.cmds <- command{kind: cmdTimeout, generation: gen}:
		case <-w.done:
		}
	})
	rider := w.offer.Current()
	ev := realtime.Event{
		Type:      realtime.EventOfferIssued,
		OrderID:   w.order.ID,
		Status:    w.order.Status,
		RiderID:   rider,
		Timestamp: w.o.now(),
	}
	w.o.events.Publish(realtime.RiderTopic(rider), ev)
	w.o.events.Publish(realtime.AdminTopic(), ev)
	w.o.recordOffer(metrics.OfferRecord{OrderID: w.order.ID, RiderID: rider, Attempt: w.offer.Attempt, Event: "issued"})
}

func (w *worker) expireCurrent() {
	rider := w.offer.Current()
	ev := realtime.Event{
		Type:      realtime.EventOfferExpired,
		OrderID:   w.order.ID,
		Status:    w.order.Status,
		RiderID:   rider,
		Timestamp: w.o.now(),
	}
	w.o.events.Publish(realtime.RiderTopic(rider), ev)
	w.o.events.Publish(realtime.AdminTopic(), ev)
	w.o.recordOffer(metrics.OfferRecord{OrderID: w.order.ID, RiderID: rider, Attempt: w.offer.Attempt, Event: "expired"})
}

// advanceOffer moves to the next candidate. It reports whether the offer
// is still live.
func (w *worker) advanceOffer() bool {
	w.offer.advance(w.o.now(), w.window)
	if w.offer.Exhausted() {
		w.discardOffer()
		return false
	}
	w.issueCurrent()
	return true
}

// cancelOffer tears down an in-flight offer and notifies the candidate
// currently holding it.
func (w *worker) cancelOffer() {
	if w.offer == nil {
		return
	}
	rider := w.offer.Current()
	ev := realtime.Event{
		Type:      realtime.EventOfferCancelled,
		OrderID:   w.order.ID,
		Status:    w.order.Status,
		RiderID:   rider,
		Timestamp: w.o.now(),
	}
	w.o.events.Publish(realtime.RiderTopic(rider), ev)
	w.o.events.Publish(realtime.AdminTopic(), ev)
	w.o.recordOffer(metrics.OfferRecord{OrderID: w.order.ID, RiderID: rider, Attempt: w.offer.Attempt, Event: "cancelled"})
	w.discardOffer()
}

// discardOffer drops the offer without events and invalidates any
// pending timer.
func (w *worker) discardOffer() {
	w.stopTimer()
	w.generation++
	w.offer = nil
}

func (w *worker) stopTimer() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// fallback applies the configured behavior once all rounds failed. The
// order stays READY and unassigned; only the admin surface learns about
// it.
func (w *worker) fallback(ctx context.Context) {
	behavior := w.cfg.FallbackBehavior
	w.o.log.Warnf("order %s: dispatch exhausted, fallback %s", w.order.ID, behavior)
	if err := w.o.store.MarkManualAssign(ctx, w.order.ID); err != nil {
		w.o.log.Errorf("mark manual assign for order %s: %v", w.order.ID, err)
	}
	w.order.NeedsManualAssign = true

	now := w.o.now()
	w.o.events.Publish(realtime.OrderTopic(w.order.ID), realtime.Event{
		Type:      realtime.EventFallback,
		OrderID:   w.order.ID,
		Status:    w.order.Status,
		Reason:    string(behavior),
		Timestamp: now,
	})
	if behavior == FallbackNotifyAdmin {
		w.o.events.Publish(realtime.AdminTopic(), realtime.Event{
			Type:      realtime.EventAdminAlert,
			OrderID:   w.order.ID,
			Status:    w.order.Status,
			Reason:    "dispatch_exhausted",
			Timestamp: now,
		})
	}
	if fr, ok := w.o.metrics.(metrics.FallbackRecorder); ok {
		if err := fr.RecordFallback(w.order.ID, string(behavior)); err != nil {
			w.o.log.Errorf("metrics error: %v", err)
		}
	}
	w.o.recordAssignment(w.order.ID, "", assignMeta{mode: string(w.cfg.Mode), started: w.started}, "fallback")
}

// drain replies to commands that raced with worker shutdown.
func (w *worker) drain() {
	for {
		select {
		case cmd := <-w.cmds:
			if cmd.reply != nil {
				cmd.reply <- ErrNoActiveOffer
			}
		default:
			return
		}
	}
}
