package dispatch

import (
	"time"

	"github.com/google/uuid"
)

// Offer is the ephemeral state of one offer round. It lives inside the
// order's dispatch worker for the duration of a round and is discarded
// on acceptance, exhaustion or fallback.
type Offer struct {
	ID         string
	OrderID    string
	Candidates []string // ranked rider ids, best first
	Index      int      // candidate currently holding the offer
	Attempt    int      // offer round, starting at 1
	IssuedAt   time.Time
	Deadline   time.Time
}

func newOffer(orderID string, candidates []string, attempt int, now time.Time, window time.Duration) *Offer {
	return &Offer{
		ID:         uuid.NewString(),
		OrderID:    orderID,
		Candidates: candidates,
		Attempt:    attempt,
		IssuedAt:   now,
		Deadline:   now.Add(window),
	}
}

// Current returns the rider id currently holding the offer.
func (o *Offer) Current() string { return o.Candidates[o.Index] }

// Exhausted reports whether every candidate in the round has been tried.
func (o *Offer) Exhausted() bool { return o.Index >= len(o.Candidates) }

// advance moves the offer to the next candidate, resetting the deadline
// window. The attempt count is unchanged: new-candidate tries within a
// round are not retries.
func (o *Offer) advance(now time.Time, window time.Duration) {
	o.Index++
	o.IssuedAt = now
	o.Deadline = now.Add(window)
}
