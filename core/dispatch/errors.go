package dispatch

import "errors"

var (
	// ErrOrderNotFound is returned by order stores for unknown ids.
	ErrOrderNotFound = errors.New("order not found")

	// ErrRiderUnavailable is returned when a candidate vanished between
	// scoring and claim; the orchestrator advances to the next candidate
	// and never surfaces it to callers.
	ErrRiderUnavailable = errors.New("rider unavailable")

	// ErrNoEligibleRiders is returned when the candidate set is empty.
	ErrNoEligibleRiders = errors.New("no eligible riders")

	// ErrNoActiveOffer is returned for accept/decline calls against an
	// order with no offer in flight.
	ErrNoActiveOffer = errors.New("no active offer for order")

	// ErrOfferNotForRider is returned when a rider answers an offer that
	// is currently held by a different candidate.
	ErrOfferNotForRider = errors.New("offer not addressed to rider")

	// ErrOfferExpired is returned for accepts that arrive after the
	// offer deadline fired. Last writer does not win after expiry.
	ErrOfferExpired = errors.New("offer expired")

	// ErrDispatchDisabled is returned when automated dispatch is turned
	// off in the settings.
	ErrDispatchDisabled = errors.New("automated dispatch disabled")

	// ErrDispatchInFlight is returned when Dispatch is called for an
	// order that already has a dispatch worker running.
	ErrDispatchInFlight = errors.New("dispatch already in flight")

	// ErrClosed is returned after the orchestrator has been shut down.
	ErrClosed = errors.New("orchestrator closed")
)
