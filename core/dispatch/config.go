package dispatch

import (
	"fmt"
	"math"
	"time"
)

// Mode selects the dispatch strategy.
type Mode string

const (
	// ModeAutoOffer broadcasts the order to one candidate at a time;
	// the first rider to accept within the window wins.
	ModeAutoOffer Mode = "AUTO_OFFER"
	// ModeAutoAssign assigns the top-scored candidate directly with no
	// rider-facing accept step.
	ModeAutoAssign Mode = "AUTO_ASSIGN"
)

// FallbackBehavior is applied when no rider could be matched.
type FallbackBehavior string

const (
	// FallbackSwitchManual leaves the order READY and flags it for
	// manual assignment from the admin console.
	FallbackSwitchManual FallbackBehavior = "switch_manual"
	// FallbackNotifyAdmin does the same and emits an admin alert.
	FallbackNotifyAdmin FallbackBehavior = "notify_admin"
	// FallbackKeepRetrying restarts offer rounds indefinitely until the
	// order is cancelled or manually assigned.
	FallbackKeepRetrying FallbackBehavior = "keep_retrying"
)

// ScoringWeights weighs the candidate sub-scores. The admin console
// expects the weights to sum to 1.0.
type ScoringWeights struct {
	Distance    float64 `json:"distance_weight"`
	Performance float64 `json:"performance_weight"`
	Fairness    float64 `json:"fairness_weight"`
}

// Sum returns the total weight.
func (w ScoringWeights) Sum() float64 { return w.Distance + w.Performance + w.Fairness }

// Consistent reports whether the weights sum to 1.0 within rounding
// tolerance. An inconsistent sum is a warning, not an error: dispatch
// proceeds with Normalized weights instead of blocking operations on a
// rounding mismatch.
func (w ScoringWeights) Consistent() bool { return math.Abs(w.Sum()-1.0) < 1e-6 }

// Normalized scales the weights to sum to 1.0. Zero or negative totals
// fall back to an even split.
func (w ScoringWeights) Normalized() ScoringWeights {
	sum := w.Sum()
	if sum <= 0 {
		third := 1.0 / 3.0
		return ScoringWeights{Distance: third, Performance: third, Fairness: third}
	}
	return ScoringWeights{
		Distance:    w.Distance / sum,
		Performance: w.Performance / sum,
		Fairness:    w.Fairness / sum,
	}
}

// Config holds the admin-editable dispatch settings. It is hot
// reloadable; a dispatch in flight keeps the snapshot it started with.
type Config struct {
	Mode                Mode             `json:"mode"`
	Enabled             bool             `json:"is_enabled"`
	OfferTimeoutSeconds int              `json:"offer_timeout_seconds"`
	MaxCouriersPerOffer int              `json:"max_couriers_per_offer"`
	RetryEnabled        bool             `json:"retry_enabled"`
	MaxRetries          int              `json:"max_retries"`
	ScoringWeights      ScoringWeights   `json:"scoring_weights"`
	FallbackBehavior    FallbackBehavior `json:"fallback_behavior"`
}

// SetDefaults applies the defaults shipped with the admin console.
func (c *Config) SetDefaults() {
	if c.Mode == "" {
		c.Mode = ModeAutoOffer
	}
	if c.OfferTimeoutSeconds == 0 {
		c.OfferTimeoutSeconds = 30
	}
	if c.MaxCouriersPerOffer == 0 {
		c.MaxCouriersPerOffer = 5
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.ScoringWeights == (ScoringWeights{}) {
		c.ScoringWeights = ScoringWeights{Distance: 0.4, Performance: 0.3, Fairness: 0.3}
	}
	if c.FallbackBehavior == "" {
		c.FallbackBehavior = FallbackNotifyAdmin
	}
}

// Validate checks the bounds enforced by the admin console.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeAutoOffer, ModeAutoAssign:
	default:
		return fmt.Errorf("unknown dispatch mode %q", c.Mode)
	}
	switch c.FallbackBehavior {
	case FallbackSwitchManual, FallbackNotifyAdmin, FallbackKeepRetrying:
	default:
		return fmt.Errorf("unknown fallback behavior %q", c.FallbackBehavior)
	}
	if c.OfferTimeoutSeconds < 10 || c.OfferTimeoutSeconds > 300 {
		return fmt.Errorf("offer_timeout_seconds %d out of range [10,300]", c.OfferTimeoutSeconds)
	}
	if c.MaxCouriersPerOffer < 1 || c.MaxCouriersPerOffer > 20 {
		return fmt.Errorf("max_couriers_per_offer %d out of range [1,20]", c.MaxCouriersPerOffer)
	}
	if c.MaxRetries < 1 || c.MaxRetries > 10 {
		return fmt.Errorf("max_retries %d out of range [1,10]", c.MaxRetries)
	}
	return nil
}

// OfferTimeout returns the offer window as a duration.
func (c Config) OfferTimeout() time.Duration {
	return time.Duration(c.OfferTimeoutSeconds) * time.Second
}
