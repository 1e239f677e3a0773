package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/tomo-delivery/dispatchd/core/metrics"
)

// PromSink records dispatch activity in Prometheus metrics.
type PromSink struct {
	assignments *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	offers      *prometheus.CounterVec
	fallbacks   *prometheus.CounterVec
	locations   *prometheus.CounterVec
}

// NewPromSink registers dispatch metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using cfg.PrometheusAddr.
func NewPromSink(cfg coremetrics.Config) (*PromSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_assignments_total",
		Help: "Total number of dispatch decisions per mode and outcome",
	}, []string{"mode", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_assignment_seconds",
		Help:    "Time between dispatch start and the final decision",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode", "outcome"})
	offers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_offers_total",
		Help: "Total number of offer lifecycle events",
	}, []string{"event"})
	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_fallbacks_total",
		Help: "Total number of fallback activations per behavior",
	}, []string{"behavior"})
	locations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rider_location_samples_total",
		Help: "Rider position reports, split by acceptance",
	}, []string{"accepted"})

	s := &PromSink{
		assignments: assignments,
		latency:     latency,
		offers:      offers,
		fallbacks:   fallbacks,
		locations:   locations,
	}
	if err := register(reg, &s.assignments); err != nil {
		return nil, err
	}
	if err := registerHist(reg, &s.latency); err != nil {
		return nil, err
	}
	if err := register(reg, &s.offers); err != nil {
		return nil, err
	}
	if err := register(reg, &s.fallbacks); err != nil {
		return nil, err
	}
	if err := register(reg, &s.locations); err != nil {
		return nil, err
	}
	return s, nil
}

func register(reg prometheus.Registerer, vec **prometheus.CounterVec) error {
	if err := reg.Register(*vec); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return err
		}
		*vec = are.ExistingCollector.(*prometheus.CounterVec)
	}
	return nil
}

func registerHist(reg prometheus.Registerer, vec **prometheus.HistogramVec) error {
	if err := reg.Register(*vec); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return err
		}
		*vec = are.ExistingCollector.(*prometheus.HistogramVec)
	}
	return nil
}

// RecordAssignment increments the decision counter and observes latency.
func (s *PromSink) RecordAssignment(rec coremetrics.AssignmentRecord) error {
	s.assignments.WithLabelValues(rec.Mode, rec.Outcome).Inc()
	if rec.Duration > 0 {
		s.latency.WithLabelValues(rec.Mode, rec.Outcome).Observe(rec.Duration.Seconds())
	}
	return nil
}

// RecordOffer increments the offer event counter.
func (s *PromSink) RecordOffer(rec coremetrics.OfferRecord) error {
	s.offers.WithLabelValues(rec.Event).Inc()
	return nil
}

// RecordFallback counts fallback activations per behavior.
func (s *PromSink) RecordFallback(_ string, behavior string) error {
	s.fallbacks.WithLabelValues(behavior).Inc()
	return nil
}

// RecordLocationSample counts accepted and dropped position reports.
func (s *PromSink) RecordLocationSample(_ string, accepted bool) error {
	s.locations.WithLabelValues(strconv.FormatBool(accepted)).Inc()
	return nil
}
