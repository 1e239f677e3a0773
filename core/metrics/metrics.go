package metrics

import "time"

// Config selects and configures the metrics sinks.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusAddr    string `json:"prometheus_addr"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.PrometheusAddr == "" {
		c.PrometheusAddr = ":9090"
	}
}

// AssignmentRecord captures the outcome of one dispatch decision for an
// order.
type AssignmentRecord struct {
	OrderID  string
	RiderID  string
	Mode     string
	Attempt  int
	Score    float64
	Outcome  string // assigned, fallback, cancelled
	Duration time.Duration
	Time     time.Time
}

// OfferRecord captures one offer lifecycle event.
type OfferRecord struct {
	OrderID string
	RiderID string
	Attempt int
	Event   string // issued, accepted, declined, expired, cancelled
	Time    time.Time
}

// Sink records dispatch activity for observability purposes.
type Sink interface {
	RecordAssignment(rec AssignmentRecord) error
	RecordOffer(rec OfferRecord) error
}

// FallbackRecorder is optionally implemented by sinks that track
// fallback activations per behavior.
type FallbackRecorder interface {
	RecordFallback(orderID, behavior string) error
}

// LocationRecorder is optionally implemented by sinks that count
// accepted and throttled location samples.
type LocationRecorder interface {
	RecordLocationSample(riderID string, accepted bool) error
}

// NopSink discards all records.
type NopSink struct{}

func (NopSink) RecordAssignment(AssignmentRecord) error { return nil }

func (NopSink) RecordOffer(OfferRecord) error { return nil }

func (NopSink) RecordFallback(string, string) error { return nil }

func (NopSink) RecordLocationSample(string, bool) error { return nil }
