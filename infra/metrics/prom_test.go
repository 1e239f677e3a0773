package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	coremetrics "github.com/tomo-delivery/dispatchd/core/metrics"
)

func TestPromSink_RecordAssignment(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	rec := coremetrics.AssignmentRecord{
		OrderID:  "o1",
		RiderID:  "r1",
		Mode:     "auto_offer",
		Attempt:  1,
		Score:    0.82,
		Outcome:  "assigned",
		Duration: 12 * time.Second,
		Time:     time.Now(),
	}
	if err := sink.RecordAssignment(rec); err != nil {
		t.Fatalf("record error: %v", err)
	}

	expected := `
# HELP dispatch_assignments_total Total number of dispatch decisions per mode and outcome
# TYPE dispatch_assignments_total counter
dispatch_assignments_total{mode="auto_offer",outcome="assigned"} 1
`
	if err := testutil.CollectAndCompare(sink.assignments, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
	if c := testutil.CollectAndCount(sink.latency); c == 0 {
		t.Errorf("latency not recorded")
	}
}

func TestPromSink_RecordOfferAndFallback(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	for _, event := range []string{"issued", "declined", "issued"} {
		if err := sink.RecordOffer(coremetrics.OfferRecord{OrderID: "o1", RiderID: "r1", Event: event}); err != nil {
			t.Fatalf("record offer: %v", err)
		}
	}
	if err := sink.RecordFallback("o1", "notify_admin"); err != nil {
		t.Fatalf("record fallback: %v", err)
	}
	if err := sink.RecordLocationSample("r1", true); err != nil {
		t.Fatalf("record location: %v", err)
	}

	if got := testutil.ToFloat64(sink.offers.WithLabelValues("issued")); got != 2 {
		t.Errorf("issued offers = %v, want 2", got)
	}
	if got := testutil.ToFloat64(sink.fallbacks.WithLabelValues("notify_admin")); got != 1 {
		t.Errorf("fallbacks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(sink.locations.WithLabelValues("true")); got != 1 {
		t.Errorf("accepted samples = %v, want 1", got)
	}
}

func TestPromSink_ReregisterReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg); err != nil {
		t.Fatalf("second registration: %v", err)
	}
}
