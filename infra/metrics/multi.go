package metrics

import coremetrics "github.com/tomo-delivery/dispatchd/core/metrics"

// MultiSink fans records out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordAssignment forwards the record to all sinks, returning the first error encountered.
func (m *MultiSink) RecordAssignment(rec coremetrics.AssignmentRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordAssignment(rec); err != nil {
			return err
		}
	}
	return nil
}

// RecordOffer forwards offer events.
func (m *MultiSink) RecordOffer(rec coremetrics.OfferRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordOffer(rec); err != nil {
			return err
		}
	}
	return nil
}

// RecordFallback forwards fallback events when supported by the sink.
func (m *MultiSink) RecordFallback(orderID, behavior string) error {
	for _, s := range m.Sinks {
		if fr, ok := s.(coremetrics.FallbackRecorder); ok {
			if err := fr.RecordFallback(orderID, behavior); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordLocationSample forwards position report counts when supported by the sink.
func (m *MultiSink) RecordLocationSample(riderID string, accepted bool) error {
	for _, s := range m.Sinks {
		if lr, ok := s.(coremetrics.LocationRecorder); ok {
			if err := lr.RecordLocationSample(riderID, accepted); err != nil {
				return err
			}
		}
	}
	return nil
}
