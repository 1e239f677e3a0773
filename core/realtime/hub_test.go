package realtime

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomo-delivery/dispatchd/core/model"
)

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}

type recordingTransport struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (r *recordingTransport) Publish(topic Topic, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic.String())
	return r.err
}

func TestTopicString(t *testing.T) {
	if got := OrderTopic("42").String(); got != "order:42" {
		t.Errorf("order topic: %s", got)
	}
	if got := RiderTopic("7").String(); got != "rider:7" {
		t.Errorf("rider topic: %s", got)
	}
	if got := AdminTopic().String(); got != "admin" {
		t.Errorf("admin topic: %s", got)
	}
}

func TestHub_FanOut(t *testing.T) {
	tr := &recordingTransport{}
	hub := NewHub(nopLogger{}, tr)
	defer hub.Close()

	sub := hub.Subscribe(OrderTopic("1"))
	other := hub.Subscribe(OrderTopic("2"))

	hub.Publish(OrderTopic("1"), Event{Type: EventOrderUpdated, OrderID: "1", Status: model.StatusAssigned})

	select {
	case ev := <-sub:
		if ev.Type != EventOrderUpdated || ev.OrderID != "1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber missed event")
	}
	select {
	case ev := <-other:
		t.Fatalf("order:2 should not receive order:1 events, got %+v", ev)
	default:
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.topics) != 1 || tr.topics[0] != "order:1" {
		t.Fatalf("transport saw %v", tr.topics)
	}
}

func TestHub_TransportErrorDoesNotPropagate(t *testing.T) {
	tr := &recordingTransport{err: errors.New("broker down")}
	hub := NewHub(nopLogger{}, tr)
	defer hub.Close()

	sub := hub.Subscribe(AdminTopic())
	hub.Publish(AdminTopic(), Event{Type: EventAdminAlert})

	select {
	case <-sub:
	case <-time.After(time.Second):
		t.Fatal("in-process delivery must survive transport failure")
	}
}
