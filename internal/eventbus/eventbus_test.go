package eventbus

import (
	"testing"
	"time"
)

func TestBus_PublishToTopicSubscribers(t *testing.T) {
	b := New[string]()
	defer b.Close()

	orders := b.Subscribe("order:1")
	riders := b.Subscribe("rider:9")

	b.Publish("order:1", "updated")

	select {
	case got := <-orders:
		if got != "updated" {
			t.Fatalf("unexpected event: %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}
	select {
	case got := <-riders:
		t.Fatalf("rider topic should be silent, got %q", got)
	default:
	}
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := New[int]()
	defer b.Close()

	_ = b.Subscribe("t")
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish("t", i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New[int]()
	defer b.Close()

	sub := b.Subscribe("t")
	b.Unsubscribe("t", sub)
	if _, ok := <-sub; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	b.Publish("t", 1)
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	b := New[int]()
	sub := b.Subscribe("t")
	b.Close()
	b.Close()
	if _, ok := <-sub; ok {
		t.Fatal("channel should be closed")
	}
	b.Publish("t", 1)
}
