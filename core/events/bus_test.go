package events_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/routeforge/routeforge/core/events"
)

func TestBus_PublishDeliversInOrder(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())

	var got []string
	bus.Subscribe(func(e events.Event) { got = append(got, "a:"+string(e.Type)) })
	bus.Subscribe(func(e events.Event) { got = append(got, "b:"+string(e.Type)) })

	bus.Publish(events.Event{Type: events.TypeRegistered, EndpointID: "get_api_users"})

	want := []string{"a:registered", "b:registered"}
	if len(got) != len(want) {
		t.Fatalf("deliveries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("deliveries = %v, want %v", got, want)
		}
	}
}

func TestBus_FillsIDAndTimestamp(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())

	var got events.Event
	bus.Subscribe(func(e events.Event) { got = e })
	bus.Publish(events.Event{Type: events.TypeCleared})

	if got.ID == "" {
		t.Error("event ID should be filled in")
	}
	if got.Timestamp.IsZero() {
		t.Error("timestamp should be filled in")
	}
}

func TestBus_PanickingListenerIsIsolated(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())

	delivered := false
	bus.Subscribe(func(e events.Event) { panic("boom") })
	bus.Subscribe(func(e events.Event) { delivered = true })

	bus.Publish(events.Event{Type: events.TypeUpdated, EndpointID: "x"})

	if !delivered {
		t.Error("panic in one listener must not block others")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())

	count := 0
	unsub := bus.Subscribe(func(e events.Event) { count++ })

	bus.Publish(events.Event{Type: events.TypeRegistered})
	unsub()
	bus.Publish(events.Event{Type: events.TypeRegistered})

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if bus.ListenerCount() != 0 {
		t.Errorf("ListenerCount = %d, want 0", bus.ListenerCount())
	}
}
