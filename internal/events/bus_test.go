package events

import (
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan SessionStateChangedEvent, 1)

	unsub := bus.Subscribe(func(e SessionStateChangedEvent) {
		received <- e
	})
	defer unsub()

	bus.Publish(SessionStateChangedEvent{
		SessionID: "cam1",
		OldState:  "starting",
		NewState:  "active",
		Reason:    ReasonStarted,
	})

	select {
	case got := <-received:
		if got.SessionID != "cam1" || got.NewState != "active" {
			t.Errorf("unexpected event %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan AlertEvent, 1)

	unsub := bus.Subscribe(func(e AlertEvent) {
		received <- e
	})

	bus.Publish(AlertEvent{AlertType: "cpu_high"})
	<-received

	unsub()

	bus.Publish(AlertEvent{AlertType: "memory_high"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	alerts := make(chan bool, 1)
	metrics := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ AlertEvent) { alerts <- true })
	defer unsub1()
	unsub2 := bus.Subscribe(func(_ SessionMetricsEvent) { metrics <- true })
	defer unsub2()

	bus.Publish(AlertEvent{AlertType: "disk_low"})
	<-alerts

	select {
	case <-metrics:
		t.Fatal("metrics subscriber received an AlertEvent")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBus_PerSubscriberOrdering(t *testing.T) {
	bus := New()
	const n = 200
	got := make(chan int, n)

	unsub := bus.Subscribe(func(e SessionStateChangedEvent) {
		got <- e.RetryCount
	})
	defer unsub()

	for i := range n {
		bus.Publish(SessionStateChangedEvent{SessionID: "cam1", RetryCount: i})
	}

	for i := range n {
		select {
		case v := <-got:
			if v != i {
				t.Fatalf("event %d delivered out of order (got %d)", i, v)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for event %d", i)
		}
	}
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ HealthSnapshotEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				bus.Publish(HealthSnapshotEvent{
					Key:       "camera:cam1",
					Status:    "healthy",
					CheckedAt: time.Now().Format(time.RFC3339),
				})
			}
		}()
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestBus_UnknownHandler(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	if unsub == nil {
		t.Fatal("expected non-nil unsubscribe for unknown handler type")
	}
	unsub()
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 4)

	unsub := SubscribeToChannel[AlertEvent](bus, ch)
	defer unsub()

	bus.Publish(AlertEvent{AlertType: "disk_high", Severity: "critical"})
	bus.Publish(HealthSummaryEvent{Overall: "healthy"})

	select {
	case got := <-ch:
		alert, ok := got.(AlertEvent)
		if !ok || alert.AlertType != "disk_high" {
			t.Fatalf("unexpected event %#v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case extra := <-ch:
		t.Fatalf("received unsubscribed type %T", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeToChannelDropsWhenFull(_ *testing.T) {
	bus := New()
	ch := make(chan any)

	unsub := SubscribeToChannel[SessionMetricsEvent](bus, ch)
	defer unsub()

	done := make(chan struct{})
	go func() {
		bus.Publish(SessionMetricsEvent{SessionID: "cam1"})
		close(done)
	}()
	<-done
}
