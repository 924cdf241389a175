package eventx_test

import (
	"sync"
	"testing"

	"github.com/gardenledger/fieldsync/pkg/eventx"
)

func TestBus_DeliversToTopicSubscribersOnly(t *testing.T) {
	bus := eventx.NewBus()

	var synced, failed int
	bus.Subscribe(eventx.TopicJobSynced, func(eventx.Event) { synced++ })
	bus.Subscribe(eventx.TopicJobFailed, func(eventx.Event) { failed++ })

	bus.Publish(eventx.TopicJobSynced, eventx.JobEvent{JobID: "j1"})
	bus.Publish(eventx.TopicJobSynced, eventx.JobEvent{JobID: "j2"})

	if synced != 2 {
		t.Errorf("synced handler called %d times, want 2", synced)
	}
	if failed != 0 {
		t.Errorf("failed handler called %d times, want 0", failed)
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := eventx.NewBus()

	calls := 0
	unsubscribe := bus.Subscribe(eventx.TopicJobAdded, func(eventx.Event) { calls++ })

	bus.Publish(eventx.TopicJobAdded, nil)
	unsubscribe()
	bus.Publish(eventx.TopicJobAdded, nil)

	if calls != 1 {
		t.Errorf("handler called %d times, want 1", calls)
	}
	if n := bus.SubscriberCount(eventx.TopicJobAdded); n != 0 {
		t.Errorf("subscriber count = %d, want 0", n)
	}
}

func TestBus_PanickingHandlerDoesNotStopOthers(t *testing.T) {
	bus := eventx.NewBus()

	delivered := 0
	bus.Subscribe(eventx.TopicSyncCompleted, func(eventx.Event) { panic("boom") })
	bus.Subscribe(eventx.TopicSyncCompleted, func(eventx.Event) { delivered++ })

	bus.Publish(eventx.TopicSyncCompleted, nil)

	if delivered != 1 {
		t.Errorf("surviving handler called %d times, want 1", delivered)
	}
}

func TestBus_EventCarriesTopicAndPayload(t *testing.T) {
	bus := eventx.NewBus()

	var got eventx.Event
	bus.Subscribe(eventx.TopicJobSynced, func(e eventx.Event) { got = e })

	bus.Publish(eventx.TopicJobSynced, eventx.JobEvent{JobID: "j1", TxRef: "0xabc"})

	if got.Topic != eventx.TopicJobSynced {
		t.Errorf("topic = %q", got.Topic)
	}
	if got.At.IsZero() {
		t.Error("event timestamp not set")
	}
	payload, ok := got.Payload.(eventx.JobEvent)
	if !ok {
		t.Fatalf("payload type %T", got.Payload)
	}
	if payload.TxRef != "0xabc" {
		t.Errorf("payload tx ref = %q", payload.TxRef)
	}
}

func TestBus_ConcurrentPublishAndSubscribe(t *testing.T) {
	bus := eventx.NewBus()

	var mu sync.Mutex
	seen := 0
	bus.Subscribe(eventx.TopicJobAdded, func(eventx.Event) {
		mu.Lock()
		seen++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(eventx.TopicJobAdded, nil)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if seen != 20 {
		t.Errorf("handler called %d times, want 20", seen)
	}
}
