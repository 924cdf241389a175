package alertx_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gardenledger/fieldsync/pkg/alertx"
	"github.com/gardenledger/fieldsync/pkg/eventx"
	"github.com/gardenledger/fieldsync/pkg/queuex"
	"github.com/gardenledger/fieldsync/pkg/queuex/queuexmemory"
)

type recordingProvider struct {
	mu     sync.Mutex
	alerts []alertx.Alert
	err    error
}

func (p *recordingProvider) Send(_ context.Context, alert alertx.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.alerts = append(p.alerts, alert)
	return nil
}

func (p *recordingProvider) sent() []alertx.Alert {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]alertx.Alert(nil), p.alerts...)
}

func TestRaise_DeliversAndPublishes(t *testing.T) {
	provider := &recordingProvider{}
	bus := eventx.NewBus()
	n := alertx.NewNotifier(provider, bus)

	var events []eventx.Event
	bus.Subscribe(eventx.TopicAlertRaised, func(e eventx.Event) { events = append(events, e) })

	err := n.Raise(context.Background(), alertx.Alert{
		Severity: alertx.SeverityWarning,
		Subject:  "queue backlog growing",
		Body:     "15 pending jobs",
	})
	if err != nil {
		t.Fatal(err)
	}

	if got := provider.sent(); len(got) != 1 || got[0].Subject != "queue backlog growing" {
		t.Fatalf("expected one delivered alert, got %+v", got)
	}
	if len(events) != 1 {
		t.Fatalf("expected one alert event, got %d", len(events))
	}
}

func TestRaise_EmptySubjectRejected(t *testing.T) {
	n := alertx.NewNotifier(&recordingProvider{}, eventx.NewBus())
	if err := n.Raise(context.Background(), alertx.Alert{Body: "no subject"}); err == nil {
		t.Fatal("expected validation error for empty subject")
	}
}

func TestRaise_BelowMinSeverityDropped(t *testing.T) {
	provider := &recordingProvider{}
	n := alertx.NewNotifier(provider, eventx.NewBus(),
		alertx.WithMinSeverity(alertx.SeverityCritical))

	err := n.Raise(context.Background(), alertx.Alert{
		Severity: alertx.SeverityInfo,
		Subject:  "just info",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(provider.sent()) != 0 {
		t.Fatal("info alert must be dropped under a critical floor")
	}
}

func TestRaise_ProviderFailureReturned(t *testing.T) {
	provider := &recordingProvider{err: errors.New("smtp down")}
	bus := eventx.NewBus()
	n := alertx.NewNotifier(provider, bus)

	var events int
	bus.Subscribe(eventx.TopicAlertRaised, func(eventx.Event) { events++ })

	if err := n.Raise(context.Background(), alertx.Alert{Subject: "x"}); err == nil {
		t.Fatal("expected delivery failure")
	}
	if events != 0 {
		t.Fatal("failed delivery must not publish an alert event")
	}
}

func TestWatchQueue_AlertsOnExhaustion(t *testing.T) {
	provider := &recordingProvider{}
	bus := eventx.NewBus()
	queue := queuex.NewQueue(queuexmemory.NewMemoryStore(), bus, queuex.WithMaxAttempts(1))
	n := alertx.NewNotifier(provider, bus)
	unsubscribe := n.WatchQueue(queue)
	defer unsubscribe()

	id, err := queue.AddJob(context.Background(), queuex.JobKindWork,
		queuex.WorkPayload{GardenAddress: "0xabc", Title: "Composting"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	queue.MarkJobFailed(context.Background(), id, "network down")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if alerts := provider.sent(); len(alerts) == 1 {
			if alerts[0].Severity != alertx.SeverityCritical {
				t.Fatalf("expected critical alert, got %+v", alerts[0])
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected an alert for the permanently failed job")
}
