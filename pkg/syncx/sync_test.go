package syncx_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gardenledger/fieldsync/pkg/attestx"
	"github.com/gardenledger/fieldsync/pkg/conflictx"
	"github.com/gardenledger/fieldsync/pkg/dedupx"
	"github.com/gardenledger/fieldsync/pkg/eventx"
	"github.com/gardenledger/fieldsync/pkg/ledgerx"
	"github.com/gardenledger/fieldsync/pkg/queuex"
	"github.com/gardenledger/fieldsync/pkg/queuex/queuexmemory"
	"github.com/gardenledger/fieldsync/pkg/retryx"
	"github.com/gardenledger/fieldsync/pkg/syncx"
)

// gateClient is a ledger transport whose Execute can be held open, for
// exercising concurrent flush behaviour.
type gateClient struct {
	mu    sync.Mutex
	calls int
	err   error
	gate  chan struct{}
}

func (g *gateClient) Execute(_ context.Context, _ ledgerx.Tx) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.gate != nil {
		<-g.gate
	}
	if g.err != nil {
		return "", g.err
	}
	return "0xbeef", nil
}

func (g *gateClient) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	queue   *queuex.Queue
	retry   *retryx.Manager
	bus     *eventx.Bus
	manager *syncx.Manager
	clock   *fakeClock
}

func newFixture(client ledgerx.Client, queueOptions ...queuex.Option) *fixture {
	bus := eventx.NewBus()
	queue := queuex.NewQueue(queuexmemory.NewMemoryStore(), bus, queueOptions...)
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	retry := retryx.NewManager(retryx.DefaultOptions(),
		retryx.WithClock(clock.Now),
		retryx.WithRand(func() float64 { return 1.0 }))
	processor := ledgerx.NewProcessor(queue, client)
	return &fixture{
		queue:   queue,
		retry:   retry,
		bus:     bus,
		manager: syncx.NewManager(queue, processor, retry, bus),
		clock:   clock,
	}
}

func (f *fixture) addWork(t *testing.T, title string) string {
	t.Helper()
	id, err := f.queue.AddJob(context.Background(), queuex.JobKindWork,
		queuex.WorkPayload{GardenAddress: "0xabc", Title: title}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestFlush_OfflineEnqueueThenSync(t *testing.T) {
	f := newFixture(&gateClient{})
	id := f.addWork(t, "Composting")

	batch, err := f.manager.Flush(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if batch.Processed != 1 || batch.Failed != 0 || batch.Skipped != 0 {
		t.Fatalf("expected 1/0/0, got %+v", batch)
	}

	job, err := f.queue.GetJob(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if !job.Synced || job.TxRef != "0xbeef" {
		t.Fatalf("expected synced job, got %+v", job)
	}
}

func TestFlush_EmptyQueueIsANoOp(t *testing.T) {
	f := newFixture(&gateClient{})

	batch, err := f.manager.Flush(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if batch.Processed != 0 || batch.Failed != 0 || batch.Skipped != 0 {
		t.Fatalf("expected zero counts, got %+v", batch)
	}
}

func TestFlush_ConcurrentCallersShareOnePass(t *testing.T) {
	client := &gateClient{gate: make(chan struct{})}
	f := newFixture(client)
	f.addWork(t, "Composting")

	const callers = 5
	results := make([]ledgerx.BatchResult, callers)

	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		i := i
		go func() {
			defer wg.Done()
			results[i], _ = f.manager.Flush(context.Background())
		}()
	}

	// Let every caller reach the shared pass before the transport settles.
	time.Sleep(50 * time.Millisecond)
	close(client.gate)
	wg.Wait()

	if client.callCount() != 1 {
		t.Fatalf("expected a single transport call across all callers, got %d", client.callCount())
	}
	for i, r := range results {
		if r.Processed != 1 {
			t.Fatalf("caller %d saw %+v, expected the shared pass result", i, r)
		}
	}
}

func TestFlush_BackoffSkipsRecentFailures(t *testing.T) {
	client := &gateClient{err: errors.New("network down")}
	f := newFixture(client)
	f.addWork(t, "Composting")

	batch, _ := f.manager.Flush(context.Background())
	if batch.Failed != 1 {
		t.Fatalf("expected first pass to fail the job, got %+v", batch)
	}

	// Inside the backoff window the job is ineligible.
	batch, _ = f.manager.Flush(context.Background())
	if batch.Skipped != 1 || batch.Failed != 0 {
		t.Fatalf("expected job skipped during backoff, got %+v", batch)
	}

	// Past the delay it becomes eligible again.
	f.clock.Advance(2 * time.Second)
	batch, _ = f.manager.Flush(context.Background())
	if batch.Failed != 1 {
		t.Fatalf("expected retry after backoff elapsed, got %+v", batch)
	}
}

func TestFlush_ExhaustionIsTerminalUntilReset(t *testing.T) {
	client := &gateClient{err: errors.New("network down")}
	f := newFixture(client, queuex.WithMaxAttempts(3))
	id := f.addWork(t, "Composting")

	for i := 0; i < 3; i++ {
		if batch, _ := f.manager.Flush(context.Background()); batch.Failed != 1 {
			t.Fatal("expected a failed attempt")
		}
		f.clock.Advance(time.Hour)
	}

	job, _ := f.queue.GetJob(context.Background(), id)
	if !job.Exhausted() {
		t.Fatalf("expected exhausted job after 3 attempts, got %+v", job)
	}

	// Exhausted jobs are skipped no matter how much time passes.
	batch, _ := f.manager.Flush(context.Background())
	if batch.Skipped != 1 || batch.Failed != 0 {
		t.Fatalf("expected exhausted job skipped, got %+v", batch)
	}
	if f.retry.ShouldRetry(id) {
		t.Fatal("retry schedule must refuse an exhausted key")
	}

	f.retry.Reset(id)
	if !f.retry.ShouldRetry(id) {
		t.Fatal("explicit reset must make the key eligible again")
	}
}

func TestFlush_PublishesLifecycleEvents(t *testing.T) {
	f := newFixture(&gateClient{})
	f.addWork(t, "Composting")

	var mu sync.Mutex
	var topics []eventx.Topic
	record := func(e eventx.Event) {
		mu.Lock()
		topics = append(topics, e.Topic)
		mu.Unlock()
	}
	f.bus.Subscribe(eventx.TopicSyncStarted, record)
	f.bus.Subscribe(eventx.TopicSyncCompleted, record)

	if _, err := f.manager.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(topics) != 2 || topics[0] != eventx.TopicSyncStarted || topics[1] != eventx.TopicSyncCompleted {
		t.Fatalf("expected started then completed, got %v", topics)
	}
}

func TestFlush_CrossDeviceDuplicateResolvedWithoutSecondLedgerCall(t *testing.T) {
	client := &gateClient{}
	f := newFixture(client)
	id := f.addWork(t, "Composting")

	// Another device already committed identical content.
	checker := &remoteDupChecker{remote: &attestx.RemoteWork{ID: "remote-1", TxRef: "0xfeed"}}
	dedup := dedupx.NewManager(checker, dedupx.DefaultConfig())
	resolver := conflictx.NewResolver(checker, dedup, f.queue, f.bus)

	pending := false
	jobs, err := f.queue.GetJobs(context.Background(), queuex.Filter{Synced: &pending})
	if err != nil {
		t.Fatal(err)
	}

	conflicts := resolver.DetectConflicts(context.Background(), jobs)
	if len(conflicts) != 1 || conflicts[0].Type != conflictx.TypeAlreadySubmitted {
		t.Fatalf("expected already_submitted conflict, got %+v", conflicts)
	}
	resolver.ResolveConflict(context.Background(), conflicts[0], conflictx.StrategyKeepRemote)

	batch, err := f.manager.Flush(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if batch.Processed != 0 || batch.Failed != 0 {
		t.Fatalf("resolved duplicate must not be reprocessed, got %+v", batch)
	}
	if client.callCount() != 0 {
		t.Fatalf("duplicate resolution must not reach the ledger, saw %d calls", client.callCount())
	}

	job, _ := f.queue.GetJob(context.Background(), id)
	if !job.Synced || job.TxRef != "0xfeed" {
		t.Fatalf("expected job adopted from remote, got %+v", job)
	}
}

func TestOnOnline_TriggersDebouncedFlush(t *testing.T) {
	client := &gateClient{}
	f := newFixture(client)
	bus := f.bus

	done := make(chan struct{}, 1)
	bus.Subscribe(eventx.TopicSyncCompleted, func(eventx.Event) {
		select {
		case done <- struct{}{}:
		default:
		}
	})

	manager := syncx.NewManager(f.queue,
		ledgerx.NewProcessor(f.queue, client), f.retry, bus,
		syncx.WithOnlineDebounce(10*time.Millisecond))

	f.addWork(t, "Composting")
	manager.OnOnline()
	manager.OnOnline() // flap, coalesced into one pass

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a flush after connectivity returned")
	}
	if client.callCount() != 1 {
		t.Fatalf("expected one coalesced transport call, got %d", client.callCount())
	}
}

// remoteDupChecker reports every content hash as already committed remotely.
type remoteDupChecker struct {
	remote *attestx.RemoteWork
}

func (c *remoteDupChecker) CheckDuplicate(_ context.Context, _ string) (bool, *attestx.RemoteWork) {
	return true, c.remote
}

func (c *remoteDupChecker) CurrentSchema(_ context.Context, _ string) (string, bool) {
	return "", false
}

func (c *remoteDupChecker) GardenStatus(_ context.Context, _ string) (attestx.GardenStatus, bool) {
	return attestx.GardenStatus{}, false
}
