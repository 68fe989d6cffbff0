package process

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sentinel-agent/src/broker"
	"sentinel-agent/src/cache"
	"sentinel-agent/src/contracts"
	"sentinel-agent/src/features"
	"sentinel-agent/src/ingest"
	"sentinel-agent/src/logger"
	"sentinel-agent/src/scorer"
	"sentinel-agent/src/store"
)

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// readProcessed drains the processed stream under a dedicated group.
func readProcessed(t *testing.T, stream broker.Stream) []broker.Message {
	t.Helper()
	ctx := context.Background()
	if err := stream.EnsureGroup(ctx, contracts.StreamProcessedAlerts, "test-readers"); err != nil {
		t.Fatalf("EnsureGroup on processed stream: %v", err)
	}
	messages, err := stream.ReadBatch(ctx, contracts.StreamProcessedAlerts, "test-readers", "t1", 100, 0)
	if err != nil {
		t.Fatalf("reading processed stream: %v", err)
	}
	return messages
}

func TestProcessorEndToEnd(t *testing.T) {
	ctx := context.Background()
	stream := broker.NewInMemoryStream(time.Minute)
	defer stream.Close()
	st := store.NewMemoryStore()
	ch := cache.NewMemoryCache()
	log := logger.NewSilentLogger()

	svc := ingest.NewService(stream, log)
	alert := contracts.RawAlert{
		SourceIP:        "10.0.0.5",
		DestinationIP:   "192.168.1.10",
		DestinationPort: 22,
		Protocol:        "TCP",
		Message:         "inbound ssh probe",
	}
	if err := svc.Ingest(ctx, alert, contracts.SourceCustom); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	p := New(stream, st, ch, scorer.Static{Prediction: scorer.Prediction{Label: 1, Confidence: 0.9}}, log, Options{
		Workers:       4,
		BlockInterval: 20 * time.Millisecond,
		ShutdownGrace: time.Second,
	})
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, 2*time.Second, "alert to be persisted", func() bool { return st.Count() == 1 })
	waitFor(t, 2*time.Second, "message to be acknowledged", func() bool {
		return stream.Pending(contracts.StreamRawAlerts, contracts.GroupAlertProcessors) == 0
	})
	p.Stop()

	if p.State() != StateStopped {
		t.Errorf("state after Stop = %v, want StateStopped", p.State())
	}

	// Exactly one enriched alert, fully assembled, on the processed stream.
	messages := readProcessed(t, stream)
	if len(messages) != 1 {
		t.Fatalf("processed stream has %d messages, want 1", len(messages))
	}
	enriched := contracts.EnrichedAlertFromFields(messages[0].Fields)
	if enriched.Label != 0 && enriched.Label != 1 {
		t.Errorf("label = %d, want 0 or 1", enriched.Label)
	}
	if len(enriched.FeatureVector) != features.VectorSize {
		t.Errorf("feature vector length = %d, want %d", len(enriched.FeatureVector), features.VectorSize)
	}
	if enriched.SourceIP != "10.0.0.5" {
		t.Errorf("source_ip = %q, want 10.0.0.5", enriched.SourceIP)
	}
	if enriched.ProcessedAt.IsZero() {
		t.Error("processed_at not stamped")
	}

	// Persistence holds the matching record.
	saved, err := st.RecentAlerts(ctx, 1)
	if err != nil || len(saved) != 1 {
		t.Fatalf("RecentAlerts = %v, %v; want one record", saved, err)
	}
	if saved[0].SourceIP != "10.0.0.5" {
		t.Errorf("persisted source_ip = %q, want 10.0.0.5", saved[0].SourceIP)
	}

	// The recent-alert cache entry exists under the persisted id.
	if _, ok, _ := ch.Get(ctx, cache.RecentAlertKey(1)); !ok {
		t.Error("recent-alert cache entry missing")
	}
}

func TestProcessorPersistFailureLeavesMessagePending(t *testing.T) {
	ctx := context.Background()
	stream := broker.NewInMemoryStream(150 * time.Millisecond)
	defer stream.Close()
	st := store.NewMemoryStore()
	log := logger.NewSilentLogger()

	// First save fails; the redelivered message must succeed.
	st.FailNextSaves(1)

	svc := ingest.NewService(stream, log)
	if err := svc.Ingest(ctx, contracts.RawAlert{SourceIP: "10.1.1.1"}, contracts.SourceSnort); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	p := New(stream, st, cache.NewMemoryCache(), scorer.Static{}, log, Options{
		Workers:       1,
		BlockInterval: 20 * time.Millisecond,
		ShutdownGrace: time.Second,
	})
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// The failed attempt leaves the message unacknowledged; after the
	// idle threshold the loop reclaims and completes it.
	waitFor(t, 3*time.Second, "redelivered message to be persisted", func() bool { return st.Count() == 1 })
	waitFor(t, 3*time.Second, "redelivered message to be acknowledged", func() bool {
		return stream.Pending(contracts.StreamRawAlerts, contracts.GroupAlertProcessors) == 0
	})
	p.Stop()

	if messages := readProcessed(t, stream); len(messages) != 1 {
		t.Errorf("processed stream has %d messages, want exactly 1", len(messages))
	}
}

// gateScorer tracks how many Score calls run concurrently.
type gateScorer struct {
	mu      sync.Mutex
	current int
	peak    int
}

func (g *gateScorer) Score(ctx context.Context, vector []float64) (scorer.Prediction, error) {
	g.mu.Lock()
	g.current++
	if g.current > g.peak {
		g.peak = g.current
	}
	g.mu.Unlock()

	time.Sleep(30 * time.Millisecond)

	g.mu.Lock()
	g.current--
	g.mu.Unlock()
	return scorer.Prediction{}, nil
}

func (g *gateScorer) Peak() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}

func TestProcessorConcurrencyBound(t *testing.T) {
	ctx := context.Background()
	stream := broker.NewInMemoryStream(time.Minute)
	defer stream.Close()
	st := store.NewMemoryStore()
	log := logger.NewSilentLogger()

	svc := ingest.NewService(stream, log)
	for i := 0; i < 20; i++ {
		if err := svc.Ingest(ctx, contracts.RawAlert{SourcePort: i}, contracts.SourceCustom); err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
	}

	gate := &gateScorer{}
	p := New(stream, st, cache.NewMemoryCache(), gate, log, Options{
		Workers:       3,
		BatchSize:     10,
		BlockInterval: 20 * time.Millisecond,
		ShutdownGrace: 5 * time.Second,
	})
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, 10*time.Second, "all alerts to be persisted", func() bool { return st.Count() == 20 })
	p.Stop()

	if gate.Peak() > 3 {
		t.Errorf("peak concurrent scoring calls = %d, want at most the pool size 3", gate.Peak())
	}
}

// blockingScorer holds every Score call until release is closed or the
// call's context is cancelled.
type blockingScorer struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingScorer) Score(ctx context.Context, vector []float64) (scorer.Prediction, error) {
	b.started <- struct{}{}
	select {
	case <-b.release:
		return scorer.Prediction{}, nil
	case <-ctx.Done():
		return scorer.Prediction{}, ctx.Err()
	}
}

func TestProcessorStopDrainsInFlightWork(t *testing.T) {
	ctx := context.Background()
	stream := broker.NewInMemoryStream(time.Minute)
	defer stream.Close()
	st := store.NewMemoryStore()
	log := logger.NewSilentLogger()

	svc := ingest.NewService(stream, log)
	for i := 0; i < 3; i++ {
		if err := svc.Ingest(ctx, contracts.RawAlert{SourcePort: i}, contracts.SourceCustom); err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
	}

	blocking := &blockingScorer{started: make(chan struct{}, 4), release: make(chan struct{})}
	p := New(stream, st, cache.NewMemoryCache(), blocking, log, Options{
		Workers:       4,
		BlockInterval: 20 * time.Millisecond,
		ShutdownGrace: 5 * time.Second,
	})
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Wait until all three messages are mid-scoring, then stop while
	// they are in flight.
	for i := 0; i < 3; i++ {
		select {
		case <-blocking.started:
		case <-time.After(2 * time.Second):
			t.Fatal("worker never reached the scorer")
		}
	}

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	// Draining: stop must not complete while tasks are still running.
	select {
	case <-stopped:
		t.Fatal("Stop returned before in-flight tasks finished")
	case <-time.After(100 * time.Millisecond):
	}

	close(blocking.release)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after in-flight tasks finished")
	}

	if p.State() != StateStopped {
		t.Errorf("state = %v, want StateStopped", p.State())
	}
	if st.Count() != 3 {
		t.Errorf("persisted %d alerts, want all 3 in-flight units to complete", st.Count())
	}
	if pending := stream.Pending(contracts.StreamRawAlerts, contracts.GroupAlertProcessors); pending != 0 {
		t.Errorf("pending = %d, want 0 after drained units acked", pending)
	}
}

func TestProcessorGraceElapsedAbandonsTask(t *testing.T) {
	ctx := context.Background()
	stream := broker.NewInMemoryStream(time.Minute)
	defer stream.Close()
	st := store.NewMemoryStore()
	log := logger.NewSilentLogger()

	svc := ingest.NewService(stream, log)
	if err := svc.Ingest(ctx, contracts.RawAlert{}, contracts.SourceCustom); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	// Never released: the task can only end via grace-period cancellation.
	blocking := &blockingScorer{started: make(chan struct{}, 1), release: make(chan struct{})}
	p := New(stream, st, cache.NewMemoryCache(), blocking, log, Options{
		Workers:       1,
		BlockInterval: 20 * time.Millisecond,
		ShutdownGrace: 100 * time.Millisecond,
	})
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case <-blocking.started:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never reached the scorer")
	}

	start := time.Now()
	p.Stop()
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("Stop returned after %v, want it to wait out the grace period", elapsed)
	}

	if p.State() != StateStopped {
		t.Errorf("state = %v, want StateStopped", p.State())
	}
	// The abandoned message stays unacknowledged, eligible for reclaim.
	if pending := stream.Pending(contracts.StreamRawAlerts, contracts.GroupAlertProcessors); pending != 1 {
		t.Errorf("pending = %d, want the abandoned message to stay pending", pending)
	}
	if st.Count() != 0 {
		t.Errorf("persisted %d alerts, want 0 for the abandoned unit", st.Count())
	}
}

func TestProcessorStopIdempotent(t *testing.T) {
	stream := broker.NewInMemoryStream(time.Minute)
	defer stream.Close()
	log := logger.NewSilentLogger()

	p := New(stream, store.NewMemoryStore(), cache.NewMemoryCache(), scorer.Static{}, log, Options{
		BlockInterval: 20 * time.Millisecond,
		ShutdownGrace: time.Second,
	})

	// Stop before Start is a no-op.
	p.Stop()

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Stop()
		}()
	}
	wg.Wait()

	if p.State() != StateStopped {
		t.Errorf("state = %v, want StateStopped after concurrent Stops", p.State())
	}

	// A stopped instance can be started again.
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	p.Stop()
}

func TestProcessorCacheFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()
	stream := broker.NewInMemoryStream(time.Minute)
	defer stream.Close()
	st := store.NewMemoryStore()
	ch := cache.NewMemoryCache()
	ch.FailPuts(true)
	log := logger.NewSilentLogger()

	svc := ingest.NewService(stream, log)
	if err := svc.Ingest(ctx, contracts.RawAlert{SourceIP: "10.2.2.2"}, contracts.SourceCustom); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	p := New(stream, st, ch, scorer.Static{}, log, Options{
		Workers:       1,
		BlockInterval: 20 * time.Millisecond,
		ShutdownGrace: time.Second,
	})
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, 2*time.Second, "unit to complete despite cache failure", func() bool {
		return stream.Pending(contracts.StreamRawAlerts, contracts.GroupAlertProcessors) == 0 && st.Count() == 1
	})
	p.Stop()

	if messages := readProcessed(t, stream); len(messages) != 1 {
		t.Errorf("processed stream has %d messages, want 1", len(messages))
	}
}

// failingReadStream wraps an in-memory stream and fails every read.
type failingReadStream struct {
	*broker.InMemoryStream
}

func (f *failingReadStream) ReadBatch(ctx context.Context, stream, group, consumer string, count int, block time.Duration) ([]broker.Message, error) {
	return nil, contracts.ErrBrokerUnavailable
}

func TestProcessorSustainedReadFailureIsFatal(t *testing.T) {
	stream := &failingReadStream{InMemoryStream: broker.NewInMemoryStream(time.Minute)}
	defer stream.Close()
	log := logger.NewSilentLogger()

	p := New(stream, store.NewMemoryStore(), cache.NewMemoryCache(), scorer.Static{}, log, Options{
		BlockInterval: 5 * time.Millisecond,
		ShutdownGrace: time.Second,
	})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("processor did not stop on sustained read failure")
	}

	if p.State() != StateStopped {
		t.Errorf("state = %v, want StateStopped", p.State())
	}
	if !errors.Is(p.Err(), contracts.ErrBrokerUnavailable) {
		t.Errorf("Err() = %v, want ErrBrokerUnavailable", p.Err())
	}
}

func TestProcessorStartFailsWithoutBroker(t *testing.T) {
	stream := broker.NewInMemoryStream(time.Minute)
	stream.Close()
	log := logger.NewSilentLogger()

	p := New(stream, store.NewMemoryStore(), cache.NewMemoryCache(), scorer.Static{}, log, Options{})
	err := p.Start(context.Background())
	if !errors.Is(err, contracts.ErrBrokerUnavailable) {
		t.Errorf("Start error = %v, want ErrBrokerUnavailable", err)
	}
	if p.State() != StateStopped {
		t.Errorf("state = %v, want StateStopped after failed start", p.State())
	}
}
