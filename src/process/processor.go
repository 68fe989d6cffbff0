// Package process provides the alert processor: the consume → enrich →
// persist → republish loop at the center of the pipeline.
package process

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"sentinel-agent/src/broker"
	"sentinel-agent/src/cache"
	"sentinel-agent/src/contracts"
	"sentinel-agent/src/features"
	"sentinel-agent/src/logger"
	"sentinel-agent/src/metrics"
	"sentinel-agent/src/scorer"
	"sentinel-agent/src/store"
)

// State of a processor instance.
type State int

const (
	// StateStopped means no loop or workers are running.
	StateStopped State = iota
	// StateRunning means the read-dispatch loop is live.
	StateRunning
	// StateDraining means no new batches are admitted and in-flight work
	// is finishing.
	StateDraining
)

// Options tune a processor instance. Zero values fall back to the
// defaults below.
type Options struct {
	// Workers bounds concurrent enrichment. It is the sole backpressure
	// control: no more than Workers scoring calls or store writes run at
	// once, regardless of batch size.
	Workers int
	// BatchSize bounds how many messages one read claims.
	BatchSize int
	// BlockInterval bounds how long one read blocks waiting for entries.
	BlockInterval time.Duration
	// ShutdownGrace bounds how long Stop waits for in-flight tasks
	// before abandoning them. An abandoned task's message stays pending
	// and is reclaimed later.
	ShutdownGrace time.Duration
	// ScoreTimeout, StoreTimeout, and PublishTimeout bound the worker's
	// blocking calls individually.
	ScoreTimeout   time.Duration
	StoreTimeout   time.Duration
	PublishTimeout time.Duration
}

const (
	defaultWorkers       = 4
	defaultBatchSize     = 10
	defaultBlockInterval = time.Second
	defaultShutdownGrace = 10 * time.Second
	defaultScoreTimeout  = 10 * time.Second
	defaultIOTimeout     = 5 * time.Second

	// idlePause keeps an empty stream from busy-looping when the broker
	// returns immediately.
	idlePause = 100 * time.Millisecond

	// maxConsecutiveReadFailures is how many read attempts may fail in a
	// row before the instance gives up. Per-message failures don't count;
	// only the broker read path does.
	maxConsecutiveReadFailures = 5
)

func (o *Options) applyDefaults() {
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.BlockInterval <= 0 {
		o.BlockInterval = defaultBlockInterval
	}
	if o.ShutdownGrace <= 0 {
		o.ShutdownGrace = defaultShutdownGrace
	}
	if o.ScoreTimeout <= 0 {
		o.ScoreTimeout = defaultScoreTimeout
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = defaultIOTimeout
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = defaultIOTimeout
	}
}

// Processor consumes raw alerts under the shared consumer group, enriches
// each one in a bounded worker pool, persists and caches the result, and
// republishes it to the processed stream. A message is acknowledged only
// after its full enrich-persist-publish unit succeeds.
type Processor struct {
	stream   broker.Stream
	store    store.Store
	cache    cache.Cache
	scorer   scorer.Scorer
	logger   logger.Logger
	opts     Options
	consumer string

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	runErr error
}

// New creates a processor. The broker, store, and cache are shared with
// other components and stay owned by the caller; Stop does not close them.
func New(stream broker.Stream, st store.Store, ch cache.Cache, sc scorer.Scorer, log logger.Logger, opts Options) *Processor {
	opts.applyDefaults()
	return &Processor{
		stream: stream,
		store:  st,
		cache:  ch,
		scorer: sc,
		logger: log,
		opts:   opts,
		// Consumer identity must be unique per running instance so
		// pending entries are attributed correctly within the group.
		consumer: fmt.Sprintf("processor_%d", time.Now().UnixNano()),
	}
}

// Consumer returns this instance's consumer name within the group.
func (p *Processor) Consumer() string {
	return p.consumer
}

// State returns the current lifecycle state.
func (p *Processor) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err returns the error that stopped the run loop, if any.
func (p *Processor) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runErr
}

// Done returns a channel closed once the instance has fully stopped.
func (p *Processor) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Start transitions Stopped → Running and launches the read-dispatch loop
// and the worker pool. ctx carries the external shutdown signal:
// cancelling it is equivalent to calling Stop.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateStopped {
		p.mu.Unlock()
		return fmt.Errorf("processor is not stopped")
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.state = StateRunning
	p.cancel = cancel
	p.done = make(chan struct{})
	p.runErr = nil
	p.mu.Unlock()

	// A broker failure here is fatal: without the group there is nothing
	// to consume.
	if err := p.stream.EnsureGroup(runCtx, contracts.StreamRawAlerts, contracts.GroupAlertProcessors); err != nil {
		cancel()
		p.mu.Lock()
		p.state = StateStopped
		close(p.done)
		p.mu.Unlock()
		return fmt.Errorf("ensuring consumer group: %w", err)
	}

	// Workers run on a context detached from the read loop so draining
	// lets in-flight units finish; workerCancel fires only when the
	// grace period elapses.
	workerCtx, workerCancel := context.WithCancel(context.Background())

	tasks := make(chan broker.Message)
	var workers sync.WaitGroup
	workers.Add(p.opts.Workers)
	for i := 0; i < p.opts.Workers; i++ {
		go func() {
			defer workers.Done()
			for msg := range tasks {
				p.process(workerCtx, msg)
			}
		}()
	}

	go p.run(runCtx, tasks, &workers, workerCancel)

	p.logger.Info("[Processor] Started (consumer=%s, workers=%d, batch=%d)",
		p.consumer, p.opts.Workers, p.opts.BatchSize)
	return nil
}

// Stop transitions Running → Draining, waits for in-flight tasks up to the
// grace period, and leaves the instance Stopped. Safe to call concurrently
// with the loop and idempotent.
func (p *Processor) Stop() {
	p.mu.Lock()
	if p.done == nil || p.state == StateStopped {
		done := p.done
		p.mu.Unlock()
		if done != nil {
			<-done
		}
		return
	}
	p.state = StateDraining
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	cancel()
	<-done
}

// run is the single logical driver: it repeatedly claims a bounded batch
// and hands each message to the pool. It terminates on cancellation or on
// sustained read failure, then drains.
func (p *Processor) run(ctx context.Context, tasks chan broker.Message, workers *sync.WaitGroup, workerCancel context.CancelFunc) {
	var fatal error

loop:
	for consecutiveFailures := 0; ; {
		if ctx.Err() != nil {
			break
		}

		batch, err := p.stream.ReadBatch(ctx, contracts.StreamRawAlerts,
			contracts.GroupAlertProcessors, p.consumer, p.opts.BatchSize, p.opts.BlockInterval)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			consecutiveFailures++
			p.logger.Error("[Processor] Read failed (%d/%d): %v",
				consecutiveFailures, maxConsecutiveReadFailures, err)
			if consecutiveFailures >= maxConsecutiveReadFailures {
				fatal = fmt.Errorf("sustained read failures: %w", err)
				break
			}
			if !sleepCtx(ctx, p.opts.BlockInterval) {
				break
			}
			continue
		}
		consecutiveFailures = 0

		if len(batch) == 0 {
			info := p.stream.StreamInfo(ctx, contracts.StreamRawAlerts)
			metrics.StreamLength.WithLabelValues(contracts.StreamRawAlerts).Set(float64(info.Length))
			if !sleepCtx(ctx, idlePause) {
				break
			}
			continue
		}

		p.logger.Debug("[Processor] Claimed %d messages", len(batch))
		for _, msg := range batch {
			select {
			case tasks <- msg:
			case <-ctx.Done():
				// Undispatched messages stay pending and are reclaimed
				// after the idle threshold.
				break loop
			}
		}
	}

	p.drain(tasks, workers, workerCancel, fatal)
}

// drain stops admitting work and waits for the pool up to the grace
// period. Tasks still running after that are abandoned; their messages
// remain unacknowledged.
func (p *Processor) drain(tasks chan broker.Message, workers *sync.WaitGroup, workerCancel context.CancelFunc, fatal error) {
	p.mu.Lock()
	p.state = StateDraining
	p.mu.Unlock()

	close(tasks)

	finished := make(chan struct{})
	go func() {
		workers.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		p.logger.Info("[Processor] All in-flight tasks finished")
	case <-time.After(p.opts.ShutdownGrace):
		p.logger.Error("[Processor] Grace period elapsed, abandoning in-flight tasks")
		workerCancel()
	}

	p.mu.Lock()
	p.state = StateStopped
	p.runErr = fatal
	close(p.done)
	p.mu.Unlock()

	if fatal != nil {
		p.logger.Error("[Processor] Stopped: %v", fatal)
	} else {
		p.logger.Info("[Processor] Stopped")
	}
}

// process runs one message's unit of work: extract → score → persist →
// cache → publish → ack. Order within the unit is strict; a failure before
// ack leaves the message pending for redelivery and never halts the loop.
func (p *Processor) process(ctx context.Context, msg broker.Message) {
	metrics.WorkersBusy.Inc()
	defer metrics.WorkersBusy.Dec()

	alert := contracts.RawAlertFromFields(msg.Fields)
	vector := features.Extract(alert)

	scoreCtx, cancelScore := context.WithTimeout(ctx, p.opts.ScoreTimeout)
	defer cancelScore()
	start := time.Now()
	prediction, err := p.scorer.Score(scoreCtx, vector)
	metrics.ScoringDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.failed(msg, alert, "scoring", err)
		return
	}

	enriched := contracts.EnrichedAlert{
		RawAlert:      alert,
		Label:         prediction.Label,
		Confidence:    prediction.Confidence,
		FeatureVector: vector,
		ProcessedAt:   time.Now().UTC(),
	}

	storeCtx, cancelStore := context.WithTimeout(ctx, p.opts.StoreTimeout)
	defer cancelStore()
	persistedID, err := p.store.SaveAlert(storeCtx, &enriched)
	if err != nil {
		p.failed(msg, alert, "persist", err)
		return
	}

	// Cache writes are best-effort: a failure is logged and swallowed.
	p.cacheRecent(ctx, persistedID, &enriched)

	fields, err := enriched.Fields()
	if err != nil {
		p.failed(msg, alert, "publish", err)
		return
	}
	publishCtx, cancelPublish := context.WithTimeout(ctx, p.opts.PublishTimeout)
	defer cancelPublish()
	if _, err := p.stream.Append(publishCtx, contracts.StreamProcessedAlerts, fields); err != nil {
		p.failed(msg, alert, "publish", err)
		return
	}

	ackCtx, cancelAck := context.WithTimeout(ctx, p.opts.PublishTimeout)
	defer cancelAck()
	if err := p.stream.Ack(ackCtx, contracts.StreamRawAlerts, contracts.GroupAlertProcessors, msg.ID); err != nil {
		// The unit succeeded; the unacked message will be redelivered and
		// produce a duplicate, which at-least-once delivery permits.
		p.logger.Error("[Processor] Ack failed for %s: %v", msg.ID, err)
	}

	metrics.AlertsProcessed.WithLabelValues(alert.Source, metrics.PredictionLabel(prediction.Label)).Inc()
	p.logger.Debug("[Processor] Enriched %s (label=%d, src=%s, dst=%s)",
		msg.ID, prediction.Label, alert.SourceIP, alert.DestinationIP)
}

func (p *Processor) cacheRecent(ctx context.Context, persistedID int64, enriched *contracts.EnrichedAlert) {
	payload, err := json.Marshal(enriched)
	if err != nil {
		p.logger.Error("[Processor] Cache encode failed for alert %s: %v", enriched.ID, err)
		return
	}

	cacheCtx, cancel := context.WithTimeout(ctx, p.opts.StoreTimeout)
	defer cancel()
	if err := p.cache.Put(cacheCtx, cache.RecentAlertKey(persistedID), payload, cache.RecentAlertTTL); err != nil {
		p.logger.Error("[Processor] Cache write failed for alert %s: %v", enriched.ID, err)
	}
}

// failed records a per-message failure with enough context for manual
// replay. The message is not acknowledged.
func (p *Processor) failed(msg broker.Message, alert contracts.RawAlert, stage string, err error) {
	metrics.ProcessingFailures.WithLabelValues(stage).Inc()
	p.logger.Error("[Processor] %s failed for message %s (src=%s, dst=%s): %v",
		stage, msg.ID, alert.SourceIP, alert.DestinationIP, err)
}

// sleepCtx sleeps for d or until ctx is cancelled. Returns false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
