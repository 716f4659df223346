// Package workqueue runs background work for claw.
//
// ShardExecutor is a bounded, sharded queue with retries, used for
// write-behind indexing. Lanes gives each conversation its own strictly
// ordered worker.
package workqueue

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

type queuedJob struct {
	ctx context.Context
	job Job
}

// ShardExecutor runs Jobs on worker goroutines partitioned by a stable hash of
// the key. Jobs with the same key run in submission order; different shards run
// in parallel. Order is only guaranteed among jobs one goroutine submits; jobs
// for the same key submitted from different goroutines interleave in arrival order.
type ShardExecutor struct {
	cfg    Config
	queues []chan queuedJob
	logger zerolog.Logger

	done   chan struct{}
	closed uint32

	wg sync.WaitGroup
}

// NewShardExecutor builds the executor and starts its shard workers.
func NewShardExecutor(cfg Config, logger zerolog.Logger) *ShardExecutor {
	cfg = cfg.withDefaults()

	p := &ShardExecutor{
		cfg:    cfg,
		queues: make([]chan queuedJob, cfg.Shards),
		logger: logger.With().Str("component", "workqueue").Str("queue", cfg.Name).Logger(),
		done:   make(chan struct{}),
	}
	for i := 0; i < cfg.Shards; i++ {
		ch := make(chan queuedJob, cfg.QueueSize)
		p.queues[i] = ch
		p.wg.Add(1)
		go p.runWorker(i, ch)
	}
	return p
}

// Submit enqueues job on the shard for key. It returns ErrExecutorClosed after
// Stop, a *QueueFullError if the shard stays full for EnqueueTimeout, or
// ctx.Err() if the caller gives up first.
func (p *ShardExecutor) Submit(ctx context.Context, key string, job Job) error {
	if atomic.LoadUint32(&p.closed) == 1 {
		return ErrExecutorClosed
	}
	select {
	case <-p.done:
		return ErrExecutorClosed
	default:
	}

	shard := p.shardFor(key)
	ch := p.queues[shard]

	timer := time.NewTimer(p.cfg.EnqueueTimeout)
	defer timer.Stop()

	select {
	case ch <- queuedJob{ctx: ctx, job: job}:
		submissionsTotal.WithLabelValues(p.cfg.Name, labelFor(shard)).Inc()
		return nil
	case <-p.done:
		return ErrExecutorClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		queueFullTotal.WithLabelValues(p.cfg.Name, labelFor(shard)).Inc()
		return &QueueFullError{Shard: shard, Length: len(ch), Capacity: cap(ch)}
	}
}

// Barrier waits until every job submitted for key before the call has run.
func (p *ShardExecutor) Barrier(ctx context.Context, key string) error {
	done := make(chan struct{})
	if err := p.Submit(ctx, key, JobFunc(func(context.Context) error {
		close(done)
		return nil
	})); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Stop drains every shard and waits for the workers to exit. Idempotent.
func (p *ShardExecutor) Stop() {
	if !atomic.CompareAndSwapUint32(&p.closed, 0, 1) {
		return
	}
	p.logger.Info().Int("shards", p.cfg.Shards).Msg("Stopping work queue, draining shards")
	close(p.done)
	p.wg.Wait()
	p.logger.Info().Msg("Work queue stopped")
}

// Close lets ShardExecutor satisfy io.Closer.
func (p *ShardExecutor) Close() error {
	p.Stop()
	return nil
}

func (p *ShardExecutor) runWorker(idx int, ch <-chan queuedJob) {
	defer p.wg.Done()
	label := labelFor(idx)

	for {
		select {
		case qj := <-ch:
			if qj.job != nil {
				p.runWithRetry(label, qj)
			}
			queueDepth.WithLabelValues(p.cfg.Name, label).Set(float64(len(ch)))

		case <-p.done:
			drained := 0
			for {
				select {
				case qj := <-ch:
					if qj.job != nil {
						if err := p.runOnce(label, qj); err != nil {
							p.handleError(err)
						}
						drained++
					}
				default:
					if drained > 0 {
						p.logger.Debug().Int("shard", idx).Int("drained", drained).Msg("Drained remaining jobs")
					}
					queueDepth.WithLabelValues(p.cfg.Name, label).Set(0)
					return
				}
			}
		}
	}
}

func (p *ShardExecutor) runWithRetry(label string, qj queuedJob) {
	select {
	case <-qj.ctx.Done():
		p.handleError(qj.ctx.Err())
		return
	default:
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.cfg.BaseBackoff
	exp.Multiplier = 2
	exp.MaxInterval = p.cfg.MaxInterval
	exp.Reset()

	for attempt := 1; ; attempt++ {
		err := p.runOnce(label, qj)
		if err == nil {
			return
		}
		if isPermanent(err) || attempt >= p.cfg.MaxAttempts {
			p.handleError(err)
			return
		}

		wait := exp.NextBackOff()
		p.logger.Debug().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("Job failed, retrying")
		select {
		case <-time.After(wait):
		case <-p.done:
			// Shutdown: one last try so the drain does not lose the job.
			if err := p.runOnce(label, qj); err != nil {
				p.handleError(err)
			}
			return
		case <-qj.ctx.Done():
			p.handleError(qj.ctx.Err())
			return
		}
	}
}

// runOnce runs the job and converts a panic into an error so the shard survives.
func (p *ShardExecutor) runOnce(label string, qj queuedJob) (err error) {
	start := time.Now()
	defer func() {
		runDuration.WithLabelValues(p.cfg.Name, label).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("job panic: %v", r))
		}
	}()
	return qj.job.Run(qj.ctx)
}

func (p *ShardExecutor) handleError(err error) {
	if err == nil {
		return
	}
	failuresTotal.WithLabelValues(p.cfg.Name).Inc()
	p.logger.Warn().Err(err).Msg("Job failed")
	if p.cfg.ErrorHandler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Msg("Error handler panicked")
		}
	}()
	p.cfg.ErrorHandler(err)
}

func (p *ShardExecutor) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(p.cfg.Shards))
}
