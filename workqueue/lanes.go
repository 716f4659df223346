package workqueue

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

type lane struct {
	pending []func(context.Context)
}

// Lanes runs functions one at a time per key, in submission order. Each key
// with pending work has exactly one worker goroutine; the worker exits and the
// lane is dropped once its queue is empty. Different keys run concurrently.
type Lanes struct {
	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewLanes returns an empty lane set.
func NewLanes(logger zerolog.Logger) *Lanes {
	return &Lanes{
		lanes:  make(map[string]*lane),
		logger: logger.With().Str("component", "lanes").Logger(),
	}
}

// Go appends fn to key's lane, starting a worker if the lane was idle.
// A panic in fn is logged and does not stop later functions in the lane.
func (l *Lanes) Go(ctx context.Context, key string, fn func(context.Context)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrExecutorClosed
	}

	ln, ok := l.lanes[key]
	if ok {
		ln.pending = append(ln.pending, fn)
		return nil
	}

	ln = &lane{pending: []func(context.Context){fn}}
	l.lanes[key] = ln
	l.wg.Add(1)
	activeLanes.Inc()
	go l.run(ctx, key, ln)
	return nil
}

// Active reports how many lanes currently have a worker.
func (l *Lanes) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}

// Stop rejects new work and waits for queued functions to finish.
func (l *Lanes) Stop() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.wg.Wait()
}

func (l *Lanes) run(ctx context.Context, key string, ln *lane) {
	defer l.wg.Done()
	defer activeLanes.Dec()

	for {
		l.mu.Lock()
		if len(ln.pending) == 0 {
			delete(l.lanes, key)
			l.mu.Unlock()
			return
		}
		fn := ln.pending[0]
		ln.pending[0] = nil
		ln.pending = ln.pending[1:]
		l.mu.Unlock()

		l.safeRun(ctx, key, fn)
	}
}

func (l *Lanes) safeRun(ctx context.Context, key string, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Str("lane", key).Interface("panic", r).Msg("Lane task panicked")
		}
	}()
	fn(ctx)
}
