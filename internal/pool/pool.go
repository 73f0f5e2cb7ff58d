// Package pool runs independent tasks under a fixed concurrency bound with
// in-place retries.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"eve-dealfinder/internal/metrics"
)

const (
	DefaultConcurrency = 16
	DefaultMaxRetries  = 4
)

// Task is a deferred unit of work.
type Task[T any] func(ctx context.Context) (T, error)

// Options configures a Pool.
type Options struct {
	Name        string // metrics label
	Concurrency int    // <= 0 means DefaultConcurrency
	MaxRetries  int    // extra attempts after the first failure; < 0 means none
}

// DefaultOptions returns the default bound and retry budget.
func DefaultOptions(name string) Options {
	return Options{Name: name, Concurrency: DefaultConcurrency, MaxRetries: DefaultMaxRetries}
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Submitted   int64
	Succeeded   int64
	Failed      int64
	Retries     int64
	Running     int64
	PeakRunning int64
}

type job[T any] struct {
	ctx  context.Context
	task Task[T]
	fut  *Future[T]
}

// Pool executes submitted tasks on at most Concurrency goroutines.
// The backlog is FIFO. Workers are started on demand and exit once the
// backlog is empty.
type Pool[T any] struct {
	name        string
	concurrency int
	maxRetries  int

	mu      sync.Mutex
	backlog []*job[T]
	workers int

	submitted atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	retries   atomic.Int64
	running   atomic.Int64
	peak      atomic.Int64
}

// New starts a pool with opts.Concurrency workers.
func New[T any](opts Options) *Pool[T] {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Name == "" {
		opts.Name = "default"
	}
	return &Pool[T]{
		name:        opts.Name,
		concurrency: opts.Concurrency,
		maxRetries:  opts.MaxRetries,
	}
}

// Submit queues task and returns its Future. It never blocks.
func (p *Pool[T]) Submit(ctx context.Context, task Task[T]) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	p.submitted.Add(1)

	p.mu.Lock()
	p.backlog = append(p.backlog, &job[T]{ctx: ctx, task: task, fut: f})
	spawn := p.workers < p.concurrency
	if spawn {
		p.workers++
	}
	p.mu.Unlock()

	if spawn {
		go p.work()
	}
	return f
}

// Stats returns the current counters.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Submitted:   p.submitted.Load(),
		Succeeded:   p.succeeded.Load(),
		Failed:      p.failed.Load(),
		Retries:     p.retries.Load(),
		Running:     p.running.Load(),
		PeakRunning: p.peak.Load(),
	}
}

func (p *Pool[T]) work() {
	for {
		p.mu.Lock()
		if len(p.backlog) == 0 {
			p.workers--
			p.mu.Unlock()
			return
		}
		j := p.backlog[0]
		p.backlog[0] = nil
		p.backlog = p.backlog[1:]
		p.mu.Unlock()

		p.execute(j)
	}
}

func (p *Pool[T]) execute(j *job[T]) {
	n := p.running.Add(1)
	for {
		cur := p.peak.Load()
		if n <= cur || p.peak.CompareAndSwap(cur, n) {
			break
		}
	}
	metrics.PoolInFlight.WithLabelValues(p.name).Inc()
	defer func() {
		p.running.Add(-1)
		metrics.PoolInFlight.WithLabelValues(p.name).Dec()
	}()

	var (
		value    T
		err      error
		attempts int
	)
	for attempts = 1; ; attempts++ {
		value, err = p.attempt(j)
		if err == nil || IsPermanent(err) || attempts > p.maxRetries {
			break
		}
		p.retries.Add(1)
		metrics.PoolRetries.WithLabelValues(p.name).Inc()
	}

	if err != nil {
		p.failed.Add(1)
		metrics.PoolTasks.WithLabelValues(p.name, "failed").Inc()
		var perm *permanentError
		if errors.As(err, &perm) {
			err = perm.err
		}
	} else {
		p.succeeded.Add(1)
		metrics.PoolTasks.WithLabelValues(p.name, "ok").Inc()
	}
	j.fut.complete(value, err, attempts)
}

func (p *Pool[T]) attempt(j *job[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pool %s: task panicked: %v", p.name, r)
		}
	}()
	return j.task(j.ctx)
}

// Future is the completion handle of one submitted task.
type Future[T any] struct {
	done     chan struct{}
	value    T
	err      error
	attempts int
}

func (f *Future[T]) complete(value T, err error, attempts int) {
	f.value = value
	f.err = err
	f.attempts = attempts
	close(f.done)
}

// Done is closed when the task has settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task settles or ctx ends. Ending ctx does not stop
// the task itself.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Attempts reports how many times the task ran. Valid after Done.
func (f *Future[T]) Attempts() int {
	<-f.done
	return f.attempts
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so the pool does not retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var perm *permanentError
	return errors.As(err, &perm)
}
