package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"nstbot/internal/core/domain"
	"nstbot/internal/metrics"

	"github.com/rs/zerolog/log"
)

// RunFunc performs the work of a job. ctx carries the job deadline.
type RunFunc func(ctx context.Context) (string, error)

// DoneFunc receives the result of a job exactly once, including jobs dropped at shutdown.
type DoneFunc func(path string, err error)

type job struct {
	id   string
	run  RunFunc
	done DoneFunc
}

// Pool runs jobs on a fixed number of workers from a bounded queue.
type Pool struct {
	workers int
	timeout time.Duration
	queue   chan job

	mu     sync.Mutex
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup

	busy      atomic.Int64
	completed atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
}

func NewPool(workers, queueSize int, timeout time.Duration) (*Pool, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", workers)
	}
	if queueSize <= 0 {
		return nil, fmt.Errorf("queue size must be positive, got %d", queueSize)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("job timeout must be positive, got %s", timeout)
	}

	return &Pool{
		workers: workers,
		timeout: timeout,
		queue:   make(chan job, queueSize),
		stop:    make(chan struct{}),
	}, nil
}

// Start launches the workers. When ctx is done the pool stops accepting jobs, running jobs see their context
// cancelled and queued jobs are reported as cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := range p.workers {
		p.wg.Add(1)
		go p.work(ctx, i)
	}

	go func() {
		<-ctx.Done()

		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		close(p.stop)
	}()

	log.Info().Int("workers", p.workers).Int("queueSize", cap(p.queue)).Dur("timeout", p.timeout).
		Msg("worker pool started")
}

// TryEnqueue queues a job without blocking. It returns domain.ErrCapacity if the queue is full or the pool has
// shut down.
func (p *Pool) TryEnqueue(id string, run RunFunc, done DoneFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("%w: pool is shutting down", domain.ErrCapacity)
	}

	select {
	case p.queue <- job{id: id, run: run, done: done}:
		log.Debug().Str("job", id).Int("queued", len(p.queue)).Msg("job queued")
		return nil
	default:
		p.rejected.Add(1)
		metrics.RecordRejection()
		return fmt.Errorf("%w: %d jobs queued", domain.ErrCapacity, cap(p.queue))
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) Stats() domain.PoolStats {
	return domain.PoolStats{
		Workers:   p.workers,
		Busy:      int(p.busy.Load()),
		Queued:    len(p.queue),
		QueueSize: cap(p.queue),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

func (p *Pool) work(ctx context.Context, worker int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stop:
			p.drain(ctx.Err())
			return
		case j := <-p.queue:
			if err := ctx.Err(); err != nil {
				p.drop(j, err)
				continue
			}
			p.execute(ctx, worker, j)
		}
	}
}

func (p *Pool) drain(cause error) {
	for {
		select {
		case j := <-p.queue:
			p.drop(j, cause)
		default:
			return
		}
	}
}

func (p *Pool) drop(j job, cause error) {
	log.Warn().Str("job", j.id).Msg("dropping queued job on shutdown")
	p.failed.Add(1)
	metrics.RecordTransfer("cancelled", 0)
	p.finish(j, "", fmt.Errorf("transfer cancelled before start: %w", cause))
}

func (p *Pool) execute(ctx context.Context, worker int, j job) {
	l := log.With().Str("job", j.id).Int("worker", worker).Logger()

	metrics.SetActive(int(p.busy.Add(1)))
	defer func() {
		metrics.SetActive(int(p.busy.Add(-1)))
	}()

	jctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	l.Info().Msg("job started")
	start := time.Now()

	path, err := safeRun(jctx, j.run)
	took := time.Since(start)

	outcome := "done"
	switch {
	case err == nil:
		p.completed.Add(1)
	case errors.Is(jctx.Err(), context.DeadlineExceeded):
		err = fmt.Errorf("%w after %s: %w", domain.ErrTransferTimeout, p.timeout, err)
		outcome = "timeout"
	case ctx.Err() != nil:
		outcome = "cancelled"
	default:
		outcome = "failed"
	}
	if err != nil {
		p.failed.Add(1)
		l.Error().Err(err).Dur("took", took).Msg("job failed")
	} else {
		l.Info().Dur("took", took).Msg("job finished")
	}

	metrics.RecordTransfer(outcome, took)
	p.finish(j, path, err)
}

func (p *Pool) finish(j job, path string, err error) {
	if j.done == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("job", j.id).Interface("panic", r).Msg("job completion callback panicked")
		}
	}()

	j.done(path, err)
}

func safeRun(ctx context.Context, run RunFunc) (path string, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("job panicked")
			err = fmt.Errorf("transfer panicked: %v", r)
		}
	}()

	return run(ctx)
}
