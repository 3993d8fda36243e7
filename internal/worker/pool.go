package worker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/core"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/logger"
)

// Pool runs a fixed number of workers over one queue. Workers share nothing
// but the queue and the prober; each returns its own Partial.
type Pool struct {
	prober core.Prober
	size   int
	logger *logger.Logger
}

// Stats summarises one pool run.
type Stats struct {
	Processed int
	Approved  int
	Rejected  int
	Transient int
	Panics    int
}

func (s *Stats) add(o Stats) {
	s.Processed += o.Processed
	s.Approved += o.Approved
	s.Rejected += o.Rejected
	s.Transient += o.Transient
	s.Panics += o.Panics
}

func NewPool(prober core.Prober, size int, log *logger.Logger) (*Pool, error) {
	if prober == nil {
		return nil, fmt.Errorf("prober is required")
	}
	if size < 1 {
		return nil, fmt.Errorf("worker pool size must be at least 1, got %d", size)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Pool{
		prober: prober,
		size:   size,
		logger: log.WithComponent("worker"),
	}, nil
}

func (p *Pool) Size() int { return p.size }

// Run starts the workers and blocks until the queue is closed and fully
// drained. Every worker slot yields a Partial, possibly empty.
func (p *Pool) Run(ctx context.Context, queue *Queue) ([]core.Partial, Stats) {
	start := time.Now()
	p.logger.Infow("Starting worker pool", "workers", p.size, "queue_capacity", queue.Cap())

	partials := make([]core.Partial, p.size)
	stats := make([]Stats, p.size)

	var g errgroup.Group
	for i := 0; i < p.size; i++ {
		id := i
		g.Go(func() error {
			partials[id], stats[id] = p.work(ctx, id, queue)
			return nil
		})
	}
	_ = g.Wait()

	var total Stats
	for _, s := range stats {
		total.add(s)
	}

	p.logger.Infow("Worker pool drained",
		"workers", p.size,
		"processed", total.Processed,
		"approved", total.Approved,
		"transient_failures", total.Transient,
		"panics", total.Panics,
		"duration", time.Since(start).String(),
	)
	return partials, total
}

func (p *Pool) work(ctx context.Context, id int, queue *Queue) (core.Partial, Stats) {
	log := p.logger.WithWorker(id)
	var partial core.Partial
	var stats Stats

	for task := range queue.Receive() {
		stats.Processed++

		result, ok := p.process(ctx, log, task)
		if !ok {
			stats.Panics++
			continue
		}

		switch result.Outcome {
		case core.Approved:
			stats.Approved++
			partial = append(partial, core.Approval{Key: task.Key, Scope: task.Scope})
		case core.Rejected:
			stats.Rejected++
		case core.TransientFailure:
			stats.Transient++
		}
	}

	log.Debugw("Worker finished", "processed", stats.Processed, "approved", stats.Approved)
	return partial, stats
}

// process isolates a single probe so that a fault loses only that task and
// the worker keeps draining the queue.
func (p *Pool) process(ctx context.Context, log *logger.Logger, task core.Task) (result core.Result, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.LogPanic(ctx, r, "worker.process", "task", task.String())
			ok = false
		}
	}()
	return p.prober.Probe(ctx, task), true
}
