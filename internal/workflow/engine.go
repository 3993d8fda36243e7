package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/aggregate"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/config"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/core"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/identity"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/logger"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/worker"
)

// ErrNoTasks is returned when enumeration yields nothing to probe.
var ErrNoTasks = errors.New("no tasks to probe")

// Report is the outcome of one workflow run.
type Report struct {
	RunID    string
	Tasks    int
	Stats    worker.Stats
	Records  []core.Record
	Duration time.Duration
}

// Engine runs workflows against a prober with a fixed worker count.
type Engine struct {
	prober    core.Prober
	workers   int
	queueSize int
	logger    *logger.Logger
	onTasks   func(workflow string, total int)
}

type EngineOption func(*Engine)

// WithTaskCount registers a callback invoked with the number of enumerated
// tasks before any of them is queued.
func WithTaskCount(fn func(workflow string, total int)) EngineOption {
	return func(e *Engine) { e.onTasks = fn }
}

func NewEngine(prober core.Prober, cfg config.WorkerConfig, log *logger.Logger, opts ...EngineOption) (*Engine, error) {
	if prober == nil {
		return nil, errors.New("prober is required")
	}
	if cfg.Count < 1 {
		return nil, fmt.Errorf("worker count must be at least 1, got %d", cfg.Count)
	}
	if log == nil {
		log = logger.NewNop()
	}
	e := &Engine{
		prober:    prober,
		workers:   cfg.Count,
		queueSize: cfg.QueueCapacity(),
		logger:    log.WithComponent("workflow"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Discover probes every (package, signature) pair and mints a token for each
// registered identity.
func (e *Engine) Discover(ctx context.Context, packages, signatures []string) (*Report, error) {
	tasks, err := EnumerateDiscovery(packages, signatures)
	if err != nil {
		return nil, fmt.Errorf("enumerate discovery tasks: %w", err)
	}

	report, agg, err := e.run(ctx, "discover", tasks)
	if err != nil {
		return nil, err
	}
	if err := agg.MintTokens(identity.EncodeToken); err != nil {
		return nil, err
	}
	report.Records = agg.Records()
	return report, nil
}

// ValidateScopes probes every scope for every known client signature and
// records which scopes each identity may request.
func (e *Engine) ValidateScopes(ctx context.Context, clients map[string][]string, scopes []string) (*Report, error) {
	tasks, err := EnumerateScopes(clients, scopes)
	if err != nil {
		return nil, fmt.Errorf("enumerate scope tasks: %w", err)
	}

	report, agg, err := e.run(ctx, "scopes", tasks)
	if err != nil {
		return nil, err
	}
	report.Records = agg.Records()
	return report, nil
}

func (e *Engine) run(ctx context.Context, name string, tasks []core.Task) (*Report, *aggregate.Aggregator, error) {
	if len(tasks) == 0 {
		return nil, nil, ErrNoTasks
	}
	if e.onTasks != nil {
		e.onTasks(name, len(tasks))
	}

	runID := uuid.New().String()
	log := e.logger.WithRunID(runID)
	start := time.Now()

	ctx, span := log.StartOperation(ctx, "workflow."+name,
		"tasks", len(tasks),
		"workers", e.workers,
	)

	pool, err := worker.NewPool(e.prober, e.workers, log)
	if err != nil {
		log.FinishOperation(ctx, span, "workflow."+name, start, err)
		return nil, nil, err
	}
	queue := worker.NewQueue(e.queueSize)

	log.Infow("Starting probe run",
		"workflow", name,
		"tasks", len(tasks),
		"workers", e.workers,
		"queue_capacity", queue.Cap(),
	)

	var (
		partials []core.Partial
		stats    worker.Stats
		g        errgroup.Group
	)
	g.Go(func() error {
		return Produce(ctx, queue, tasks)
	})
	g.Go(func() error {
		partials, stats = pool.Run(ctx, queue)
		return nil
	})
	if err := g.Wait(); err != nil {
		log.FinishOperation(ctx, span, "workflow."+name, start, err)
		return nil, nil, err
	}

	agg := aggregate.New()
	agg.MergeAll(partials)

	report := &Report{
		RunID:    runID,
		Tasks:    len(tasks),
		Stats:    stats,
		Duration: time.Since(start),
	}
	log.FinishOperation(ctx, span, "workflow."+name, start, nil,
		"approved", stats.Approved,
		"rejected", stats.Rejected,
		"transient_failures", stats.Transient,
		"identities", agg.Len(),
	)
	return report, agg, nil
}
