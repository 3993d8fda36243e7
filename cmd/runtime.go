package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"

	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/core"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/httpclient"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/probe"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/progress"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/ratelimit"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/telemetry"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/workflow"
	"github.com/CodeMonkeyCybersecurity/aasprobe/pkg/shutdown"
)

// probeRuntime holds everything a probing command needs for one run.
type probeRuntime struct {
	engine  *workflow.Engine
	tracker *progress.Tracker
}

// newProbeRuntime validates the configuration and wires the probe client,
// telemetry and progress tracker into a workflow engine. Telemetry is
// flushed by the shutdown handler.
func newProbeRuntime(ctx context.Context, handler *shutdown.Handler, markers []string, showProgress bool) (*probeRuntime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	handler.RegisterShutdownFunc(tel.Close)

	clientCfg := httpclient.DefaultConfig(cfg.Worker.Count)
	clientCfg.Timeout = cfg.Probe.Timeout
	httpClient, err := httpclient.NewProbeClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	tracker := progress.New(showProgress)
	tracker.AddPhase("load", "Loading candidates")
	tracker.AddPhase("probe", "Probing")
	tracker.AddPhase("write", "Writing results")

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
	})

	client, err := probe.NewClient(httpClient,
		probe.ConfigFrom(cfg.Probe, cfg.Credential, markers),
		probe.WithLimiter(limiter),
		probe.WithRecorder(core.Recorders{tel, tracker.Recorder("probe")}),
		probe.WithTracer(tel.Tracer()),
		probe.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	engine, err := workflow.NewEngine(client, cfg.Worker, log,
		workflow.WithTaskCount(func(_ string, total int) {
			tracker.SetTotal("probe", total)
		}),
	)
	if err != nil {
		return nil, err
	}

	return &probeRuntime{
		engine:  engine,
		tracker: tracker,
	}, nil
}

// runContext returns a shutdown handler and a context cancelled on Ctrl+C
// or SIGTERM.
func runContext() (*shutdown.Handler, context.Context, context.CancelFunc) {
	handler := shutdown.NewHandler(log)
	ctx, cancel := handler.NotifyContext(context.Background())
	return handler, ctx, cancel
}

func printSummary(report *workflow.Report, identities int, outputPath string) {
	color.Cyan("\nRun %s\n", report.RunID)
	color.White("  Tasks:              %d\n", report.Tasks)
	color.Green("  Approved:           %d\n", report.Stats.Approved)
	color.White("  Rejected:           %d\n", report.Stats.Rejected)
	if report.Stats.Transient > 0 {
		color.Yellow("  Transient failures: %d\n", report.Stats.Transient)
	}
	if report.Stats.Panics > 0 {
		color.Red("  Worker faults:      %d\n", report.Stats.Panics)
	}
	color.Green("  Identities:         %d\n", identities)
	color.White("  Results written to %s\n\n", outputPath)
}
