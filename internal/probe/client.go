// Package probe sends synthetic authorization requests and classifies the
// answers.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/config"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/core"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/httpclient"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/logger"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/ratelimit"
)

// maxBodySize bounds how much of a response is read for classification.
// A larger body is a transport failure, never a partial classification.
const maxBodySize = 1 << 20

var ErrBodyTooLarge = errors.New("response body too large")

// Config describes how a Client talks to the authorization endpoint.
type Config struct {
	Endpoint  string
	UserAgent string
	// Credential is the long-lived bearer token sent with every probe.
	Credential string
	// DefaultScope is used for tasks that carry no scope (discovery).
	DefaultScope string
	Markers      []string
	Retry        RetryPolicy
}

// ConfigFrom builds a Config from the probe section of the run configuration.
func ConfigFrom(pc config.ProbeConfig, credential string, markers []string) Config {
	return Config{
		Endpoint:     pc.Endpoint,
		UserAgent:    pc.UserAgent,
		Credential:   credential,
		DefaultScope: pc.DiscoveryScope,
		Markers:      markers,
		Retry: RetryPolicy{
			MaxAttempts: pc.MaxAttempts,
			Delay:       pc.RetryDelay,
		},
	}
}

// Client performs probes. It is safe for concurrent use; all fields are
// read-only after construction.
type Client struct {
	http     *http.Client
	cfg      Config
	limiter  *ratelimit.Limiter
	recorder core.Recorder
	tracer   trace.Tracer
	logger   *logger.Logger
}

type Option func(*Client)

func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

func WithRecorder(r core.Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.logger = l.WithComponent("probe") }
}

// WithSleep replaces the delay function used between retries.
func WithSleep(sleep SleepFunc) Option {
	return func(c *Client) { c.cfg.Retry.Sleep = sleep }
}

func NewClient(httpClient *http.Client, cfg Config, opts ...Option) (*Client, error) {
	if httpClient == nil {
		return nil, errors.New("http client is required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("probe endpoint is required")
	}
	if cfg.Credential == "" {
		return nil, config.ErrMissingCredential
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = config.DefaultUserAgent
	}
	if cfg.DefaultScope == "" {
		cfg.DefaultScope = config.DefaultDiscoveryScope
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = config.DefaultMaxAttempts
	}
	if cfg.Retry.MaxAttempts < 1 || cfg.Retry.MaxAttempts > config.MaxAttemptsLimit {
		return nil, fmt.Errorf("max attempts must be between 1 and %d, got %d", config.MaxAttemptsLimit, cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.Delay == 0 {
		cfg.Retry.Delay = config.DefaultRetryDelay
	}

	c := &Client{
		http:   httpClient,
		cfg:    cfg,
		tracer: otel.Tracer("aasprobe/probe"),
		logger: logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RequestBody renders the form body for one probe. The layout is fixed by
// the remote service and is not URL-encoded.
func RequestBody(packageName, scope, signature, credential string) string {
	return fmt.Sprintf("app=%s&service=oauth2:%s&client_sig=%s&Token=%s",
		packageName, scope, signature, credential)
}

// Probe implements core.Prober. Transport failures are retried up to the
// policy's attempt budget; a received response is classified and never
// retried.
func (c *Client) Probe(ctx context.Context, task core.Task) core.Result {
	scope := task.Scope
	if scope == "" {
		scope = c.cfg.DefaultScope
	}

	ctx, span := c.tracer.Start(ctx, "probe.Probe", trace.WithAttributes(
		attribute.String("probe.package", task.Key.Package),
		attribute.String("probe.signature", task.Key.Signature),
		attribute.String("probe.scope", scope),
	))
	defer span.End()

	body := RequestBody(task.Key.Package, scope, task.Key.Signature, c.cfg.Credential)
	log := c.logger.WithFields("package", task.Key.Package, "signature", task.Key.Signature, "scope", scope)

	var text string
	attempts, err := c.cfg.Retry.Do(ctx, func(attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		t, err := c.send(ctx, body)
		if err != nil {
			log.Debugw("Probe attempt failed", "attempt", attempt, "error", err)
			return err
		}
		text = t
		return nil
	})

	result := core.Result{Task: task, Attempts: attempts}
	if err != nil {
		result.Outcome = core.TransientFailure
		result.Err = err
		log.Warnw("Probe exhausted retries", "attempts", attempts, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "transient failure")
	} else {
		result.Outcome = Classify(text, c.cfg.Markers)
		switch result.Outcome {
		case core.Approved:
			log.Infow("Probe approved", "attempts", attempts)
		default:
			log.Debugw("Probe rejected", "attempts", attempts)
		}
	}
	span.SetAttributes(
		attribute.String("probe.outcome", result.Outcome.String()),
		attribute.Int("probe.attempts", attempts),
	)

	if c.recorder != nil {
		c.recorder.RecordProbe(ctx, result)
	}
	return result
}

// send performs one POST and returns the response body. Any failure to
// obtain a complete body is a transport failure.
func (c *Client) send(ctx context.Context, body string) (string, error) {
	req, err := http.NewRequest(http.MethodPost, c.cfg.Endpoint, strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := httpclient.DoWithContext(ctx, c.http, req)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := httpclient.CloseBody(resp); cerr != nil {
			c.logger.Debugw("Failed to close response body", "error", cerr)
		}
	}()

	data, err := readBody(resp.Body)
	if err != nil {
		return "", err
	}
	c.logger.LogHTTPRequest(ctx, http.MethodPost, c.cfg.Endpoint, resp.StatusCode, time.Since(start))

	return string(data), nil
}

// readBody reads a complete response body of at most maxBodySize bytes.
func readBody(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) > maxBodySize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, maxBodySize)
	}
	return data, nil
}
