package core

import (
	"context"
)

// Prober performs one authorization probe for a task. Implementations must
// always return a Result, never block past the context, and be safe for use
// by many workers at once.
type Prober interface {
	Probe(ctx context.Context, task Task) Result
}

// ProberFunc adapts a plain function to the Prober interface.
type ProberFunc func(ctx context.Context, task Task) Result

func (f ProberFunc) Probe(ctx context.Context, task Task) Result {
	return f(ctx, task)
}

// TokenEncoder mints the opaque attestation token for a discovered identity.
type TokenEncoder func(packageName string, signature []byte) string

// Recorder receives per-probe observations for metrics.
type Recorder interface {
	RecordProbe(ctx context.Context, result Result)
}

// Recorders fans one observation out to several recorders. Nil entries are
// skipped.
type Recorders []Recorder

func (rs Recorders) RecordProbe(ctx context.Context, result Result) {
	for _, r := range rs {
		if r != nil {
			r.RecordProbe(ctx, result)
		}
	}
}
