package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  config.LoggerConfig
		wantErr bool
	}{
		{
			name: "valid json config",
			config: config.LoggerConfig{
				Level:  "debug",
				Format: "json",
			},
			wantErr: false,
		},
		{
			name: "valid console config",
			config: config.LoggerConfig{
				Level:  "info",
				Format: "console",
			},
			wantErr: false,
		},
		{
			name: "invalid level",
			config: config.LoggerConfig{
				Level:  "invalid",
				Format: "json",
			},
			wantErr: true,
		},
		{
			name:    "empty config uses defaults",
			config:  config.LoggerConfig{},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, logger)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, logger)
			}
		})
	}
}

func TestWithRunID(t *testing.T) {
	obsCore, logs := observer.New(zapcore.DebugLevel)
	logger := FromZap(zap.New(obsCore)).WithRunID("run-12345")

	logger.Info("run started")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "run-12345", logs.All()[0].ContextMap()["run_id"])
}

func TestWithWorker(t *testing.T) {
	obsCore, logs := observer.New(zapcore.DebugLevel)
	logger := FromZap(zap.New(obsCore)).WithComponent("worker").WithWorker(7)

	logger.Info("dequeued")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "worker", fields["component"])
	assert.EqualValues(t, 7, fields["worker"])
}

func TestLogPanic_DoesNotRepanic(t *testing.T) {
	obsCore, logs := observer.New(zapcore.DebugLevel)
	logger := FromZap(zap.New(obsCore))

	assert.NotPanics(t, func() {
		logger.LogPanic(context.Background(), "boom", "worker.run", "worker", 1)
	})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "Panic recovered", entry.Message)
	assert.Equal(t, "boom", entry.ContextMap()["panic"])
}

func TestLogError_IgnoresNil(t *testing.T) {
	obsCore, logs := observer.New(zapcore.DebugLevel)
	logger := FromZap(zap.New(obsCore))

	logger.LogError(context.Background(), nil, "noop")
	assert.Equal(t, 0, logs.Len())
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	assert.NotPanics(t, func() {
		logger.WithComponent("test").Infow("discarded", "key", "value")
	})
}

func TestOperation_LogsStartAndFailure(t *testing.T) {
	obsCore, logs := observer.New(zapcore.DebugLevel)
	log := FromZap(zap.New(obsCore)).WithRunID("run-1")

	ctx, span := log.StartOperation(context.Background(), "workflow.discover", "tasks", 4)
	require.NotNil(t, span)
	log.FinishOperation(ctx, span, "workflow.discover", time.Now(), errors.New("queue closed"))

	started := logs.FilterMessage("Operation started").All()
	require.Len(t, started, 1)
	assert.Equal(t, "workflow.discover", started[0].ContextMap()["operation"])
	assert.EqualValues(t, 4, started[0].ContextMap()["tasks"])

	failed := logs.FilterMessage("Operation failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "queue closed", failed[0].ContextMap()["error"])
	assert.Equal(t, "run-1", failed[0].ContextMap()["run_id"])
}

func TestLogHTTPRequest_Debug(t *testing.T) {
	obsCore, logs := observer.New(zapcore.InfoLevel)
	log := FromZap(zap.New(obsCore))

	log.LogHTTPRequest(context.Background(), "POST", "https://android.example/auth", 200, 15*time.Millisecond)
	assert.Zero(t, logs.Len())

	obsCore, logs = observer.New(zapcore.DebugLevel)
	log = FromZap(zap.New(obsCore))
	log.LogHTTPRequest(context.Background(), "POST", "https://android.example/auth", 200, 15*time.Millisecond)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.EqualValues(t, 200, fields["http_status"])
	assert.EqualValues(t, 15, fields["duration_ms"])
}
