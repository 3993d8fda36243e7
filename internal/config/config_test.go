package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 50, cfg.Worker.Count)
	assert.Equal(t, 100, cfg.Worker.QueueCapacity())
	assert.Equal(t, 10, cfg.Probe.MaxAttempts)
	assert.Equal(t, 1*time.Second, cfg.Probe.RetryDelay)
	assert.Equal(t, "GoogleAuth/1.4", cfg.Probe.UserAgent)
	assert.Equal(t, "https://android.googleapis.com/auth", cfg.Probe.Endpoint)
	assert.Equal(t, "json", cfg.Output.Format)
}

func TestWorkerConfig_QueueCapacity(t *testing.T) {
	assert.Equal(t, 8, WorkerConfig{Count: 4}.QueueCapacity())
	assert.Equal(t, 3, WorkerConfig{Count: 4, QueueSize: 3}.QueueCapacity())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "zero workers", mutate: func(c *Config) { c.Worker.Count = 0 }, wantErr: "worker count"},
		{name: "negative queue", mutate: func(c *Config) { c.Worker.QueueSize = -1 }, wantErr: "queue size"},
		{name: "too many attempts", mutate: func(c *Config) { c.Probe.MaxAttempts = 11 }, wantErr: "max attempts"},
		{name: "no attempts", mutate: func(c *Config) { c.Probe.MaxAttempts = 0 }, wantErr: "max attempts"},
		{name: "no endpoint", mutate: func(c *Config) { c.Probe.Endpoint = "" }, wantErr: "endpoint"},
		{name: "negative delay", mutate: func(c *Config) { c.Probe.RetryDelay = -time.Second }, wantErr: "retry delay"},
		{name: "negative rate", mutate: func(c *Config) { c.RateLimit.RequestsPerSecond = -1 }, wantErr: "requests per second"},
		{name: "bad format", mutate: func(c *Config) { c.Output.Format = "xml" }, wantErr: "output format"},
		{name: "missing credential", mutate: func(c *Config) { c.Credential = "" }, wantErr: "missing credential"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Credential = "aas_et/secret"
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidate_MissingCredentialIsSentinel(t *testing.T) {
	cfg := Default()
	assert.ErrorIs(t, cfg.Validate(), ErrMissingCredential)
}
