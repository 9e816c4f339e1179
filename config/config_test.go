package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 2, cfg.Pool.Size)
	assert.Equal(t, 100, cfg.Pool.RetireAfterRequests)
	assert.Equal(t, 30*time.Minute, cfg.Pool.RetireAfterAge)
	assert.Equal(t, 100, cfg.Pool.MaxQueueSize)
	assert.Equal(t, 60*time.Second, cfg.Pool.QueueTimeout)
	assert.Equal(t, []string{"direct-fetch", "fingerprinted-client", "browser-automation"}, cfg.Engine.Order)
	assert.Equal(t, 45*time.Second, cfg.Challenge.MaxWait)
	assert.Equal(t, 500*time.Millisecond, cfg.Challenge.PollInterval)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("READER_POOL_SIZE", "5")
	t.Setenv("READER_ENGINES", "fingerprinted-client, browser-automation")
	t.Setenv("READER_POOL_QUEUE_TIMEOUT", "5s")
	t.Setenv("READER_RATE_RPS", "not-a-number")

	cfg := Load()

	assert.Equal(t, 5, cfg.Pool.Size)
	assert.Equal(t, []string{"fingerprinted-client", "browser-automation"}, cfg.Engine.Order)
	assert.Equal(t, 5*time.Second, cfg.Pool.QueueTimeout)
	assert.Equal(t, 5.0, cfg.RateLimit.RequestsPerSecond, "unparsable values fall back to the default")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero pool size", func(c *Config) { c.Pool.Size = 0 }, "Pool.Size"},
		{"unknown engine", func(c *Config) { c.Engine.Order = []string{"curl"} }, "Engine.Order"},
		{"empty engine order", func(c *Config) { c.Engine.Order = nil }, "Engine.Order"},
		{"bad force engine", func(c *Config) { c.Engine.Force = "hero" }, "Engine.Force"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "Log.Format"},
		{"max below default timeout", func(c *Config) { c.Scraper.MaxTimeout = time.Second }, "Scraper.MaxTimeout"},
		{"auth without keys", func(c *Config) { c.Auth.Enabled = true }, "READER_API_KEYS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateQueueZeroAllowed(t *testing.T) {
	cfg := Load()
	cfg.Pool.MaxQueueSize = 0
	cfg.Pool.RetireAfterRequests = 0
	assert.NoError(t, cfg.Validate())
}
