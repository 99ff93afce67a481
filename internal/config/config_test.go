package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range os.Environ() {
		if len(key) > len("VENUESCOUT_") && key[:len("VENUESCOUT_")] == "VENUESCOUT_" {
			name := key[:indexOf(key, '=')]
			os.Unsetenv(name)
		}
	}
}

func indexOf(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return len(s)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("VENUESCOUT_DATABASE_URL")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database_url")
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("VENUESCOUT_DATABASE_URL", "postgres://localhost/venuescout")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.AppEnv)
	assert.Equal(t, 1500, cfg.QueryDefaultRadiusM)
	assert.Equal(t, 32, cfg.CrawlGlobalConcurrency)
	assert.Equal(t, 2, cfg.CrawlPerHostConcurrency)
	assert.Equal(t, 5000, cfg.CrawlBudgetMs)
}

func TestValidateRejectsOutOfRangeRadius(t *testing.T) {
	cfg := Config{
		DatabaseURL:             "postgres://localhost/db",
		AppEnv:                  "local",
		QueryDefaultRadiusM:     0,
		QueryMaxResults:         15,
		CrawlGlobalConcurrency:  32,
		CrawlPerHostConcurrency: 2,
		CrawlBudgetMs:           5000,
		CrawlPageSizeLimitBytes: 2_000_000,
		WorkerCount:             1,
		WorkerBatchSize:         8,
		SchedulerTopPercentile:  0.9,
		APIPort:                 8080,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "radius_m")
}

func TestValidateRejectsBadAppEnv(t *testing.T) {
	cfg := Config{
		DatabaseURL:             "postgres://localhost/db",
		AppEnv:                  "sandbox",
		QueryDefaultRadiusM:     1500,
		QueryMaxResults:         15,
		CrawlGlobalConcurrency:  32,
		CrawlPerHostConcurrency: 2,
		CrawlBudgetMs:           5000,
		CrawlPageSizeLimitBytes: 2_000_000,
		WorkerCount:             1,
		WorkerBatchSize:         8,
		SchedulerTopPercentile:  0.9,
		APIPort:                 8080,
	}
	require.Error(t, cfg.Validate())
}
