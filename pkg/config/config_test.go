package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 100, config.Twitter.PageSize)
	assert.Equal(t, 50, config.RateLimit.MaxRequestsPerRun)
	assert.Equal(t, DefaultShardCapacity, config.Store.ShardCapacity)
	assert.Equal(t, BackendShards, config.Store.Backend)
	assert.Equal(t, "downloaded images", config.Output.ImagesFolder)
	assert.Equal(t, []string{"pbs.twimg.com"}, config.Download.NativeHosts)
	assert.NoError(t, config.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LIKESYNC_OUTPUT_DIR", "/tmp/likes")
	t.Setenv("LIKESYNC_SHARD_CAPACITY", "2000")
	t.Setenv("LIKESYNC_MAX_REQUESTS", "0")
	t.Setenv("LIKESYNC_DEFAULT_WAIT", "90s")
	t.Setenv("LIKESYNC_NOTIFICATIONS_ENABLED", "TRUE")
	t.Setenv("LIKESYNC_LOG_LEVEL", "debug")

	config := DefaultConfig()
	require.NoError(t, config.LoadFromEnv())

	assert.Equal(t, "/tmp/likes", config.Output.BaseDirectory)
	assert.Equal(t, 2000, config.Store.ShardCapacity)
	assert.Equal(t, 0, config.RateLimit.MaxRequestsPerRun)
	assert.Equal(t, 90*time.Second, config.RateLimit.DefaultWait)
	assert.True(t, config.Notifications.Enabled)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestLoadFromEnvInvalidNumber(t *testing.T) {
	t.Setenv("LIKESYNC_PAGE_SIZE", "lots")

	config := DefaultConfig()
	err := config.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LIKESYNC_PAGE_SIZE")
	assert.Equal(t, 100, config.Twitter.PageSize)
}

func TestLoadFromFile(t *testing.T) {
	t.Run("valid yaml file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "likesync.yaml")
		content := `
twitter:
  page_size: 50
rate_limit:
  max_requests_per_run: 10
  window: 5m
output:
  base_directory: /data/likes
  images_folder: pics
store:
  backend: sqlite
  shard_capacity: 3000
download:
  concurrent_downloads: 2
  download_timeout: 1m
logging:
  level: warn
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		config := DefaultConfig()
		require.NoError(t, config.LoadFromFile(path))

		assert.Equal(t, 50, config.Twitter.PageSize)
		assert.Equal(t, 10, config.RateLimit.MaxRequestsPerRun)
		assert.Equal(t, 5*time.Minute, config.RateLimit.Window)
		assert.Equal(t, "/data/likes", config.Output.BaseDirectory)
		assert.Equal(t, "pics", config.Output.ImagesFolder)
		assert.Equal(t, BackendSQLite, config.Store.Backend)
		assert.Equal(t, 3000, config.Store.ShardCapacity)
		assert.Equal(t, time.Minute, config.Download.DownloadTimeout)
		assert.Equal(t, "warn", config.Logging.Level)
		// untouched keys keep defaults
		assert.Equal(t, "https://api.twitter.com", config.Twitter.APIBaseURL)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("store: [unterminated"), 0644))

		err := DefaultConfig().LoadFromFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})

	t.Run("missing explicit file", func(t *testing.T) {
		err := DefaultConfig().LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		pageSize int
		wantCap  int
		wantPage int
	}{
		{"below range", 10, 1, MinShardCapacity, 5},
		{"above range", 50000, 500, MaxShardCapacity, 100},
		{"in range", 4000, 20, 4000, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.Store.ShardCapacity = tt.capacity
			config.Twitter.PageSize = tt.pageSize
			config.Normalize()
			assert.Equal(t, tt.wantCap, config.Store.ShardCapacity)
			assert.Equal(t, tt.wantPage, config.Twitter.PageSize)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown backend", func(c *Config) { c.Store.Backend = "redis" }, "unknown store backend"},
		{"no attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "retry max attempts"},
		{"too many downloads", func(c *Config) { c.Download.ConcurrentDownloads = 11 }, "should not exceed 10"},
		{"negative budget", func(c *Config) { c.RateLimit.MaxRequestsPerRun = -1 }, "cannot be negative"},
		{"no native hosts", func(c *Config) { c.Download.NativeHosts = nil }, "native media host"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)
			err := config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	config := DefaultConfig()
	config.Output.BaseDirectory = "/saved"
	require.NoError(t, config.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, "/saved", loaded.Output.BaseDirectory)
}

func TestMergeCommandLineFlags(t *testing.T) {
	config := DefaultConfig()
	config.MergeCommandLineFlags(map[string]interface{}{
		"folder":       "likes",
		"concurrent":   4,
		"max-requests": 0,
		"verbose":      true,
		"store":        "sqlite",
	})

	assert.Equal(t, "likes", config.Output.ImagesFolder)
	assert.Equal(t, 4, config.Download.ConcurrentDownloads)
	assert.Equal(t, 0, config.RateLimit.MaxRequestsPerRun)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "sqlite", config.Store.Backend)
}

func TestLoad(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	t.Run("precedence", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("output:\n  base_directory: /from/file\nstore:\n  shard_capacity: 100\n"), 0644))
		t.Setenv("LIKESYNC_OUTPUT_DIR", "/from/env")

		config, err := Load(path, map[string]interface{}{"concurrent": 2})
		require.NoError(t, err)

		assert.Equal(t, "/from/env", config.Output.BaseDirectory)
		assert.Equal(t, 2, config.Download.ConcurrentDownloads)
		assert.Equal(t, MinShardCapacity, config.Store.ShardCapacity)
	})

	t.Run("validation failure", func(t *testing.T) {
		_, err := Load("", map[string]interface{}{"store": "bolt"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration validation failed")
	})
}
