package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// MinShardCapacity and MaxShardCapacity bound store.shard_capacity
	MinShardCapacity     = 1000
	MaxShardCapacity     = 10000
	DefaultShardCapacity = 5000

	BackendShards = "shards"
	BackendSQLite = "sqlite"
)

// Config holds all configuration options for likesync
type Config struct {
	Twitter       TwitterConfig      `yaml:"twitter" json:"twitter"`
	RateLimit     RateLimitConfig    `yaml:"rate_limit" json:"rate_limit"`
	Retry         RetryConfig        `yaml:"retry" json:"retry"`
	Output        OutputConfig       `yaml:"output" json:"output"`
	Store         StoreConfig        `yaml:"store" json:"store"`
	Download      DownloadConfig     `yaml:"download" json:"download"`
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`
	Metrics       MetricsConfig      `yaml:"metrics" json:"metrics"`
	Logging       LoggingConfig      `yaml:"logging" json:"logging"`
}

// TwitterConfig holds API endpoint settings
type TwitterConfig struct {
	APIBaseURL string `yaml:"api_base_url" json:"api_base_url"`
	UserAgent  string `yaml:"user_agent" json:"user_agent"`
	// PageSize is the max_results hint sent with every liked posts request
	PageSize int `yaml:"page_size" json:"page_size"`
}

// RateLimitConfig holds API pacing and the per-run request budget
type RateLimitConfig struct {
	RequestsPerWindow int           `yaml:"requests_per_window" json:"requests_per_window"`
	Window            time.Duration `yaml:"window" json:"window"`
	// MaxRequestsPerRun stops a run once spent; 0 disables the budget
	MaxRequestsPerRun int `yaml:"max_requests_per_run" json:"max_requests_per_run"`
	// DefaultWait is used when a throttled response carries no reset hint
	DefaultWait time.Duration `yaml:"default_wait" json:"default_wait"`
}

// RetryConfig bounds retries of retryable page fetches
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory string `yaml:"base_directory" json:"base_directory"`
	ImagesFolder  string `yaml:"images_folder" json:"images_folder"`
}

// StoreConfig selects the known posts backend
type StoreConfig struct {
	Backend       string `yaml:"backend" json:"backend"`
	ShardCapacity int    `yaml:"shard_capacity" json:"shard_capacity"`
}

// DownloadConfig holds media download settings
type DownloadConfig struct {
	ConcurrentDownloads int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	DownloadTimeout     time.Duration `yaml:"download_timeout" json:"download_timeout"`
	// DownloadsPerSecond paces CDN requests; 0 disables pacing
	DownloadsPerSecond int      `yaml:"downloads_per_second" json:"downloads_per_second"`
	NativeHosts        []string `yaml:"native_hosts" json:"native_hosts"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled     bool `yaml:"enabled" json:"enabled"`
	OnComplete  bool `yaml:"on_complete" json:"on_complete"`
	OnError     bool `yaml:"on_error" json:"on_error"`
	OnRateLimit bool `yaml:"on_rate_limit" json:"on_rate_limit"`
}

// MetricsConfig controls the Prometheus textfile export
type MetricsConfig struct {
	Textfile string `yaml:"textfile" json:"textfile"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Twitter: TwitterConfig{
			APIBaseURL: "https://api.twitter.com",
			UserAgent:  "likesync",
			PageSize:   100,
		},
		RateLimit: RateLimitConfig{
			// liked_tweets allows 75 requests per 15 minutes per user
			RequestsPerWindow: 75,
			Window:            15 * time.Minute,
			MaxRequestsPerRun: 50,
			DefaultWait:       time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    15 * time.Minute,
		},
		Output: OutputConfig{
			BaseDirectory: "./downloads",
			ImagesFolder:  "downloaded images",
		},
		Store: StoreConfig{
			Backend:       BackendShards,
			ShardCapacity: DefaultShardCapacity,
		},
		Download: DownloadConfig{
			ConcurrentDownloads: 3,
			DownloadTimeout:     30 * time.Second,
			DownloadsPerSecond:  5,
			NativeHosts:         []string{"pbs.twimg.com"},
		},
		Notifications: NotificationConfig{
			Enabled:     false,
			OnComplete:  true,
			OnError:     true,
			OnRateLimit: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from LIKESYNC_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = d
		}
	}

	setString("LIKESYNC_API_BASE_URL", &c.Twitter.APIBaseURL)
	setString("LIKESYNC_USER_AGENT", &c.Twitter.UserAgent)
	setInt("LIKESYNC_PAGE_SIZE", &c.Twitter.PageSize)
	setInt("LIKESYNC_MAX_REQUESTS", &c.RateLimit.MaxRequestsPerRun)
	setDuration("LIKESYNC_DEFAULT_WAIT", &c.RateLimit.DefaultWait)
	setInt("LIKESYNC_MAX_RETRIES", &c.Retry.MaxAttempts)
	setString("LIKESYNC_OUTPUT_DIR", &c.Output.BaseDirectory)
	setString("LIKESYNC_IMAGES_FOLDER", &c.Output.ImagesFolder)
	setString("LIKESYNC_STORE_BACKEND", &c.Store.Backend)
	setInt("LIKESYNC_SHARD_CAPACITY", &c.Store.ShardCapacity)
	setInt("LIKESYNC_CONCURRENT_DOWNLOADS", &c.Download.ConcurrentDownloads)
	setDuration("LIKESYNC_DOWNLOAD_TIMEOUT", &c.Download.DownloadTimeout)
	setString("LIKESYNC_METRICS_TEXTFILE", &c.Metrics.Textfile)
	setString("LIKESYNC_LOG_LEVEL", &c.Logging.Level)
	setString("LIKESYNC_LOG_FILE", &c.Logging.File)

	if v := os.Getenv("LIKESYNC_NOTIFICATIONS_ENABLED"); v != "" {
		c.Notifications.Enabled = strings.ToLower(v) == "true"
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file. An empty path searches
// the default locations; finding nothing is not an error.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// ConfigLocations lists the config file search order
func ConfigLocations() []string {
	home := os.Getenv("HOME")
	return []string{
		"likesync.yaml",
		".likesync.yaml",
		".likesync.yml",
		filepath.Join(home, ".config", "likesync", "config.yaml"),
		filepath.Join(home, ".config", "likesync", "config.yml"),
		filepath.Join(home, ".likesync.yaml"),
	}
}

// FindConfigFile returns the first existing config file, or ""
func FindConfigFile() string {
	for _, loc := range ConfigLocations() {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// Normalize clamps values that have a fixed legal range instead of
// rejecting them.
func (c *Config) Normalize() {
	if c.Store.ShardCapacity < MinShardCapacity {
		c.Store.ShardCapacity = MinShardCapacity
	}
	if c.Store.ShardCapacity > MaxShardCapacity {
		c.Store.ShardCapacity = MaxShardCapacity
	}
	if c.Twitter.PageSize < 5 {
		c.Twitter.PageSize = 5
	}
	if c.Twitter.PageSize > 100 {
		c.Twitter.PageSize = 100
	}
	c.Store.Backend = strings.ToLower(c.Store.Backend)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Twitter.APIBaseURL == "" {
		errs = append(errs, errors.New("API base URL is required"))
	}

	if c.RateLimit.RequestsPerWindow <= 0 {
		errs = append(errs, errors.New("requests per window must be positive"))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate limit window must be positive"))
	}
	if c.RateLimit.MaxRequestsPerRun < 0 {
		errs = append(errs, errors.New("max requests per run cannot be negative"))
	}
	if c.RateLimit.DefaultWait <= 0 {
		errs = append(errs, errors.New("default wait must be positive"))
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry max attempts must be at least 1"))
	}

	if c.Download.ConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Download.ConcurrentDownloads > 10 {
		errs = append(errs, errors.New("concurrent downloads should not exceed 10"))
	}
	if c.Download.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if len(c.Download.NativeHosts) == 0 {
		errs = append(errs, errors.New("at least one native media host is required"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Output.ImagesFolder == "" {
		errs = append(errs, errors.New("images folder is required"))
	}

	switch c.Store.Backend {
	case BackendShards, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges values set on the command line. Only keys
// present in flags are applied.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.BaseDirectory = v
	}
	if v, ok := flags["folder"].(string); ok && v != "" {
		c.Output.ImagesFolder = v
	}
	if v, ok := flags["concurrent"].(int); ok && v > 0 {
		c.Download.ConcurrentDownloads = v
	}
	if v, ok := flags["max-requests"].(int); ok && v >= 0 {
		c.RateLimit.MaxRequestsPerRun = v
	}
	if v, ok := flags["max-retries"].(int); ok && v > 0 {
		c.Retry.MaxAttempts = v
	}
	if v, ok := flags["store"].(string); ok && v != "" {
		c.Store.Backend = v
	}
	if v, ok := flags["metrics-file"].(string); ok && v != "" {
		c.Metrics.Textfile = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["verbose"].(bool); ok && v {
		c.Logging.Level = "debug"
	}
}

// Load loads configuration from all sources.
// Precedence: flags > environment (including .env) > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".likesync.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)
	config.Normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
