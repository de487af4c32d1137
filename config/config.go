package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jonwraymond/profcache/dispatch"
	"github.com/jonwraymond/profcache/observe"
	"github.com/jonwraymond/profcache/profiler"
	"github.com/jonwraymond/profcache/version"
)

// Environment variable names.
const (
	EnvCacheDir         = "PROFCACHE_CACHE_DIR"
	EnvLegacyCacheDir   = "CACHE_DIR"
	EnvDeviceSlots      = "PROFCACHE_DEVICE_SLOTS"
	EnvCandidateTimeout = "PROFCACHE_CANDIDATE_TIMEOUT"
	EnvLaunchRate       = "PROFCACHE_LAUNCH_RATE"
	EnvWriteRetries     = "PROFCACHE_WRITE_RETRIES"
	EnvCacheVersions    = "PROFCACHE_CACHE_VERSIONS"
	EnvLogLevel         = "PROFCACHE_LOG_LEVEL"
	EnvTracesExporter   = "PROFCACHE_TRACES_EXPORTER"
	EnvMetricsExporter  = "PROFCACHE_METRICS_EXPORTER"
)

// Config holds the runtime settings of a profiling run.
type Config struct {
	CacheDir         string
	DeviceSlots      int // 0 means one per CPU
	CandidateTimeout time.Duration
	LaunchRate       float64 // launches per second, 0 means unlimited
	WriteRetries     int
	Versions         map[string]int // overrides on top of version.Defaults
	LogLevel         string
	TracesExporter   string
	MetricsExporter  string
}

// Default returns the settings used when no variable is set.
func Default() Config {
	return Config{
		CandidateTimeout: 5 * time.Minute,
		Versions:         map[string]int{},
		LogLevel:         "info",
		TracesExporter:   "none",
		MetricsExporter:  "none",
	}
}

// FromEnv loads the configuration from the process environment and validates it.
func FromEnv() (Config, error) {
	cfg := Default()

	dir, err := cacheDirFromEnv()
	if err != nil {
		return Config{}, err
	}
	cfg.CacheDir = dir

	if v, ok := lookup(EnvDeviceSlots); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s=%q", ErrInvalidValue, EnvDeviceSlots, v)
		}
		cfg.DeviceSlots = n
	}
	if v, ok := lookup(EnvCandidateTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s=%q", ErrInvalidValue, EnvCandidateTimeout, v)
		}
		cfg.CandidateTimeout = d
	}
	if v, ok := lookup(EnvLaunchRate); ok {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s=%q", ErrInvalidValue, EnvLaunchRate, v)
		}
		cfg.LaunchRate = r
	}
	if v, ok := lookup(EnvWriteRetries); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s=%q", ErrInvalidValue, EnvWriteRetries, v)
		}
		cfg.WriteRetries = n
	}
	if v, ok := lookup(EnvCacheVersions); ok {
		overrides, err := version.ParseOverrides(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvCacheVersions, err)
		}
		cfg.Versions = overrides
	}
	if v, ok := lookup(EnvLogLevel); ok {
		cfg.LogLevel = v
	}
	if v, ok := lookup(EnvTracesExporter); ok {
		cfg.TracesExporter = v
	}
	if v, ok := lookup(EnvMetricsExporter); ok {
		cfg.MetricsExporter = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// lookup returns a non-empty environment value.
func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	return v, ok && v != ""
}

func cacheDirFromEnv() (string, error) {
	for _, name := range []string{EnvCacheDir, EnvLegacyCacheDir} {
		if v, ok := lookup(name); ok {
			dir, err := ExpandPath(v)
			if err != nil {
				return "", fmt.Errorf("%s: %w", name, err)
			}
			return dir, nil
		}
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("%w: no %s set and no user cache dir: %v", ErrEmptyCacheDir, EnvCacheDir, err)
	}
	return filepath.Join(base, "profcache"), nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.CacheDir == "" {
		return ErrEmptyCacheDir
	}
	if c.DeviceSlots < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidDeviceSlots, c.DeviceSlots)
	}
	if c.CandidateTimeout <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidTimeout, c.CandidateTimeout)
	}
	if c.LaunchRate < 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidLaunchRate, c.LaunchRate)
	}
	if c.WriteRetries < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidWriteRetries, c.WriteRetries)
	}
	if _, err := version.New(c.Versions); err != nil {
		return err
	}
	oc := c.Observe("profcache", "")
	return oc.Validate()
}

// VersionManager builds the version manager for the configured overrides.
func (c Config) VersionManager() (*version.Manager, error) {
	return version.New(c.Versions)
}

// Pool builds the device-slot pool.
func (c Config) Pool() *dispatch.Pool {
	return dispatch.NewPool(dispatch.PoolConfig{Slots: c.DeviceSlots})
}

// WriteRetry returns the retry policy for cache writes, or nil when
// retries are disabled.
func (c Config) WriteRetry() *dispatch.RetryConfig {
	if c.WriteRetries == 0 {
		return nil
	}
	return &dispatch.RetryConfig{MaxAttempts: c.WriteRetries + 1, Jitter: true}
}

// SessionOptions returns the profiler options for the runtime settings.
func (c Config) SessionOptions() []profiler.Option {
	opts := []profiler.Option{
		profiler.WithPool(c.Pool()),
		profiler.WithCandidateTimeout(c.CandidateTimeout),
	}
	if c.LaunchRate > 0 {
		opts = append(opts, profiler.WithLaunchRate(c.LaunchRate, 1))
	}
	if rc := c.WriteRetry(); rc != nil {
		opts = append(opts, profiler.WithWriteRetry(*rc))
	}
	return opts
}

// RunConfig returns a profiler.RunConfig for target backed by the configured
// cache dir and version overrides. The caller supplies the candidate source
// and executor.
func (c Config) RunConfig(target string) (profiler.RunConfig, error) {
	versions, err := c.VersionManager()
	if err != nil {
		return profiler.RunConfig{}, err
	}
	return profiler.RunConfig{
		Target:   target,
		CacheDir: c.CacheDir,
		Versions: versions,
		Options:  c.SessionOptions(),
	}, nil
}

// Observe returns the telemetry configuration for serviceName.
func (c Config) Observe(serviceName, serviceVersion string) observe.Config {
	return observe.Config{
		ServiceName: serviceName,
		Version:     serviceVersion,
		Attributes:  map[string]string{"profcache.cache_dir": c.CacheDir},
		Tracing: observe.TracingConfig{
			Enabled:   c.TracesExporter != "" && c.TracesExporter != "none",
			Exporter:  c.TracesExporter,
			SamplePct: 1.0,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  c.MetricsExporter != "" && c.MetricsExporter != "none",
			Exporter: c.MetricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   c.LogLevel,
		},
	}
}
