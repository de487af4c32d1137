// Package config loads profcache settings from the environment.
//
// Every setting has a PROFCACHE_ variable. The cache location also honors
// the CACHE_DIR variable used by existing build scripts:
//
//	PROFCACHE_CACHE_DIR          cache location (falls back to CACHE_DIR, then the user cache dir)
//	PROFCACHE_DEVICE_SLOTS       concurrent benchmarks (default: number of CPUs)
//	PROFCACHE_CANDIDATE_TIMEOUT  per-candidate limit, e.g. "90s" (default: 5m)
//	PROFCACHE_LAUNCH_RATE        candidate launches per second (default: unlimited)
//	PROFCACHE_WRITE_RETRIES      extra attempts for failed cache writes (default: 0)
//	PROFCACHE_CACHE_VERSIONS     version overrides, e.g. "gemm=2,conv=3"
//	PROFCACHE_LOG_LEVEL          debug|info|warn|error (default: info)
//	PROFCACHE_TRACES_EXPORTER    otlp|jaeger|stdout|none (default: none)
//	PROFCACHE_METRICS_EXPORTER   otlp|prometheus|stdout|none (default: none)
//
// The cache location may reference other variables as ${VAR}; a missing
// variable is an error rather than an empty expansion. A leading "~" is
// replaced with the home directory.
package config
