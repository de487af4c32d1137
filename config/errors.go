package config

import "errors"

// Sentinel errors for configuration.
var (
	ErrMissingEnv          = errors.New("config: missing required environment variables")
	ErrInvalidValue        = errors.New("config: invalid value")
	ErrEmptyCacheDir       = errors.New("config: cache dir is empty")
	ErrInvalidDeviceSlots  = errors.New("config: device slots must be non-negative")
	ErrInvalidTimeout      = errors.New("config: candidate timeout must be positive")
	ErrInvalidLaunchRate   = errors.New("config: launch rate must be non-negative")
	ErrInvalidWriteRetries = errors.New("config: write retries must be non-negative")
)
