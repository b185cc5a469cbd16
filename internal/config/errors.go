package config

import "errors"

// Sentinel errors. Load and Validate wrap them with the offending setting.
var (
	ErrInvalidConfig = errors.New("config: invalid setting")
	ErrLoadConfig    = errors.New("config: load failed")
)
