package config

import "errors"

var (
	// ErrInvalidConfig marks settings the pipeline cannot run with.
	ErrInvalidConfig = errors.New("invalid bikeflow config")
	// ErrLoadConfig marks failures reading the config file or environment.
	ErrLoadConfig = errors.New("load bikeflow config")
)
