package config

import (
	"errors"
	"fmt"
)

// Error kinds returned by Load and Validate.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

// invalid names the offending koanf key in an ErrInvalidConfig.
func invalid(field, msg string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidConfig, field, msg)
}
