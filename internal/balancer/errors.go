package balancer

import (
	"errors"
	"fmt"

	"landbalancer/internal/samples"
)

var (
	// ErrShapeMismatch is returned when a block does not fit the accumulated matrix.
	ErrShapeMismatch = samples.ErrShapeMismatch
	// ErrInvalidIterations is returned for a non-positive iteration count.
	ErrInvalidIterations = errors.New("balancer: iterations must be positive")
)

// ConfigError reports an unusable configuration detected at construction.
type ConfigError struct {
	Field string
	Value string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("balancer config %s=%q: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
