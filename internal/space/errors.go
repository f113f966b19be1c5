package space

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is matched by every search-space construction failure.
var ErrInvalidConfig = errors.New("invalid search space")

// ConfigError describes a malformed search-space description.
type ConfigError struct {
	Param  string // empty when the whole document is at fault
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := e.Reason
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	if e.Param != "" {
		return fmt.Sprintf("search space: parameter %q: %s", e.Param, msg)
	}
	return "search space: " + msg
}

func (e *ConfigError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidConfig, e.Err}
	}
	return []error{ErrInvalidConfig}
}

func configErr(param, format string, args ...any) *ConfigError {
	return &ConfigError{Param: param, Reason: fmt.Sprintf(format, args...)}
}
