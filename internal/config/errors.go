package config

import (
	"errors"
	"fmt"
)

var (
	ErrMissing = errors.New("missing required configuration field")
	ErrEmpty   = errors.New("no data in configuration file")
)

// ConfigError reports a configuration problem found at startup. Field is the
// dotted path of the offending value when there is one.
type ConfigError struct {
	Field    string
	Expected string
	Err      error
}

func (e *ConfigError) Error() string {
	switch {
	case e.Expected != "":
		return fmt.Sprintf("invalid type for %s: expected %s", e.Field, e.Expected)
	case errors.Is(e.Err, ErrMissing):
		return fmt.Sprintf("%v: %s", ErrMissing, e.Field)
	case e.Field != "":
		return fmt.Sprintf("config %s: %v", e.Field, e.Err)
	default:
		return fmt.Sprintf("config: %v", e.Err)
	}
}

func (e *ConfigError) Unwrap() error { return e.Err }
