package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Validator is implemented by config structs that check cross-field rules
// after the environment has been parsed.
type Validator interface {
	Validate() error
}

// Load parses environment variables into the provided struct.
// The struct should use `env` tags to define mappings. When cfg implements
// Validator, Validate runs after parsing and its error is returned wrapped.
//
// Example:
//
//	type Config struct {
//	    Port          int           `env:"HTTP_PORT" envDefault:"8080"`
//	    IntentTimeout time.Duration `env:"INTENT_TIMEOUT" envDefault:"15s"`
//	}
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if v, ok := cfg.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
	}
	return nil
}
