package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix namespaces every environment variable read by the engine.
const EnvPrefix = "WFRP3E_"

// ParseEnv loads configuration from WFRP3E_-prefixed environment variables.
// Struct tags name the variable without the prefix.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Getenv reads one prefixed variable.
func Getenv(lookup func(string) string, name string) string {
	if lookup == nil {
		return ""
	}
	return lookup(EnvPrefix + name)
}
