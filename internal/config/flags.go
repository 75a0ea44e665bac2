package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Flags are process-wide switches read once from the environment at startup.
type Flags struct {
	// VerifyOnOpen runs a full changelog consistency sweep before each command.
	VerifyOnOpen bool `env:"MECHBANK_VERIFY_ON_OPEN"`

	// MetricsTextfile, when set, receives the Prometheus metrics in text
	// exposition format after each command (node_exporter textfile style).
	MetricsTextfile string `env:"MECHBANK_METRICS_TEXTFILE"`

	// Tracing writes OpenTelemetry spans to stderr.
	Tracing bool `env:"MECHBANK_TRACING"`
}

// ParseFlags loads Flags from the process environment.
func ParseFlags() (Flags, error) {
	var f Flags
	if err := env.Parse(&f); err != nil {
		return Flags{}, fmt.Errorf("parse env: %w", err)
	}
	return f, nil
}

// ParseFlagsFrom loads Flags from the given variables instead of the
// process environment.
func ParseFlagsFrom(vars map[string]string) (Flags, error) {
	var f Flags
	if err := env.ParseWithOptions(&f, env.Options{Environment: vars}); err != nil {
		return Flags{}, fmt.Errorf("parse env: %w", err)
	}
	return f, nil
}
