// Package config loads configuration values from environment variables.
//
// Loaders never fail: a missing value yields the default silently, and an
// unparsable or invalid value yields the default plus a warning. Callers
// collect the warnings, log them and report them through ConfigMetrics.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ConfigLoadResult is the outcome of loading one value.
//
//	result := LoadEnvDuration("CYCLE_TIMEOUT", 10*time.Minute, ValidatePositiveDuration)
//	if result.FallbackApplied {
//	    slog.Warn("configuration fallback", slog.Any("warnings", result.Warnings))
//	}
//	timeout := result.Value
type ConfigLoadResult[T any] struct {
	Value           T
	Warnings        []string
	FallbackApplied bool
}

// LoadEnvString returns the environment value, or defaultValue when unset or
// empty. No validation is performed.
func LoadEnvString(envKey, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(envKey))
	if value == "" {
		return defaultValue
	}
	return value
}

// LoadEnvWithFallback loads a string and validates it. validator may be nil.
func LoadEnvWithFallback(envKey, defaultValue string, validator func(string) error) ConfigLoadResult[string] {
	return load(envKey, defaultValue, func(s string) (string, error) { return s, nil }, validator)
}

// LoadEnvDuration loads a Go duration string such as "30s" or "1h30m".
func LoadEnvDuration(envKey string, defaultValue time.Duration, validator func(time.Duration) error) ConfigLoadResult[time.Duration] {
	return load(envKey, defaultValue, time.ParseDuration, validator)
}

// LoadEnvInt loads a base-10 integer.
func LoadEnvInt(envKey string, defaultValue int, validator func(int) error) ConfigLoadResult[int] {
	return load(envKey, defaultValue, strconv.Atoi, validator)
}

// LoadEnvFloat loads a floating point number.
func LoadEnvFloat(envKey string, defaultValue float64, validator func(float64) error) ConfigLoadResult[float64] {
	return load(envKey, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	}, validator)
}

// LoadEnvBool loads a boolean accepted by strconv.ParseBool.
func LoadEnvBool(envKey string, defaultValue bool) ConfigLoadResult[bool] {
	return load[bool](envKey, defaultValue, strconv.ParseBool, nil)
}

func load[T any](envKey string, defaultValue T, parse func(string) (T, error), validator func(T) error) ConfigLoadResult[T] {
	raw := strings.TrimSpace(os.Getenv(envKey))
	if raw == "" {
		return ConfigLoadResult[T]{Value: defaultValue}
	}

	value, err := parse(raw)
	if err == nil && validator != nil {
		err = validator(value)
	}
	if err != nil {
		return ConfigLoadResult[T]{
			Value: defaultValue,
			Warnings: []string{fmt.Sprintf(
				"Invalid %s='%s': %v, falling back to default '%v'",
				envKey, raw, err, defaultValue,
			)},
			FallbackApplied: true,
		}
	}
	return ConfigLoadResult[T]{Value: value}
}
