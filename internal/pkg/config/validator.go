package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidateCronSchedule checks a five-field cron expression
// ("minute hour day month weekday") with the robfig/cron parser.
//
//	ValidateCronSchedule("*/30 * * * *") // every 30 minutes
//	ValidateCronSchedule("0 6 * * 1-5")  // weekdays at 6:00
func ValidateCronSchedule(schedule string) error {
	if schedule == "" {
		return fmt.Errorf("invalid cron schedule: cannot be empty")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", schedule, err)
	}
	return nil
}

// ValidateTimezone checks that timezone is a loadable IANA name.
// A missing tzdata package makes valid names fail too.
func ValidateTimezone(timezone string) error {
	if timezone == "" {
		return fmt.Errorf("invalid timezone: cannot be empty")
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return fmt.Errorf("invalid timezone '%s': %w", timezone, err)
	}
	return nil
}

// ValidatePositiveDuration rejects zero and negative durations.
func ValidatePositiveDuration(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %v", d)
	}
	return nil
}

// ValidateDuration checks min <= d <= max.
func ValidateDuration(d, min, max time.Duration) error {
	if min > max {
		return fmt.Errorf("invalid range: min (%v) cannot be greater than max (%v)", min, max)
	}
	if d < min {
		return fmt.Errorf("duration %v is below minimum %v", d, min)
	}
	if d > max {
		return fmt.Errorf("duration %v exceeds maximum %v", d, max)
	}
	return nil
}

// DurationRange adapts ValidateDuration for the loaders.
func DurationRange(min, max time.Duration) func(time.Duration) error {
	return func(d time.Duration) error { return ValidateDuration(d, min, max) }
}

// ValidateIntRange checks min <= n <= max.
func ValidateIntRange(n, min, max int) error {
	if n < min || n > max {
		return fmt.Errorf("value %d out of range [%d, %d]", n, min, max)
	}
	return nil
}

// IntRange adapts ValidateIntRange for the loaders.
func IntRange(min, max int) func(int) error {
	return func(n int) error { return ValidateIntRange(n, min, max) }
}

// ValidateNonNegativeFloat rejects negative numbers.
func ValidateNonNegativeFloat(f float64) error {
	if f < 0 {
		return fmt.Errorf("value must be non-negative, got %v", f)
	}
	return nil
}

// OneOf returns a validator accepting only the listed values, case-insensitively.
func OneOf(allowed ...string) func(string) error {
	return func(s string) error {
		if slices.Contains(allowed, strings.ToLower(s)) {
			return nil
		}
		return fmt.Errorf("must be one of %s", strings.Join(allowed, ", "))
	}
}
