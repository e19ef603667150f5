package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadEnvString(t *testing.T) {
	t.Setenv("TEST_STRING", "custom_value")
	assert.Equal(t, "custom_value", LoadEnvString("TEST_STRING", "default_value"))

	t.Setenv("TEST_STRING", "   ")
	assert.Equal(t, "default_value", LoadEnvString("TEST_STRING", "default_value"))

	assert.Equal(t, "default_value", LoadEnvString("TEST_STRING_UNSET", "default_value"))
}

func TestLoadEnvWithFallback(t *testing.T) {
	t.Run("valid value", func(t *testing.T) {
		t.Setenv("TEST_CRON", "0 6 * * *")

		result := LoadEnvWithFallback("TEST_CRON", "*/30 * * * *", ValidateCronSchedule)

		assert.Equal(t, "0 6 * * *", result.Value)
		assert.Empty(t, result.Warnings)
		assert.False(t, result.FallbackApplied)
	})

	t.Run("unset uses default silently", func(t *testing.T) {
		result := LoadEnvWithFallback("TEST_CRON_UNSET", "*/30 * * * *", ValidateCronSchedule)

		assert.Equal(t, "*/30 * * * *", result.Value)
		assert.Empty(t, result.Warnings)
		assert.False(t, result.FallbackApplied)
	})

	t.Run("invalid value falls back with warning", func(t *testing.T) {
		t.Setenv("TEST_CRON", "every minute")

		result := LoadEnvWithFallback("TEST_CRON", "*/30 * * * *", ValidateCronSchedule)

		assert.Equal(t, "*/30 * * * *", result.Value)
		assert.True(t, result.FallbackApplied)
		assert.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0], "Invalid TEST_CRON='every minute'")
		assert.Contains(t, result.Warnings[0], "falling back to default '*/30 * * * *'")
	})

	t.Run("nil validator accepts anything", func(t *testing.T) {
		t.Setenv("TEST_ANY", "whatever")
		assert.Equal(t, "whatever", LoadEnvWithFallback("TEST_ANY", "x", nil).Value)
	})
}

func TestLoadEnvDuration(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		want         time.Duration
		wantFallback bool
	}{
		{"valid", "45s", 45 * time.Second, false},
		{"compound", "1h30m", 90 * time.Minute, false},
		{"unset", "", 10 * time.Second, false},
		{"unparsable", "ten seconds", 10 * time.Second, true},
		{"fails validation", "-5s", 10 * time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)

			result := LoadEnvDuration("TEST_DURATION", 10*time.Second, ValidatePositiveDuration)

			assert.Equal(t, tt.want, result.Value)
			assert.Equal(t, tt.wantFallback, result.FallbackApplied)
			assert.Equal(t, tt.wantFallback, len(result.Warnings) == 1)
		})
	}
}

func TestLoadEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		want         int
		wantFallback bool
	}{
		{"valid", "8", 8, false},
		{"unset", "", 5, false},
		{"not a number", "eight", 5, true},
		{"out of range", "500", 5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT", tt.value)

			result := LoadEnvInt("TEST_INT", 5, IntRange(1, 100))

			assert.Equal(t, tt.want, result.Value)
			assert.Equal(t, tt.wantFallback, result.FallbackApplied)
		})
	}
}

func TestLoadEnvFloat(t *testing.T) {
	t.Setenv("TEST_FLOAT", "2.5")
	assert.Equal(t, 2.5, LoadEnvFloat("TEST_FLOAT", 0, ValidateNonNegativeFloat).Value)

	t.Setenv("TEST_FLOAT", "-1")
	result := LoadEnvFloat("TEST_FLOAT", 0, ValidateNonNegativeFloat)
	assert.Equal(t, 0.0, result.Value)
	assert.True(t, result.FallbackApplied)
}

func TestLoadEnvBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	assert.True(t, LoadEnvBool("TEST_BOOL", false).Value)

	t.Setenv("TEST_BOOL", "maybe")
	result := LoadEnvBool("TEST_BOOL", false)
	assert.False(t, result.Value)
	assert.True(t, result.FallbackApplied)
}
