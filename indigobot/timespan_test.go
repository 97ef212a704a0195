package indigobot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimespan(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
	}{
		{"1min", time.Minute},
		{"5min", 5 * time.Minute},
		{"10 minutes", 10 * time.Minute},
		{"1m", time.Minute},
		{"90s", 90 * time.Second},
		{"30 seconds", 30 * time.Second},
		{"1h", time.Hour},
		{"2 hours", 2 * time.Hour},
		{"1d", 24 * time.Hour},
		{"3 days", 72 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
		{"1 week", 7 * 24 * time.Hour},
		{"1h30m", 90 * time.Minute},
		{"  1H  ", time.Hour},
	}
	for _, tt := range tests {
		t.Run(
			tt.input, func(t *testing.T) {
				d, err := parseTimespan(tt.input)
				require.NoError(t, err)
				assert.Equal(t, tt.expected, d)
			},
		)
	}
}

func TestParseTimespanInvalid(t *testing.T) {
	tests := []string{
		"",
		"   ",
		"soon",
		"five minutes",
		"1x",
		"h",
		"-5m",
		"0s",
	}
	for _, input := range tests {
		t.Run(
			input, func(t *testing.T) {
				_, err := parseTimespan(input)
				assert.Error(t, err)
			},
		)
	}
}
