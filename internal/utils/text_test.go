package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExtractReferralCode(t *testing.T) {
	tests := []struct {
		param string
		code  string
		ok    bool
	}{
		{"ref_AbC-12_x", "AbC-12_x", true},
		{"ref_", "", false},
		{"promo_abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		code, ok := ExtractReferralCode(tt.param)
		assert.Equal(t, tt.ok, ok, tt.param)
		assert.Equal(t, tt.code, code, tt.param)
	}
}

func TestFormatTimeAgo(t *testing.T) {
	now := time.Date(2025, 4, 8, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	assert.Equal(t, "never", FormatTimeAgo(nil, now))
	assert.Equal(t, "5 seconds ago", FormatTimeAgo(at(5*time.Second), now))
	assert.Equal(t, "1 minute ago", FormatTimeAgo(at(time.Minute), now))
	assert.Equal(t, "3 hours ago", FormatTimeAgo(at(3*time.Hour), now))
	assert.Equal(t, "2 days ago", FormatTimeAgo(at(49*time.Hour), now))
	assert.Equal(t, "2 months ago", FormatTimeAgo(at(65*24*time.Hour), now))
}
