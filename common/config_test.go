package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_CacheMaxAge(t *testing.T) {
	cases := map[string]time.Duration{
		"":      10 * time.Minute,
		"90s":   90 * time.Second,
		"soon":  10 * time.Minute,
		"0s":    10 * time.Minute,
		"-5m":   10 * time.Minute,
		"1h30m": 90 * time.Minute,
	}
	for raw, want := range cases {
		t.Setenv("CACHE_MAX_AGE", raw)
		assert.Equal(t, want, LoadConfig().CacheMaxAge, "CACHE_MAX_AGE=%q", raw)
	}
}
