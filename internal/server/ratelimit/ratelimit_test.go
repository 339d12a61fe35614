package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestLimiter returns a limiter with a frozen clock the test can advance.
func newTestLimiter(t *testing.T, cfg *Config) (*Limiter, *time.Time) {
	t.Helper()
	l := NewLimiter(cfg)
	t.Cleanup(l.Stop)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiter_Allow(t *testing.T) {
	limiter, _ := newTestLimiter(t, &Config{Enabled: true, DefaultLimit: 10, DefaultWindow: time.Minute})

	for i := 0; i < 10; i++ {
		allowed, info := limiter.Allow("127.0.0.1", "/test", "GET")
		require.True(t, allowed, "request %d", i+1)
		assert.Equal(t, 10, info.Limit)
		assert.Equal(t, 9-i, info.Remaining)
	}

	allowed, info := limiter.Allow("127.0.0.1", "/test", "GET")
	assert.False(t, allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.InDelta(t, float64(6*time.Second), float64(info.RetryAfter), float64(time.Millisecond))
}

func TestLimiter_Refill(t *testing.T) {
	limiter, now := newTestLimiter(t, &Config{Enabled: true, DefaultLimit: 10, DefaultWindow: 10 * time.Second})

	for i := 0; i < 10; i++ {
		allowed, _ := limiter.Allow("127.0.0.1", "/test", "GET")
		require.True(t, allowed)
	}
	allowed, info := limiter.Allow("127.0.0.1", "/test", "GET")
	require.False(t, allowed)
	assert.Equal(t, now.Add(10*time.Second), info.ResetTime)

	*now = now.Add(time.Second)
	allowed, _ = limiter.Allow("127.0.0.1", "/test", "GET")
	assert.True(t, allowed)

	allowed, _ = limiter.Allow("127.0.0.1", "/test", "GET")
	assert.False(t, allowed)
}

func TestLimiter_WhitelistAndBlacklist(t *testing.T) {
	limiter, _ := newTestLimiter(t, &Config{
		Enabled:       true,
		DefaultLimit:  1,
		DefaultWindow: time.Minute,
		Whitelist:     map[string]bool{"127.0.0.1": true},
		Blacklist:     map[string]bool{"192.168.1.1": true},
	})

	for i := 0; i < 50; i++ {
		allowed, info := limiter.Allow("127.0.0.1", "/test", "GET")
		require.True(t, allowed)
		assert.Equal(t, 0, info.Limit)
	}

	allowed, _ := limiter.Allow("192.168.1.1", "/test", "GET")
	assert.False(t, allowed)
}

func TestLimiter_Disabled(t *testing.T) {
	limiter, _ := newTestLimiter(t, &Config{Enabled: false})

	for i := 0; i < 50; i++ {
		allowed, info := limiter.Allow("127.0.0.1", "/test", "GET")
		require.True(t, allowed)
		assert.Equal(t, 0, info.Limit)
	}
}

func TestLimiter_EndpointSpecific(t *testing.T) {
	limiter, _ := newTestLimiter(t, &Config{
		Enabled:       true,
		DefaultLimit:  1000,
		DefaultWindow: time.Minute,
		EndpointConfigs: []EndpointConfig{
			{Path: "/assessments/", Method: "POST", Limit: 10, Window: time.Minute, Burst: 5},
		},
	})

	path := "/assessments/doc-1/batches"
	for i := 0; i < 5; i++ {
		allowed, info := limiter.Allow("127.0.0.1", path, "POST")
		require.True(t, allowed, "burst request %d", i+1)
		assert.Equal(t, 10, info.Limit)
	}
	allowed, _ := limiter.Allow("127.0.0.1", path, "POST")
	assert.False(t, allowed)

	allowed, info := limiter.Allow("127.0.0.1", "/reports/r-1", "GET")
	assert.True(t, allowed)
	assert.Equal(t, 1000, info.Limit)

	allowed, info = limiter.Allow("127.0.0.1", "/health", "GET")
	assert.True(t, allowed)
	assert.Equal(t, 0, info.Limit)
}

func TestLimiter_Concurrent(t *testing.T) {
	limiter, _ := newTestLimiter(t, &Config{Enabled: true, DefaultLimit: 100, DefaultWindow: time.Minute})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := limiter.Allow("127.0.0.1", "/test", "GET"); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, allowed)
}

func TestLimiter_CleanupBuckets(t *testing.T) {
	limiter, now := newTestLimiter(t, &Config{Enabled: true, DefaultLimit: 10, DefaultWindow: time.Minute})

	for i := 0; i < 4; i++ {
		limiter.Allow(fmt.Sprintf("10.0.0.%d", i), "/test", "GET")
	}
	*now = now.Add(2 * time.Hour)
	limiter.Allow("10.0.0.0", "/test", "GET")

	limiter.cleanupBuckets()

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.Len(t, limiter.buckets, 1)
	assert.Contains(t, limiter.buckets, "10.0.0.0:/test:GET")
}

func TestNewLimiter_NilConfig(t *testing.T) {
	limiter := NewLimiter(nil)
	defer limiter.Stop()

	allowed, info := limiter.Allow("127.0.0.1", "/test", "GET")
	assert.True(t, allowed)
	assert.Equal(t, 1000, info.Limit)
}

func TestLimiter_StopTwice(t *testing.T) {
	limiter := NewLimiter(&Config{Enabled: true, DefaultLimit: 1, DefaultWindow: time.Second, CleanupInterval: time.Millisecond})
	limiter.Stop()
	assert.NotPanics(t, limiter.Stop)
}

func TestMatchEndpoint(t *testing.T) {
	configs := DefaultEndpointConfigs()

	tests := []struct {
		name   string
		path   string
		method string
		want   string
		nilOK  bool
	}{
		{name: "prefix match", path: "/assessments/abc/stream", method: "POST", want: "/assessments/"},
		{name: "exact match", path: "/documents", method: "POST", want: "/documents"},
		{name: "method mismatch", path: "/documents", method: "GET", nilOK: true},
		{name: "no match", path: "/reports/x", method: "GET", nilOK: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchEndpoint(tt.path, tt.method, configs)
			if tt.nilOK {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Path)
		})
	}

	metrics := MatchEndpoint("/metrics", "GET", configs)
	require.NotNil(t, metrics)
	assert.Equal(t, 0, metrics.Limit)
}

func TestConfigFromEnv(t *testing.T) {
	env := map[string]string{
		"RATE_LIMIT_DEFAULT_LIMIT":  "50",
		"RATE_LIMIT_DEFAULT_WINDOW": "30s",
		"RATE_LIMIT_WHITELIST":      "10.0.0.1, 10.0.0.2",
		"RATE_LIMIT_BLACKLIST":      "not-a-number-is-fine",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := ConfigFromEnv(lookup)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 50, cfg.DefaultLimit)
	assert.Equal(t, 30*time.Second, cfg.DefaultWindow)
	assert.Equal(t, 5*time.Minute, cfg.CleanupInterval)
	assert.True(t, cfg.Whitelist["10.0.0.2"])
	assert.Len(t, cfg.Blacklist, 1)

	env["RATE_LIMIT_DEFAULT_LIMIT"] = "lots"
	assert.Equal(t, 1000, ConfigFromEnv(lookup).DefaultLimit)

	env["RATE_LIMIT_ENABLED"] = "false"
	assert.False(t, ConfigFromEnv(lookup).Enabled)
}
