package ratelimit

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // Endpoint path pattern (supports prefix matching)
	Method string        // HTTP method (GET, POST, etc.)
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
}

// LoadConfig loads rate limiting configuration from the process environment.
func LoadConfig() *Config {
	return ConfigFromEnv(os.LookupEnv)
}

// ConfigFromEnv builds a Config from RATE_LIMIT_* variables. Values that fail to parse fall
// back to their defaults.
func ConfigFromEnv(lookup func(string) (string, bool)) *Config {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	if !envBool(get("RATE_LIMIT_ENABLED"), true) {
		return &Config{Enabled: false}
	}

	return &Config{
		Enabled:         true,
		DefaultLimit:    envInt(get("RATE_LIMIT_DEFAULT_LIMIT"), 1000),
		DefaultWindow:   envDuration(get("RATE_LIMIT_DEFAULT_WINDOW"), time.Minute),
		CleanupInterval: envDuration(get("RATE_LIMIT_CLEANUP_INTERVAL"), 5*time.Minute),
		Whitelist:       parseIPList(get("RATE_LIMIT_WHITELIST")),
		Blacklist:       parseIPList(get("RATE_LIMIT_BLACKLIST")),
		EndpointConfigs: DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs returns the default endpoint-specific configurations.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// Classifier-backed operations
		{Path: "/assessments/", Method: "POST", Limit: 120, Window: time.Minute, Burst: 20},

		// Uploads
		{Path: "/documents", Method: "POST", Limit: 100, Window: time.Minute, Burst: 10},
		{Path: "/questionnaires", Method: "POST", Limit: 100, Window: time.Minute, Burst: 10},

		// Reads use the default limit; /health and /metrics are unlimited (see MatchEndpoint)
	}
}

func envInt(value string, def int) int {
	if value == "" {
		return def
	}
	n, err := cast.ToIntE(value)
	if err != nil {
		return def
	}
	return n
}

func envBool(value string, def bool) bool {
	if value == "" {
		return def
	}
	b, err := cast.ToBoolE(value)
	if err != nil {
		return def
	}
	return b
}

func envDuration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := cast.ToDurationE(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// parseIPList parses a comma-separated list of IP addresses into a set.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			result[ip] = true
		}
	}
	return result
}
