package callrelay

import (
	"time"

	"github.com/xraph/callrelay/delivery"
)

// Config holds the configuration for a Relay instance.
type Config struct {
	// Concurrency caps simultaneous deliveries per call event. Zero sends
	// to every subscription at once.
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// RequestTimeout is the HTTP timeout per delivery attempt.
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`

	// ShutdownTimeout is the maximum time Stop waits for in-flight
	// processing.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`

	// TargetRateLimit caps delivery attempts per second to any one
	// subscriber host. Zero disables pacing.
	TargetRateLimit float64 `json:"target_rate_limit" yaml:"target_rate_limit"`

	// TargetBurst is the burst allowed above TargetRateLimit.
	TargetBurst int `json:"target_burst" yaml:"target_burst"`

	// UserAgent is sent on every delivery.
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     0,
		RequestTimeout:  delivery.DefaultRequestTimeout,
		ShutdownTimeout: 30 * time.Second,
		UserAgent:       delivery.DefaultUserAgent,
	}
}
