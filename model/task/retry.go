package task

import (
	"strings"
	"time"
)

// Backoff selects the delay-growth function between retry attempts.
type Backoff string

const (
	BackoffFixed       Backoff = "fixed"
	BackoffLinear      Backoff = "linear"
	BackoffExponential Backoff = "exponential"
)

// RetryPolicy bounds the spawn retry loop. RetryCount is the number of extra
// attempts after the first one.
type RetryPolicy struct {
	RetryCount int           `json:"retryCount" yaml:"retryCount"`
	BaseDelay  time.Duration `json:"baseDelay,omitempty" yaml:"baseDelay,omitempty"`
	Backoff    Backoff       `json:"backoff,omitempty" yaml:"backoff,omitempty"`
	// RetryOn lists case-insensitive substrings; an error is retryable when it
	// contains any of them. No patterns means every error is retryable.
	RetryOn []string `json:"retryOn,omitempty" yaml:"retryOn,omitempty"`
	// MaxRetryTime caps the total time spent retrying; zero means unbounded.
	MaxRetryTime time.Duration `json:"maxRetryTime,omitempty" yaml:"maxRetryTime,omitempty"`
}

// IsRetryable reports whether errorMessage matches the configured patterns.
func (p *RetryPolicy) IsRetryable(errorMessage string) bool {
	if p == nil || len(p.RetryOn) == 0 {
		return true
	}
	lower := strings.ToLower(errorMessage)
	for _, pattern := range p.RetryOn {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// Delay returns the raw delay before the attempt following attempt (0-based).
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	switch p.Backoff {
	case BackoffLinear:
		return p.BaseDelay * time.Duration(attempt+1)
	case BackoffExponential:
		return p.BaseDelay * time.Duration(int64(1)<<uint(attempt))
	}
	return p.BaseDelay
}
