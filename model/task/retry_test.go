package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Delay(t *testing.T) {
	testCases := []struct {
		name    string
		backoff Backoff
		attempt int
		expect  time.Duration
	}{
		{name: "fixed", backoff: BackoffFixed, attempt: 3, expect: time.Second},
		{name: "linear", backoff: BackoffLinear, attempt: 2, expect: 3 * time.Second},
		{name: "exponential first", backoff: BackoffExponential, attempt: 0, expect: time.Second},
		{name: "exponential third", backoff: BackoffExponential, attempt: 2, expect: 4 * time.Second},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := &RetryPolicy{BaseDelay: time.Second, Backoff: tc.backoff}
			assert.Equal(t, tc.expect, p.Delay(tc.attempt))
		})
	}
}

func TestRetryPolicy_IsRetryable(t *testing.T) {
	testCases := []struct {
		name     string
		patterns []string
		message  string
		expect   bool
	}{
		{name: "no patterns", message: "anything", expect: true},
		{name: "case insensitive", patterns: []string{"TIMEOUT"}, message: "gateway timeout", expect: true},
		{name: "no match", patterns: []string{"rate limit"}, message: "invalid model", expect: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := &RetryPolicy{RetryOn: tc.patterns}
			assert.Equal(t, tc.expect, p.IsRetryable(tc.message))
		})
	}
}

func TestSpawnRequest_Dependency(t *testing.T) {
	assert.Equal(t, "a", (&SpawnRequest{ChainAfter: "a", DependsOn: "b"}).Dependency())
	assert.Equal(t, "b", (&SpawnRequest{DependsOn: " b "}).Dependency())
	assert.Equal(t, "", (&SpawnRequest{}).Dependency())
}
