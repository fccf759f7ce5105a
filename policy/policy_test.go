package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_IsAllowed(t *testing.T) {
	testCases := []struct {
		name   string
		policy *Policy
		from   string
		to     string
		expect bool
	}{
		{name: "own pool without policy", from: "main", to: "main", expect: true},
		{name: "other pool without policy", from: "main", to: "research", expect: false},
		{name: "exact match", policy: &Policy{AllowList: []string{"Research"}}, from: "main", to: "research", expect: true},
		{name: "not listed", policy: &Policy{AllowList: []string{"coding"}}, from: "main", to: "research", expect: false},
		{name: "wildcard", policy: &Policy{AllowList: []string{"*"}}, from: "main", to: "anything", expect: true},
		{name: "block wins", policy: &Policy{AllowList: []string{"*"}, BlockList: []string{"ops"}}, from: "main", to: "ops", expect: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, tc.policy.IsAllowed(tc.from, tc.to))
		})
	}
}

func TestPolicy_Context(t *testing.T) {
	p := FromConfig(&Config{AllowList: []string{"a"}})
	ctx := WithPolicy(context.Background(), p)
	assert.Same(t, p, FromContext(ctx))
	assert.Nil(t, FromContext(context.Background()))
	assert.Equal(t, []string{"a"}, ToConfig(p).AllowList)
}
