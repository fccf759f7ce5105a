package policy

import (
	"context"
	"strings"
)

// Wildcard allows spawning into any pool.
const Wildcard = "*"

// Policy lists the pools a caller may target besides its own.
//
//   - AllowList entries match a target pool exactly (case-insensitive) or by
//     the "*" wildcard.
//   - BlockList takes priority over AllowList.
//
// A nil *Policy or an empty AllowList permits only the caller's own pool.
type Policy struct {
	AllowList []string
	BlockList []string
}

// Config represents the declarative, serialisable form of a Policy.
type Config struct {
	AllowList []string `json:"allow,omitempty" yaml:"allow,omitempty"`
	BlockList []string `json:"block,omitempty" yaml:"block,omitempty"`
}

// FromConfig converts a stored Config to a runtime Policy.
func FromConfig(c *Config) *Policy {
	if c == nil {
		return nil
	}
	return &Policy{
		AllowList: append([]string(nil), c.AllowList...),
		BlockList: append([]string(nil), c.BlockList...),
	}
}

// ToConfig converts a runtime Policy into a persistable Config.
func ToConfig(p *Policy) *Config {
	if p == nil {
		return nil
	}
	return &Config{
		AllowList: append([]string(nil), p.AllowList...),
		BlockList: append([]string(nil), p.BlockList...),
	}
}

// IsAllowed reports whether a caller in pool from may spawn into pool to.
func (p *Policy) IsAllowed(from, to string) bool {
	if strings.EqualFold(from, to) {
		return true
	}
	if p == nil {
		return false
	}
	for _, b := range p.BlockList {
		if b == Wildcard || strings.EqualFold(b, to) {
			return false
		}
	}
	for _, a := range p.AllowList {
		if a == Wildcard || strings.EqualFold(a, to) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

type ctxKeyT struct{}

var ctxKey ctxKeyT

// WithPolicy embeds policy in ctx; it overrides the configured pool policy
// for spawns issued with that context.
func WithPolicy(ctx context.Context, p *Policy) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey, p)
}

// FromContext extracts the policy embedded with WithPolicy, or nil.
func FromContext(ctx context.Context) *Policy {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxKey).(*Policy); ok {
		return v
	}
	return nil
}
