package idgen

import (
	"strings"

	"github.com/google/uuid"
)

const (
	identityPrefix  = "pool:"
	taskSegment     = ":task:"
	sharedSegment   = ":shared:"
	identityPartsLn = 4
)

// New returns a new globally unique identifier as string. It is implemented
// as a thin wrapper so tests can stub it.

var NewFunc = func() string { return uuid.New().String() }

func New() string { return NewFunc() }

// TaskIdentity mints the identity of a spawned task running in pool. When
// namespace is not empty the identity carries it as a shared suffix so that
// tasks of one batch can be correlated by the executor.
func TaskIdentity(pool, namespace string) string {
	ret := identityPrefix + pool + taskSegment + New()
	if namespace != "" {
		ret += sharedSegment + namespace
	}
	return ret
}

// RootIdentity returns the identity of a top-level supervising context in pool.
func RootIdentity(pool, name string) string {
	return identityPrefix + pool + ":" + name
}

// PoolOf extracts the pool segment from an identity produced by TaskIdentity
// or RootIdentity. It returns an empty string for foreign identities.
func PoolOf(identity string) string {
	if !strings.HasPrefix(identity, identityPrefix) {
		return ""
	}
	parts := strings.SplitN(identity, ":", identityPartsLn)
	if len(parts) < 3 {
		return ""
	}
	return parts[1]
}
