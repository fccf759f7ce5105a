// Package idgen wraps the UUID generator so that it can be stubbed in tests.
// It lives under `internal` because callers should not rely on its exact
// behaviour or API – they should treat identifiers as opaque strings, with the
// single exception of PoolOf which recovers the pool segment of an identity
// minted by TaskIdentity.
package idgen
