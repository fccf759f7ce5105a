// Package policy provides the cross-pool spawn policy: which target pools a
// caller pool may spawn tasks into.
package policy
