// Package progress tracks dispatch counters of a batch (tasks total,
// accepted, failed, skipped, pending). The tracker travels in the context so
// callers can observe a batch while it is being dispatched.
package progress
