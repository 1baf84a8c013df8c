// Package util provides small helpers shared across the ground link.
package util

import "time"

// NowMs returns the current time as milliseconds since the Unix epoch, the
// timestamp unit used on events and records.
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// Ptr returns a pointer to v, for populating optional record fields.
func Ptr[T any](v T) *T {
	return &v
}
