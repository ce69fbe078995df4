// Package testutil carries the small helpers shared across package
// tests: deadline-bound test contexts and channel waits. Domain
// records are built inline in each package's tests, where the values
// under assertion stay visible.
package testutil
