// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the queue engine's core logic, allowing scheduling and recovery rules
// to remain independent of specific database technologies.
package store
