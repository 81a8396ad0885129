// Package domain defines the core entities of the embedding task queue:
// queue items, workers, rate-limit windows, and the mutable queue
// configuration. Entities validate themselves and enforce their own
// state-transition invariants, keeping persistence and scheduling logic
// independent of business rules.
package domain
