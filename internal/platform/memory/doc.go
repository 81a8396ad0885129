// Package memory provides in-memory implementations of the store
// interfaces. A single mutex per store makes every operation one atomic
// state transition, giving the same exclusivity guarantees as the
// postgres implementations. Used by engine tests and local development.
package memory
