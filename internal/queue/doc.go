// Package queue contains the scheduling engine: the runtime configuration
// snapshot cache, the exponential backoff retry policy, the per-provider
// rate-limit coordinator, the strategy tuner, and the scheduler that
// assembles claim batches from all of them.
package queue
