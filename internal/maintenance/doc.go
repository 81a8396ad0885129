// Package maintenance holds the periodic housekeeping jobs: retention
// cleanup of terminal items, bounded requeue of dead-letters, promotion of
// rate-limited items the scheduler missed, and stale-worker reclamation.
// Each job is callable on demand from the admin API and run on a fixed
// interval by the Runner.
package maintenance
