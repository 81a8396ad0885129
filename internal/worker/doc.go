// Package worker runs the processing loop: the Runner polls the scheduler
// for claim batches and drives each item through its provider call, and
// the Pool manages runner lifecycles, enforcing the concurrency cap and
// reclaiming work from workers that died without releasing their claims.
package worker
