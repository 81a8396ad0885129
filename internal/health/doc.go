// Package health computes the queue's composite health assessment from
// the task and worker stores and mirrors it into Prometheus metrics.
// Assessments are pull-based: every call recomputes from current store
// state, so monitoring consumers never read a stale cached verdict.
package health
