// Package api implements the HTTP admin surface: enqueueing items,
// worker lifecycle control, queue statistics and health, configuration
// management, and on-demand maintenance. Monitoring endpoints are
// strictly read-only; every mutation goes through an explicit POST,
// PATCH, or DELETE route.
package api
