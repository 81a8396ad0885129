// Package postgres provides PostgreSQL-specific implementations for the data
// storage interfaces (repositories) defined in the internal/store package.
// It handles the details of query execution, data mapping between domain
// entities and database records, and the atomic claim semantics the queue
// relies on (FOR UPDATE SKIP LOCKED batch claims).
package postgres
