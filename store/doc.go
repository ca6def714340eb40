// Package store provides the durable run stores behind the engine's
// checkpoint contract: an in-memory store for tests and single-process
// deployments, a GORM-backed store for SQLite/PostgreSQL/MySQL, and a Redis
// store for distributed deployments.
package store
