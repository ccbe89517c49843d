// Package models defines domain entities and persistence interfaces for the mako-sync connection service.
//
// The package contains two categories of types:
//
// 1. In-memory state: process-local values owned by the lifecycle manager
//   - [ConnectionState] : canonical connection state broadcast to subscribers
//   - [HealthMetrics] : rolling health summary recomputed each monitor cycle
//   - [Alert] : raised conditions with per-type deduplication
//
// 2. Persistent Entities: database-backed models with full lifecycle management
//   - [Connection] : one user's Spotify link with its opaque token pair
//   - [Session] : the locally authenticated user and backend credential
//
// All persistent entities implement the Model interface providing ID generation, timestamps, validation, and soft delete support.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
