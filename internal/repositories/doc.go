// Package repositories implements SQLite persistence for all domain entities.
//
// [ConnectionRepository] is the token store for the lifecycle manager: it owns
// the one-connection-per-user record holding the opaque OAuth token pair.
// [SessionRepository] persists the locally authenticated user, and
// [OAuthStateRepository] is the database half of the dual-location OAuth
// state-nonce storage used to validate authorization redirects.
//
// Each repository handles CRUD operations with atomic sequence generation for human-readable ordering.
package repositories
