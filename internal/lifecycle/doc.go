// Package lifecycle implements the Spotify connection lifecycle core.
//
// The package owns the OAuth token pair's lifetime: deciding when to refresh,
// retrying failed refreshes with backoff, monitoring ongoing health, and
// broadcasting one consistent connection-state signal to every consumer.
//
// Components in dependency order:
//
//   - [Classify] : pure mapping from a raw collaborator failure to a severity,
//     a user-facing remediation message, and a permanent/transient verdict
//   - [Retryer] : bounded retry with exponential backoff, short-circuiting on
//     permanent errors; sleeps are injectable for tests
//   - [RefreshEngine] : one refresh round trip per attempt, token freshness
//     validation, and proactive one-shot refresh scheduling
//   - [Monitor] : periodic poller tracking rolling health metrics and raising
//     deduplicated, auto-resolving alerts
//   - [Manager] : the coordinating core holding canonical [models.ConnectionState],
//     deduplicating concurrent checks, and broadcasting state to subscribers
//   - [Adapter] : subscriber bindings that shallow-compare state snapshots and
//     defer their initial check until a readiness signal
//
// All operations return result values rather than panicking across the
// package boundary; raw collaborator errors are logged, not shown verbatim.
package lifecycle
