// Package services implements clients for the lifecycle manager's external collaborators.
//
// # Collaborators
//
//   - [SpotifyService] : provider OAuth endpoint (authorization URL, code
//     exchange, refresh-token grant, user profile) built on [golang.org/x/oauth2]
//   - [BackendService] : the spotify-sync edge function, a single request-style
//     operation accepting {refresh_only, force_full_sync, health_check} flags
//     with bearer authorization, paced by [golang.org/x/time/rate]
//   - [SessionService] : the session provider resolving the current local user
//     and the credential for backend calls
//
// HTTP failures surface as [*APIError] values carrying the status code and any
// Retry-After hint, which the lifecycle package classifies into permanent and
// transient buckets.
package services
