// Package ui implements an interactive terminal dashboard using bubbletea's Elm architecture.
//
// The TUI shows the live Spotify connection state as a subscriber of the
// lifecycle manager:
//  1. [DashboardView] : Connection status, token freshness, and health metrics
//  2. [AlertsView] : Active alerts with acknowledge support
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// State updates flow through a channel fed by a lifecycle adapter, so only
// observable changes trigger redraws.
//
// Keyboard navigation uses vim-style bindings (j/k, r, a, enter, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
