package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/gwherrett/mako-sync-ai-sub002/internal/models"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgStateUpdated MsgKind = iota
	MsgHealthUpdated
	MsgCheckDone
	MsgAlertAcked
)

// stateUpdatedMsg is the constructor for [MsgStateUpdated]
func stateUpdatedMsg(state models.ConnectionState) Msg {
	return Msg{kind: MsgStateUpdated, data: state}
}

// healthUpdatedMsg is the constructor for [MsgHealthUpdated]
func healthUpdatedMsg(metrics models.HealthMetrics, alerts []models.Alert) Msg {
	return Msg{
		kind: MsgHealthUpdated,
		data: struct {
			metrics models.HealthMetrics
			alerts  []models.Alert
		}{metrics, alerts},
	}
}

// checkDoneMsg is the constructor for [MsgCheckDone]
func checkDoneMsg(err error) Msg {
	return Msg{kind: MsgCheckDone, data: err}
}

// alertAckedMsg is the constructor for [MsgAlertAcked]
func alertAckedMsg(err error) Msg {
	return Msg{kind: MsgAlertAcked, data: err}
}
