package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/gwherrett/mako-sync-ai-sub002/internal/lifecycle"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/models"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/shared"
)

// healthPollInterval is how often the dashboard re-reads monitor metrics.
const healthPollInterval = 5 * time.Second

// ViewState represents the current view in the TUI.
type ViewState int

const (
	DashboardView ViewState = iota
	AlertsView
)

// Model represents the TUI application state.
//
// It observes the lifecycle manager through an adapter, so redraws happen
// only on observable state changes.
type Model struct {
	ctx     context.Context
	manager *lifecycle.Manager
	adapter *lifecycle.Adapter

	view      ViewState
	stateChan chan models.ConnectionState
	state     models.ConnectionState
	metrics   models.HealthMetrics
	alerts    []models.Alert
	alertList list.Model
	checking  bool
	width     int
	height    int
	err       error
	help      help.Model
	keys      keyMap
}

// NewModel creates a new TUI model observing the given manager.
func NewModel(ctx context.Context, manager *lifecycle.Manager) *Model {
	m := &Model{
		ctx:       ctx,
		manager:   manager,
		view:      DashboardView,
		stateChan: make(chan models.ConnectionState, 16),
		help:      help.New(),
		keys:      newKeyMap(),
	}
	m.adapter = lifecycle.NewAdapter(manager, func(state models.ConnectionState) {
		select {
		case m.stateChan <- state:
		default:
		}
	})
	m.alertList = list.New(nil, list.NewDefaultDelegate(), 0, 0)
	m.alertList.Title = "Active Alerts"
	return m
}

// Init attaches to the manager and starts the update loops.
func (m *Model) Init() tea.Cmd {
	m.adapter.Attach(m.ctx)
	return tea.Batch(m.waitForState(), m.pollHealth())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.alertList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case DashboardView:
			return m.handleDashboardKeys(msg)
		case AlertsView:
			return m.handleAlertsKeys(msg)
		}

	case Msg:
		return m.handleAppMsg(msg)
	}

	return m, nil
}

func (m *Model) handleAppMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgStateUpdated:
		m.state = msg.data.(models.ConnectionState)
		return m, m.waitForState()

	case MsgHealthUpdated:
		data := msg.data.(struct {
			metrics models.HealthMetrics
			alerts  []models.Alert
		})
		m.metrics = data.metrics
		m.alerts = data.alerts
		m.syncAlertList()
		return m, m.pollHealth()

	case MsgCheckDone:
		m.checking = false
		if err, ok := msg.data.(error); ok {
			m.err = err
		} else {
			m.err = nil
		}
		return m, nil

	case MsgAlertAcked:
		if err, ok := msg.data.(error); ok {
			m.err = err
			return m, nil
		}
		m.alerts = m.manager.Monitor().ActiveAlerts()
		m.syncAlertList()
		return m, nil
	}

	return m, nil
}

func (m *Model) handleDashboardKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.adapter.Detach()
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		if m.checking {
			return m, nil
		}
		m.checking = true
		return m, m.forceCheck()
	case key.Matches(msg, m.keys.alerts):
		m.view = AlertsView
		m.syncAlertList()
		return m, nil
	}
	return m, nil
}

func (m *Model) handleAlertsKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.adapter.Detach()
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = DashboardView
		return m, nil
	case key.Matches(msg, m.keys.ack):
		selected := m.alertList.SelectedItem()
		if item, ok := selected.(alertItem); ok {
			return m, m.acknowledge(item.alert.ID)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.alertList, cmd = m.alertList.Update(msg)
	return m, cmd
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case DashboardView:
		return m.renderDashboard()
	case AlertsView:
		return m.renderAlerts()
	default:
		return ""
	}
}

func (m *Model) renderDashboard() string {
	title := styles.title.Render("Mako Sync — Spotify Connection")

	var status string
	switch {
	case m.state.Loading || m.checking:
		status = styles.warn.Render("● checking...")
	case m.state.Connected:
		status = styles.ok.Render("● connected")
	default:
		status = styles.err.Render("● not connected")
	}

	body := status + "\n"
	if conn := m.state.Connection; conn != nil {
		account := conn.DisplayName()
		if account == "" {
			account = conn.SpotifyUserID()
		}
		body += fmt.Sprintf("Account: %s\n", account)
		if until := time.Until(conn.ExpiresAt()); until > 0 {
			body += fmt.Sprintf("Token expires in: %s\n", shared.FormatDuration(until))
		} else {
			body += styles.warn.Render("Token expired") + "\n"
		}
	}

	body += fmt.Sprintf("Health: %s  Uptime: %.1f%%\n", m.metrics.Status, m.metrics.Uptime)
	if m.metrics.ConsecutiveFailures > 0 {
		body += styles.warn.Render(fmt.Sprintf("Consecutive failures: %d", m.metrics.ConsecutiveFailures)) + "\n"
	}
	if len(m.alerts) > 0 {
		body += styles.warn.Render(fmt.Sprintf("%d active alert(s) — press a", len(m.alerts))) + "\n"
	}
	if m.state.Err != "" {
		body += styles.err.Render(m.state.Err) + "\n"
	}
	if m.err != nil {
		body += styles.err.Render(m.err.Error()) + "\n"
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.refresh, m.keys.alerts, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n%s", title, body, helpView)
}

func (m *Model) renderAlerts() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.ack, m.keys.back, m.keys.quit})
	return fmt.Sprintf("%s\n\n%s", m.alertList.View(), helpView)
}

func (m *Model) syncAlertList() {
	items := make([]list.Item, len(m.alerts))
	for i, alert := range m.alerts {
		items[i] = alertItem{alert: alert}
	}
	m.alertList.SetItems(items)
}

func (m *Model) waitForState() tea.Cmd {
	return func() tea.Msg {
		select {
		case state := <-m.stateChan:
			return stateUpdatedMsg(state)
		case <-m.ctx.Done():
			return tea.Quit()
		}
	}
}

func (m *Model) pollHealth() tea.Cmd {
	return tea.Tick(healthPollInterval, func(time.Time) tea.Msg {
		return healthUpdatedMsg(m.manager.Monitor().Metrics(), m.manager.Monitor().ActiveAlerts())
	})
}

func (m *Model) forceCheck() tea.Cmd {
	return func() tea.Msg {
		_, err := m.manager.CheckConnection(m.ctx, true)
		return checkDoneMsg(err)
	}
}

func (m *Model) acknowledge(id string) tea.Cmd {
	return func() tea.Msg {
		return alertAckedMsg(m.manager.Monitor().Acknowledge(id))
	}
}
