package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/gwherrett/mako-sync-ai-sub002/internal/models"
)

var (
	_ list.Item = alertItem{}
)

// alertItem wraps [models.Alert] to implement [list.Item].
type alertItem struct {
	alert models.Alert
}

func (i alertItem) FilterValue() string { return string(i.alert.Type) }
func (i alertItem) Title() string {
	return fmt.Sprintf("[%s] %s", i.alert.Severity, i.alert.Type)
}
func (i alertItem) Description() string {
	return fmt.Sprintf("%s • %s", i.alert.Timestamp.Format("15:04:05"), i.alert.Message)
}
