package view

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/factura/internal/einvoice"
)

// View is the interface that all TUI screens implement.
type View interface {
	tea.Model
	Title() string
	ShortHelp() string
}

// Pipeline is the part of einvoice.Service the screens drive.
type Pipeline interface {
	Send(ctx context.Context, id uuid.UUID) (einvoice.Outcome, error)
	Resubmit(ctx context.Context, id uuid.UUID) (einvoice.Outcome, error)
	CheckStatus(ctx context.Context, id uuid.UUID) (einvoice.Outcome, error)
	Void(ctx context.Context, id uuid.UUID, reason string) (einvoice.Outcome, error)
}

type CommonModel struct {
	Width  int
	Height int
}

type BackMsg struct{}

func Back() tea.Msg {
	return BackMsg{}
}

var (
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	panelStyle = lipgloss.NewStyle().
			Padding(1, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63"))
)

func activeStyle(s string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Render(s)
}
