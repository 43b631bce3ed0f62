package view

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/factura/internal/export"
	"github.com/MrJamesThe3rd/factura/internal/invoice"
)

const exportTimeout = 5 * time.Minute

type exportStep int

const (
	exportStepDates exportStep = iota
	exportStepOptions
	exportStepRunning
	exportStepDone
)

// ExportModel writes the accepted invoices of a date range to disk, optionally bundled in a zip.
type ExportModel struct {
	CommonModel
	exportService *export.Service

	step    exportStep
	picker  TimeframePicker
	form    *huh.Form
	spinner spinner.Model

	filter invoice.ListFilter
	dir    string
	bundle bool

	result exportResultMsg
}

func NewExportModel(svc *export.Service) ExportModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return ExportModel{
		exportService: svc,
		picker:        NewTimeframePicker(TimeframeLastMonth),
		spinner:       s,
		dir:           "./facturas",
	}
}

func (m ExportModel) Title() string { return "Export Accepted Invoices" }

func (m ExportModel) ShortHelp() string {
	switch m.step {
	case exportStepRunning:
		return "Exporting..."
	case exportStepDone:
		return "Esc: back to menu"
	}

	return "Esc: back | Enter: confirm"
}

func (m ExportModel) Init() tea.Cmd {
	return nil
}

func (m ExportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case TimeframeSelectedMsg:
		m.filter = invoice.ListFilter{}
		if !msg.All {
			m.filter.StartDate = &msg.Start
			m.filter.EndDate = &msg.End
		}

		m.form = m.optionsForm()
		m.step = exportStepOptions
		return m, m.form.Init()

	case exportResultMsg:
		m.result = msg
		m.step = exportStepDone
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyEsc {
			switch {
			case m.step == exportStepDates && m.picker.IsSelecting(), m.step == exportStepDone:
				return m, Back
			case m.step == exportStepOptions:
				m.step = exportStepDates
				m.picker.Reset()
				return m, nil
			}
		}
	}

	var cmd tea.Cmd

	switch m.step {
	case exportStepDates:
		m.picker, cmd = m.picker.Update(msg)
	case exportStepOptions:
		return m.updateOptions(msg)
	case exportStepRunning:
		m.spinner, cmd = m.spinner.Update(msg)
	}

	return m, cmd
}

func (m ExportModel) optionsForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("dir").
				Title("Output directory").
				Description("Signed XML and PDF per invoice; created if missing").
				Placeholder(m.dir).
				Value(&m.dir).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("directory cannot be empty")
					}
					return nil
				}),

			huh.NewConfirm().
				Key("bundle").
				Title("Also write a zip for the accountant?").
				Affirmative("Yes").
				Negative("No"),
		),
	).WithWidth(55).WithShowHelp(false)
}

func (m ExportModel) updateOptions(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	m.dir = strings.TrimSpace(m.form.GetString("dir"))
	m.bundle = m.form.GetBool("bundle")
	m.step = exportStepRunning

	return m, tea.Batch(m.spinner.Tick, m.exportCmd())
}

func (m ExportModel) View() string {
	style := lipgloss.NewStyle().Padding(1)

	switch m.step {
	case exportStepDates:
		return style.Render(m.picker.View())
	case exportStepOptions:
		return style.Render(m.form.View())
	case exportStepRunning:
		return style.Render(fmt.Sprintf("%s Writing invoices to %s...", m.spinner.View(), m.dir))
	case exportStepDone:
		return style.Render(m.resultView())
	}

	return ""
}

func (m ExportModel) resultView() string {
	if m.result.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", m.result.err))
	}

	if len(m.result.items) == 0 {
		return "No accepted invoices in that range."
	}

	var missingPDF int

	for _, item := range m.result.items {
		if item.PDFPath == "" {
			missingPDF++
		}
	}

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("46")).
		Render(fmt.Sprintf("Exported %d invoices to %s", len(m.result.items), m.dir))

	lines := []string{header, ""}

	if m.result.archive != "" {
		lines = append(lines, "Archive: "+m.result.archive, "")
	}

	if missingPDF > 0 {
		lines = append(lines, errorStyle.Render(fmt.Sprintf("%d invoices exported without PDF", missingPDF)), "")
	}

	lines = append(lines, m.result.summary)

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

type exportResultMsg struct {
	items   []export.Item
	summary string
	archive string
	err     error
}

func (m ExportModel) exportCmd() tea.Cmd {
	filter, dir, bundle := m.filter, m.dir, m.bundle

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
		defer cancel()

		items, err := m.exportService.Export(ctx, filter, dir)
		if err != nil {
			return exportResultMsg{err: err}
		}

		res := exportResultMsg{items: items, summary: m.exportService.Summary(items)}

		if err := os.WriteFile(filepath.Join(dir, export.SummaryFile), []byte(res.summary), 0o644); err != nil {
			return exportResultMsg{err: fmt.Errorf("writing summary: %w", err)}
		}

		if bundle && len(items) > 0 {
			res.archive, err = m.writeArchive(dir, items)
			if err != nil {
				return exportResultMsg{err: err}
			}
		}

		return res
	}
}

func (m ExportModel) writeArchive(dir string, items []export.Item) (string, error) {
	path := filepath.Join(dir, export.ArchiveName(time.Now()))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating archive: %w", err)
	}

	if err := m.exportService.Archive(f, items); err != nil {
		f.Close()
		return "", err
	}

	return path, f.Close()
}
