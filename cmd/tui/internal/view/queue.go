package view

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/factura/internal/invoice"
)

// QueueModel walks the drafts and failed transmissions one at a time, oldest first.
type QueueModel struct {
	CommonModel
	invoices *invoice.Service
	pipeline Pipeline

	queue   []*invoice.Invoice
	current *invoice.Invoice
	spinner spinner.Model

	loading    bool
	working    bool
	status     string
	sent       int
	skipped    int
	totalCount int
}

func NewQueueModel(invoices *invoice.Service, pipeline Pipeline) QueueModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return QueueModel{
		invoices: invoices,
		pipeline: pipeline,
		spinner:  s,
		loading:  true,
	}
}

func (m QueueModel) Title() string { return "Send Queue" }

func (m QueueModel) ShortHelp() string {
	return "Enter: send | s: skip | Esc: back"
}

func (m QueueModel) Init() tea.Cmd {
	return m.loadPendingCmd()
}

func (m QueueModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.working {
			return m, nil
		}

		switch msg.String() {
		case "esc":
			return m, Back
		case "enter":
			if m.current != nil {
				m.working = true
				m.status = ""
				return m, tea.Batch(m.spinner.Tick, m.sendCmd())
			}
		case "s":
			if m.current != nil {
				m.skipped++
				m.next()
			}
		}

	case loadPendingMsg:
		m.loading = false
		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
			return m, nil
		}

		m.queue = msg.invoices
		m.totalCount = len(m.queue)
		m.next()

	case pipelineResultMsg:
		m.working = false
		m.status = describeResult(msg.action, msg.outcome, msg.err)
		if msg.err == nil {
			m.sent++
		}
		m.next()

	default:
		if m.working {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
	}

	return m, nil
}

func (m QueueModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading pending invoices...")
	}

	status := ""
	if m.status != "" {
		status = lipgloss.NewStyle().Faint(true).Render(m.status) + "\n\n"
	}

	if m.current == nil {
		if m.totalCount == 0 {
			return lipgloss.NewStyle().Padding(2).Render(status + "Nothing waiting to be sent.\n\n(Esc to back)")
		}

		return lipgloss.NewStyle().Padding(2).Render(
			fmt.Sprintf("%sQueue done: %d sent, %d skipped.\n\n(Esc to back)", status, m.sent, m.skipped),
		)
	}

	inv := m.current

	var items strings.Builder
	for _, it := range inv.Items {
		fmt.Fprintf(&items, "  %s x %s  %s\n", it.Quantity.String(), it.Description, it.Total.StringFixed(2))
	}

	info := fmt.Sprintf(
		"%s  %s\nIssued:   %s\nCustomer: %s (%s)\n\n%s\nPayable:  %s\n",
		lipgloss.NewStyle().Bold(true).Render(inv.Number),
		FormatStatus(inv.Status),
		FormatDate(inv.IssuedAt),
		inv.Customer.LegalName,
		inv.Customer.TaxID,
		items.String(),
		FormatAmount(inv.Totals.Payable, inv.Currency),
	)

	footer := "(Enter to send to DIAN, 's' to skip, Esc to back)"
	if m.working {
		footer = m.spinner.View() + " Sending..."
	}

	return lipgloss.NewStyle().Padding(2).Render(
		fmt.Sprintf("%sPending (%d remaining)\n\n%s\n%s", status, len(m.queue)+1, info, footer),
	)
}

func (m *QueueModel) next() {
	if len(m.queue) == 0 {
		m.current = nil
		return
	}

	m.current = m.queue[0]
	m.queue = m.queue[1:]
}

type loadPendingMsg struct {
	invoices []*invoice.Invoice
	err      error
}

func (m QueueModel) loadPendingCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		var pending []*invoice.Invoice

		for _, st := range []invoice.Status{invoice.StatusDraft, invoice.StatusTransportFailed} {
			headers, err := m.invoices.List(ctx, invoice.ListFilter{Status: new(st)})
			if err != nil {
				return loadPendingMsg{err: err}
			}

			// List is newest first and returns headers only.
			slices.Reverse(headers)

			for _, h := range headers {
				inv, err := m.invoices.Get(ctx, h.ID)
				if err != nil {
					return loadPendingMsg{err: err}
				}
				pending = append(pending, inv)
			}
		}

		return loadPendingMsg{invoices: pending}
	}
}

func (m QueueModel) sendCmd() tea.Cmd {
	inv := m.current

	return func() tea.Msg {
		ctx, cancel := PipelineCtx()
		defer cancel()

		if inv.Status == invoice.StatusTransportFailed {
			out, err := m.pipeline.Resubmit(ctx, inv.ID)
			return pipelineResultMsg{action: actionResubmit, outcome: out, err: err}
		}

		out, err := m.pipeline.Send(ctx, inv.ID)
		return pipelineResultMsg{action: actionSend, outcome: out, err: err}
	}
}
