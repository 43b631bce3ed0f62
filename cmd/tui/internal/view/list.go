package view

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/factura/internal/authority"
	"github.com/MrJamesThe3rd/factura/internal/einvoice"
	"github.com/MrJamesThe3rd/factura/internal/invoice"
	"github.com/MrJamesThe3rd/factura/internal/signer"
)

type listState int

const (
	listStateBrowse listState = iota
	listStateConfirm
	listStateVoid
	listStateWorking
	listStateAttempts
)

type action string

const (
	actionSend     action = "Send"
	actionResubmit action = "Resubmit"
	actionCheck    action = "Check status"
	actionVoid     action = "Void"
)

var statusFilters = []*invoice.Status{
	nil,
	new(invoice.StatusDraft),
	new(invoice.StatusRejected),
	new(invoice.StatusTransportFailed),
	new(invoice.StatusAccepted),
	new(invoice.StatusVoided),
}

var dateFilters = []Timeframe{TimeframeAll, TimeframeThisMonth, TimeframeLastMonth, TimeframeBimester}

type ListModel struct {
	CommonModel
	invoices *invoice.Service
	pipeline Pipeline

	state   listState
	table   table.Model
	spinner spinner.Model
	form    *huh.Form
	rows    []*invoice.Invoice

	statusFilterIdx int
	dateFilterIdx   int
	filter          invoice.ListFilter

	pending  action
	target   *invoice.Invoice
	attempts []*invoice.SubmissionAttempt

	loading bool
	err     error
	status  string
}

func NewListModel(invoices *invoice.Service, pipeline Pipeline) ListModel {
	columns := []table.Column{
		{Title: "Issued", Width: 12},
		{Title: "Number", Width: 16},
		{Title: "Status", Width: 17},
		{Title: "Customer", Width: 30},
		{Title: "Payable", Width: 18},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return ListModel{
		invoices: invoices,
		pipeline: pipeline,
		table:    t,
		spinner:  sp,
		loading:  true,
	}
}

func (m ListModel) Title() string { return "Invoices" }

func (m ListModel) ShortHelp() string {
	switch m.state {
	case listStateConfirm, listStateVoid:
		return "Navigate form | Esc: cancel"
	case listStateWorking:
		return "Waiting for DIAN..."
	case listStateAttempts:
		return "Esc: close"
	}

	return "Esc: back | Enter: send | u: resubmit | c: check | v: void | a: attempts | f: status | d: dates | r: refresh"
}

func (m ListModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m ListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadListMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.rows = msg.invoices
			m.refreshTable()
		}
		return m, nil

	case pipelineResultMsg:
		m.state = listStateBrowse
		m.status = describeResult(msg.action, msg.outcome, msg.err)
		m.table.Focus()
		return m, m.loadCmd()

	case attemptsMsg:
		if msg.err != nil {
			m.state = listStateBrowse
			m.status = fmt.Sprintf("Error loading attempts: %v", msg.err)
			return m, nil
		}
		m.attempts = msg.attempts
		m.state = listStateAttempts
		return m, nil

	case tea.WindowSizeMsg:
		m.Width, m.Height = msg.Width, msg.Height
		m.table.SetHeight(msg.Height - 10)
		return m, nil
	}

	switch m.state {
	case listStateBrowse:
		return m.updateBrowse(msg)
	case listStateConfirm, listStateVoid:
		return m.updateForm(msg)
	case listStateWorking:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case listStateAttempts:
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
			m.state = listStateBrowse
			m.attempts = nil
			m.table.Focus()
		}
		return m, nil
	}

	return m, nil
}

func (m ListModel) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "r":
			m.loading = true
			return m, m.loadCmd()
		case "f":
			m.statusFilterIdx = (m.statusFilterIdx + 1) % len(statusFilters)
			m.applyFilter()
			return m, m.loadCmd()
		case "d":
			m.dateFilterIdx = (m.dateFilterIdx + 1) % len(dateFilters)
			m.applyFilter()
			return m, m.loadCmd()
		case "enter":
			return m.confirm(actionSend)
		case "u":
			return m.confirm(actionResubmit)
		case "c":
			return m.confirm(actionCheck)
		case "v":
			return m.enterVoid()
		case "a":
			if inv := m.selected(); inv != nil {
				return m, m.attemptsCmd(inv.ID)
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m ListModel) selected() *invoice.Invoice {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.rows) {
		return nil
	}

	return m.rows[idx]
}

func (m ListModel) confirm(a action) (tea.Model, tea.Cmd) {
	inv := m.selected()
	if inv == nil {
		return m, nil
	}

	m.pending = a
	m.target = inv
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("%s %s?", a, inv.Number)).
				Description(fmt.Sprintf("%s | %s", inv.Customer.LegalName, FormatAmount(inv.Totals.Payable, inv.Currency))).
				Key("confirm").
				Affirmative("Yes").
				Negative("No"),
		),
	).WithWidth(45).WithShowHelp(false)

	m.state = listStateConfirm
	m.table.Blur()
	return m, m.form.Init()
}

func (m ListModel) enterVoid() (tea.Model, tea.Cmd) {
	inv := m.selected()
	if inv == nil {
		return m, nil
	}

	m.pending = actionVoid
	m.target = inv
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewText().
				Key("reason").
				Title("Reason").
				Description("Recorded with the invoice; accepted invoices need a credit note instead").
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("reason cannot be empty")
					}
					return nil
				}),

			huh.NewConfirm().
				Title(fmt.Sprintf("Void %s?", inv.Number)).
				Key("confirm").
				Affirmative("Void").
				Negative("Cancel"),
		),
	).WithWidth(45).WithShowHelp(false)

	m.state = listStateVoid
	m.table.Blur()
	return m, m.form.Init()
}

func (m ListModel) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		if keyMsg.Type == tea.KeyEsc {
			return m.cancelForm(), nil
		}
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	if !m.form.GetBool("confirm") {
		return m.cancelForm(), nil
	}

	reason := strings.TrimSpace(m.form.GetString("reason"))

	m.state = listStateWorking
	m.status = ""
	return m, tea.Batch(m.spinner.Tick, m.runCmd(m.pending, m.target.ID, reason))
}

func (m ListModel) cancelForm() ListModel {
	m.state = listStateBrowse
	m.form = nil
	m.target = nil
	m.table.Focus()
	return m
}

func (m ListModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading invoices...")
	}

	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}

	statusLabel := "All"
	if st := statusFilters[m.statusFilterIdx]; st != nil {
		statusLabel = string(*st)
	}

	header := fmt.Sprintf(
		"Filter: [f] Status: %s | [d] Issued: %s | %d invoices",
		activeStyle(statusLabel),
		activeStyle(dateFilters[m.dateFilterIdx].String()),
		len(m.rows),
	)

	tableView := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Render(m.table.View())

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		tableView,
	)

	var panel string

	switch m.state {
	case listStateConfirm, listStateVoid:
		panel = panelStyle.Width(48).Render(fmt.Sprintf("%s\n\n%s", m.detail(m.target), m.form.View()))
	case listStateWorking:
		panel = panelStyle.Width(48).Render(fmt.Sprintf("%s %s %s...", m.spinner.View(), m.pending, m.target.Number))
	case listStateAttempts:
		panel = panelStyle.Width(60).Render(m.attemptsView())
	}

	if panel != "" {
		content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel)
	}

	if m.status != "" {
		content = lipgloss.NewStyle().Faint(true).Render(m.status) + "\n" + content
	}

	return lipgloss.NewStyle().Padding(1).Render(content)
}

func (m ListModel) detail(inv *invoice.Invoice) string {
	lines := []string{
		lipgloss.NewStyle().Bold(true).Render(inv.Number) + "  " + FormatStatus(inv.Status),
		"Customer: " + inv.Customer.LegalName,
		"Payable:  " + FormatAmount(inv.Totals.Payable, inv.Currency),
	}

	if len(inv.Code) > 16 {
		lines = append(lines, "CUFE:     "+inv.Code[:16]+"...")
	}

	return strings.Join(lines, "\n")
}

func (m ListModel) attemptsView() string {
	if len(m.attempts) == 0 {
		return "No submissions yet."
	}

	var b strings.Builder

	b.WriteString(lipgloss.NewStyle().Bold(true).Render("Submission attempts"))
	b.WriteString("\n")

	for _, a := range m.attempts {
		fmt.Fprintf(&b, "\n#%d %s  %s", a.Sequence, a.StartedAt.In(bogota).Format("2006-01-02 15:04:05"), a.Outcome)

		if a.StatusCode != "" {
			fmt.Fprintf(&b, " (%s)", a.StatusCode)
		}

		for _, e := range a.Errors {
			fmt.Fprintf(&b, "\n   %s %s", e.Code, e.Message)
		}

		if a.Cause != "" {
			fmt.Fprintf(&b, "\n   %s", errorStyle.Render(a.Cause))
		}
	}

	return b.String()
}

func (m *ListModel) applyFilter() {
	m.filter.Status = statusFilters[m.statusFilterIdx]

	tf := dateFilters[m.dateFilterIdx]
	if tf == TimeframeAll {
		m.filter.StartDate = nil
		m.filter.EndDate = nil
		return
	}

	start, end := dateRange(tf, time.Now())
	m.filter.StartDate = &start
	m.filter.EndDate = &end
}

func (m *ListModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.rows))
	for _, inv := range m.rows {
		rows = append(rows, table.Row{
			FormatDate(inv.IssuedAt),
			inv.Number,
			string(inv.Status),
			inv.Customer.LegalName,
			FormatAmount(inv.Totals.Payable, inv.Currency),
		})
	}
	m.table.SetRows(rows)
}

// describeResult is the one-line status shown after a pipeline call.
func describeResult(a action, out einvoice.Outcome, err error) string {
	var (
		rejection *authority.RejectionError
		transport *authority.TransportError
		certErr   *signer.CertificateError
	)

	switch {
	case err == nil:
		return fmt.Sprintf("%s: invoice is %s", a, out.Status)
	case errors.As(err, &rejection):
		codes := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			codes = append(codes, e.Code)
		}
		return fmt.Sprintf("%s: rejected by DIAN [%s]", a, strings.Join(codes, ", "))
	case errors.As(err, &transport):
		return fmt.Sprintf("%s: DIAN unreachable, resubmit later (%v)", a, err)
	case errors.As(err, &certErr):
		return fmt.Sprintf("%s: signing certificate problem: %v", a, err)
	case errors.Is(err, einvoice.ErrUnsettled):
		return fmt.Sprintf("%s: DIAN has not settled the previous submission, check status first", a)
	}

	return fmt.Sprintf("%s failed: %v", a, err)
}

// Messages

type loadListMsg struct {
	invoices []*invoice.Invoice
	err      error
}

func (m ListModel) loadCmd() tea.Cmd {
	filter := m.filter

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		invoices, err := m.invoices.List(ctx, filter)
		return loadListMsg{invoices: invoices, err: err}
	}
}

type pipelineResultMsg struct {
	action  action
	outcome einvoice.Outcome
	err     error
}

func (m ListModel) runCmd(a action, id uuid.UUID, reason string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := PipelineCtx()
		defer cancel()

		var (
			out einvoice.Outcome
			err error
		)

		switch a {
		case actionSend:
			out, err = m.pipeline.Send(ctx, id)
		case actionResubmit:
			out, err = m.pipeline.Resubmit(ctx, id)
		case actionCheck:
			out, err = m.pipeline.CheckStatus(ctx, id)
		case actionVoid:
			out, err = m.pipeline.Void(ctx, id, reason)
		}

		return pipelineResultMsg{action: a, outcome: out, err: err}
	}
}

type attemptsMsg struct {
	attempts []*invoice.SubmissionAttempt
	err      error
}

func (m ListModel) attemptsCmd(id uuid.UUID) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		attempts, err := m.invoices.Attempts(ctx, id)
		return attemptsMsg{attempts: attempts, err: err}
	}
}
