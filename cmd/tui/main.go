package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/factura/cmd/tui/internal/view"
	"github.com/MrJamesThe3rd/factura/internal/authority"
	"github.com/MrJamesThe3rd/factura/internal/config"
	"github.com/MrJamesThe3rd/factura/internal/credential"
	credentialStore "github.com/MrJamesThe3rd/factura/internal/credential/store"
	"github.com/MrJamesThe3rd/factura/internal/database"
	"github.com/MrJamesThe3rd/factura/internal/einvoice"
	"github.com/MrJamesThe3rd/factura/internal/export"
	"github.com/MrJamesThe3rd/factura/internal/invoice"
	invoiceStore "github.com/MrJamesThe3rd/factura/internal/invoice/store"
	"github.com/MrJamesThe3rd/factura/internal/render"
	"github.com/MrJamesThe3rd/factura/internal/signer"
)

type model struct {
	invoiceService *invoice.Service
	pipeline       *einvoice.Service
	exportService  *export.Service

	currentView View

	listView   view.ListModel
	queueView  view.QueueModel
	exportView view.ExportModel
}

type View int

const (
	ViewMenu   View = 0
	ViewList   View = 1
	ViewQueue  View = 2
	ViewExport View = 3
)

func initialModel(db *sql.DB, cfg *config.Config) (model, error) {
	catalog, err := authority.LoadCatalog(cfg.Authority.Catalog)
	if err != nil {
		return model{}, err
	}

	limits, err := cfg.Limits()
	if err != nil {
		return model{}, err
	}

	invoices := invoiceStore.New(db)
	cache := credential.NewCache(credentialStore.New(db))

	client := authority.NewClient(authority.ClientConfig{
		URL:              cfg.AuthorityURL(),
		RateLimit:        cfg.Authority.RateLimit,
		Burst:            cfg.Authority.Burst,
		BreakerFailures:  cfg.Authority.BreakerFailures,
		BreakerOpenFor:   cfg.Authority.BreakerOpenFor,
		TestPollInterval: cfg.Authority.PollInterval,
	}, catalog, authority.WithHTTPClient(&http.Client{Timeout: cfg.Authority.RequestTimeout}))

	// Single operator process; dedupe stays in memory.
	submitter := authority.NewSubmitter(client, invoices, authority.NewMemoryDedupe(cfg.Redis.TTL), cfg.RetryPolicy())

	opts := []einvoice.Option{
		einvoice.WithLimits(limits),
		einvoice.WithSigner(signer.New()),
		einvoice.WithLocker(einvoice.Chain(einvoice.NewKeyedLocker(), einvoice.LockerFunc(invoices.LockInvoice))),
	}

	var renderer export.Renderer
	if cfg.Render.Enabled {
		r := render.New()
		renderer = r
		opts = append(opts, einvoice.WithRenderer(r))
	}

	invSvc := invoice.NewService(invoices)
	pipeline := einvoice.NewService(invoices, cache, submitter, client, opts...)
	expSvc := export.NewService(invSvc, renderer)

	return model{
		invoiceService: invSvc,
		pipeline:       pipeline,
		exportService:  expSvc,
		currentView:    ViewMenu,
		listView:       view.NewListModel(invSvc, pipeline),
		queueView:      view.NewQueueModel(invSvc, pipeline),
		exportView:     view.NewExportModel(expSvc),
	}, nil
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.currentView == ViewMenu {
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			case "1":
				m.currentView = ViewList
				m.listView = view.NewListModel(m.invoiceService, m.pipeline)

				return m, m.listView.Init()
			case "2":
				m.currentView = ViewQueue
				m.queueView = view.NewQueueModel(m.invoiceService, m.pipeline)

				return m, m.queueView.Init()
			case "3":
				m.currentView = ViewExport
				m.exportView = view.NewExportModel(m.exportService)

				return m, m.exportView.Init()
			}
		}
	case view.BackMsg:
		m.currentView = ViewMenu
		return m, nil
	}

	switch m.currentView {
	case ViewList:
		var newModel tea.Model
		newModel, cmd = m.listView.Update(msg)
		m.listView = newModel.(view.ListModel)
	case ViewQueue:
		var newModel tea.Model
		newModel, cmd = m.queueView.Update(msg)
		m.queueView = newModel.(view.QueueModel)
	case ViewExport:
		var newModel tea.Model
		newModel, cmd = m.exportView.Update(msg)
		m.exportView = newModel.(view.ExportModel)
	}

	return m, cmd
}

func (m model) View() string {
	var current view.View

	switch m.currentView {
	case ViewMenu:
		return lipgloss.NewStyle().Padding(2).Render(
			"Factura\n\n" +
				"1. Invoices\n" +
				"2. Send Queue\n" +
				"3. Export Accepted Invoices\n\n" +
				"q. Quit",
		)
	case ViewList:
		current = m.listView
	case ViewQueue:
		current = m.queueView
	case ViewExport:
		current = m.exportView
	default:
		return "Unknown View"
	}

	help := lipgloss.NewStyle().Faint(true).PaddingLeft(2).Render(current.ShortHelp())
	title := lipgloss.NewStyle().Bold(true).PaddingLeft(2).PaddingTop(1).Render(current.Title())

	return lipgloss.JoinVertical(lipgloss.Left, title, current.View(), help)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.New(ctx, cfg.ConnectionString(), database.Pool{
		MaxOpenConns: cfg.DB.MaxOpenConns,
		MaxIdleConns: cfg.DB.MaxIdleConns,
		ConnLifetime: cfg.DB.ConnLifetime,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	m, err := initialModel(db, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		slog.Error("failed to run TUI", "error", err)
		os.Exit(1)
	}

	m.pipeline.Wait()
}
