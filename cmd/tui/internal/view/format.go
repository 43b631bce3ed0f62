package view

import (
	"context"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/factura/internal/invoice"
)

const (
	dbTimeout = 5 * time.Second
	// pipelineTimeout covers one full retry run against DIAN.
	pipelineTimeout = 2 * time.Minute
)

var bogota = mustLocation("America/Bogota")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("COT", -5*60*60)
	}

	return loc
}

// FormatAmount renders a monetary amount with two decimals and its currency.
func FormatAmount(d decimal.Decimal, currency string) string {
	return d.StringFixed(2) + " " + currency
}

// FormatDate formats a time.Time into YYYY-MM-DD in Colombian time.
func FormatDate(t time.Time) string {
	return t.In(bogota).Format("2006-01-02")
}

// FormatStatus colours an invoice status for tables and panels.
func FormatStatus(s invoice.Status) string {
	color := "240"

	switch s {
	case invoice.StatusAccepted:
		color = "46"
	case invoice.StatusRejected:
		color = "196"
	case invoice.StatusTransportFailed:
		color = "214"
	case invoice.StatusVoided:
		color = "244"
	case invoice.StatusCoded, invoice.StatusSigned, invoice.StatusSubmitting:
		color = "39"
	}

	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(string(s))
}

// DbCtx returns a context with a standard timeout for database operations.
func DbCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), dbTimeout)
}

// PipelineCtx returns a context for calls that may reach DIAN.
func PipelineCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), pipelineTimeout)
}
