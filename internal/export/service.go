package export

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/MrJamesThe3rd/factura/internal/invoice"
)

// Item represents a single exported invoice with the files written for it.
type Item struct {
	Invoice *invoice.Invoice
	XMLPath string
	PDFPath string
}

// Renderer produces the PDF of an accepted invoice whose stored rendering is missing.
type Renderer interface {
	Render(inv *invoice.Invoice) ([]byte, error)
}

// Service handles the export of accepted invoices.
type Service struct {
	invoices *invoice.Service
	renderer Renderer
	printer  *message.Printer
}

// NewService creates a new export Service. renderer may be nil, in which case invoices
// without a stored PDF are exported with their XML only.
func NewService(invoices *invoice.Service, renderer Renderer) *Service {
	return &Service{
		invoices: invoices,
		renderer: renderer,
		printer:  message.NewPrinter(language.MustParse("es-CO")),
	}
}

// Export writes the signed document and PDF of every accepted invoice matching the filter
// to the output directory. The status in filter is always forced to accepted.
func (s *Service) Export(ctx context.Context, filter invoice.ListFilter, outputDir string) ([]Item, error) {
	filter.Status = new(invoice.StatusAccepted)

	headers, err := s.invoices.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	items := make([]Item, 0, len(headers))

	for _, h := range headers {
		inv, err := s.invoices.Get(ctx, h.ID)
		if err != nil {
			return nil, fmt.Errorf("loading invoice %s: %w", h.ID, err)
		}

		item := Item{Invoice: inv}
		base := filepath.Join(outputDir, filename(inv))

		if len(inv.SignedDocument) > 0 {
			item.XMLPath = base + ".xml"
			if err := os.WriteFile(item.XMLPath, inv.SignedDocument, 0o644); err != nil {
				return nil, fmt.Errorf("writing document of %s: %w", inv.Number, err)
			}
		}

		pdf := inv.PDF
		if len(pdf) == 0 && s.renderer != nil {
			pdf, err = s.renderer.Render(inv)
			if err != nil {
				slog.Warn("rendering pdf for export", "invoice_id", inv.ID, "error", err)
			}
		}

		if len(pdf) > 0 {
			item.PDFPath = base + ".pdf"
			if err := os.WriteFile(item.PDFPath, pdf, 0o644); err != nil {
				return nil, fmt.Errorf("writing pdf of %s: %w", inv.Number, err)
			}
		}

		items = append(items, item)
	}

	return items, nil
}

func filename(inv *invoice.Invoice) string {
	name := inv.Number
	if name == "" {
		name = inv.ID.String()
	}

	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}

		return '_'
	}, name)
}

// Summary creates a plain-text listing of the exported items, one invoice per line.
func (s *Service) Summary(items []Item) string {
	var sb strings.Builder

	for _, item := range items {
		inv := item.Invoice

		files := "Sin archivos"
		if item.XMLPath != "" || item.PDFPath != "" {
			var names []string
			for _, p := range []string{item.XMLPath, item.PDFPath} {
				if p != "" {
					names = append(names, filepath.Base(p))
				}
			}

			files = strings.Join(names, ", ")
		}

		sb.WriteString(s.printer.Sprintf("* %s | %s | %s | $ %.2f %s | %s\n",
			inv.IssuedAt.In(invoice.Bogota).Format("2006-01-02"),
			inv.Number,
			inv.Customer.LegalName,
			inv.Totals.Payable.InexactFloat64(),
			inv.Currency,
			files,
		))
	}

	return sb.String()
}

// SummaryFile is the name of the summary entry written by Archive.
const SummaryFile = "resumen.txt"

// ArchiveName is the file name of an archive produced at t.
func ArchiveName(t time.Time) string {
	return fmt.Sprintf("facturas_%s.zip", t.In(invoice.Bogota).Format("20060102"))
}

// Archive writes a zip holding the files of every item plus the summary.
func (s *Service) Archive(w io.Writer, items []Item) error {
	zw := zip.NewWriter(w)

	for _, item := range items {
		for _, path := range []string{item.XMLPath, item.PDFPath} {
			if path == "" {
				continue
			}

			if err := addFile(zw, path); err != nil {
				return fmt.Errorf("archiving %s: %w", filepath.Base(path), err)
			}
		}
	}

	sw, err := zw.Create(SummaryFile)
	if err != nil {
		return fmt.Errorf("archiving summary: %w", err)
	}

	if _, err := io.WriteString(sw, s.Summary(items)); err != nil {
		return fmt.Errorf("archiving summary: %w", err)
	}

	return zw.Close()
}

func addFile(zw *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zf, err := zw.Create(filepath.Base(path))
	if err != nil {
		return err
	}

	_, err = io.Copy(zf, f)

	return err
}
