// Package render draws the printable representation of an accepted electronic invoice.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/MrJamesThe3rd/factura/internal/document"
	"github.com/MrJamesThe3rd/factura/internal/invoice"
)

var ErrUnsigned = errors.New("invoice has no signed document")

var titles = map[string]string{
	"Invoice":    "FACTURA ELECTRÓNICA DE VENTA",
	"CreditNote": "NOTA CRÉDITO ELECTRÓNICA",
	"DebitNote":  "NOTA DÉBITO ELECTRÓNICA",
}

// Renderer turns the signed document into a PDF. The same document always renders to the same bytes.
type Renderer struct {
	printer *message.Printer
}

func New() *Renderer {
	return &Renderer{printer: message.NewPrinter(language.MustParse("es-CO"))}
}

func (r *Renderer) Render(inv *invoice.Invoice) ([]byte, error) {
	if len(inv.SignedDocument) == 0 {
		return nil, ErrUnsigned
	}

	doc, err := document.Parse(inv.SignedDocument)
	if err != nil {
		return nil, fmt.Errorf("parsing signed document: %w", err)
	}

	if !doc.Signed {
		return nil, ErrUnsigned
	}

	qr, err := qrcode.Encode(doc.QRCode, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encoding qr code: %w", err)
	}

	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(issued(doc, inv))
	pdf.SetModificationDate(issued(doc, inv))
	pdf.SetTitle(titles[doc.Root]+" "+doc.Number, true)
	pdf.SetAuthor(doc.SupplierName, true)
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	l := layout{pdf: pdf, tr: tr, money: r.money}

	l.header(doc, inv)
	l.customer(doc, inv)
	l.lines(doc)
	l.totals(doc)
	l.footer(doc, inv, qr)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("writing pdf: %w", err)
	}

	return buf.Bytes(), nil
}

func (r *Renderer) money(d decimal.Decimal) string {
	return r.printer.Sprintf("$ %.2f", d.InexactFloat64())
}

func issued(doc *document.Parsed, inv *invoice.Invoice) time.Time {
	if t, err := time.Parse("2006-01-02 15:04:05-07:00", doc.IssueDate+" "+doc.IssueTime); err == nil {
		return t
	}

	return inv.IssuedAt
}

type layout struct {
	pdf   *fpdf.Fpdf
	tr    func(string) string
	money func(decimal.Decimal) string
}

func (l layout) text(w, h float64, s, align string) {
	l.pdf.CellFormat(w, h, l.tr(s), "", 0, align, false, 0, "")
}

func (l layout) header(doc *document.Parsed, inv *invoice.Invoice) {
	p := l.pdf

	p.SetFont("Helvetica", "B", 13)
	l.text(110, 7, doc.SupplierName, "L")
	p.SetFont("Helvetica", "B", 11)
	l.text(0, 7, titles[doc.Root], "R")
	p.Ln(6)

	p.SetFont("Helvetica", "", 9)
	l.text(110, 5, fmt.Sprintf("NIT %s-%s", doc.SupplierTaxID, doc.SupplierCheckDigit), "L")
	p.SetFont("Helvetica", "B", 11)
	l.text(0, 5, "No. "+doc.Number, "R")
	p.Ln(5)

	p.SetFont("Helvetica", "", 9)
	addr := inv.Supplier.Address
	l.text(110, 5, strings.TrimSpace(addr.Line+", "+addr.City), "L")
	l.text(0, 5, fmt.Sprintf("Fecha: %s %s", doc.IssueDate, doc.IssueTime), "R")
	p.Ln(5)

	if inv.Resolution.Number != "" {
		l.text(0, 5, fmt.Sprintf("Resolución DIAN %s, numeración %s%d a %s%d, vigente hasta %s",
			inv.Resolution.Number,
			inv.Resolution.Prefix, inv.Resolution.From,
			inv.Resolution.Prefix, inv.Resolution.To,
			inv.Resolution.ValidTo.Format("2006-01-02"),
		), "L")
		p.Ln(5)
	}

	if doc.ReferenceNumber != "" {
		l.text(0, 5, "Documento referenciado: "+doc.ReferenceNumber, "L")
		p.Ln(5)
	}

	p.Ln(3)
}

func (l layout) customer(doc *document.Parsed, inv *invoice.Invoice) {
	p := l.pdf

	p.SetFillColor(235, 235, 235)
	p.SetFont("Helvetica", "B", 9)
	p.CellFormat(0, 6, l.tr("ADQUIRIENTE"), "1", 1, "L", true, 0, "")

	p.SetFont("Helvetica", "", 9)
	l.text(120, 5, doc.CustomerName, "L")
	l.text(0, 5, "Identificación: "+doc.CustomerTaxID, "R")
	p.Ln(5)

	addr := inv.Customer.Address
	l.text(120, 5, strings.TrimSpace(addr.Line+", "+addr.City), "L")
	l.text(0, 5, inv.Customer.Email, "R")
	p.Ln(8)
}

var columns = []struct {
	title string
	width float64
	align string
}{
	{"#", 8, "C"},
	{"Código", 22, "L"},
	{"Descripción", 70, "L"},
	{"Cant.", 18, "R"},
	{"Vr. unitario", 28, "R"},
	{"Impuesto", 20, "R"},
	{"Total", 0, "R"},
}

func (l layout) lines(doc *document.Parsed) {
	p := l.pdf

	p.SetFont("Helvetica", "B", 8)

	for i, c := range columns {
		ln := 0
		if i == len(columns)-1 {
			ln = 1
		}

		p.CellFormat(c.width, 6, l.tr(c.title), "1", ln, c.align, true, 0, "")
	}

	p.SetFont("Helvetica", "", 8)

	for _, line := range doc.Lines {
		cells := []string{
			fmt.Sprint(line.ID),
			line.ProductCode,
			line.Description,
			line.Quantity.String(),
			l.money(line.UnitPrice),
			l.money(line.TaxAmount),
			l.money(line.Total),
		}

		for i, c := range columns {
			ln := 0
			if i == len(columns)-1 {
				ln = 1
			}

			p.CellFormat(c.width, 5, l.tr(truncate(cells[i], 48)), "LR", ln, c.align, false, 0, "")
		}
	}

	p.CellFormat(0, 0, "", "T", 1, "", false, 0, "")
	p.Ln(3)
}

func (l layout) totals(doc *document.Parsed) {
	p := l.pdf

	row := func(label, value string) {
		p.SetX(120)
		l.text(45, 5, label, "L")
		l.text(0, 5, value, "R")
		p.Ln(5)
	}

	p.SetFont("Helvetica", "", 9)
	row("Subtotal", l.money(doc.Subtotal))

	if doc.Discount.IsPositive() {
		row("Descuento", l.money(doc.Discount))
	}

	for _, t := range doc.Taxes {
		row(fmt.Sprintf("%s %s%%", invoice.TaxType(t.Type).Name(), t.Rate.String()), l.money(t.Amount))
	}

	p.SetFont("Helvetica", "B", 10)
	row("Total a pagar "+doc.Currency, l.money(doc.Payable))
	p.Ln(4)
}

func (l layout) footer(doc *document.Parsed, inv *invoice.Invoice, qr []byte) {
	p := l.pdf

	y := p.GetY()

	p.RegisterImageOptionsReader("qr", fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(qr))
	p.ImageOptions("qr", 15, y, 35, 35, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	p.SetXY(55, y)
	p.SetFont("Helvetica", "B", 8)
	l.text(0, 5, doc.CodeScheme, "L")
	p.Ln(5)

	p.SetX(55)
	p.SetFont("Courier", "", 7)
	p.MultiCell(0, 3.5, doc.Code, "", "L", false)

	if inv.TrackID != "" {
		p.SetX(55)
		p.SetFont("Helvetica", "", 8)
		l.text(0, 5, "Seguimiento DIAN: "+inv.TrackID, "L")
		p.Ln(5)
	}

	p.SetX(55)
	p.SetFont("Helvetica", "I", 7)
	p.MultiCell(0, 3.5, l.tr("Representación gráfica de la factura electrónica. Consulte su validez en el portal de la DIAN con el código único."), "", "L", false)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}

	return string(r[:n-1]) + "…"
}
