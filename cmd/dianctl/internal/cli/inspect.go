package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/factura/internal/document"
)

var (
	labelStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	valueStyle  = lipgloss.NewStyle().Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1)
)

func newInspectCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect <document.xml>",
		Short: "Print the business content of a UBL document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading document: %w", err)
			}

			doc, err := document.Parse(data)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(doc)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), inspectTable(doc).Render())
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")

	return cmd
}

func inspectTable(doc *document.Parsed) *table.Table {
	rows := [][]string{
		{"Document", doc.Root + " " + doc.Number},
		{"Issued", doc.IssueDate + " " + doc.IssueTime},
		{doc.CodeScheme, doc.Code},
		{"Environment", doc.Environment},
		{"Supplier", fmt.Sprintf("%s-%s %s", doc.SupplierTaxID, doc.SupplierCheckDigit, doc.SupplierName)},
		{"Customer", doc.CustomerTaxID + " " + doc.CustomerName},
	}

	if doc.ReferenceNumber != "" {
		rows = append(rows, []string{"References", doc.ReferenceNumber + " " + doc.ReferenceCode})
	}

	for _, l := range doc.Lines {
		rows = append(rows, []string{
			"Line " + strconv.Itoa(l.ID),
			fmt.Sprintf("%s x %s %s = %s", l.Quantity, l.Description, l.UnitPrice.StringFixed(2), l.Total.StringFixed(2)),
		})
	}

	for _, t := range doc.Taxes {
		rows = append(rows, []string{
			fmt.Sprintf("Tax %s %s%%", t.Type, t.Rate),
			fmt.Sprintf("%s on %s", t.Amount.StringFixed(2), t.Base.StringFixed(2)),
		})
	}

	rows = append(rows,
		[]string{"Payable", doc.Payable.StringFixed(2) + " " + doc.Currency},
		[]string{"Signed", strconv.FormatBool(doc.Signed)},
	)

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderRow(false).
		Headers("Field", "Value").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return labelStyle
			}

			return valueStyle
		})
}
