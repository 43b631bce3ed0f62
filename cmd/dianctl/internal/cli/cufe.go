package cli

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/factura/internal/cufe"
)

func newCufeCmd() *cobra.Command {
	var (
		p         cufe.Params
		issued    string
		env       string
		showInput bool
		amounts   = map[string]*string{}
	)

	cmd := &cobra.Command{
		Use:   "cufe",
		Short: "Compute the CUFE/CUDE of a document from its fields",
		Example: `  dianctl cufe --number SETP990000002 --issued 2024-03-15T10:30:00-05:00 \
    --subtotal 100000 --iva 19000 --total 119000 \
    --supplier 900123456 --customer 800987654 --key <technical key> --env 2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			at, err := time.Parse(time.RFC3339, issued)
			if err != nil {
				return fmt.Errorf("parsing --issued: %w", err)
			}
			p.IssuedAt = at
			p.Environment = cufe.Environment(env)

			if !p.Environment.Valid() {
				return fmt.Errorf("--env must be 1 (production) or 2 (testing), got %q", env)
			}

			targets := map[string]*decimal.Decimal{
				"subtotal": &p.Subtotal,
				"iva":      &p.IVA,
				"inc":      &p.INC,
				"ica":      &p.ICA,
				"discount": &p.Discount,
				"total":    &p.Total,
			}

			for name, raw := range amounts {
				if *raw == "" {
					continue
				}

				d, err := decimal.NewFromString(*raw)
				if err != nil {
					return fmt.Errorf("parsing --%s: %w", name, err)
				}
				*targets[name] = d
			}

			code, err := cufe.Generate(p)
			if err != nil {
				return err
			}

			if showInput {
				fmt.Fprintln(cmd.OutOrStdout(), cufe.Concatenate(p))
			}

			fmt.Fprintln(cmd.OutOrStdout(), code)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&p.Number, "number", "", "document number including prefix")
	f.StringVar(&issued, "issued", "", "issue instant, RFC 3339 (e.g. 2024-03-15T10:30:00-05:00)")
	for _, name := range []string{"subtotal", "iva", "inc", "ica", "discount", "total"} {
		amounts[name] = f.String(name, "", name+" amount")
	}
	f.StringVar(&p.SupplierNIT, "supplier", "", "supplier NIT without check digit")
	f.StringVar(&p.CustomerID, "customer", "", "customer identification number")
	f.StringVar(&p.Key, "key", "", "technical key (invoices) or software PIN (notes)")
	f.StringVar(&env, "env", string(cufe.Testing), "DIAN environment: 1 production, 2 testing")
	f.BoolVar(&showInput, "show-input", false, "print the hashed string before the code")

	for _, name := range []string{"number", "issued", "total", "supplier", "customer", "key"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}
