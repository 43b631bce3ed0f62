package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/factura/internal/invoice"
)

func newNITCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nit <nit>...",
		Short: "Print the DIAN check digit of each NIT, or verify it when given as 900123456-8",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var mismatches int

			for _, raw := range args {
				nit, given := invoice.SplitNIT(raw)

				dv, err := invoice.CheckDigit(nit)
				if err != nil {
					return fmt.Errorf("%s: %w", raw, err)
				}

				switch {
				case given == "":
					fmt.Fprintf(cmd.OutOrStdout(), "%s-%s\n", nit, dv)
				case given == dv:
					fmt.Fprintf(cmd.OutOrStdout(), "%s-%s ok\n", nit, dv)
				default:
					mismatches++
					fmt.Fprintf(cmd.OutOrStdout(), "%s-%s mismatch, expected %s\n", nit, given, dv)
				}
			}

			if mismatches > 0 {
				return fmt.Errorf("%d check digit(s) do not match", mismatches)
			}

			return nil
		},
	}
}
