package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/factura/internal/signer"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <signed.xml>",
		Short: "Check the XAdES signature of a signed document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading document: %w", err)
			}

			cert, err := signer.Verify(data)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "signature valid")
			fmt.Fprintf(out, "subject:   %s\n", cert.Subject)
			fmt.Fprintf(out, "issuer:    %s\n", cert.Issuer)
			fmt.Fprintf(out, "serial:    %s\n", cert.SerialNumber)
			fmt.Fprintf(out, "not after: %s\n", cert.NotAfter.Format(time.RFC3339))

			return nil
		},
	}
}
