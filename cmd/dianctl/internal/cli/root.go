// Package cli holds the offline DIAN tooling: codes, check digits and signed document checks.
package cli

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "dianctl",
		Short:         "Offline helpers for DIAN electronic invoices",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newCufeCmd())
	cmd.AddCommand(newNITCmd())
	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newInspectCmd())
	cmd.AddCommand(newTokenCmd())
	return cmd
}

// NewRootCmdForTest returns the root command for testing.
func NewRootCmdForTest() *cobra.Command {
	return newRootCmd()
}

func Execute() error {
	return newRootCmd().Execute()
}
