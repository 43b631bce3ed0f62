package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/factura/internal/http/auth"
)

func newTokenCmd() *cobra.Command {
	var (
		secret string
		issuer string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <tenant-id>",
		Short: "Issue an API bearer token for a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parsing tenant id: %w", err)
			}

			if secret == "" {
				return errors.New("--secret or AUTH_JWT_SECRET is required")
			}

			token, err := auth.New(secret, issuer).Issue(tenantID, ttl)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&secret, "secret", os.Getenv("AUTH_JWT_SECRET"), "HMAC secret shared with the API")
	f.StringVar(&issuer, "issuer", "factura", "token issuer")
	f.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	return cmd
}
