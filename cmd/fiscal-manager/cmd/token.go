package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/fiscal-manager/internal/auth"
)

var (
	tokenRole string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Mint an API bearer token",
	Long: `Mint a signed JWT for the API using the configured secret. Readers may only
use GET endpoints; admins may use all of them.

Examples:
  FISCAL_JWT_SECRET=... fiscal-manager token erp-sync --role admin --ttl 720h`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringVar(&tokenRole, "role", auth.RoleReader, "Role: admin or reader")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
}

func runToken(cmd *cobra.Command, args []string) error {
	if cfg.JWTSecret == "" {
		return errors.New("no JWT secret configured (set FISCAL_JWT_SECRET or auth.jwt_secret)")
	}
	signer, err := auth.NewSigner(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return err
	}
	token, err := signer.Mint(args[0], tokenRole, tokenTTL)
	if err != nil {
		return err
	}
	if outputFormat == "json" {
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{
			"token":      token,
			"subject":    args[0],
			"role":       tokenRole,
			"expires_at": time.Now().Add(tokenTTL).UTC(),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
