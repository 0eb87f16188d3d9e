// ABOUTME: Token command: mint a tenant bearer token for the HTTP API
// ABOUTME: Signs with the same secret doodle-server verifies against

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentdoodle/doodle-server/internal/api"
)

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var storageKey string

	cmd := &cobra.Command{
		Use:   "token <tenant-id>",
		Short: "Mint an API bearer token for a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}

			verifier := api.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
			token, err := verifier.Generate(args[0], storageKey, cfg.Auth.TokenTTL)
			if err != nil {
				return fmt.Errorf("generating token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&storageKey, "key", "", "tenant storage key embedded in the token")
	return cmd
}
