// ABOUTME: Tenant administration commands: provision and list tenants
// ABOUTME: Provisioning hashes the owner email and writes the manifest

package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agentdoodle/doodle-server/internal/tenant"
)

// NewTenantCommand creates the tenant command group.
func NewTenantCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}
	cmd.AddCommand(newTenantCreateCommand(rootOpts))
	cmd.AddCommand(newTenantListCommand(rootOpts))
	return cmd
}

func newTenantCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var ip, ua string

	cmd := &cobra.Command{
		Use:   "create <email>",
		Short: "Provision a tenant for the given owner email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, pool, err := rootOpts.openPool()
			if err != nil {
				return err
			}
			defer func() { _ = pool.Close() }()

			tenantID := tenant.HashEmail(args[0])
			existed := tenant.Exists(cfg.Storage.DataDir, tenantID)

			manifest, err := tenant.Create(cmd.Context(), pool, tenantID,
				tenant.Creator{IP: ip, UA: ua})
			if err != nil {
				return fmt.Errorf("provisioning tenant: %w", err)
			}

			green := color.New(color.FgGreen)
			if existed {
				color.New(color.FgYellow).Fprintln(cmd.OutOrStdout(), "tenant already provisioned")
			} else {
				green.Fprintln(cmd.OutOrStdout(), "tenant provisioned")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  ID:      %s\n", tenantID)
			fmt.Fprintf(cmd.OutOrStdout(), "  Created: %s\n", manifest.CreatedAt)
			return nil
		},
	}

	cmd.Flags().StringVar(&ip, "ip", "", "creator IP recorded in the manifest")
	cmd.Flags().StringVar(&ua, "ua", "doodle-admin", "creator user agent recorded in the manifest")
	return cmd
}

func newTenantListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List provisioned tenants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}

			ids, err := tenant.List(cfg.Storage.DataDir)
			if err != nil {
				return fmt.Errorf("listing tenants: %w", err)
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no tenants")
				return nil
			}

			for _, id := range ids {
				manifest, err := tenant.Load(cfg.Storage.DataDir, id)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t(no manifest)\n", id)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, manifest.CreatedAt)
			}
			return nil
		},
	}
}
