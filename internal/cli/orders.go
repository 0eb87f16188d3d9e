// ABOUTME: Order administration commands, currently XLSX export per tenant
// ABOUTME: Reads through the repository layer so decryption rules apply

package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agentdoodle/doodle-server/internal/export"
	"github.com/agentdoodle/doodle-server/internal/repo"
	"github.com/agentdoodle/doodle-server/internal/vault"
)

// NewOrdersCommand creates the orders command group.
func NewOrdersCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Manage tenant orders",
	}
	cmd.AddCommand(newOrdersExportCommand(rootOpts))
	return cmd
}

func newOrdersExportCommand(rootOpts *RootOptions) *cobra.Command {
	var out, storageKey, agentID, status string

	cmd := &cobra.Command{
		Use:   "export <tenant-id>",
		Short: "Export a tenant's orders to an XLSX workbook",
		Long: `Export a tenant's orders to an XLSX workbook.

Encrypted order fields require the tenant's storage key via --key;
without it only tenants storing plaintext can be exported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, pool, err := rootOpts.openPool()
			if err != nil {
				return err
			}
			defer func() { _ = pool.Close() }()

			var cipher vault.Cipher = vault.Passthrough{}
			if storageKey != "" {
				if cipher, err = vault.NewKeyCipher(storageKey); err != nil {
					return fmt.Errorf("building cipher: %w", err)
				}
			}

			filter := map[string]string{}
			if agentID != "" {
				filter["agentId"] = agentID
			}
			if status != "" {
				filter["status"] = status
			}

			orders := repo.NewOrderRepository(pool, args[0], cipher)
			rows, err := orders.FindAll(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("reading orders: %w", err)
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer func() { _ = f.Close() }()

			if err := export.Orders(f, rows); err != nil {
				return fmt.Errorf("exporting orders: %w", err)
			}

			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(),
				"exported %d orders to %s\n", len(rows), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "orders.xlsx", "output file path")
	cmd.Flags().StringVar(&storageKey, "key", "", "tenant storage key for encrypted fields")
	cmd.Flags().StringVar(&agentID, "agent", "", "only orders for this agent")
	cmd.Flags().StringVar(&status, "status", "", "only orders with this status")
	return cmd
}
