// ABOUTME: Cobra root command for the doodle-admin CLI
// ABOUTME: Global flags resolve the config file shared with doodle-server

package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentdoodle/doodle-server/internal/config"
	"github.com/agentdoodle/doodle-server/internal/dbpool"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the root command for the doodle-admin CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "doodle-admin",
		Short:         "Administrative CLI for doodle-server tenants",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "",
		"path to the server config file (default: DOODLE_CONFIG or ~/.config/doodle/server.yaml)")

	cmd.AddCommand(NewTenantCommand(opts))
	cmd.AddCommand(NewOrdersCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

// DefaultConfigPath resolves the config file the way doodle-server does.
func DefaultConfigPath() string {
	if envPath := os.Getenv("DOODLE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "server.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "doodle", "server.yaml")
}

// loadConfig loads the config named by the global flag, or the default path.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	path := o.ConfigPath
	if path == "" {
		path = DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// openPool opens the storage pool the config points at.
func (o *RootOptions) openPool() (*config.Config, *dbpool.Pool, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return cfg, dbpool.New(cfg.Storage.DataDir, cfg.Storage.PoolMax), nil
}
