// Package cli holds the digimenu commands.
package cli

import (
	"github.com/spf13/cobra"

	"digimenu/internal/commons"
	"digimenu/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "digimenu",
		Short: "Table ordering companion",
		Long:  "Runs the diner and staff companion API and the QR tooling around it.",

		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file (environment defaults when empty)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewQRCommand(opts))
	cmd.AddCommand(NewDecodeCommand())
	cmd.AddCommand(NewStaffTokenCommand(opts))

	return cmd
}

func (o *RootOptions) loadConfig() (*config.Config, error) {
	if o.ConfigPath == "" {
		return config.Load()
	}
	return commons.LoadConfig(o.ConfigPath)
}
