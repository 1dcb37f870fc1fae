package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"digimenu/internal/auth"
)

func NewStaffTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		staffID string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:          "staff-token",
		Short:        "Mint a bearer token for the staff routes",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if staffID == "" {
				return errors.New("--staff-id is required")
			}
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("ttl") {
				ttl = cfg.Staff.TokenTTL
			}

			token, err := auth.GenerateToken(cfg.Staff.JWTSecret, staffID, ttl)
			if err != nil {
				return fmt.Errorf("signing token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&staffID, "staff-id", "", "staff member identifier")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (config staff.tokenTtl when unset)")
	return cmd
}
