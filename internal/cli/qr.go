package cli

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"digimenu/internal/qrlink"
)

type qrOptions struct {
	table     int
	order     string
	serveCode string
	amount    string
	size      int
	out       string
	uriOnly   bool
}

// NewQRCommand renders the session QR a diner shows at the counter.
func NewQRCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &qrOptions{}

	cmd := &cobra.Command{
		Use:          "qr",
		Short:        "Render a session QR code as PNG",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}

			amount, err := decimal.NewFromString(opts.amount)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", opts.amount, err)
			}

			linker := qrlink.NewLinker(qrlink.Payee{VPA: cfg.Payee.VPA, Name: cfg.Payee.Name, Currency: cfg.Payee.Currency})
			uri, err := linker.EncodeSessionURI(opts.table, opts.order, opts.serveCode, amount)
			if err != nil {
				return err
			}
			if opts.uriOnly {
				fmt.Fprintln(cmd.OutOrStdout(), uri)
				return nil
			}

			png, err := qrlink.RenderPNG(uri, opts.size)
			if err != nil {
				return err
			}
			if opts.out == "" || opts.out == "-" {
				_, err = cmd.OutOrStdout().Write(png)
				return err
			}
			if err := os.WriteFile(opts.out, png, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", opts.out, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", opts.out)
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.table, "table", 0, "table number")
	cmd.Flags().StringVar(&opts.order, "order", "", "order number")
	cmd.Flags().StringVar(&opts.serveCode, "serve-code", "", "serve code")
	cmd.Flags().StringVar(&opts.amount, "amount", "0", "order total")
	cmd.Flags().IntVar(&opts.size, "size", 256, "image size in pixels")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "output file (stdout when empty)")
	cmd.Flags().BoolVar(&opts.uriOnly, "uri", false, "print the payload instead of the image")
	return cmd
}
