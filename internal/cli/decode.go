package cli

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"digimenu/internal/qrlink"
)

type decodeOutput struct {
	Kind    string                 `json:"kind"`
	Link    string                 `json:"link,omitempty"`
	Session *qrlink.SessionPayload `json:"session,omitempty"`
}

// NewDecodeCommand classifies scanned text the way the in-app scanner does.
func NewDecodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "decode <text>",
		Short:        "Classify scanned QR text as a session or a link",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := qrlink.Decode(strings.Join(args, " "))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(decodeOutput{Kind: res.Kind.String(), Link: res.Link, Session: res.Session})
		},
	}
}
