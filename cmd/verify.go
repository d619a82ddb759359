package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinkerbelle-io/tb-repair/internal/audit"
)

func newVerifyAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-audit <path>",
		Short: "Check the hash chain of an audit log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := audit.Verify(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entries, hash chain intact\n", args[0], n)
			return nil
		},
	}
}
