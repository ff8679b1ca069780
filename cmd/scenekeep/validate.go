package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Decode a saved record and check its structure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, _, err := c.readRecord(args[0])
			if err != nil {
				return err
			}
			if err := rec.Validate(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ok: %d roots, %d nodes, %d objects\n",
				len(rec.RootIndices), len(rec.Nodes), rec.ObjectCount())
			return err
		},
	}
}
