package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the snapshot",
		Long: `Load the snapshot and check it: unique names, defined cluster nodes,
compiling service patterns, well-formed static checks, known match policies
and parseable time periods.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := root.setup(cmd)
			if err != nil {
				return err
			}
			snap, err := e.loadSnapshot()
			if err != nil {
				return err
			}

			fmt.Fprintf(e.out, "snapshot %s is valid\n", snap.Path)
			fmt.Fprintf(e.out, "  hosts:        %d\n", snap.Directory.Len())
			fmt.Fprintf(e.out, "  plugins:      %d\n", len(snap.Plugins.Names()))
			fmt.Fprintf(e.out, "  rulesets:     %d\n", len(snap.Rules.Names()))
			fmt.Fprintf(e.out, "  time periods: %d\n", len(snap.TimePeriods.Names()))
			return nil
		},
	}
}
