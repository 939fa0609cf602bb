package main

import (
	"fmt"

	"github.com/rusenback/dockersmoke/internal/smoke"
	"github.com/spf13/cobra"
)

func newPruneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove containers left behind by interrupted runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.connectDocker()
			if err != nil {
				return err
			}
			defer client.Close()

			removed, err := smoke.Prune(cmd.Context(), client)
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d container(s)\n", removed)
			return err
		},
	}
}
