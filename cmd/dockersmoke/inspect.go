package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/rusenback/dockersmoke/internal/archive"
	"github.com/spf13/cobra"
)

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect ARCHIVE",
		Short: "List the images in an archive without loading it",
		Long: `inspect reads the archive manifest and lists its images. It fails unless
the archive holds exactly one image, the same check run performs before
loading.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			manifest, err := archive.Inspect(path)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CONFIG\tTAGS")
			for _, e := range manifest {
				tags := strings.Join(e.RepoTags, ",")
				if tags == "" {
					tags = "<none>"
				}
				fmt.Fprintf(w, "%s\t%s\n", e.Config, tags)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			_, err = manifest.Single(path)
			return err
		},
	}
}
