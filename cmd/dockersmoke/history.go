package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rusenback/dockersmoke/internal/model"
	"github.com/rusenback/dockersmoke/internal/storage"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit  int
		since  string
		output string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded smoke runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStorage()
			if err != nil {
				return err
			}
			defer store.Close()

			var runs []model.RunRecord
			if since != "" {
				tr, err := storage.ParseTimeRange(since)
				if err != nil {
					return err
				}
				runs, err = store.Since(tr)
				if err != nil {
					return err
				}
			} else {
				runs, err = store.Recent(limit)
				if err != nil {
					return err
				}
			}

			return writeRuns(cmd.OutOrStdout(), runs, output)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	cmd.Flags().StringVar(&since, "since", "", "show runs within a time range: 30min, 1hour, 6hours, 1day, 1week")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json or yaml")
	return cmd
}

func writeRuns(w io.Writer, runs []model.RunRecord, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(runs); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "STARTED\tOUTCOME\tSTAGE\tDURATION\tUSER\tARCHIVE\tERROR")
		for _, r := range runs {
			stage := string(r.FailedStage)
			if stage == "" {
				stage = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				r.StartedAt.Format(time.DateTime),
				r.Outcome,
				stage,
				r.Duration.Round(time.Millisecond),
				r.User,
				r.Archive,
				truncateError(r.Error, 60),
			)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

func truncateError(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
