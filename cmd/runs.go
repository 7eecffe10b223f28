package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ghsdash/app"
	"github.com/kilianp07/ghsdash/core/pipeline"
	"github.com/kilianp07/ghsdash/core/runlog"
)

var runsFlags struct {
	step  string
	since time.Duration
	limit int
	json  bool
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(nil, func(ctx context.Context, rt *app.Runtime) error {
			q := runlog.Query{Step: runsFlags.step, Limit: runsFlags.limit}
			if runsFlags.since > 0 {
				q.Start = time.Now().Add(-runsFlags.since)
			}
			recs, err := rt.Store.Query(ctx, q)
			if err != nil {
				return err
			}
			if runsFlags.json {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(recs)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tSTEP\tSTART\tRUNTIME\tSTATUS")
			for _, r := range recs {
				status := "ok"
				if r.Failed() {
					status = "failed: " + r.Error
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Step, r.Start.Format(time.RFC3339), pipeline.FormatRuntime(r.Duration()), status)
			}
			return tw.Flush()
		})
	},
}

func init() {
	f := runsCmd.Flags()
	f.StringVar(&runsFlags.step, "step", "", "only runs of this step")
	f.DurationVar(&runsFlags.since, "since", 0, "only runs started within this window")
	f.IntVar(&runsFlags.limit, "limit", 20, "maximum number of runs")
	f.BoolVar(&runsFlags.json, "json", false, "print JSON records")
	rootCmd.AddCommand(runsCmd)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
