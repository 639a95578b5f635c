package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/modelpulse/tracker-cli/internal/classify"
	"github.com/modelpulse/tracker-cli/internal/model"
	"github.com/modelpulse/tracker-cli/internal/store"
)

var statusRunsLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store contents and recent scrape runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		s, err := collectStatus(ctx, st, statusRunsLimit)
		if err != nil {
			return err
		}
		formatStatus(os.Stdout, s, rules)
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusRunsLimit, "runs", 10, "number of recent scrape runs to show")
	rootCmd.AddCommand(statusCmd)
}

type storeStatus struct {
	Days           []model.Day
	TotalRows      int64
	PlatformCounts map[string]int64
	Runs           []store.ScrapeRun
}

func collectStatus(ctx context.Context, st store.Store, runsLimit int) (*storeStatus, error) {
	days, err := st.ListDays(ctx)
	if err != nil {
		return nil, err
	}
	total, err := st.CountObservations(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := st.PlatformCounts(ctx)
	if err != nil {
		return nil, err
	}
	runs, err := st.ListScrapeRuns(ctx, runsLimit)
	if err != nil {
		return nil, err
	}
	return &storeStatus{Days: days, TotalRows: total, PlatformCounts: counts, Runs: runs}, nil
}

func formatStatus(out io.Writer, s *storeStatus, rules classify.Rules) {
	if len(s.Days) == 0 {
		fmt.Fprintln(out, "Store is empty.")
		return
	}

	fmt.Fprintf(out, "Observations: %d rows over %d days (latest %s, earliest %s)\n\n",
		s.TotalRows, len(s.Days), s.Days[0], s.Days[len(s.Days)-1])

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PLATFORM\tROWS")
	for _, key := range platformOrder(s.PlatformCounts, rules) {
		fmt.Fprintf(w, "%s\t%d\n", rules.DisplayName(key), s.PlatformCounts[key])
	}
	_ = w.Flush()

	if len(s.Runs) == 0 {
		return
	}
	fmt.Fprintln(out, "\nRecent scrape runs:")
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tADAPTER\tPLATFORM\tSTATUS\tROWS")
	for _, r := range s.Runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			r.StartedAt.Format("2006-01-02 15:04"), r.Adapter, r.Platform, r.Status, r.RowsAppended)
	}
	_ = w.Flush()
}

// platformOrder lists configured platforms first, in rule order, then any
// unexpected platforms found in the store alphabetically.
func platformOrder(counts map[string]int64, rules classify.Rules) []string {
	seen := make(map[string]bool, len(counts))
	var order []string
	for _, p := range rules.Platforms {
		if _, ok := counts[p.Key]; ok {
			order = append(order, p.Key)
			seen[p.Key] = true
		}
	}
	var extra []string
	for key := range counts {
		if !seen[key] {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	return append(order, extra...)
}
