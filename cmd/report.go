package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/modelpulse/tracker-cli/internal/classify"
	"github.com/modelpulse/tracker-cli/internal/export"
	"github.com/modelpulse/tracker-cli/internal/model"
	"github.com/modelpulse/tracker-cli/internal/report"
)

var (
	reportFamily   string
	reportDate     string
	reportPrevious string
	reportJSON     bool
	reportXLSXPath string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build the weekly growth report for a release family",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		params := report.Params{
			Family:   reportFamily,
			Current:  model.Today(),
			TopTotal: cfg.Report.TopTotal,
			TopDelta: cfg.Report.TopDelta,
		}
		if params.Family == "" {
			params.Family = cfg.Report.Family
		}
		if reportDate != "" {
			d, err := model.ParseDay(reportDate)
			if err != nil {
				return err
			}
			params.Current = d
		}
		if reportPrevious != "" {
			d, err := model.ParseDay(reportPrevious)
			if err != nil {
				return err
			}
			params.Previous = d
		}

		eng := report.NewEngine(st, classify.New(rules))
		r, err := eng.Weekly(ctx, params)
		if errors.Is(err, report.ErrNoData) {
			fmt.Fprintf(os.Stderr, "No observations for family %q in the requested window. Run `modelpulse scrape` or `modelpulse ingest` first.\n", params.Family)
			return err
		} else if err != nil {
			return err
		}

		if reportXLSXPath != "" {
			if err := export.ReportXLSX(reportXLSXPath, r); err != nil {
				return err
			}
			zap.L().Info("report written", zap.String("path", reportXLSXPath))
			return nil
		}

		if reportJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(r)
		}

		formatReport(os.Stdout, r)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportFamily, "family", "", "release family (default from config)")
	reportCmd.Flags().StringVar(&reportDate, "date", "", "report date (YYYY-MM-DD, default today)")
	reportCmd.Flags().StringVar(&reportPrevious, "previous", "", "comparison date (default last Friday before report date)")
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "emit the report as JSON")
	reportCmd.Flags().StringVar(&reportXLSXPath, "xlsx", "", "write the report as an XLSX workbook to this path")
	rootCmd.AddCommand(reportCmd)
}

// formatReport writes a human-readable report to out.
func formatReport(out io.Writer, r *report.Report) {
	fmt.Fprintf(out, "%s: %s vs %s\n\n", r.Family, r.Current, r.Previous)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tCURRENT\tPREVIOUS\tGROWTH")
	fmt.Fprintf(w, "Official\t%d\t%d\t%+d\n", r.OfficialCurrent, r.OfficialPrevious, r.OfficialGrowth)
	fmt.Fprintf(w, "Derivative\t%d\t%d\t%+d\n", r.DerivativeCurrent, r.DerivativePrevious, r.DerivativeGrowth)
	_ = w.Flush()

	fmt.Fprintln(out, "\nPlatforms:")
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PLATFORM\tMODELS\tCURRENT\tPREVIOUS\tDELTA")
	for _, p := range r.Platforms {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%+d\n", p.DisplayName, p.Models, p.Current, p.Previous, p.Delta)
	}
	_ = w.Flush()

	if len(r.TopOfficialByTotal) > 0 {
		fmt.Fprintln(out, "\nTop official models by total:")
		formatEntries(out, r.TopOfficialByTotal)
	}
	if len(r.TopOfficialByDelta) > 0 {
		fmt.Fprintln(out, "\nTop official models by growth:")
		formatEntries(out, r.TopOfficialByDelta)
	}

	fmt.Fprintf(out, "\nNew models: %d (%d derivatives)\n", len(r.NewModels), r.NewDerivativeCount)
	for _, m := range r.NewModels {
		fmt.Fprintf(out, "  + %s/%s (%s, %d downloads)\n", m.Publisher, m.ModelName, m.Kind, m.Count)
	}

	if len(r.Removed) > 0 {
		fmt.Fprintf(out, "\nRemoved models: %d\n", len(r.Removed))
		for _, m := range r.Removed {
			fmt.Fprintf(out, "  - %s %s/%s (last seen %s, %d downloads)\n",
				m.Identity.Platform, m.Identity.Publisher, m.Identity.ModelName, m.LastSeen, m.LastCount)
		}
	}

	if len(r.Warnings) > 0 {
		fmt.Fprintf(out, "\nDownload count decreases: %d\n", len(r.Warnings))
		for _, d := range r.Warnings {
			fmt.Fprintf(out, "  ! %s %s/%s: %d -> %d between %s and %s\n",
				d.Identity.Platform, d.Identity.Publisher, d.Identity.ModelName,
				d.EarlierSeen, d.LaterSeen, d.EarlierDay, d.LaterDay)
		}
	}
}

func formatEntries(out io.Writer, entries []report.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PLATFORM\tMODEL\tCURRENT\tPREVIOUS\tDELTA")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%+d\n",
			e.Identity.Platform, e.Identity.ModelName, e.Current, e.Previous, e.Delta)
	}
	_ = w.Flush()
}
