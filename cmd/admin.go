package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/modelpulse/tracker-cli/internal/export"
	"github.com/modelpulse/tracker-cli/internal/ingest"
	"github.com/modelpulse/tracker-cli/internal/model"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Operator maintenance commands",
	Long:  "Destructive and corrective store operations. Each command deletes or rewrites exactly what it names and nothing else.",
}

var adminPurgeDayCmd = &cobra.Command{
	Use:   "purge-day <date>",
	Short: "Delete every observation for one date",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		day, err := model.ParseDay(args[0])
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.PurgeDay(ctx, day)
		if err != nil {
			return eris.Wrapf(err, "purge day %s", day)
		}
		fmt.Printf("Deleted %d rows for %s.\n", n, day)
		return nil
	},
}

var adminPurgePlatformCmd = &cobra.Command{
	Use:   "purge-platform <platform>",
	Short: "Delete every observation for one platform",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.PurgePlatform(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "purge platform %s", args[0])
		}
		fmt.Printf("Deleted %d rows for platform %s.\n", n, args[0])
		return nil
	},
}

var adminDedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Drop redundant duplicate rows",
	Long:  "Removes all but the winning row per (date, platform, publisher, model) group. Query results are unchanged; this only reclaims space after noisy re-scrapes.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.DeduplicateIdentities(ctx)
		if err != nil {
			return eris.Wrap(err, "dedup")
		}
		fmt.Printf("Deleted %d duplicate rows.\n", n)
		return nil
	},
}

var adminBackupCmd = &cobra.Command{
	Use:   "backup <out.csv>",
	Short: "Dump every raw observation to a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rows, err := st.AllObservations(ctx)
		if err != nil {
			return err
		}

		f, err := os.Create(args[0])
		if err != nil {
			return eris.Wrapf(err, "create %s", args[0])
		}
		defer f.Close() //nolint:errcheck

		if err := export.ObservationsCSV(f, rows); err != nil {
			return err
		}
		fmt.Printf("Wrote %d rows to %s.\n", len(rows), args[0])
		return nil
	},
}

var adminRestoreCmd = &cobra.Command{
	Use:   "restore <backup.csv>",
	Short: "Append rows from a CSV backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrapf(err, "open %s", args[0])
		}
		defer f.Close() //nolint:errcheck

		rows, res, err := ingest.CSV(f)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.Append(ctx, rows)
		if err != nil {
			return err
		}

		zap.L().Info("restore complete",
			zap.String("file", args[0]),
			zap.Int("read", res.Read),
			zap.Int("skipped", len(res.Skipped)),
			zap.Int64("appended", n),
		)
		return nil
	},
}

func init() {
	adminCmd.AddCommand(adminPurgeDayCmd)
	adminCmd.AddCommand(adminPurgePlatformCmd)
	adminCmd.AddCommand(adminDedupCmd)
	adminCmd.AddCommand(adminBackupCmd)
	adminCmd.AddCommand(adminRestoreCmd)
	rootCmd.AddCommand(adminCmd)
}
