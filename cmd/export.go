package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/modelpulse/tracker-cli/internal/export"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Dump every raw observation as CSV",
	Long:  "Writes the full observation log in the format `modelpulse ingest` reads back, for backups and migrations between store backends.",
	RunE: func(cmd *cobra.Command, _ []string) error {
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

		out := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return eris.Wrapf(err, "create %s", exportOut)
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		if err := export.ObservationsCSV(out, rows); err != nil {
			return err
		}

		if exportOut != "" {
			zap.L().Info("export complete",
				zap.String("path", exportOut),
				zap.Int("rows", len(rows)),
			)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (default stdout)")
	rootCmd.AddCommand(exportCmd)
}
