package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/modelpulse/tracker-cli/internal/ingest"
	"github.com/modelpulse/tracker-cli/internal/model"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Import observations from a CSV or XLSX file",
	Long:  "Appends rows from an exported or hand-built file. Existing rows are never modified; imports are purely additive.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := args[0]

		var rows []model.Observation
		var res *ingest.Result
		var err error

		switch strings.ToLower(filepath.Ext(path)) {
		case ".csv":
			f, openErr := os.Open(path)
			if openErr != nil {
				return eris.Wrapf(openErr, "open %s", path)
			}
			defer f.Close() //nolint:errcheck
			rows, res, err = ingest.CSV(f)
		case ".xlsx":
			rows, res, err = ingest.XLSX(path)
		default:
			return eris.Errorf("unsupported file type %q (want .csv or .xlsx)", filepath.Ext(path))
		}
		if err != nil {
			return err
		}

		for _, reason := range res.Skipped {
			zap.L().Warn("skipped row", zap.String("reason", reason))
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

		zap.L().Info("ingest complete",
			zap.String("file", path),
			zap.Int("read", res.Read),
			zap.Int("valid", res.Valid),
			zap.Int("skipped", len(res.Skipped)),
			zap.Int64("appended", n),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
