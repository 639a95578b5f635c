// Package export renders reports and raw observations into files meant for
// humans and spreadsheets: XLSX workbooks for the weekly report, CSV for
// observation dumps.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/modelpulse/tracker-cli/internal/model"
	"github.com/modelpulse/tracker-cli/internal/report"
)

// ObservationsCSV writes rows as CSV with a header row. The column set
// matches what ingest.CSV reads back, so a dump can be restored losslessly.
func ObservationsCSV(w io.Writer, rows []model.Observation) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if err := enc.EncodeHeader(model.Observation{}); err != nil {
		return eris.Wrap(err, "export: write CSV header")
	}
	for i := range rows {
		if err := enc.Encode(rows[i]); err != nil {
			return eris.Wrapf(err, "export: write CSV row %d", i+1)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush CSV")
}

// ReportXLSX writes r as a multi-sheet workbook at path.
func ReportXLSX(path string, r *report.Report) error {
	f := xlsx.NewFile()

	if err := summarySheet(f, r); err != nil {
		return err
	}
	if err := platformsSheet(f, r); err != nil {
		return err
	}
	if err := leaderboardSheet(f, r); err != nil {
		return err
	}
	if err := newModelsSheet(f, r); err != nil {
		return err
	}
	if err := removedSheet(f, r); err != nil {
		return err
	}
	if err := warningsSheet(f, r); err != nil {
		return err
	}

	return eris.Wrapf(f.Save(path), "export: save workbook %s", path)
}

func addRow(sheet *xlsx.Sheet, cells ...string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

func num(v int64) string {
	return fmt.Sprintf("%d", v)
}

func summarySheet(f *xlsx.File, r *report.Report) error {
	sheet, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}
	addRow(sheet, "Family", r.Family)
	addRow(sheet, "Report date", r.Current.String())
	addRow(sheet, "Compared to", r.Previous.String())
	addRow(sheet)
	addRow(sheet, "", "Current", "Previous", "Growth")
	addRow(sheet, "Official downloads", num(r.OfficialCurrent), num(r.OfficialPrevious), num(r.OfficialGrowth))
	addRow(sheet, "Derivative downloads", num(r.DerivativeCurrent), num(r.DerivativePrevious), num(r.DerivativeGrowth))
	addRow(sheet)
	addRow(sheet, "New models", num(int64(len(r.NewModels))))
	addRow(sheet, "New derivatives", num(int64(r.NewDerivativeCount)))
	addRow(sheet, "Removed models", num(int64(len(r.Removed))))
	addRow(sheet, "Decrease warnings", num(int64(len(r.Warnings))))
	return nil
}

func platformsSheet(f *xlsx.File, r *report.Report) error {
	sheet, err := f.AddSheet("Platforms")
	if err != nil {
		return eris.Wrap(err, "export: add platforms sheet")
	}
	addRow(sheet, "Platform", "Models", "Current", "Previous", "Delta")
	for _, p := range r.Platforms {
		addRow(sheet, p.DisplayName, num(int64(p.Models)), num(p.Current), num(p.Previous), num(p.Delta))
	}
	return nil
}

func leaderboardSheet(f *xlsx.File, r *report.Report) error {
	sheet, err := f.AddSheet("Leaderboards")
	if err != nil {
		return eris.Wrap(err, "export: add leaderboards sheet")
	}
	writeEntries := func(title string, entries []report.Entry) {
		if len(entries) == 0 {
			return
		}
		addRow(sheet, title)
		addRow(sheet, "Platform", "Publisher", "Model", "Current", "Previous", "Delta")
		for _, e := range entries {
			addRow(sheet, e.Identity.Platform, e.Identity.Publisher, e.Identity.ModelName,
				num(e.Current), num(e.Previous), num(e.Delta))
		}
		addRow(sheet)
	}
	writeEntries("Top official by total", r.TopOfficialByTotal)
	writeEntries("Top official by delta", r.TopOfficialByDelta)
	for _, pl := range r.PlatformLeaders {
		writeEntries(pl.Platform+": top official by total", pl.TopOfficialByTotal)
		writeEntries(pl.Platform+": top official by delta", pl.TopOfficialByDelta)
		writeEntries(pl.Platform+": top derivative by total", pl.TopDerivativeByTotal)
		writeEntries(pl.Platform+": top derivative by delta", pl.TopDerivativeByDelta)
	}
	return nil
}

func newModelsSheet(f *xlsx.File, r *report.Report) error {
	sheet, err := f.AddSheet("New Models")
	if err != nil {
		return eris.Wrap(err, "export: add new models sheet")
	}
	addRow(sheet, "Publisher", "Model", "Kind", "Official", "Downloads")
	for _, m := range r.NewModels {
		official := "no"
		if m.Official {
			official = "yes"
		}
		addRow(sheet, m.Publisher, m.ModelName, string(m.Kind), official, num(m.Count))
	}
	return nil
}

func removedSheet(f *xlsx.File, r *report.Report) error {
	sheet, err := f.AddSheet("Removed")
	if err != nil {
		return eris.Wrap(err, "export: add removed sheet")
	}
	addRow(sheet, "Platform", "Publisher", "Model", "Last seen", "Last count")
	for _, m := range r.Removed {
		addRow(sheet, m.Identity.Platform, m.Identity.Publisher, m.Identity.ModelName,
			m.LastSeen.String(), num(m.LastCount))
	}
	return nil
}

func warningsSheet(f *xlsx.File, r *report.Report) error {
	sheet, err := f.AddSheet("Warnings")
	if err != nil {
		return eris.Wrap(err, "export: add warnings sheet")
	}
	addRow(sheet, "Platform", "Publisher", "Model", "Earlier day", "Later day", "Earlier count", "Later count", "Delta")
	for _, w := range r.Warnings {
		addRow(sheet, w.Identity.Platform, w.Identity.Publisher, w.Identity.ModelName,
			w.EarlierDay.String(), w.LaterDay.String(), num(w.EarlierSeen), num(w.LaterSeen), num(w.Delta))
	}
	return nil
}
