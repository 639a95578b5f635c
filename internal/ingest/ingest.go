// Package ingest parses bulk observation files (CSV, XLSX) into rows ready
// for appending. Imports are additive: existing rows are never touched.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/modelpulse/tracker-cli/internal/model"
)

// Result summarizes one import.
type Result struct {
	Read    int
	Valid   int
	Skipped []string // per-row skip reasons
}

// validate checks the required identity fields; optional fields may carry
// missing markers, a broken identity makes the row unusable.
func validate(obs model.Observation) error {
	if _, err := model.ParseDay(string(obs.Day)); err != nil {
		return eris.Wrapf(err, "bad date %q", obs.Day)
	}
	if model.IsMissing(obs.Platform) {
		return eris.New("missing platform")
	}
	if model.IsMissing(obs.ModelName) {
		return eris.New("missing model_name")
	}
	if model.IsMissing(obs.Publisher) {
		return eris.New("missing publisher")
	}
	return nil
}

// CSV reads observation rows from CSV with a header line matching the
// export format.
func CSV(r io.Reader) ([]model.Observation, *Result, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	dec, err := csvutil.NewDecoder(reader)
	if err != nil {
		return nil, nil, eris.Wrap(err, "ingest: read csv header")
	}

	res := &Result{}
	var rows []model.Observation
	for {
		var obs model.Observation
		if err := dec.Decode(&obs); err == io.EOF {
			break
		} else if err != nil {
			return nil, nil, eris.Wrapf(err, "ingest: csv row %d", res.Read+1)
		}
		res.Read++
		if err := validate(obs); err != nil {
			res.Skipped = append(res.Skipped, fmt.Sprintf("row %d: %s", res.Read, strings.SplitN(err.Error(), ":", 2)[0]))
			continue
		}
		res.Valid++
		rows = append(rows, obs)
	}
	return rows, res, nil
}

// XLSX reads observation rows from the first sheet of an XLSX workbook.
// The first row must be a header using the CSV column names.
func XLSX(path string) ([]model.Observation, *Result, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "ingest: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, nil, eris.New("ingest: xlsx has no sheets")
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, &Result{}, nil
	}

	col := make(map[string]int)
	for i, cell := range sheet.Rows[0].Cells {
		col[strings.TrimSpace(cell.String())] = i
	}
	field := func(row *xlsx.Row, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row.Cells) {
			return ""
		}
		return strings.TrimSpace(row.Cells[i].String())
	}

	res := &Result{}
	var rows []model.Observation
	for n, row := range sheet.Rows[1:] {
		obs := model.Observation{
			Day:            model.Day(field(row, "date")),
			Platform:       field(row, "platform"),
			ModelName:      field(row, "model_name"),
			Publisher:      field(row, "publisher"),
			DownloadCount:  field(row, "download_count"),
			DeclaredParent: field(row, "declared_parent"),
			DerivationKind: field(row, "derivation_kind"),
			ReleaseFamily:  field(row, "release_family"),
			SourcePriority: model.SourcePriority(field(row, "source_priority")),
			Likes:          field(row, "likes"),
			SourceURL:      field(row, "source_url"),
			SearchKeyword:  field(row, "search_keyword"),
			CreatedAt:      field(row, "created_at"),
			LastModified:   field(row, "last_modified"),
		}
		res.Read++
		if err := validate(obs); err != nil {
			res.Skipped = append(res.Skipped, fmt.Sprintf("row %d: %s", n+2, strings.SplitN(err.Error(), ":", 2)[0]))
			continue
		}
		res.Valid++
		rows = append(rows, obs)
	}
	return rows, res, nil
}
