package ingest

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/modelpulse/tracker-cli/internal/model"
)

func TestCSV_ParsesRows(t *testing.T) {
	in := strings.NewReader(`date,platform,model_name,publisher,download_count,declared_parent,derivation_kind,release_family,source_priority,likes,source_url,search_keyword,created_at,last_modified
2026-08-21,huggingface,ernie-4.5-gguf,CommunityX,1234,baidu/ERNIE-4.5-Base,quantized,ERNIE-4.5,xref+search,5,,,,
2026-08-21,gitee,ERNIE-4.5-300B,Baidu,900,,,,search,,,,,
`)

	rows, res, err := CSV(in)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Read)
	assert.Equal(t, 2, res.Valid)
	assert.Empty(t, res.Skipped)
	require.Len(t, rows, 2)

	assert.Equal(t, model.Day("2026-08-21"), rows[0].Day)
	assert.Equal(t, "baidu/ERNIE-4.5-Base", rows[0].DeclaredParent)
	assert.Equal(t, model.SourceBoth, rows[0].SourcePriority)
	assert.Equal(t, "Baidu", rows[1].Publisher)
}

func TestCSV_SkipsInvalidRows(t *testing.T) {
	in := strings.NewReader(`date,platform,model_name,publisher,download_count
not-a-date,huggingface,model-a,Acme,1
2026-08-21,,model-b,Acme,2
2026-08-21,huggingface,model-c,Acme,3
`)

	rows, res, err := CSV(in)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Read)
	assert.Equal(t, 1, res.Valid)
	assert.Len(t, res.Skipped, 2)
	require.Len(t, rows, 1)
	assert.Equal(t, "model-c", rows[0].ModelName)
}

func TestCSV_MalformedCountIsNotAnError(t *testing.T) {
	in := strings.NewReader(`date,platform,model_name,publisher,download_count
2026-08-21,huggingface,model-a,Acme,None
`)

	rows, res, err := CSV(in)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Valid)
	assert.Equal(t, "None", rows[0].DownloadCount)
}

func writeTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("observations")
	require.NoError(t, err)
	for _, cells := range rows {
		r := sheet.AddRow()
		for _, c := range cells {
			r.AddCell().SetString(c)
		}
	}
	path := filepath.Join(t.TempDir(), "import.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestXLSX_ParsesRows(t *testing.T) {
	path := writeTestXLSX(t, [][]string{
		{"date", "platform", "model_name", "publisher", "download_count", "declared_parent"},
		{"2026-08-21", "huggingface", "ernie-4.5-lora", "CommunityX", "42", "baidu/ERNIE-4.5-Base"},
		{"bad-date", "huggingface", "broken", "CommunityX", "1", ""},
	})

	rows, res, err := XLSX(path)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Read)
	assert.Equal(t, 1, res.Valid)
	assert.Len(t, res.Skipped, 1)
	require.Len(t, rows, 1)
	assert.Equal(t, "ernie-4.5-lora", rows[0].ModelName)
	assert.Equal(t, "baidu/ERNIE-4.5-Base", rows[0].DeclaredParent)
}

func TestXLSX_MissingFile(t *testing.T) {
	_, _, err := XLSX(filepath.Join(t.TempDir(), "nope.xlsx"))
	require.Error(t, err)
}
