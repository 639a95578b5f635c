package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/modelpulse/tracker-cli/internal/model"
	"github.com/modelpulse/tracker-cli/internal/report"
)

func TestFormatReport_Full(t *testing.T) {
	r := &report.Report{
		Family:             "ERNIE-4.5",
		Current:            "2026-08-21",
		Previous:           "2026-08-14",
		OfficialCurrent:    650,
		OfficialPrevious:   500,
		OfficialGrowth:     150,
		DerivativeCurrent:  50,
		DerivativePrevious: 40,
		DerivativeGrowth:   10,
		Platforms: []report.PlatformSummary{
			{Platform: "huggingface", DisplayName: "Hugging Face", Models: 3, Current: 700, Previous: 540, Delta: 160},
			{Platform: "gitee", DisplayName: "Gitee"},
		},
		TopOfficialByTotal: []report.Entry{
			{Identity: model.Identity{Platform: "huggingface", Publisher: "baidu", ModelName: "baidu/ERNIE-4.5-300B"}, Current: 650, Previous: 500, Delta: 150},
		},
		NewModels: []report.NewModel{
			{Publisher: "someone", ModelName: "ernie-lora", Kind: model.KindLoRA, Count: 12},
		},
		NewDerivativeCount: 1,
		Removed: []report.RemovedModel{
			{Identity: model.Identity{Platform: "modelscope", Publisher: "gone", ModelName: "old"}, LastSeen: "2026-08-07", LastCount: 9},
		},
		Warnings: []report.DecreaseWarning{
			{Identity: model.Identity{Platform: "huggingface", Publisher: "x", ModelName: "y"}, EarlierDay: "2026-08-14", LaterDay: "2026-08-21", EarlierSeen: 100, LaterSeen: 80, Delta: -20},
		},
	}

	var buf bytes.Buffer
	formatReport(&buf, r)
	out := buf.String()

	assert.Contains(t, out, "ERNIE-4.5: 2026-08-21 vs 2026-08-14")
	assert.Contains(t, out, "Official")
	assert.Contains(t, out, "+150")
	assert.Contains(t, out, "Hugging Face")
	assert.Contains(t, out, "Gitee")
	assert.Contains(t, out, "Top official models by total:")
	assert.Contains(t, out, "baidu/ERNIE-4.5-300B")
	assert.Contains(t, out, "New models: 1 (1 derivatives)")
	assert.Contains(t, out, "+ someone/ernie-lora (lora, 12 downloads)")
	assert.Contains(t, out, "- modelscope gone/old (last seen 2026-08-07, 9 downloads)")
	assert.Contains(t, out, "! huggingface x/y: 100 -> 80 between 2026-08-14 and 2026-08-21")
}

func TestFormatReport_MinimalOmitsEmptySections(t *testing.T) {
	r := &report.Report{
		Family:   "ERNIE-4.5",
		Current:  "2026-08-21",
		Previous: "2026-08-14",
	}

	var buf bytes.Buffer
	formatReport(&buf, r)
	out := buf.String()

	assert.Contains(t, out, "New models: 0")
	assert.NotContains(t, out, "Removed models")
	assert.NotContains(t, out, "Download count decreases")
	assert.NotContains(t, out, "Top official")
}
