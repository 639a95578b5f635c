package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDay(t *testing.T) {
	d, err := ParseDay("2026-01-16")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-16", d.String())

	_, err = ParseDay("16/01/2026")
	assert.Error(t, err)

	_, err = ParseDay("")
	assert.Error(t, err)
}

func TestDayOrdering(t *testing.T) {
	d1, _ := ParseDay("2026-01-09")
	d2, _ := ParseDay("2026-01-16")
	assert.True(t, d1.Before(d2))
	assert.False(t, d2.Before(d1))
	assert.False(t, d1.Before(d1))
}

func TestDayOf(t *testing.T) {
	ts := time.Date(2026, 8, 29, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, Day("2026-08-29"), DayOf(ts))
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int64
	}{
		{"plain integer", "1234", 1234},
		{"thousands separators", "1,234,567", 1234567},
		{"whitespace", "  42 ", 42},
		{"empty", "", 0},
		{"missing marker none", "none", 0},
		{"missing marker nan", "NaN", 0},
		{"missing marker null", "null", 0},
		{"garbage", "a lot", 0},
		{"negative clamped", "-5", 0},
		{"simplified K", "1.2K", 1200},
		{"simplified lowercase k", "3k", 3000},
		{"simplified M", "2.5M", 2500000},
		{"simplified B", "1B", 1000000000},
		{"float without suffix", "12.7", 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCount(tt.in))
		})
	}
}

func TestSourcePriorityRank(t *testing.T) {
	assert.Equal(t, 3, SourceBoth.Rank())
	assert.Equal(t, 2, SourceXref.Rank())
	assert.Equal(t, 1, SourceSearch.Rank())
	assert.Equal(t, 0, SourcePriority("").Rank())
	assert.Equal(t, 0, SourcePriority("manual").Rank())
}

func TestIsMissing(t *testing.T) {
	assert.True(t, IsMissing(""))
	assert.True(t, IsMissing("  "))
	assert.True(t, IsMissing("None"))
	assert.True(t, IsMissing("NAN"))
	assert.True(t, IsMissing("null"))
	assert.False(t, IsMissing("baidu/ERNIE-4.5-0.3B-PT"))
	assert.False(t, IsMissing("0"))
}

func TestObservationHelpers(t *testing.T) {
	obs := Observation{
		Day:            "2026-01-16",
		Platform:       "huggingface",
		ModelName:      "ERNIE-4.5-0.3B-PT",
		Publisher:      "baidu",
		DownloadCount:  "1,500",
		DeclaredParent: "none",
	}
	assert.Equal(t, int64(1500), obs.Count())
	assert.False(t, obs.HasParent())

	obs.DeclaredParent = "baidu/ERNIE-4.5-0.3B-PT"
	assert.True(t, obs.HasParent())

	id := obs.Identity()
	assert.Equal(t, Identity{Platform: "huggingface", Publisher: "baidu", ModelName: "ERNIE-4.5-0.3B-PT"}, id)
	assert.Equal(t, Key{Publisher: "baidu", ModelName: "ERNIE-4.5-0.3B-PT"}, id.Key())
}

func TestValidKind(t *testing.T) {
	for _, k := range []string{"original", "finetune", "adapter", "lora", "merge", "quantized", "other"} {
		assert.True(t, ValidKind(k), k)
	}
	assert.False(t, ValidKind(""))
	assert.False(t, ValidKind("distilled"))
}
