package model

import (
	"strconv"
	"strings"
	"time"
)

// Day is a naive calendar day in YYYY-MM-DD form. Observations are keyed by
// day, not timestamp; ISO form keeps string comparison equal to date order.
type Day string

const dayLayout = "2006-01-02"

// ParseDay validates a YYYY-MM-DD string and returns it as a Day.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return "", err
	}
	return Day(t.Format(dayLayout)), nil
}

// DayOf truncates a time to its calendar day.
func DayOf(t time.Time) Day {
	return Day(t.Format(dayLayout))
}

// Today returns the current calendar day.
func Today() Day {
	return DayOf(time.Now())
}

// Time returns the midnight time for the day. Invalid days return the zero time.
func (d Day) Time() time.Time {
	t, _ := time.Parse(dayLayout, string(d))
	return t
}

func (d Day) String() string { return string(d) }

// Before reports whether d is an earlier day than other.
func (d Day) Before(other Day) bool { return d < other }

// SourcePriority tags how an observation was discovered. It is used only as a
// tie-break between same-day observations for the same model: a row found via
// both the cross-reference walk and keyword search outranks a cross-reference
// row, which outranks a plain search hit.
type SourcePriority string

const (
	SourceBoth   SourcePriority = "xref+search"
	SourceXref   SourcePriority = "xref"
	SourceSearch SourcePriority = "search"
)

// Rank returns the numeric tie-break rank for a source priority. Unknown or
// missing values rank lowest.
func (p SourcePriority) Rank() int {
	switch p {
	case SourceBoth:
		return 3
	case SourceXref:
		return 2
	case SourceSearch:
		return 1
	default:
		return 0
	}
}

// DerivationKind labels how a model relates to its declared parent.
type DerivationKind string

const (
	KindOriginal  DerivationKind = "original"
	KindFinetune  DerivationKind = "finetune"
	KindAdapter   DerivationKind = "adapter"
	KindLoRA      DerivationKind = "lora"
	KindMerge     DerivationKind = "merge"
	KindQuantized DerivationKind = "quantized"
	KindOther     DerivationKind = "other"
)

// ValidKind reports whether s is one of the known derivation kinds.
func ValidKind(s string) bool {
	switch DerivationKind(s) {
	case KindOriginal, KindFinetune, KindAdapter, KindLoRA, KindMerge, KindQuantized, KindOther:
		return true
	}
	return false
}

// Observation is one raw scrape record for one model on one calendar day.
// Rows are immutable once appended; re-scrapes produce additional rows and
// conflicts are resolved at query time, never at write time.
type Observation struct {
	RowID          int64          `json:"row_id" csv:"-"`
	Day            Day            `json:"date" csv:"date"`
	Platform       string         `json:"platform" csv:"platform"`
	ModelName      string         `json:"model_name" csv:"model_name"`
	Publisher      string         `json:"publisher" csv:"publisher"`
	DownloadCount  string         `json:"download_count" csv:"download_count"` // text-encoded, possibly malformed
	DeclaredParent string         `json:"declared_parent,omitempty" csv:"declared_parent"`
	DerivationKind string         `json:"derivation_kind,omitempty" csv:"derivation_kind"`
	ReleaseFamily  string         `json:"release_family,omitempty" csv:"release_family"`
	SourcePriority SourcePriority `json:"source_priority,omitempty" csv:"source_priority"`
	Tags           []string       `json:"tags,omitempty" csv:"-"`
	Likes          string         `json:"likes,omitempty" csv:"likes"`
	SourceURL      string         `json:"source_url,omitempty" csv:"source_url"`
	SearchKeyword  string         `json:"search_keyword,omitempty" csv:"search_keyword"`
	CreatedAt      string         `json:"created_at,omitempty" csv:"created_at"`
	LastModified   string         `json:"last_modified,omitempty" csv:"last_modified"`
	FetchedAt      time.Time      `json:"fetched_at,omitempty" csv:"-"` // debugging only, never ordering
}

// Identity returns the (platform, publisher, model_name) triple for the row.
// Callers must normalize before using identities as grouping keys.
func (o Observation) Identity() Identity {
	return Identity{Platform: o.Platform, Publisher: o.Publisher, ModelName: o.ModelName}
}

// HasParent reports whether the observation carries a usable declared parent.
func (o Observation) HasParent() bool {
	return !IsMissing(o.DeclaredParent)
}

// Count returns the download count coerced to an integer.
func (o Observation) Count() int64 {
	return ParseCount(o.DownloadCount)
}

// Identity uniquely refers to one tracked model on one platform.
type Identity struct {
	Platform  string `json:"platform"`
	Publisher string `json:"publisher"`
	ModelName string `json:"model_name"`
}

// Key is the (publisher, model_name) pair used for cross-date model diffing
// on the reference platform, where identity is stable across sessions.
type Key struct {
	Publisher string `json:"publisher"`
	ModelName string `json:"model_name"`
}

// Key returns the platform-independent portion of the identity.
func (id Identity) Key() Key {
	return Key{Publisher: id.Publisher, ModelName: id.ModelName}
}

// Snapshot is the single best observation per identity selected by the
// reconciliation layer for one query. It is derived, never persisted.
type Snapshot struct {
	Observation
	AsOf bool `json:"as_of,omitempty"` // true when carried forward to a cutoff day
}

// IsMissing reports whether a text field holds the explicit missing-value
// marker. Besides the empty string, markers written by earlier importers
// ("none", "nan", "null") are recognized.
func IsMissing(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "nan", "null":
		return true
	}
	return false
}

// ParseCount coerces a text-encoded download count to an integer. Malformed
// or missing input yields 0: a model with an unparsable count is still
// present, just countless. Thousands separators and simplified unit suffixes
// ("1.2K", "3M") are handled; a raw decrease caused by a suffix parsed wrong
// upstream is the negative-growth detector's job to surface, not ours to
// second-guess.
func ParseCount(s string) int64 {
	s = strings.TrimSpace(s)
	if IsMissing(s) {
		return 0
	}
	s = strings.ReplaceAll(s, ",", "")

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0
		}
		return n
	}

	// Simplified suffix forms.
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "K"), strings.HasSuffix(s, "k"):
		mult = 1_000
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M"), strings.HasSuffix(s, "m"):
		mult = 1_000_000
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "B"), strings.HasSuffix(s, "b"):
		mult = 1_000_000_000
		s = s[:len(s)-1]
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return 0
	}
	return int64(f * float64(mult))
}
