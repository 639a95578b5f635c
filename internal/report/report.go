// Package report computes the weekly comparison report for one release
// family: official and derivative totals, per-platform summaries,
// leaderboards, new/removed model diffs and anomaly warnings.
package report

import (
	"github.com/rotisserie/eris"

	"github.com/modelpulse/tracker-cli/internal/model"
)

// ErrNoData signals that a requested report window has no observations for
// the family. Callers must surface it distinctly; a zero-filled report would
// look plausible and be wrong.
var ErrNoData = eris.New("report: no data for window")

// PlatformSummary is one platform's row in the report, zero-filled when the
// platform has no observations on the report day.
type PlatformSummary struct {
	Platform    string `json:"platform"`
	DisplayName string `json:"display_name"`
	Models      int    `json:"models"`
	Current     int64  `json:"current"`
	Previous    int64  `json:"previous"`
	Delta       int64  `json:"delta"`
}

// Entry is one leaderboard position.
type Entry struct {
	Identity model.Identity `json:"identity"`
	Current  int64          `json:"current"`
	Previous int64          `json:"previous"`
	Delta    int64          `json:"delta"`
}

// PlatformLeaders holds a platform's top official and, where the platform
// tracks derivatives, top derivative models.
type PlatformLeaders struct {
	Platform             string  `json:"platform"`
	TopOfficialByTotal   []Entry `json:"top_official_by_total,omitempty"`
	TopOfficialByDelta   []Entry `json:"top_official_by_delta,omitempty"`
	TopDerivativeByTotal []Entry `json:"top_derivative_by_total,omitempty"`
	TopDerivativeByDelta []Entry `json:"top_derivative_by_delta,omitempty"`
}

// NewModel is a model present on the reference platform on the report day
// but absent the previous one.
type NewModel struct {
	Publisher string               `json:"publisher"`
	ModelName string               `json:"model_name"`
	Kind      model.DerivationKind `json:"kind"`
	Official  bool                 `json:"official"`
	Count     int64                `json:"count"`
}

// RemovedModel is an identity with history up to the report day but no
// observation on the day itself.
type RemovedModel struct {
	Identity  model.Identity `json:"identity"`
	LastSeen  model.Day      `json:"last_seen"`
	LastCount int64          `json:"last_count"`
}

// DecreaseWarning flags a raw count that went down between two observed
// days. Decreases usually mean a scraping artifact worth investigating, so
// they are surfaced, never clamped.
type DecreaseWarning struct {
	Identity    model.Identity `json:"identity"`
	EarlierDay  model.Day      `json:"earlier_day"`
	LaterDay    model.Day      `json:"later_day"`
	EarlierSeen int64          `json:"earlier_seen"`
	LaterSeen   int64          `json:"later_seen"`
	Delta       int64          `json:"delta"`
}

// Report is the full weekly comparison result. Identical store contents and
// parameters always produce an identical Report.
type Report struct {
	Family   string    `json:"family"`
	Current  model.Day `json:"current"`
	Previous model.Day `json:"previous"`

	// Official totals come straight from the exact-date snapshots: a missing
	// day for an official model is a real signal, not something to smooth
	// over.
	OfficialCurrent  int64 `json:"official_current"`
	OfficialPrevious int64 `json:"official_previous"`
	OfficialGrowth   int64 `json:"official_growth"`

	// Derivative totals sum each identity's historical-maximum count up to
	// the respective day, tolerating platforms with an on/off scrape cadence.
	DerivativeCurrent  int64 `json:"derivative_current"`
	DerivativePrevious int64 `json:"derivative_previous"`
	DerivativeGrowth   int64 `json:"derivative_growth"`

	Platforms []PlatformSummary `json:"platforms"`

	TopOfficialByTotal []Entry           `json:"top_official_by_total"`
	TopOfficialByDelta []Entry           `json:"top_official_by_delta"`
	PlatformLeaders    []PlatformLeaders `json:"platform_leaders"`

	NewModels          []NewModel                       `json:"new_models"`
	NewByKind          map[model.DerivationKind]int     `json:"new_by_kind,omitempty"`
	NewDerivativeCount int                              `json:"new_derivative_count"`
	Removed            []RemovedModel                   `json:"removed"`
	Warnings           []DecreaseWarning                `json:"warnings"`
}
