// Package store persists raw scrape observations and implements the
// reconciliation query layer on top of them. The table is append-only:
// re-scrapes and corrections land as new rows and every conflict is resolved
// at query time by a deterministic priority cascade, never at write time.
package store

import (
	"context"
	"time"

	"github.com/modelpulse/tracker-cli/internal/model"
)

// Filter restricts resolution queries to a subset of platforms. An empty
// filter matches everything.
type Filter struct {
	Platforms []string
}

// ScrapeRun records one adapter invocation for operational visibility.
type ScrapeRun struct {
	ID           string     `json:"id"`
	Platform     string     `json:"platform"`
	Adapter      string     `json:"adapter"`
	RowsAppended int64      `json:"rows_appended"`
	Status       string     `json:"status"` // "ok" or "failed"
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Store defines the persistence interface for the tracker.
//
// Resolution queries implement the two reconciliation modes. Within one
// (date, platform, publisher, model_name) group the best row is chosen by,
// in strict order: a non-empty declared parent, higher source-priority rank,
// higher numeric download count, most recent insertion (row_id). An empty
// result is a valid "no data" outcome; only unreachable storage is an error.
type Store interface {
	// Append inserts raw observations. It never deduplicates.
	Append(ctx context.Context, rows []model.Observation) (int64, error)

	// ResolveExact returns the single best observation per identity among
	// observations whose date equals day.
	ResolveExact(ctx context.Context, day model.Day, f Filter) ([]model.Snapshot, error)

	// ResolveAsOf returns, per identity, the most recent per-day best row
	// with a valid download count dated on or before cutoff. The returned
	// snapshots carry the cutoff as their date: they are snapshots-as-of,
	// not real observations.
	ResolveAsOf(ctx context.Context, cutoff model.Day, f Filter) ([]model.Snapshot, error)

	// ResolveHistory returns the per-day best row for every (day, identity)
	// with date on or before cutoff. Feeds historical-maximum aggregation
	// and disappeared-model detection.
	ResolveHistory(ctx context.Context, cutoff model.Day, f Filter) ([]model.Snapshot, error)

	// ListDays returns all distinct observation days, most recent first.
	ListDays(ctx context.Context) ([]model.Day, error)

	// CountObservations returns the total number of raw rows.
	CountObservations(ctx context.Context) (int64, error)

	// PlatformCounts returns raw row counts per platform.
	PlatformCounts(ctx context.Context) (map[string]int64, error)

	// Model-count bookkeeping per platform, used by adapters to notice
	// listing-page regressions between runs.
	LastModelCount(ctx context.Context, platform string) (int64, bool, error)
	SetLastModelCount(ctx context.Context, platform string, count int64) error

	// Scrape run log.
	RecordScrapeRun(ctx context.Context, run ScrapeRun) error
	ListScrapeRuns(ctx context.Context, limit int) ([]ScrapeRun, error)

	// Administrative operations, operator-triggered only. They delete
	// exactly what they name and preserve every other row untouched.
	PurgeDay(ctx context.Context, day model.Day) (int64, error)
	PurgePlatform(ctx context.Context, platform string) (int64, error)
	// DeduplicateIdentities removes all but the cascade-best row per
	// (date, identity) group, reclaiming space after noisy re-scrapes.
	DeduplicateIdentities(ctx context.Context) (int64, error)

	// AllObservations returns every raw row in insertion order, for backup.
	AllObservations(ctx context.Context) ([]model.Observation, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
