package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelpulse/tracker-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func obs(day, platform, name, publisher, count string) model.Observation {
	return model.Observation{
		Day:           model.Day(day),
		Platform:      platform,
		ModelName:     name,
		Publisher:     publisher,
		DownloadCount: count,
	}
}

// --- Append ---

func TestSQLite_Append_CountsRows(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.Append(ctx, []model.Observation{
		obs("2026-08-21", "huggingface", "model-a", "Acme", "100"),
		obs("2026-08-21", "huggingface", "model-b", "Acme", "200"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	total, err := st.CountObservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestSQLite_Append_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)

	n, err := st.Append(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_Append_RoundTripsAllFields(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	in := model.Observation{
		Day:            "2026-08-21",
		Platform:       "huggingface",
		ModelName:      "model-a",
		Publisher:      "Acme",
		DownloadCount:  "1,234",
		DeclaredParent: "Acme/base-model",
		DerivationKind: "lora",
		ReleaseFamily:  "ERNIE-4.5",
		SourcePriority: model.SourceBoth,
		Tags:           []string{"lora", "base_model:adapter:Acme/base-model"},
		Likes:          "42",
		SourceURL:      "https://example.com/model-a",
		SearchKeyword:  "ernie",
		CreatedAt:      "2026-01-01T00:00:00Z",
		LastModified:   "2026-08-20T12:00:00Z",
		FetchedAt:      time.Date(2026, 8, 21, 6, 0, 0, 0, time.UTC),
	}
	_, err := st.Append(ctx, []model.Observation{in})
	require.NoError(t, err)

	all, err := st.AllObservations(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	got := all[0]
	assert.NotZero(t, got.RowID)
	got.RowID = 0
	got.FetchedAt = in.FetchedAt // driver round-trip loses sub-second precision
	assert.Equal(t, in, got)
}

// --- ResolveExact priority cascade ---

func TestSQLite_ResolveExact_PrefersDeclaredParent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rich := obs("2026-08-21", "huggingface", "model-a", "Acme", "10")
	rich.DeclaredParent = "Acme/base"
	poor := obs("2026-08-21", "huggingface", "model-a", "Acme", "9999")
	poor.SourcePriority = model.SourceBoth

	_, err := st.Append(ctx, []model.Observation{poor, rich})
	require.NoError(t, err)

	snaps, err := st.ResolveExact(ctx, "2026-08-21", Filter{})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "Acme/base", snaps[0].DeclaredParent)
	assert.Equal(t, "10", snaps[0].DownloadCount)
}

func TestSQLite_ResolveExact_ParentPlaceholdersDoNotCount(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	fake := obs("2026-08-21", "huggingface", "model-a", "Acme", "10")
	fake.DeclaredParent = "None"
	better := obs("2026-08-21", "huggingface", "model-a", "Acme", "20")
	better.SourcePriority = model.SourceSearch

	_, err := st.Append(ctx, []model.Observation{fake, better})
	require.NoError(t, err)

	snaps, err := st.ResolveExact(ctx, "2026-08-21", Filter{})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "20", snaps[0].DownloadCount)
}

func TestSQLite_ResolveExact_SourcePriorityTieBreak(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	search := obs("2026-08-21", "huggingface", "model-a", "Acme", "500")
	search.SourcePriority = model.SourceSearch
	xref := obs("2026-08-21", "huggingface", "model-a", "Acme", "400")
	xref.SourcePriority = model.SourceXref
	both := obs("2026-08-21", "huggingface", "model-a", "Acme", "300")
	both.SourcePriority = model.SourceBoth

	_, err := st.Append(ctx, []model.Observation{search, xref, both})
	require.NoError(t, err)

	snaps, err := st.ResolveExact(ctx, "2026-08-21", Filter{})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, model.SourceBoth, snaps[0].SourcePriority)
	assert.Equal(t, "300", snaps[0].DownloadCount)
}

func TestSQLite_ResolveExact_CountTieBreak(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.Append(ctx, []model.Observation{
		obs("2026-08-21", "huggingface", "model-a", "Acme", "100"),
		obs("2026-08-21", "huggingface", "model-a", "Acme", "1,500"),
		obs("2026-08-21", "huggingface", "model-a", "Acme", "900"),
	})
	require.NoError(t, err)

	snaps, err := st.ResolveExact(ctx, "2026-08-21", Filter{})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "1,500", snaps[0].DownloadCount)
}

func TestSQLite_ResolveExact_RowIDTieBreak(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first := obs("2026-08-21", "huggingface", "model-a", "Acme", "100")
	first.SourceURL = "https://example.com/first"
	second := obs("2026-08-21", "huggingface", "model-a", "Acme", "100")
	second.SourceURL = "https://example.com/second"

	_, err := st.Append(ctx, []model.Observation{first, second})
	require.NoError(t, err)

	snaps, err := st.ResolveExact(ctx, "2026-08-21", Filter{})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "https://example.com/second", snaps[0].SourceURL)
}

func TestSQLite_ResolveExact_SeparateIdentitiesKept(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.Append(ctx, []model.Observation{
		obs("2026-08-21", "huggingface", "model-a", "Acme", "100"),
		obs("2026-08-21", "huggingface", "model-b", "Acme", "200"),
		obs("2026-08-21", "modelscope", "model-a", "Acme", "300"),
	})
	require.NoError(t, err)

	snaps, err := st.ResolveExact(ctx, "2026-08-21", Filter{})
	require.NoError(t, err)
	assert.Len(t, snaps, 3)
}

func TestSQLite_ResolveExact_PlatformFilter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.Append(ctx, []model.Observation{
		obs("2026-08-21", "huggingface", "model-a", "Acme", "100"),
		obs("2026-08-21", "modelscope", "model-a", "Acme", "300"),
	})
	require.NoError(t, err)

	snaps, err := st.ResolveExact(ctx, "2026-08-21", Filter{Platforms: []string{"modelscope"}})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "modelscope", snaps[0].Platform)
}

func TestSQLite_ResolveExact_EmptyDay(t *testing.T) {
	st := newTestSQLiteStore(t)

	snaps, err := st.ResolveExact(context.Background(), "2026-08-21", Filter{})
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

// --- ResolveAsOf ---

func TestSQLite_ResolveAsOf_CarriesForwardLatestValue(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.Append(ctx, []model.Observation{
		obs("2026-08-14", "huggingface", "model-a", "Acme", "100"),
		obs("2026-08-14", "huggingface", "model-b", "Acme", "50"),
		obs("2026-08-21", "huggingface", "model-a", "Acme", "150"),
	})
	require.NoError(t, err)

	snaps, err := st.ResolveAsOf(ctx, "2026-08-21", Filter{})
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	byName := map[string]model.Snapshot{}
	for _, sn := range snaps {
		byName[sn.ModelName] = sn
	}
	assert.Equal(t, "150", byName["model-a"].DownloadCount)
	assert.Equal(t, "50", byName["model-b"].DownloadCount)
	// Carried-forward rows report the cutoff, not the day they were scraped.
	assert.Equal(t, model.Day("2026-08-21"), byName["model-b"].Day)
	assert.True(t, byName["model-b"].AsOf)
}

func TestSQLite_ResolveAsOf_SkipsMissingCounts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.Append(ctx, []model.Observation{
		obs("2026-08-14", "huggingface", "model-a", "Acme", "100"),
		obs("2026-08-21", "huggingface", "model-a", "Acme", "None"),
		obs("2026-08-21", "huggingface", "model-b", "Acme", ""),
	})
	require.NoError(t, err)

	snaps, err := st.ResolveAsOf(ctx, "2026-08-21", Filter{})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "model-a", snaps[0].ModelName)
	assert.Equal(t, "100", snaps[0].DownloadCount)
}

func TestSQLite_ResolveAsOf_IgnoresFutureDays(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.Append(ctx, []model.Observation{
		obs("2026-08-14", "huggingface", "model-a", "Acme", "100"),
		obs("2026-08-28", "huggingface", "model-a", "Acme", "999"),
	})
	require.NoError(t, err)

	snaps, err := st.ResolveAsOf(ctx, "2026-08-21", Filter{})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "100", snaps[0].DownloadCount)
}

// --- ResolveHistory ---

func TestSQLite_ResolveHistory_OneRowPerIdentityPerDay(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.Append(ctx, []model.Observation{
		obs("2026-08-14", "huggingface", "model-a", "Acme", "100"),
		obs("2026-08-14", "huggingface", "model-a", "Acme", "120"),
		obs("2026-08-21", "huggingface", "model-a", "Acme", "90"),
	})
	require.NoError(t, err)

	snaps, err := st.ResolveHistory(ctx, "2026-08-21", Filter{})
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, model.Day("2026-08-14"), snaps[0].Day)
	assert.Equal(t, "120", snaps[0].DownloadCount)
	assert.Equal(t, model.Day("2026-08-21"), snaps[1].Day)
	assert.Equal(t, "90", snaps[1].DownloadCount)
}

// --- Deduplicate ---

func TestSQLite_DeduplicateIdentities_KeepsResolutionWinner(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	winner := obs("2026-08-21", "huggingface", "model-a", "Acme", "10")
	winner.DeclaredParent = "Acme/base"
	loser := obs("2026-08-21", "huggingface", "model-a", "Acme", "9999")

	_, err := st.Append(ctx, []model.Observation{loser, winner})
	require.NoError(t, err)

	removed, err := st.DeduplicateIdentities(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	all, err := st.AllObservations(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Acme/base", all[0].DeclaredParent)
}

func TestSQLite_DeduplicateIdentities_NoDuplicates(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.Append(ctx, []model.Observation{
		obs("2026-08-21", "huggingface", "model-a", "Acme", "100"),
		obs("2026-08-21", "huggingface", "model-b", "Acme", "200"),
	})
	require.NoError(t, err)

	removed, err := st.DeduplicateIdentities(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

// --- Metadata ---

func TestSQLite_ListDays_NewestFirst(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.Append(ctx, []model.Observation{
		obs("2026-08-14", "huggingface", "model-a", "Acme", "100"),
		obs("2026-08-21", "huggingface", "model-a", "Acme", "150"),
		obs("2026-08-21", "modelscope", "model-a", "Acme", "150"),
	})
	require.NoError(t, err)

	days, err := st.ListDays(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Day{"2026-08-21", "2026-08-14"}, days)
}

func TestSQLite_PlatformCounts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.Append(ctx, []model.Observation{
		obs("2026-08-21", "huggingface", "model-a", "Acme", "100"),
		obs("2026-08-21", "huggingface", "model-b", "Acme", "200"),
		obs("2026-08-21", "modelscope", "model-a", "Acme", "300"),
	})
	require.NoError(t, err)

	counts, err := st.PlatformCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"huggingface": 2, "modelscope": 1}, counts)
}

func TestSQLite_LastModelCount_Upsert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, ok, err := st.LastModelCount(ctx, "huggingface")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.SetLastModelCount(ctx, "huggingface", 1200))
	require.NoError(t, st.SetLastModelCount(ctx, "huggingface", 1250))

	n, ok, err := st.LastModelCount(ctx, "huggingface")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1250), n)
}

func TestSQLite_ScrapeRuns_RecordAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	started := time.Date(2026, 8, 21, 6, 0, 0, 0, time.UTC)
	run := ScrapeRun{
		ID:        "run-1",
		Platform:  "huggingface",
		Adapter:   "hub",
		Status:    "running",
		StartedAt: started,
	}
	require.NoError(t, st.RecordScrapeRun(ctx, run))

	done := started.Add(2 * time.Minute)
	run.Status = "ok"
	run.RowsAppended = 42
	run.CompletedAt = &done
	require.NoError(t, st.RecordScrapeRun(ctx, run))

	runs, err := st.ListScrapeRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "ok", runs[0].Status)
	assert.Equal(t, int64(42), runs[0].RowsAppended)
	require.NotNil(t, runs[0].CompletedAt)
}

func TestSQLite_PurgeDay(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.Append(ctx, []model.Observation{
		obs("2026-08-14", "huggingface", "model-a", "Acme", "100"),
		obs("2026-08-21", "huggingface", "model-a", "Acme", "150"),
	})
	require.NoError(t, err)

	n, err := st.PurgeDay(ctx, "2026-08-14")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	days, err := st.ListDays(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Day{"2026-08-21"}, days)
}

func TestSQLite_PurgePlatform(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.Append(ctx, []model.Observation{
		obs("2026-08-21", "huggingface", "model-a", "Acme", "100"),
		obs("2026-08-21", "modelscope", "model-a", "Acme", "300"),
	})
	require.NoError(t, err)

	n, err := st.PurgePlatform(ctx, "modelscope")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	counts, err := st.PlatformCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"huggingface": 1}, counts)
}
