package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/modelpulse/tracker-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS observations (
	row_id          INTEGER PRIMARY KEY AUTOINCREMENT,
	date            TEXT NOT NULL,
	platform        TEXT NOT NULL,
	model_name      TEXT NOT NULL,
	publisher       TEXT NOT NULL,
	download_count  TEXT NOT NULL DEFAULT '',
	declared_parent TEXT NOT NULL DEFAULT '',
	derivation_kind TEXT NOT NULL DEFAULT '',
	release_family  TEXT NOT NULL DEFAULT '',
	source_priority TEXT NOT NULL DEFAULT '',
	tags            TEXT NOT NULL DEFAULT '[]',
	likes           TEXT NOT NULL DEFAULT '',
	source_url      TEXT NOT NULL DEFAULT '',
	search_keyword  TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL DEFAULT '',
	last_modified   TEXT NOT NULL DEFAULT '',
	fetched_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS platform_stats (
	platform         TEXT PRIMARY KEY,
	last_model_count INTEGER NOT NULL,
	last_updated     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scrape_runs (
	id            TEXT PRIMARY KEY,
	platform      TEXT NOT NULL,
	adapter       TEXT NOT NULL,
	rows_appended INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL,
	error         TEXT NOT NULL DEFAULT '',
	started_at    DATETIME NOT NULL,
	completed_at  DATETIME
);

CREATE INDEX IF NOT EXISTS idx_observations_date ON observations(date);
CREATE INDEX IF NOT EXISTS idx_observations_platform ON observations(platform);
CREATE INDEX IF NOT EXISTS idx_observations_identity ON observations(platform, publisher, model_name);
CREATE INDEX IF NOT EXISTS idx_scrape_runs_started ON scrape_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const observationColumns = `row_id, date, platform, model_name, publisher, download_count,
	declared_parent, derivation_kind, release_family, source_priority, tags,
	likes, source_url, search_keyword, created_at, last_modified, fetched_at`

// Priority cascade for same-day re-scrape duplicates: information-rich rows
// first (declared parent present), then discovery authority, then the larger
// count, then newest insertion. The order must match the Postgres store and
// DeduplicateIdentities exactly or resolution stops being deterministic.
const sqliteRankedCTE = `
WITH ranked AS (
	SELECT %s,
		ROW_NUMBER() OVER (
			PARTITION BY date, platform, publisher, model_name
			ORDER BY
				CASE WHEN TRIM(declared_parent) != ''
					AND LOWER(TRIM(declared_parent)) NOT IN ('none', 'nan', 'null')
				THEN 1 ELSE 0 END DESC,
				CASE source_priority
					WHEN 'xref+search' THEN 3
					WHEN 'xref' THEN 2
					WHEN 'search' THEN 1
					ELSE 0
				END DESC,
				CAST(REPLACE(download_count, ',', '') AS REAL) DESC,
				row_id DESC
		) AS rn
	FROM observations
	%s
)`

func (s *SQLiteStore) Append(ctx context.Context, rows []model.Observation) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin append")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO observations (
			date, platform, model_name, publisher, download_count,
			declared_parent, derivation_kind, release_family, source_priority,
			tags, likes, source_url, search_keyword, created_at, last_modified, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare append")
	}
	defer stmt.Close()

	var n int64
	for _, obs := range rows {
		tagsJSON, err := json.Marshal(obs.Tags)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal tags")
		}
		fetched := obs.FetchedAt
		if fetched.IsZero() {
			fetched = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			string(obs.Day), obs.Platform, obs.ModelName, obs.Publisher, obs.DownloadCount,
			obs.DeclaredParent, obs.DerivationKind, obs.ReleaseFamily, string(obs.SourcePriority),
			string(tagsJSON), obs.Likes, obs.SourceURL, obs.SearchKeyword,
			obs.CreatedAt, obs.LastModified, fetched,
		); err != nil {
			return n, eris.Wrap(err, "sqlite: insert observation")
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit append")
	}
	return n, nil
}

func sqliteFilter(where []string, args []any, f Filter) ([]string, []any) {
	if len(f.Platforms) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(f.Platforms)), ",")
		where = append(where, fmt.Sprintf("platform IN (%s)", placeholders))
		for _, p := range f.Platforms {
			args = append(args, p)
		}
	}
	return where, args
}

func (s *SQLiteStore) ResolveExact(ctx context.Context, day model.Day, f Filter) ([]model.Snapshot, error) {
	where, args := sqliteFilter([]string{"date = ?"}, []any{string(day)}, f)

	query := fmt.Sprintf(sqliteRankedCTE, observationColumns, "WHERE "+strings.Join(where, " AND ")) + `
	SELECT ` + observationColumns + `
	FROM ranked WHERE rn = 1
	ORDER BY platform, publisher, model_name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: resolve exact %s", day)
	}
	defer rows.Close()

	return scanSnapshots(rows, false, "")
}

func (s *SQLiteStore) ResolveAsOf(ctx context.Context, cutoff model.Day, f Filter) ([]model.Snapshot, error) {
	where, args := sqliteFilter([]string{"date <= ?"}, []any{string(cutoff)}, f)

	// Per-day best first, then the latest row per identity that actually
	// carries a count. Rows with missing counts are skipped here (and only
	// here): carrying forward a countless row would erase a known value.
	query := fmt.Sprintf(sqliteRankedCTE, observationColumns, "WHERE "+strings.Join(where, " AND ")) + `,
	best_per_day AS (
		SELECT * FROM ranked WHERE rn = 1
	),
	latest_per_model AS (
		SELECT *,
			ROW_NUMBER() OVER (
				PARTITION BY platform, publisher, model_name
				ORDER BY date DESC, row_id DESC
			) AS rn_last
		FROM best_per_day
		WHERE LOWER(TRIM(download_count)) NOT IN ('', 'none', 'nan', 'null')
	)
	SELECT ` + observationColumns + `
	FROM latest_per_model WHERE rn_last = 1
	ORDER BY platform, publisher, model_name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: resolve as-of %s", cutoff)
	}
	defer rows.Close()

	return scanSnapshots(rows, true, cutoff)
}

func (s *SQLiteStore) ResolveHistory(ctx context.Context, cutoff model.Day, f Filter) ([]model.Snapshot, error) {
	where, args := sqliteFilter([]string{"date <= ?"}, []any{string(cutoff)}, f)

	query := fmt.Sprintf(sqliteRankedCTE, observationColumns, "WHERE "+strings.Join(where, " AND ")) + `
	SELECT ` + observationColumns + `
	FROM ranked WHERE rn = 1
	ORDER BY date, platform, publisher, model_name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: resolve history to %s", cutoff)
	}
	defer rows.Close()

	return scanSnapshots(rows, false, "")
}

// scanSnapshots reads resolved rows. In as-of mode the row's date is
// rewritten to the cutoff: it represents a snapshot-as-of, not a real
// observation day.
func scanSnapshots(rows *sql.Rows, asOf bool, cutoff model.Day) ([]model.Snapshot, error) {
	var out []model.Snapshot
	for rows.Next() {
		var (
			obs      model.Observation
			day      string
			priority string
			tagsJSON string
		)
		if err := rows.Scan(
			&obs.RowID, &day, &obs.Platform, &obs.ModelName, &obs.Publisher, &obs.DownloadCount,
			&obs.DeclaredParent, &obs.DerivationKind, &obs.ReleaseFamily, &priority, &tagsJSON,
			&obs.Likes, &obs.SourceURL, &obs.SearchKeyword, &obs.CreatedAt, &obs.LastModified, &obs.FetchedAt,
		); err != nil {
			return nil, eris.Wrap(err, "store: scan snapshot")
		}
		obs.Day = model.Day(day)
		obs.SourcePriority = model.SourcePriority(priority)
		if tagsJSON != "" && tagsJSON != "[]" {
			if err := json.Unmarshal([]byte(tagsJSON), &obs.Tags); err != nil {
				return nil, eris.Wrap(err, "store: unmarshal tags")
			}
		}
		if asOf {
			obs.Day = cutoff
		}
		out = append(out, model.Snapshot{Observation: obs, AsOf: asOf})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate snapshots")
	}
	return out, nil
}

func (s *SQLiteStore) ListDays(ctx context.Context) ([]model.Day, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT date FROM observations ORDER BY date DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list days")
	}
	defer rows.Close()

	var days []model.Day
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan day")
		}
		days = append(days, model.Day(d))
	}
	return days, eris.Wrap(rows.Err(), "sqlite: iterate days")
}

func (s *SQLiteStore) CountObservations(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM observations`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count observations")
}

func (s *SQLiteStore) PlatformCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT platform, COUNT(*) FROM observations GROUP BY platform`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: platform counts")
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var platform string
		var n int64
		if err := rows.Scan(&platform, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan platform count")
		}
		counts[platform] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: iterate platform counts")
}

func (s *SQLiteStore) LastModelCount(ctx context.Context, platform string) (int64, bool, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_model_count FROM platform_stats WHERE platform = ?`, platform,
	).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "sqlite: last model count %s", platform)
	}
	return n, true, nil
}

func (s *SQLiteStore) SetLastModelCount(ctx context.Context, platform string, count int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO platform_stats (platform, last_model_count, last_updated)
		VALUES (?, ?, ?)
		ON CONFLICT(platform) DO UPDATE SET
			last_model_count = excluded.last_model_count,
			last_updated     = excluded.last_updated`,
		platform, count, string(model.Today()),
	)
	return eris.Wrapf(err, "sqlite: set model count %s", platform)
}

func (s *SQLiteStore) RecordScrapeRun(ctx context.Context, run ScrapeRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scrape_runs (id, platform, adapter, rows_appended, status, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			rows_appended = excluded.rows_appended,
			status        = excluded.status,
			error         = excluded.error,
			completed_at  = excluded.completed_at`,
		run.ID, run.Platform, run.Adapter, run.RowsAppended, run.Status, run.Error,
		run.StartedAt, run.CompletedAt,
	)
	return eris.Wrapf(err, "sqlite: record scrape run %s", run.ID)
}

func (s *SQLiteStore) ListScrapeRuns(ctx context.Context, limit int) ([]ScrapeRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, platform, adapter, rows_appended, status, error, started_at, completed_at
		FROM scrape_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scrape runs")
	}
	defer rows.Close()

	var runs []ScrapeRun
	for rows.Next() {
		var r ScrapeRun
		if err := rows.Scan(&r.ID, &r.Platform, &r.Adapter, &r.RowsAppended,
			&r.Status, &r.Error, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan scrape run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate scrape runs")
}

func (s *SQLiteStore) PurgeDay(ctx context.Context, day model.Day) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM observations WHERE date = ?`, string(day))
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: purge day %s", day)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *SQLiteStore) PurgePlatform(ctx context.Context, platform string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM observations WHERE platform = ?`, platform)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: purge platform %s", platform)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *SQLiteStore) DeduplicateIdentities(ctx context.Context) (int64, error) {
	// Same cascade as resolution: whatever a resolve query would pick is
	// exactly what dedup keeps.
	query := fmt.Sprintf(sqliteRankedCTE, "row_id", "") + `
	DELETE FROM observations WHERE row_id NOT IN (
		SELECT row_id FROM ranked WHERE rn = 1
	)`
	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: deduplicate")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *SQLiteStore) AllObservations(ctx context.Context) ([]model.Observation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+observationColumns+` FROM observations ORDER BY row_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: all observations")
	}
	defer rows.Close()

	snaps, err := scanSnapshots(rows, false, "")
	if err != nil {
		return nil, err
	}
	out := make([]model.Observation, len(snaps))
	for i, s := range snaps {
		out[i] = s.Observation
	}
	return out, nil
}
