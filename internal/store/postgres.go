package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/modelpulse/tracker-cli/internal/db"
	"github.com/modelpulse/tracker-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool; used by tests.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS observations (
	row_id          BIGSERIAL PRIMARY KEY,
	date            TEXT NOT NULL,
	platform        TEXT NOT NULL,
	model_name      TEXT NOT NULL,
	publisher       TEXT NOT NULL,
	download_count  TEXT NOT NULL DEFAULT '',
	declared_parent TEXT NOT NULL DEFAULT '',
	derivation_kind TEXT NOT NULL DEFAULT '',
	release_family  TEXT NOT NULL DEFAULT '',
	source_priority TEXT NOT NULL DEFAULT '',
	tags            JSONB NOT NULL DEFAULT '[]',
	likes           TEXT NOT NULL DEFAULT '',
	source_url      TEXT NOT NULL DEFAULT '',
	search_keyword  TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL DEFAULT '',
	last_modified   TEXT NOT NULL DEFAULT '',
	fetched_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS platform_stats (
	platform         TEXT PRIMARY KEY,
	last_model_count BIGINT NOT NULL,
	last_updated     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scrape_runs (
	id            TEXT PRIMARY KEY,
	platform      TEXT NOT NULL,
	adapter       TEXT NOT NULL,
	rows_appended BIGINT NOT NULL DEFAULT 0,
	status        TEXT NOT NULL,
	error         TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ NOT NULL,
	completed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_observations_date ON observations(date);
CREATE INDEX IF NOT EXISTS idx_observations_platform ON observations(platform);
CREATE INDEX IF NOT EXISTS idx_observations_identity ON observations(platform, publisher, model_name);
CREATE INDEX IF NOT EXISTS idx_scrape_runs_started ON scrape_runs(started_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var observationCopyColumns = []string{
	"date", "platform", "model_name", "publisher", "download_count",
	"declared_parent", "derivation_kind", "release_family", "source_priority",
	"tags", "likes", "source_url", "search_keyword", "created_at", "last_modified", "fetched_at",
}

func (s *PostgresStore) Append(ctx context.Context, rows []model.Observation) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	values := make([][]any, 0, len(rows))
	for _, obs := range rows {
		tagsJSON, err := json.Marshal(obs.Tags)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal tags")
		}
		fetched := obs.FetchedAt
		if fetched.IsZero() {
			fetched = time.Now().UTC()
		}
		values = append(values, []any{
			string(obs.Day), obs.Platform, obs.ModelName, obs.Publisher, obs.DownloadCount,
			obs.DeclaredParent, obs.DerivationKind, obs.ReleaseFamily, string(obs.SourcePriority),
			string(tagsJSON), obs.Likes, obs.SourceURL, obs.SearchKeyword,
			obs.CreatedAt, obs.LastModified, fetched,
		})
	}
	return db.CopyFrom(ctx, s.pool, "observations", observationCopyColumns, values)
}

// Postgres raises an error casting non-numeric text, so the count tie-break
// extracts the leading numeric prefix before converting. That matches
// SQLite's CAST semantics: '1,500' -> 1500, '1.2K' -> 1.2, garbage -> 0.
const pgCountExpr = `COALESCE(substring(replace(download_count, ',', '') from '^-?[0-9]+\.?[0-9]*')::numeric, 0)`

const pgRankedCTE = `
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
				` + pgCountExpr + ` DESC,
				row_id DESC
		) AS rn
	FROM observations
	%s
)`

const pgObservationColumns = `row_id, date, platform, model_name, publisher, download_count,
	declared_parent, derivation_kind, release_family, source_priority, tags::text,
	likes, source_url, search_keyword, created_at, last_modified, fetched_at`

func pgFilter(where []string, args []any, f Filter) ([]string, []any) {
	if len(f.Platforms) > 0 {
		where = append(where, fmt.Sprintf("platform = ANY($%d)", len(args)+1))
		args = append(args, f.Platforms)
	}
	return where, args
}

func (s *PostgresStore) ResolveExact(ctx context.Context, day model.Day, f Filter) ([]model.Snapshot, error) {
	where, args := pgFilter([]string{"date = $1"}, []any{string(day)}, f)

	query := fmt.Sprintf(pgRankedCTE, pgObservationColumns, "WHERE "+strings.Join(where, " AND ")) + `
	SELECT ` + pgObservationColumns + `
	FROM ranked WHERE rn = 1
	ORDER BY platform, publisher, model_name`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: resolve exact %s", day)
	}
	defer rows.Close()

	return scanPgSnapshots(rows, false, "")
}

func (s *PostgresStore) ResolveAsOf(ctx context.Context, cutoff model.Day, f Filter) ([]model.Snapshot, error) {
	where, args := pgFilter([]string{"date <= $1"}, []any{string(cutoff)}, f)

	query := fmt.Sprintf(pgRankedCTE, pgObservationColumns, "WHERE "+strings.Join(where, " AND ")) + `,
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
	SELECT ` + pgObservationColumns + `
	FROM latest_per_model WHERE rn_last = 1
	ORDER BY platform, publisher, model_name`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: resolve as-of %s", cutoff)
	}
	defer rows.Close()

	return scanPgSnapshots(rows, true, cutoff)
}

func (s *PostgresStore) ResolveHistory(ctx context.Context, cutoff model.Day, f Filter) ([]model.Snapshot, error) {
	where, args := pgFilter([]string{"date <= $1"}, []any{string(cutoff)}, f)

	query := fmt.Sprintf(pgRankedCTE, pgObservationColumns, "WHERE "+strings.Join(where, " AND ")) + `
	SELECT ` + pgObservationColumns + `
	FROM ranked WHERE rn = 1
	ORDER BY date, platform, publisher, model_name`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: resolve history to %s", cutoff)
	}
	defer rows.Close()

	return scanPgSnapshots(rows, false, "")
}

func scanPgSnapshots(rows pgx.Rows, asOf bool, cutoff model.Day) ([]model.Snapshot, error) {
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
			return nil, eris.Wrap(err, "postgres: scan snapshot")
		}
		obs.Day = model.Day(day)
		obs.SourcePriority = model.SourcePriority(priority)
		if tagsJSON != "" && tagsJSON != "[]" {
			if err := json.Unmarshal([]byte(tagsJSON), &obs.Tags); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal tags")
			}
		}
		if asOf {
			obs.Day = cutoff
		}
		out = append(out, model.Snapshot{Observation: obs, AsOf: asOf})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate snapshots")
	}
	return out, nil
}

func (s *PostgresStore) ListDays(ctx context.Context) ([]model.Day, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT date FROM observations ORDER BY date DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list days")
	}
	defer rows.Close()

	var days []model.Day
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrap(err, "postgres: scan day")
		}
		days = append(days, model.Day(d))
	}
	return days, eris.Wrap(rows.Err(), "postgres: iterate days")
}

func (s *PostgresStore) CountObservations(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM observations`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count observations")
}

func (s *PostgresStore) PlatformCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT platform, COUNT(*) FROM observations GROUP BY platform`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: platform counts")
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var platform string
		var n int64
		if err := rows.Scan(&platform, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan platform count")
		}
		counts[platform] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: iterate platform counts")
}

func (s *PostgresStore) LastModelCount(ctx context.Context, platform string) (int64, bool, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT last_model_count FROM platform_stats WHERE platform = $1`, platform,
	).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "postgres: last model count %s", platform)
	}
	return n, true, nil
}

func (s *PostgresStore) SetLastModelCount(ctx context.Context, platform string, count int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO platform_stats (platform, last_model_count, last_updated)
		VALUES ($1, $2, $3)
		ON CONFLICT (platform) DO UPDATE SET
			last_model_count = EXCLUDED.last_model_count,
			last_updated     = EXCLUDED.last_updated`,
		platform, count, string(model.Today()),
	)
	return eris.Wrapf(err, "postgres: set model count %s", platform)
}

func (s *PostgresStore) RecordScrapeRun(ctx context.Context, run ScrapeRun) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scrape_runs (id, platform, adapter, rows_appended, status, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			rows_appended = EXCLUDED.rows_appended,
			status        = EXCLUDED.status,
			error         = EXCLUDED.error,
			completed_at  = EXCLUDED.completed_at`,
		run.ID, run.Platform, run.Adapter, run.RowsAppended, run.Status, run.Error,
		run.StartedAt, run.CompletedAt,
	)
	return eris.Wrapf(err, "postgres: record scrape run %s", run.ID)
}

func (s *PostgresStore) ListScrapeRuns(ctx context.Context, limit int) ([]ScrapeRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, platform, adapter, rows_appended, status, error, started_at, completed_at
		FROM scrape_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scrape runs")
	}
	defer rows.Close()

	var runs []ScrapeRun
	for rows.Next() {
		var r ScrapeRun
		if err := rows.Scan(&r.ID, &r.Platform, &r.Adapter, &r.RowsAppended,
			&r.Status, &r.Error, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan scrape run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate scrape runs")
}

func (s *PostgresStore) PurgeDay(ctx context.Context, day model.Day) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM observations WHERE date = $1`, string(day))
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: purge day %s", day)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) PurgePlatform(ctx context.Context, platform string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM observations WHERE platform = $1`, platform)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: purge platform %s", platform)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) DeduplicateIdentities(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(pgRankedCTE, "row_id", "") + `
	DELETE FROM observations WHERE row_id NOT IN (
		SELECT row_id FROM ranked WHERE rn = 1
	)`
	tag, err := s.pool.Exec(ctx, query)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: deduplicate")
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) AllObservations(ctx context.Context) ([]model.Observation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgObservationColumns+` FROM observations ORDER BY row_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: all observations")
	}
	defer rows.Close()

	snaps, err := scanPgSnapshots(rows, false, "")
	if err != nil {
		return nil, err
	}
	out := make([]model.Observation, len(snaps))
	for i, s := range snaps {
		out[i] = s.Observation
	}
	return out, nil
}
