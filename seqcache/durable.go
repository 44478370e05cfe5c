package seqcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"encore.dev/rlog"
	"encore.dev/storage/sqldb"

	"encore.app/pkg/models"
	"encore.app/pkg/utils"
)

// SQLStore is the durable cache tier: larger than the fast tier, day-scale
// TTL, survives restarts.
//
// Design decisions:
// - PostgreSQL: the contract is a keyed table with TTL semantics, and the
//   platform already provisions one per service
// - JSONB for terms/keywords so the row shape never migrates when the
//   catalog adds fields
// - Expiry is enforced at read time (stale rows are misses) and reclaimed by
//   the Sweep maintenance call, never by a background thread
// - Rows that fail to deserialize are dropped and counted as misses; a
//   corrupt cache entry must never fail a validation call
type SQLStore struct {
	db  *sqldb.Database
	ttl time.Duration
	now func() time.Time
}

// NewSQLStore creates the durable tier and ensures its schema.
func NewSQLStore(db *sqldb.Database, ttl time.Duration) (*SQLStore, error) {
	store := &SQLStore{db: db, ttl: ttl, now: time.Now}
	if err := store.ensureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize seqcache schema: %w", err)
	}
	return store, nil
}

func (s *SQLStore) ensureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS sequences (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			terms JSONB NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			keywords JSONB,
			term_offset INT NOT NULL DEFAULT 0,
			cached_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_access TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			hit_count BIGINT NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_sequences_cached_at
		ON sequences(cached_at);

		CREATE TABLE IF NOT EXISTS search_cache (
			query_hash TEXT PRIMARY KEY,
			result_ids JSONB NOT NULL,
			cached_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_search_cache_cached_at
		ON search_cache(cached_at);
	`
	_, err := s.db.Exec(ctx, query)
	return err
}

// GetSequence loads one sequence. Rows past TTL or failing deserialization
// are treated as misses; corrupt rows are dropped in place.
func (s *SQLStore) GetSequence(ctx context.Context, id string) (*models.ReferenceSequence, bool, error) {
	query := `
		SELECT name, terms, description, keywords, term_offset, cached_at
		FROM sequences
		WHERE id = $1
	`

	var (
		seq       models.ReferenceSequence
		termsJSON []byte
		kwJSON    []byte
		cachedAt  time.Time
	)
	seq.ID = id

	err := s.db.QueryRow(ctx, query, id).Scan(
		&seq.Name, &termsJSON, &seq.Description, &kwJSON, &seq.Offset, &cachedAt,
	)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query sequence %s: %w", id, err)
	}

	if s.expired(cachedAt) {
		return nil, false, nil
	}

	seq.Terms, err = utils.UnmarshalTerms(termsJSON)
	if err == nil && len(kwJSON) > 0 {
		seq.Keywords, err = utils.UnmarshalStrings(kwJSON)
	}
	if err != nil {
		if errors.Is(err, models.ErrCacheCorruption) {
			rlog.Warn("dropping corrupt durable entry", "id", id, "err", err)
			s.dropSequence(ctx, id)
			return nil, false, nil
		}
		return nil, false, err
	}

	// Access bookkeeping; best-effort.
	_, _ = s.db.Exec(ctx,
		`UPDATE sequences SET hit_count = hit_count + 1, last_access = $2 WHERE id = $1`,
		id, s.now())

	return &seq, true, nil
}

// PutSequence upserts a whole entry. Entries are immutable reference data,
// so a conflicting write simply replaces the row.
func (s *SQLStore) PutSequence(ctx context.Context, seq models.ReferenceSequence) error {
	termsJSON, err := utils.MarshalTerms(seq.Terms)
	if err != nil {
		return fmt.Errorf("failed to marshal terms for %s: %w", seq.ID, err)
	}
	kwJSON, err := utils.MarshalStrings(seq.Keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords for %s: %w", seq.ID, err)
	}

	query := `
		INSERT INTO sequences (id, name, terms, description, keywords, term_offset, cached_at, last_access)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			terms = EXCLUDED.terms,
			description = EXCLUDED.description,
			keywords = EXCLUDED.keywords,
			term_offset = EXCLUDED.term_offset,
			cached_at = EXCLUDED.cached_at
	`
	_, err = s.db.Exec(ctx, query, seq.ID, seq.Name, termsJSON, seq.Description, kwJSON, seq.Offset, s.now())
	if err != nil {
		return fmt.Errorf("failed to store sequence %s: %w", seq.ID, err)
	}
	return nil
}

// GetSearch loads a cached search-result ID list by cache key.
func (s *SQLStore) GetSearch(ctx context.Context, key string) ([]string, bool, error) {
	var (
		idsJSON  []byte
		cachedAt time.Time
	)
	err := s.db.QueryRow(ctx,
		`SELECT result_ids, cached_at FROM search_cache WHERE query_hash = $1`, key,
	).Scan(&idsJSON, &cachedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query search cache: %w", err)
	}
	if s.expired(cachedAt) {
		return nil, false, nil
	}

	ids, err := utils.UnmarshalStrings(idsJSON)
	if err != nil {
		rlog.Warn("dropping corrupt search cache row", "key", key, "err", err)
		_, _ = s.db.Exec(ctx, `DELETE FROM search_cache WHERE query_hash = $1`, key)
		return nil, false, nil
	}
	return ids, true, nil
}

// PutSearch upserts a search-result ID list.
func (s *SQLStore) PutSearch(ctx context.Context, key string, ids []string) error {
	idsJSON, err := utils.MarshalStrings(ids)
	if err != nil {
		return fmt.Errorf("failed to marshal search result ids: %w", err)
	}
	query := `
		INSERT INTO search_cache (query_hash, result_ids, cached_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (query_hash) DO UPDATE SET
			result_ids = EXCLUDED.result_ids,
			cached_at = EXCLUDED.cached_at
	`
	_, err = s.db.Exec(ctx, query, key, idsJSON, s.now())
	if err != nil {
		return fmt.Errorf("failed to store search cache row: %w", err)
	}
	return nil
}

// Sweep removes all rows past TTL. Returns the number removed.
func (s *SQLStore) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.ttl)

	seqResult, err := s.db.Exec(ctx, `DELETE FROM sequences WHERE cached_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep sequences: %w", err)
	}
	searchResult, err := s.db.Exec(ctx, `DELETE FROM search_cache WHERE cached_at < $1`, cutoff)
	if err != nil {
		return int(seqResult.RowsAffected()), fmt.Errorf("failed to sweep search cache: %w", err)
	}

	return int(seqResult.RowsAffected() + searchResult.RowsAffected()), nil
}

// Clear removes rows older than age (zero age removes everything).
func (s *SQLStore) Clear(ctx context.Context, age time.Duration) (int, error) {
	cutoff := s.now().Add(-age)

	seqResult, err := s.db.Exec(ctx, `DELETE FROM sequences WHERE cached_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clear sequences: %w", err)
	}
	searchResult, err := s.db.Exec(ctx, `DELETE FROM search_cache WHERE cached_at < $1`, cutoff)
	if err != nil {
		return int(seqResult.RowsAffected()), fmt.Errorf("failed to clear search cache: %w", err)
	}
	return int(seqResult.RowsAffected() + searchResult.RowsAffected()), nil
}

// Count returns live (non-expired) row counts for both tables.
func (s *SQLStore) Count(ctx context.Context) (sequences, searches int, err error) {
	cutoff := s.now().Add(-s.ttl)
	err = s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM sequences WHERE cached_at >= $1`, cutoff).Scan(&sequences)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count sequences: %w", err)
	}
	err = s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM search_cache WHERE cached_at >= $1`, cutoff).Scan(&searches)
	if err != nil {
		return sequences, 0, fmt.Errorf("failed to count search cache: %w", err)
	}
	return sequences, searches, nil
}

// ExpiringSoon lists the most-hit sequence IDs whose rows expire within the
// given window, for the hot-entry refresh job.
func (s *SQLStore) ExpiringSoon(ctx context.Context, within time.Duration, limit int) ([]string, error) {
	// Rows cached between (now - ttl) and (now - ttl + within) expire soon.
	oldest := s.now().Add(-s.ttl)
	newest := oldest.Add(within)

	rows, err := s.db.Query(ctx, `
		SELECT id FROM sequences
		WHERE cached_at >= $1 AND cached_at < $2
		ORDER BY hit_count DESC
		LIMIT $3
	`, oldest, newest, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query expiring sequences: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan expiring sequence id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLStore) expired(cachedAt time.Time) bool {
	return s.now().Sub(cachedAt) > s.ttl
}

func (s *SQLStore) dropSequence(ctx context.Context, id string) {
	_, _ = s.db.Exec(ctx, `DELETE FROM sequences WHERE id = $1`, id)
}
