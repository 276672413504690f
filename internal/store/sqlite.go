package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Common errors for store operations.
var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrInvalidSelector   = errors.New("selector matches nothing: set IDs, a chapter range, or All")
)

// Similarity path states. The transition Unknown -> {Native, Fallback} happens
// at most once per store lifetime and is never re-probed.
const (
	vecUnknown int32 = iota
	vecNative
	vecFallback
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id           INTEGER PRIMARY KEY,
	project_id   TEXT NOT NULL,
	chapter      INTEGER NOT NULL,
	chunk_index  INTEGER NOT NULL DEFAULT 0,
	label        TEXT,
	content      TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	embedding    BLOB NOT NULL,
	metadata     TEXT,
	created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_chunks_project_chapter ON chunks(project_id, chapter);

CREATE TABLE IF NOT EXISTS summaries (
	id           INTEGER PRIMARY KEY,
	project_id   TEXT NOT NULL,
	chapter      INTEGER NOT NULL,
	title        TEXT,
	summary      TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	embedding    BLOB NOT NULL,
	created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_summaries_project_chapter ON summaries(project_id, chapter);
`

var _ VectorStore = (*SQLiteStore)(nil)

// SQLiteStore implements VectorStore on a local SQLite database. Similarity
// queries prefer the sqlite-vec cosine function and fall back to an
// application-level scan when the extension is missing from the build.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
	log *zap.Logger

	// writeMu serializes writes within the store; reads need no locking
	// since results are value copies.
	writeMu sync.Mutex

	// vecState is the one piece of process-wide mutable state: written at
	// most once via CompareAndSwap, safe for unsynchronized reads after.
	vecState atomic.Int32
}

// OpenSQLite opens (creating if needed) the database at cfg.Path and applies
// the schema.
func OpenSQLite(cfg Config, log *zap.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection keeps :memory: databases coherent and serializes
	// writer contention at the pool level.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db, cfg: cfg, log: log}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nativeAvailable resolves the similarity path, probing the native distance
// function once with a degenerate input. A missing function pins the store to
// the fallback path for its lifetime; any other probe failure is surfaced as
// a transient query error and leaves the state unchanged.
func (s *SQLiteStore) nativeAvailable(ctx context.Context) (bool, error) {
	switch s.vecState.Load() {
	case vecNative:
		return true, nil
	case vecFallback:
		return false, nil
	}

	probe := EncodeVector([]float32{0})
	var dist sql.NullFloat64
	err := s.db.QueryRowContext(ctx, "SELECT vec_distance_cosine(?, ?)", probe, probe).Scan(&dist)
	if err == nil {
		s.vecState.CompareAndSwap(vecUnknown, vecNative)
		return true, nil
	}
	if isMissingFunction(err) {
		if s.vecState.CompareAndSwap(vecUnknown, vecFallback) {
			s.log.Warn("sqlite-vec distance function unavailable; similarity queries will use a full-scan fallback",
				zap.Error(err))
		}
		return false, nil
	}
	return false, fmt.Errorf("probe native distance function: %w", err)
}

func (s *SQLiteStore) checkDimension(v []float32) error {
	if s.cfg.Dimension > 0 && len(v) != s.cfg.Dimension {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, s.cfg.Dimension, len(v))
	}
	return nil
}

// existingIDs returns which of the given IDs are already present in table.
// Best effort: on failure an empty set is returned and counts in the upsert
// report degrade to "inserted".
func (s *SQLiteStore) existingIDs(ctx context.Context, table string, ids []int64) map[int64]bool {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM "+table+" WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		s.log.Debug("existing-id lookup failed", zap.String("table", table), zap.Error(err))
		return nil
	}
	defer rows.Close()

	existing := make(map[int64]bool, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err == nil {
			existing[id] = true
		}
	}
	return existing
}

const upsertChunkSQL = `
INSERT INTO chunks (id, project_id, chapter, chunk_index, label, content, content_hash, embedding, metadata)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	project_id = excluded.project_id,
	chapter = excluded.chapter,
	chunk_index = excluded.chunk_index,
	label = excluded.label,
	content = excluded.content,
	content_hash = excluded.content_hash,
	embedding = excluded.embedding,
	metadata = excluded.metadata`

const upsertSummarySQL = `
INSERT INTO summaries (id, project_id, chapter, title, summary, content_hash, embedding)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	project_id = excluded.project_id,
	chapter = excluded.chapter,
	title = excluded.title,
	summary = excluded.summary,
	content_hash = excluded.content_hash,
	embedding = excluded.embedding`

func chunkArgs(r ChunkRecord) ([]any, error) {
	var meta any
	if len(r.Metadata) > 0 {
		b, err := json.Marshal(r.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata for chunk %d: %w", r.ID, err)
		}
		meta = string(b)
	}
	return []any{
		r.ID, r.ProjectID, r.Chapter, r.ChunkIndex, r.Label,
		r.Content, HashContent(r.Content), EncodeVector(r.Embedding), meta,
	}, nil
}

func summaryArgs(r SummaryRecord) []any {
	return []any{
		r.ID, r.ProjectID, r.Chapter, r.Title,
		r.Summary, HashContent(r.Summary), EncodeVector(r.Embedding),
	}
}

// UpsertChunks writes a batch of chunk records inside one transaction. If the
// transaction fails, each record is retried individually; failures are logged
// and counted, never silently swallowed.
func (s *SQLiteStore) UpsertChunks(ctx context.Context, records []ChunkRecord) (UpsertReport, error) {
	if len(records) == 0 {
		return UpsertReport{}, nil
	}
	for _, r := range records {
		if err := s.checkDimension(r.Embedding); err != nil {
			return UpsertReport{}, fmt.Errorf("chunk %d: %w", r.ID, err)
		}
	}

	ids := make([]int64, len(records))
	argRows := make([][]any, len(records))
	for i, r := range records {
		args, err := chunkArgs(r)
		if err != nil {
			return UpsertReport{}, err
		}
		ids[i] = r.ID
		argRows[i] = args
	}
	return s.upsertBatch(ctx, "chunks", upsertChunkSQL, ids, argRows)
}

// UpsertSummaries writes a batch of summary records, same semantics as
// UpsertChunks.
func (s *SQLiteStore) UpsertSummaries(ctx context.Context, records []SummaryRecord) (UpsertReport, error) {
	if len(records) == 0 {
		return UpsertReport{}, nil
	}
	ids := make([]int64, len(records))
	argRows := make([][]any, len(records))
	for i, r := range records {
		if err := s.checkDimension(r.Embedding); err != nil {
			return UpsertReport{}, fmt.Errorf("summary %d: %w", r.ID, err)
		}
		ids[i] = r.ID
		argRows[i] = summaryArgs(r)
	}
	return s.upsertBatch(ctx, "summaries", upsertSummarySQL, ids, argRows)
}

func (s *SQLiteStore) upsertBatch(ctx context.Context, table, query string, ids []int64, argRows [][]any) (UpsertReport, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existing := s.existingIDs(ctx, table, ids)

	var report UpsertReport
	countOK := func(id int64) {
		if existing[id] {
			report.Replaced++
		} else {
			report.Inserted++
		}
	}

	txErr := withRetry(ctx, s.log, s.cfg, "upsert "+table, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, args := range argRows {
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if txErr == nil {
		for _, id := range ids {
			countOK(id)
		}
		return report, nil
	}

	// Batched write failed: degrade to best-effort per-record writes.
	s.log.Warn("batched upsert failed, retrying per record",
		zap.String("table", table), zap.Error(txErr))
	for i, args := range argRows {
		err := withRetry(ctx, s.log, s.cfg, "upsert "+table+" record", func(ctx context.Context) error {
			_, execErr := s.db.ExecContext(ctx, query, args...)
			return execErr
		})
		if err != nil {
			report.Failed++
			s.log.Warn("skipping record after write failure",
				zap.String("table", table), zap.Int64("id", ids[i]), zap.Error(err))
			continue
		}
		countOK(ids[i])
	}
	return report, nil
}

// QueryChunks returns up to topK chunks ordered by ascending cosine distance.
func (s *SQLiteStore) QueryChunks(ctx context.Context, projectID string, query []float32, topK int) ([]RetrievedChunk, error) {
	if topK <= 0 || len(query) == 0 {
		return []RetrievedChunk{}, nil
	}
	native, err := s.nativeAvailable(ctx)
	if err != nil {
		return nil, err
	}
	if !native {
		return s.fallbackQueryChunks(ctx, projectID, query, topK)
	}

	var out []RetrievedChunk
	err = withRetry(ctx, s.log, s.cfg, "query chunks", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT chapter, label, content, metadata, vec_distance_cosine(embedding, ?) AS distance
			FROM chunks WHERE project_id = ?
			ORDER BY distance ASC, id ASC LIMIT ?`,
			EncodeVector(query), projectID, topK)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var (
				c        RetrievedChunk
				label    sql.NullString
				metaJSON sql.NullString
				distance float64
			)
			if err := rows.Scan(&c.Chapter, &label, &c.Content, &metaJSON, &distance); err != nil {
				return err
			}
			c.Label = label.String
			c.Score = float32(distance)
			if metaJSON.Valid && metaJSON.String != "" {
				_ = json.Unmarshal([]byte(metaJSON.String), &c.Metadata)
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query chunks for project %q: %w", projectID, err)
	}
	if out == nil {
		out = []RetrievedChunk{}
	}
	return out, nil
}

// QuerySummaries returns up to topK summaries ordered by ascending cosine
// distance.
func (s *SQLiteStore) QuerySummaries(ctx context.Context, projectID string, query []float32, topK int) ([]RetrievedSummary, error) {
	if topK <= 0 || len(query) == 0 {
		return []RetrievedSummary{}, nil
	}
	native, err := s.nativeAvailable(ctx)
	if err != nil {
		return nil, err
	}
	if !native {
		return s.fallbackQuerySummaries(ctx, projectID, query, topK)
	}

	var out []RetrievedSummary
	err = withRetry(ctx, s.log, s.cfg, "query summaries", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT chapter, title, summary, vec_distance_cosine(embedding, ?) AS distance
			FROM summaries WHERE project_id = ?
			ORDER BY distance ASC, id ASC LIMIT ?`,
			EncodeVector(query), projectID, topK)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var (
				r        RetrievedSummary
				title    sql.NullString
				distance float64
			)
			if err := rows.Scan(&r.Chapter, &title, &r.Summary, &distance); err != nil {
				return err
			}
			r.Title = title.String
			r.Score = float32(distance)
			out = append(out, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query summaries for project %q: %w", projectID, err)
	}
	if out == nil {
		out = []RetrievedSummary{}
	}
	return out, nil
}

// Delete removes records matched by the selector from both tables.
func (s *SQLiteStore) Delete(ctx context.Context, projectID string, sel Selector) (int64, error) {
	where, args, err := selectorClause(projectID, sel)
	if err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var total int64
	for _, table := range []string{"chunks", "summaries"} {
		err := withRetry(ctx, s.log, s.cfg, "delete "+table, func(ctx context.Context) error {
			res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE "+where, args...)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			total += n
			return nil
		})
		if err != nil {
			return total, fmt.Errorf("delete from %s: %w", table, err)
		}
	}
	return total, nil
}

func selectorClause(projectID string, sel Selector) (string, []any, error) {
	where := "project_id = ?"
	args := []any{projectID}
	switch {
	case len(sel.IDs) > 0:
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(sel.IDs)), ",")
		where += " AND id IN (" + placeholders + ")"
		for _, id := range sel.IDs {
			args = append(args, id)
		}
	case sel.All:
		// project-wide wipe, no extra condition
	case sel.ChapterFrom > 0 && sel.ChapterTo >= sel.ChapterFrom:
		where += " AND chapter BETWEEN ? AND ?"
		args = append(args, sel.ChapterFrom, sel.ChapterTo)
	default:
		return "", nil, ErrInvalidSelector
	}
	return where, args, nil
}

// ContentHashes returns id -> content hash for the given record kind.
func (s *SQLiteStore) ContentHashes(ctx context.Context, projectID string, kind RecordKind) (map[int64]string, error) {
	table := "chunks"
	if kind == KindSummary {
		table = "summaries"
	}
	hashes := make(map[int64]string)
	err := withRetry(ctx, s.log, s.cfg, "content hashes", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, "SELECT id, content_hash FROM "+table+" WHERE project_id = ?", projectID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				id   int64
				hash string
			)
			if err := rows.Scan(&id, &hash); err != nil {
				return err
			}
			hashes[id] = hash
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("content hashes for project %q: %w", projectID, err)
	}
	return hashes, nil
}

// Stats returns per-project record counts.
func (s *SQLiteStore) Stats(ctx context.Context, projectID string) (Stats, error) {
	stats := Stats{Backend: "sqlite"}
	err := withRetry(ctx, s.log, s.cfg, "stats", func(ctx context.Context) error {
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM chunks WHERE project_id = ?", projectID).Scan(&stats.Chunks); err != nil {
			return err
		}
		return s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM summaries WHERE project_id = ?", projectID).Scan(&stats.Summaries)
	})
	if err != nil {
		return Stats{}, fmt.Errorf("stats for project %q: %w", projectID, err)
	}
	return stats, nil
}
