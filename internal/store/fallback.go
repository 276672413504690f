package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
)

// cosineDistance returns 1 - cos(a, b). If either vector has zero norm the
// distance is defined as 1.0. Dot product and norms are accumulated in a
// single pass per row since this runs as a full-scan substitute for the
// native path.
func cosineDistance(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		na += av * av
		nb += bv * bv
	}
	if na == 0 || nb == 0 {
		return 1.0
	}
	return float32(1.0 - dot/(math.Sqrt(na)*math.Sqrt(nb)))
}

// fallbackRow pairs a decoded candidate with its row identity for stable
// ordering that matches the native path (distance, then id).
type fallbackRow struct {
	id       int64
	distance float32
}

func sortAndTruncate(rows []fallbackRow, topK int) []fallbackRow {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].distance != rows[j].distance {
			return rows[i].distance < rows[j].distance
		}
		return rows[i].id < rows[j].id
	})
	if len(rows) > topK {
		rows = rows[:topK]
	}
	return rows
}

// fallbackQueryChunks scans every chunk embedding in the project scope and
// ranks by application-computed cosine distance.
func (s *SQLiteStore) fallbackQueryChunks(ctx context.Context, projectID string, query []float32, topK int) ([]RetrievedChunk, error) {
	type chunkRow struct {
		chunk RetrievedChunk
	}
	byID := make(map[int64]chunkRow)
	var scored []fallbackRow

	err := withRetry(ctx, s.log, s.cfg, "scan chunks", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx,
			"SELECT id, chapter, label, content, metadata, embedding FROM chunks WHERE project_id = ?", projectID)
		if err != nil {
			return err
		}
		defer rows.Close()

		byID = make(map[int64]chunkRow)
		scored = scored[:0]
		for rows.Next() {
			var (
				id       int64
				c        RetrievedChunk
				label    sql.NullString
				metaJSON sql.NullString
				blob     []byte
			)
			if err := rows.Scan(&id, &c.Chapter, &label, &c.Content, &metaJSON, &blob); err != nil {
				return err
			}
			emb, err := DecodeVector(blob)
			if err != nil {
				s.log.Warn("skipping chunk with malformed embedding",
					zap.Int64("id", id), zap.Error(err))
				continue
			}
			c.Label = label.String
			if metaJSON.Valid && metaJSON.String != "" {
				_ = json.Unmarshal([]byte(metaJSON.String), &c.Metadata)
			}
			c.Score = cosineDistance(query, emb)
			byID[id] = chunkRow{chunk: c}
			scored = append(scored, fallbackRow{id: id, distance: c.Score})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fallback query chunks for project %q: %w", projectID, err)
	}

	scored = sortAndTruncate(scored, topK)
	out := make([]RetrievedChunk, 0, len(scored))
	for _, row := range scored {
		out = append(out, byID[row.id].chunk)
	}
	return out, nil
}

// fallbackQuerySummaries is fallbackQueryChunks over the summaries table.
func (s *SQLiteStore) fallbackQuerySummaries(ctx context.Context, projectID string, query []float32, topK int) ([]RetrievedSummary, error) {
	byID := make(map[int64]RetrievedSummary)
	var scored []fallbackRow

	err := withRetry(ctx, s.log, s.cfg, "scan summaries", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx,
			"SELECT id, chapter, title, summary, embedding FROM summaries WHERE project_id = ?", projectID)
		if err != nil {
			return err
		}
		defer rows.Close()

		byID = make(map[int64]RetrievedSummary)
		scored = scored[:0]
		for rows.Next() {
			var (
				id    int64
				r     RetrievedSummary
				title sql.NullString
				blob  []byte
			)
			if err := rows.Scan(&id, &r.Chapter, &title, &r.Summary, &blob); err != nil {
				return err
			}
			emb, err := DecodeVector(blob)
			if err != nil {
				s.log.Warn("skipping summary with malformed embedding",
					zap.Int64("id", id), zap.Error(err))
				continue
			}
			r.Title = title.String
			r.Score = cosineDistance(query, emb)
			byID[id] = r
			scored = append(scored, fallbackRow{id: id, distance: r.Score})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fallback query summaries for project %q: %w", projectID, err)
	}

	scored = sortAndTruncate(scored, topK)
	out := make([]RetrievedSummary, 0, len(scored))
	for _, row := range scored {
		out = append(out, byID[row.id])
	}
	return out, nil
}
