// Package store provides durable storage and similarity query of chapter
// embeddings. The primary backend is SQLite with the sqlite-vec extension for
// native cosine distance; when the extension is unavailable the store falls
// back to an application-level scan. A Milvus-backed implementation of the
// same interface is available for deployments with a vector server.
package store

import (
	"context"
	"time"
)

// RecordKind selects between the two embedding tables.
type RecordKind string

const (
	KindChunk   RecordKind = "chunk"
	KindSummary RecordKind = "summary"
)

// ChunkRecord is one passage of a written chapter with its embedding.
// IDs are assigned by the caller and upserts are idempotent by ID.
type ChunkRecord struct {
	ID         int64             `json:"id"`
	ProjectID  string            `json:"project_id"`
	Chapter    int               `json:"chapter"`
	ChunkIndex int               `json:"chunk_index"`
	Label      string            `json:"label,omitempty"`
	Content    string            `json:"content"`
	Embedding  []float32         `json:"embedding"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// SummaryRecord is one chapter-level summary with its embedding.
type SummaryRecord struct {
	ID        int64     `json:"id"`
	ProjectID string    `json:"project_id"`
	Chapter   int       `json:"chapter"`
	Title     string    `json:"title,omitempty"`
	Summary   string    `json:"summary"`
	Embedding []float32 `json:"embedding"`
}

// RetrievedChunk is a similarity-search result. Score is a cosine distance:
// lower means more similar. Results are value copies; the store retains no
// reference to them after the query returns.
type RetrievedChunk struct {
	Content  string            `json:"content"`
	Chapter  int               `json:"chapter"`
	Label    string            `json:"label,omitempty"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// RetrievedSummary is a summary-table similarity-search result.
type RetrievedSummary struct {
	Chapter int     `json:"chapter"`
	Title   string  `json:"title,omitempty"`
	Summary string  `json:"summary"`
	Score   float32 `json:"score"`
}

// UpsertReport accounts for a batch write. Failed records are logged and
// skipped rather than aborting the batch; callers decide whether a non-zero
// Failed count warrants re-ingestion.
type UpsertReport struct {
	Inserted int `json:"inserted"`
	Replaced int `json:"replaced"`
	Failed   int `json:"failed"`
}

// Selector narrows a Delete to a chapter range, an explicit ID set, or the
// whole project.
type Selector struct {
	ChapterFrom int     // inclusive, used when ChapterTo >= ChapterFrom > 0
	ChapterTo   int     // inclusive
	IDs         []int64 // non-empty takes precedence over the range
	All         bool    // full wipe of the project scope
}

// ByChapterRange selects records whose chapter lies in [from, to].
func ByChapterRange(from, to int) Selector { return Selector{ChapterFrom: from, ChapterTo: to} }

// ByIDs selects records by explicit ID.
func ByIDs(ids ...int64) Selector { return Selector{IDs: ids} }

// Everything selects all records in the project scope.
func Everything() Selector { return Selector{All: true} }

// Stats reports per-project record counts.
type Stats struct {
	Chunks    int64  `json:"chunks"`
	Summaries int64  `json:"summaries"`
	Backend   string `json:"backend"`
}

// VectorStore is the storage and similarity-query contract shared by the
// SQLite and Milvus backends.
type VectorStore interface {
	// UpsertChunks writes a batch of chunk records, idempotent by ID. On
	// conflict the content, embedding and metadata are replaced and the
	// original created_at is preserved.
	UpsertChunks(ctx context.Context, records []ChunkRecord) (UpsertReport, error)

	// UpsertSummaries writes a batch of summary records, idempotent by ID.
	UpsertSummaries(ctx context.Context, records []SummaryRecord) (UpsertReport, error)

	// QueryChunks returns up to topK chunks for the project ordered by
	// ascending cosine distance to the query vector. An unknown project,
	// a non-positive topK or an empty vector yields an empty result.
	QueryChunks(ctx context.Context, projectID string, query []float32, topK int) ([]RetrievedChunk, error)

	// QuerySummaries is QueryChunks over the summaries table.
	QuerySummaries(ctx context.Context, projectID string, query []float32, topK int) ([]RetrievedSummary, error)

	// Delete removes records matched by the selector and reports how many
	// rows were removed across both tables.
	Delete(ctx context.Context, projectID string, sel Selector) (int64, error)

	// ContentHashes returns id -> content hash for one record kind, for
	// incremental-update diffing by an external ingestion pipeline.
	ContentHashes(ctx context.Context, projectID string, kind RecordKind) (map[int64]string, error)

	// Stats returns record counts for the project.
	Stats(ctx context.Context, projectID string) (Stats, error)

	// Close releases the backing storage.
	Close() error
}

// Config holds settings shared by store backends.
type Config struct {
	// Path is the SQLite database file ("" or ":memory:" for in-memory).
	Path string

	// Dimension is the embedding width enforced on writes. Zero disables
	// the check.
	Dimension int

	// OpTimeout bounds each storage touch.
	OpTimeout time.Duration

	// RetryBudget bounds the total time spent retrying a transient failure.
	RetryBudget time.Duration
}

// DefaultConfig returns sensible defaults for a local SQLite store.
func DefaultConfig() Config {
	return Config{
		Path:        "loom.db",
		Dimension:   0,
		OpTimeout:   5 * time.Second,
		RetryBudget: 15 * time.Second,
	}
}
