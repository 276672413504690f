package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"
)

// Common errors for Milvus operations.
var (
	ErrInvalidDimension = errors.New("invalid vector dimension")
	ErrConnectionFailed = errors.New("failed to connect to Milvus")
)

// MilvusConfig holds configuration for the Milvus-backed store.
type MilvusConfig struct {
	Address           string // Milvus server address (e.g. "localhost:19530")
	ChunkCollection   string
	SummaryCollection string
	Dimension         int // embedding width (required)

	// HNSW index parameters
	M              int
	EfConstruction int
}

// DefaultMilvusConfig returns defaults for a local Milvus deployment.
func DefaultMilvusConfig(dimension int) MilvusConfig {
	return MilvusConfig{
		Address:           "localhost:19530",
		ChunkCollection:   "loom_chunks",
		SummaryCollection: "loom_summaries",
		Dimension:         dimension,
		M:                 16,
		EfConstruction:    256,
	}
}

var _ VectorStore = (*MilvusStore)(nil)

// MilvusStore implements VectorStore against a Milvus server. The server
// always provides the COSINE metric, so there is no native-vs-fallback path
// selection here; that state machine belongs to the SQLite backend.
type MilvusStore struct {
	client client.Client
	config MilvusConfig
	log    *zap.Logger
}

// NewMilvusStore connects to Milvus and ensures both collections exist with
// the expected schema and an HNSW index.
func NewMilvusStore(ctx context.Context, config MilvusConfig, log *zap.Logger) (*MilvusStore, error) {
	if config.Dimension <= 0 {
		return nil, ErrInvalidDimension
	}
	if log == nil {
		log = zap.NewNop()
	}

	c, err := client.NewGrpcClient(ctx, config.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &MilvusStore{client: c, config: config, log: log}
	if err := store.ensureCollections(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return store, nil
}

func (m *MilvusStore) ensureCollections(ctx context.Context) error {
	dim := fmt.Sprintf("%d", m.config.Dimension)

	chunkSchema := &entity.Schema{
		CollectionName: m.config.ChunkCollection,
		Fields: []*entity.Field{
			{Name: "id", DataType: entity.FieldTypeInt64, PrimaryKey: true},
			{Name: "project_id", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "128"}},
			{Name: "chapter", DataType: entity.FieldTypeInt64},
			{Name: "chunk_index", DataType: entity.FieldTypeInt64},
			{Name: "label", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "256"}},
			{Name: "content", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "65535"}},
			{Name: "content_hash", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "32"}},
			{Name: "metadata", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "4096"}},
			{Name: "embedding", DataType: entity.FieldTypeFloatVector, TypeParams: map[string]string{"dim": dim}},
		},
	}
	summarySchema := &entity.Schema{
		CollectionName: m.config.SummaryCollection,
		Fields: []*entity.Field{
			{Name: "id", DataType: entity.FieldTypeInt64, PrimaryKey: true},
			{Name: "project_id", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "128"}},
			{Name: "chapter", DataType: entity.FieldTypeInt64},
			{Name: "title", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "512"}},
			{Name: "summary", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "65535"}},
			{Name: "content_hash", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "32"}},
			{Name: "embedding", DataType: entity.FieldTypeFloatVector, TypeParams: map[string]string{"dim": dim}},
		},
	}

	for _, schema := range []*entity.Schema{chunkSchema, summarySchema} {
		has, err := m.client.HasCollection(ctx, schema.CollectionName)
		if err != nil {
			return fmt.Errorf("check collection %s: %w", schema.CollectionName, err)
		}
		if has {
			continue
		}
		if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("create collection %s: %w", schema.CollectionName, err)
		}
		idx, err := entity.NewIndexHNSW(entity.COSINE, m.config.M, m.config.EfConstruction)
		if err != nil {
			return fmt.Errorf("create index config: %w", err)
		}
		if err := m.client.CreateIndex(ctx, schema.CollectionName, "embedding", idx, false); err != nil {
			return fmt.Errorf("create index on %s: %w", schema.CollectionName, err)
		}
		if err := m.client.LoadCollection(ctx, schema.CollectionName, false); err != nil {
			return fmt.Errorf("load collection %s: %w", schema.CollectionName, err)
		}
	}
	return nil
}

// UpsertChunks writes chunk records, idempotent by ID.
func (m *MilvusStore) UpsertChunks(ctx context.Context, records []ChunkRecord) (UpsertReport, error) {
	if len(records) == 0 {
		return UpsertReport{}, nil
	}
	n := len(records)
	ids := make([]int64, n)
	projects := make([]string, n)
	chapters := make([]int64, n)
	indexes := make([]int64, n)
	labels := make([]string, n)
	contents := make([]string, n)
	hashes := make([]string, n)
	metas := make([]string, n)
	embeddings := make([][]float32, n)
	for i, r := range records {
		if len(r.Embedding) != m.config.Dimension {
			return UpsertReport{}, fmt.Errorf("chunk %d: %w: expected %d, got %d",
				r.ID, ErrInvalidDimension, m.config.Dimension, len(r.Embedding))
		}
		ids[i] = r.ID
		projects[i] = r.ProjectID
		chapters[i] = int64(r.Chapter)
		indexes[i] = int64(r.ChunkIndex)
		labels[i] = r.Label
		contents[i] = r.Content
		hashes[i] = HashContent(r.Content)
		metas[i] = encodeMetadata(r.Metadata)
		embeddings[i] = r.Embedding
	}

	// The upsert API does not distinguish inserts from replacements, so
	// resolve the split with a lookup before writing.
	existing := m.existingIDs(ctx, m.config.ChunkCollection, ids)

	columns := []entity.Column{
		entity.NewColumnInt64("id", ids),
		entity.NewColumnVarChar("project_id", projects),
		entity.NewColumnInt64("chapter", chapters),
		entity.NewColumnInt64("chunk_index", indexes),
		entity.NewColumnVarChar("label", labels),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnVarChar("content_hash", hashes),
		entity.NewColumnVarChar("metadata", metas),
		entity.NewColumnFloatVector("embedding", m.config.Dimension, embeddings),
	}
	if _, err := m.client.Upsert(ctx, m.config.ChunkCollection, "", columns...); err != nil {
		return UpsertReport{}, fmt.Errorf("upsert chunks: %w", err)
	}
	if err := m.client.Flush(ctx, m.config.ChunkCollection, false); err != nil {
		return UpsertReport{}, fmt.Errorf("flush chunks: %w", err)
	}
	return splitReport(ids, existing), nil
}

// UpsertSummaries writes summary records, idempotent by ID.
func (m *MilvusStore) UpsertSummaries(ctx context.Context, records []SummaryRecord) (UpsertReport, error) {
	if len(records) == 0 {
		return UpsertReport{}, nil
	}
	n := len(records)
	ids := make([]int64, n)
	projects := make([]string, n)
	chapters := make([]int64, n)
	titles := make([]string, n)
	summaries := make([]string, n)
	hashes := make([]string, n)
	embeddings := make([][]float32, n)
	for i, r := range records {
		if len(r.Embedding) != m.config.Dimension {
			return UpsertReport{}, fmt.Errorf("summary %d: %w: expected %d, got %d",
				r.ID, ErrInvalidDimension, m.config.Dimension, len(r.Embedding))
		}
		ids[i] = r.ID
		projects[i] = r.ProjectID
		chapters[i] = int64(r.Chapter)
		titles[i] = r.Title
		summaries[i] = r.Summary
		hashes[i] = HashContent(r.Summary)
		embeddings[i] = r.Embedding
	}

	existing := m.existingIDs(ctx, m.config.SummaryCollection, ids)

	columns := []entity.Column{
		entity.NewColumnInt64("id", ids),
		entity.NewColumnVarChar("project_id", projects),
		entity.NewColumnInt64("chapter", chapters),
		entity.NewColumnVarChar("title", titles),
		entity.NewColumnVarChar("summary", summaries),
		entity.NewColumnVarChar("content_hash", hashes),
		entity.NewColumnFloatVector("embedding", m.config.Dimension, embeddings),
	}
	if _, err := m.client.Upsert(ctx, m.config.SummaryCollection, "", columns...); err != nil {
		return UpsertReport{}, fmt.Errorf("upsert summaries: %w", err)
	}
	if err := m.client.Flush(ctx, m.config.SummaryCollection, false); err != nil {
		return UpsertReport{}, fmt.Errorf("flush summaries: %w", err)
	}
	return splitReport(ids, existing), nil
}

// existingIDs returns which of the given IDs are already present in the
// collection. Best effort: on failure nil is returned and the upsert report
// degrades to counting every record as inserted, matching the SQLite backend.
func (m *MilvusStore) existingIDs(ctx context.Context, collection string, ids []int64) map[int64]bool {
	if len(ids) == 0 {
		return nil
	}
	results, err := m.client.Query(ctx, collection, nil, idsExpr(ids), []string{"id"})
	if err != nil {
		m.log.Debug("existing-id lookup failed", zap.String("collection", collection), zap.Error(err))
		return nil
	}
	existing := make(map[int64]bool, len(ids))
	for _, column := range results {
		if col, ok := column.(*entity.ColumnInt64); ok && col.Name() == "id" {
			for _, id := range col.Data() {
				existing[id] = true
			}
		}
	}
	return existing
}

// splitReport divides a fully written batch into inserted and replaced counts.
func splitReport(ids []int64, existing map[int64]bool) UpsertReport {
	var report UpsertReport
	for _, id := range ids {
		if existing[id] {
			report.Replaced++
		} else {
			report.Inserted++
		}
	}
	return report
}

// QueryChunks performs a COSINE similarity search scoped to one project.
func (m *MilvusStore) QueryChunks(ctx context.Context, projectID string, query []float32, topK int) ([]RetrievedChunk, error) {
	results, err := m.search(ctx, m.config.ChunkCollection, projectID, query, topK,
		[]string{"chapter", "label", "content", "metadata"})
	if err != nil {
		return nil, err
	}
	if results == nil {
		return []RetrievedChunk{}, nil
	}

	chunks := make([]RetrievedChunk, 0, results.ResultCount)
	for i := 0; i < results.ResultCount; i++ {
		c := RetrievedChunk{
			// Milvus COSINE scores are similarities (higher = closer);
			// convert to the distance contract.
			Score: 1 - results.Scores[i],
		}
		for _, field := range results.Fields {
			switch field.Name() {
			case "chapter":
				c.Chapter = int(field.(*entity.ColumnInt64).Data()[i])
			case "label":
				c.Label = field.(*entity.ColumnVarChar).Data()[i]
			case "content":
				c.Content = field.(*entity.ColumnVarChar).Data()[i]
			case "metadata":
				c.Metadata = decodeMetadata(field.(*entity.ColumnVarChar).Data()[i])
			}
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// QuerySummaries performs a COSINE similarity search over summaries.
func (m *MilvusStore) QuerySummaries(ctx context.Context, projectID string, query []float32, topK int) ([]RetrievedSummary, error) {
	results, err := m.search(ctx, m.config.SummaryCollection, projectID, query, topK,
		[]string{"chapter", "title", "summary"})
	if err != nil {
		return nil, err
	}
	if results == nil {
		return []RetrievedSummary{}, nil
	}

	out := make([]RetrievedSummary, 0, results.ResultCount)
	for i := 0; i < results.ResultCount; i++ {
		r := RetrievedSummary{Score: 1 - results.Scores[i]}
		for _, field := range results.Fields {
			switch field.Name() {
			case "chapter":
				r.Chapter = int(field.(*entity.ColumnInt64).Data()[i])
			case "title":
				r.Title = field.(*entity.ColumnVarChar).Data()[i]
			case "summary":
				r.Summary = field.(*entity.ColumnVarChar).Data()[i]
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *MilvusStore) search(ctx context.Context, collection, projectID string, query []float32, topK int, outputFields []string) (*client.SearchResult, error) {
	if topK <= 0 || len(query) == 0 {
		return nil, nil
	}
	if len(query) != m.config.Dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, m.config.Dimension, len(query))
	}

	sp, err := entity.NewIndexHNSWSearchParam(64)
	if err != nil {
		return nil, fmt.Errorf("create search params: %w", err)
	}
	results, err := m.client.Search(
		ctx,
		collection,
		nil,
		projectExpr(projectID),
		outputFields,
		[]entity.Vector{entity.FloatVector(query)},
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}
	if len(results) == 0 || results[0].ResultCount == 0 {
		return nil, nil
	}
	return &results[0], nil
}

// Delete removes records matched by the selector from both collections. The
// delete API reports no affected-row count, so matches are counted up front;
// a failed count degrades the number, not the delete.
func (m *MilvusStore) Delete(ctx context.Context, projectID string, sel Selector) (int64, error) {
	expr, err := deleteExpr(projectID, sel)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, collection := range []string{m.config.ChunkCollection, m.config.SummaryCollection} {
		matched := m.countMatching(ctx, collection, expr)
		if err := m.client.Delete(ctx, collection, "", expr); err != nil {
			return total, fmt.Errorf("delete from %s: %w", collection, err)
		}
		total += matched
	}
	return total, nil
}

// deleteExpr translates a selector into a Milvus boolean expression.
func deleteExpr(projectID string, sel Selector) (string, error) {
	expr := projectExpr(projectID)
	switch {
	case len(sel.IDs) > 0:
		return expr + " and " + idsExpr(sel.IDs), nil
	case sel.All:
		return expr, nil
	case sel.ChapterFrom > 0 && sel.ChapterTo >= sel.ChapterFrom:
		return fmt.Sprintf("%s and chapter >= %d and chapter <= %d", expr, sel.ChapterFrom, sel.ChapterTo), nil
	default:
		return "", ErrInvalidSelector
	}
}

func (m *MilvusStore) countMatching(ctx context.Context, collection, expr string) int64 {
	results, err := m.client.Query(ctx, collection, nil, expr, []string{"id"})
	if err != nil {
		m.log.Debug("pre-delete count failed", zap.String("collection", collection), zap.Error(err))
		return 0
	}
	for _, column := range results {
		if column.Name() == "id" {
			return int64(column.Len())
		}
	}
	return 0
}

// ContentHashes returns id -> content hash for the given record kind.
func (m *MilvusStore) ContentHashes(ctx context.Context, projectID string, kind RecordKind) (map[int64]string, error) {
	collection := m.config.ChunkCollection
	if kind == KindSummary {
		collection = m.config.SummaryCollection
	}
	results, err := m.client.Query(ctx, collection, nil, projectExpr(projectID), []string{"id", "content_hash"})
	if err != nil {
		return nil, fmt.Errorf("query %s hashes: %w", collection, err)
	}

	var (
		ids    []int64
		hashes []string
	)
	for _, column := range results {
		switch column.Name() {
		case "id":
			if col, ok := column.(*entity.ColumnInt64); ok {
				ids = col.Data()
			}
		case "content_hash":
			if col, ok := column.(*entity.ColumnVarChar); ok {
				hashes = col.Data()
			}
		}
	}

	out := make(map[int64]string, len(ids))
	for i := range ids {
		if i < len(hashes) {
			out[ids[i]] = hashes[i]
		}
	}
	return out, nil
}

// Stats returns per-project record counts.
func (m *MilvusStore) Stats(ctx context.Context, projectID string) (Stats, error) {
	stats := Stats{Backend: "milvus"}
	for _, target := range []struct {
		collection string
		count      *int64
	}{
		{m.config.ChunkCollection, &stats.Chunks},
		{m.config.SummaryCollection, &stats.Summaries},
	} {
		results, err := m.client.Query(ctx, target.collection, nil, projectExpr(projectID), []string{"id"})
		if err != nil {
			return Stats{}, fmt.Errorf("count %s: %w", target.collection, err)
		}
		for _, column := range results {
			if column.Name() == "id" {
				*target.count = int64(column.Len())
			}
		}
	}
	return stats, nil
}

// Close releases the Milvus connection.
func (m *MilvusStore) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

func projectExpr(projectID string) string {
	return fmt.Sprintf(`project_id == "%s"`, strings.ReplaceAll(projectID, `"`, ""))
}

func idsExpr(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return "id in [" + strings.Join(parts, ", ") + "]"
}

func encodeMetadata(meta map[string]string) string {
	if len(meta) == 0 {
		return ""
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return ""
	}
	return string(b)
}

func decodeMetadata(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil
	}
	return meta
}
