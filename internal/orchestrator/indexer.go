package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/inkwell-labs/loom/internal/store"
	"github.com/inkwell-labs/loom/internal/story"
)

// IndexOptions controls chapter indexing.
type IndexOptions struct {
	// BatchSize bounds how many texts are embedded per API call.
	BatchSize int

	// ForceReindex re-embeds and rewrites records whose content is unchanged.
	ForceReindex bool
}

// DefaultIndexOptions returns the tuned defaults.
func DefaultIndexOptions() IndexOptions {
	return IndexOptions{BatchSize: 10}
}

// chunkMaxChars bounds one indexed passage. Paragraphs are accumulated until
// the next one would cross this limit.
const chunkMaxChars = 1500

// IndexChapters embeds and upserts every written chapter in the project:
// chapter text split into passage chunks, plus one summary record per
// chapter that has a summary. Records whose content hash already matches the
// stored one are skipped unless ForceReindex is set. Indexing requires a
// configured embedder.
func (p *Pipeline) IndexChapters(ctx context.Context, project *story.Project, opts IndexOptions) (store.UpsertReport, error) {
	var report store.UpsertReport
	if project == nil {
		return report, fmt.Errorf("project cannot be nil")
	}
	if p.embedder == nil {
		return report, ErrNoEmbedder
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultIndexOptions().BatchSize
	}

	chunkReport, err := p.indexChunks(ctx, project, opts)
	if err != nil {
		return report, err
	}
	summaryReport, err := p.indexSummaries(ctx, project, opts)
	if err != nil {
		return chunkReport, err
	}

	report.Inserted = chunkReport.Inserted + summaryReport.Inserted
	report.Replaced = chunkReport.Replaced + summaryReport.Replaced
	report.Failed = chunkReport.Failed + summaryReport.Failed

	p.log.Info("indexed project",
		zap.String("project", project.ID),
		zap.Int("chapters", len(project.Chapters)),
		zap.Int("inserted", report.Inserted),
		zap.Int("replaced", report.Replaced),
		zap.Int("failed", report.Failed))
	return report, nil
}

func (p *Pipeline) indexChunks(ctx context.Context, project *story.Project, opts IndexOptions) (store.UpsertReport, error) {
	var report store.UpsertReport

	existing := p.existingHashes(ctx, project.ID, store.KindChunk)

	var pending []store.ChunkRecord
	for _, ch := range project.Chapters {
		label := chapterLabel(ch)
		for i, passage := range chunkText(ch.Text) {
			id := chunkID(ch.Chapter, i)
			if !opts.ForceReindex && existing[id] == store.HashContent(passage) {
				continue
			}
			pending = append(pending, store.ChunkRecord{
				ID:         id,
				ProjectID:  project.ID,
				Chapter:    ch.Chapter,
				ChunkIndex: i,
				Label:      label,
				Content:    passage,
			})
		}
	}
	if len(pending) == 0 {
		p.log.Debug("no chunks to index", zap.String("project", project.ID))
		return report, nil
	}

	for start := 0; start < len(pending); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		texts := make([]string, len(batch))
		for i, r := range batch {
			texts[i] = r.Content
		}
		vectors, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return report, fmt.Errorf("embed chunk batch: %w", err)
		}
		for i := range batch {
			batch[i].Embedding = vectors[i]
		}

		r, err := p.store.UpsertChunks(ctx, batch)
		if err != nil {
			return report, fmt.Errorf("upsert chunk batch: %w", err)
		}
		report.Inserted += r.Inserted
		report.Replaced += r.Replaced
		report.Failed += r.Failed
	}
	return report, nil
}

func (p *Pipeline) indexSummaries(ctx context.Context, project *story.Project, opts IndexOptions) (store.UpsertReport, error) {
	var report store.UpsertReport

	existing := p.existingHashes(ctx, project.ID, store.KindSummary)

	var pending []store.SummaryRecord
	for _, ch := range project.Chapters {
		if strings.TrimSpace(ch.Summary) == "" {
			continue
		}
		id := int64(ch.Chapter)
		if !opts.ForceReindex && existing[id] == store.HashContent(ch.Summary) {
			continue
		}
		pending = append(pending, store.SummaryRecord{
			ID:        id,
			ProjectID: project.ID,
			Chapter:   ch.Chapter,
			Title:     ch.Title,
			Summary:   ch.Summary,
		})
	}
	if len(pending) == 0 {
		return report, nil
	}

	for start := 0; start < len(pending); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		texts := make([]string, len(batch))
		for i, r := range batch {
			texts[i] = r.Summary
		}
		vectors, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return report, fmt.Errorf("embed summary batch: %w", err)
		}
		for i := range batch {
			batch[i].Embedding = vectors[i]
		}

		r, err := p.store.UpsertSummaries(ctx, batch)
		if err != nil {
			return report, fmt.Errorf("upsert summary batch: %w", err)
		}
		report.Inserted += r.Inserted
		report.Replaced += r.Replaced
		report.Failed += r.Failed
	}
	return report, nil
}

// existingHashes is best-effort: a hash lookup failure only disables
// skip-existing for this run.
func (p *Pipeline) existingHashes(ctx context.Context, projectID string, kind store.RecordKind) map[int64]string {
	hashes, err := p.store.ContentHashes(ctx, projectID, kind)
	if err != nil {
		p.log.Warn("content hash lookup failed, reindexing everything",
			zap.String("kind", string(kind)), zap.Error(err))
		return nil
	}
	return hashes
}

// chunkID packs (chapter, chunk index) into a stable record ID so re-indexing
// the same passage overwrites rather than duplicates.
func chunkID(chapter, index int) int64 {
	return int64(chapter)<<20 | int64(index)
}

func chapterLabel(ch story.ChapterContent) string {
	if ch.Title != "" {
		return "Chapter " + strconv.Itoa(ch.Chapter) + ": " + ch.Title
	}
	return "Chapter " + strconv.Itoa(ch.Chapter)
}

// chunkText splits chapter text into passages on paragraph boundaries,
// accumulating paragraphs until the next would cross chunkMaxChars. A single
// oversized paragraph becomes its own chunk rather than being split mid-text.
func chunkText(text string) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(para)+2 > chunkMaxChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()
	return chunks
}
