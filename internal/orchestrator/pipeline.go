// Package orchestrator wires the retrieval and context-assembly stages into
// one pipeline: index written chapters, then build a budgeted generation
// context for the next chapter.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/inkwell-labs/loom/internal/config"
	"github.com/inkwell-labs/loom/internal/narrative"
	"github.com/inkwell-labs/loom/internal/rag"
	"github.com/inkwell-labs/loom/internal/store"
	"github.com/inkwell-labs/loom/internal/story"
)

// ErrNoEmbedder marks operations that need embeddings when the pipeline was
// built without an API key.
var ErrNoEmbedder = errors.New("no embedder configured: set OPENAI_API_KEY")

// Pipeline holds the wired stages. Construct with NewPipeline and release
// with Close.
type Pipeline struct {
	cfg        config.Config
	log        *zap.Logger
	embedder   rag.Embedder
	store      store.VectorStore
	builder    *rag.QueryBuilder
	retriever  *rag.Retriever
	assembler  *narrative.Assembler
	compressor *narrative.Compressor
	counter    narrative.TokenCounter
}

// ContextResult is everything one context build produced. Text is the final
// prompt context; the rest is exposed for inspection and debugging output.
type ContextResult struct {
	Text       string               `json:"text"`
	Tokens     int                  `json:"tokens"`
	Query      rag.EnhancedQuery    `json:"query"`
	Retrieval  rag.Result           `json:"retrieval"`
	SceneState narrative.SceneState `json:"scene_state"`
}

// NewPipeline builds a pipeline from configuration. A missing OPENAI_API_KEY
// is not fatal: the pipeline runs with retrieval disabled and reports the
// degradation through ContextResult.Retrieval.Reason.
func NewPipeline(ctx context.Context, cfg config.Config, log *zap.Logger) (*Pipeline, error) {
	if log == nil {
		log = zap.NewNop()
	}

	vs, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	var embedder rag.Embedder
	oe, err := rag.NewOpenAIEmbedder(cfg.Embedder.Model, cfg.Embedder.Dimension)
	if err != nil {
		log.Warn("embedder unavailable, retrieval disabled", zap.Error(err))
	} else {
		embedder = oe
	}

	reranker := rag.NewTemporalReranker(rag.RerankerConfig{
		SimilarityWeight:    cfg.Retrieval.SimilarityWeight,
		RecencyWeight:       cfg.Retrieval.RecencyWeight,
		DecayFactor:         cfg.Retrieval.DecayFactor,
		NearbyRange:         cfg.Retrieval.NearbyRange,
		NearbyBonus:         cfg.Retrieval.NearbyBonus,
		CandidateMultiplier: cfg.Retrieval.CandidateMultiplier,
	})

	retriever, err := rag.NewRetriever(embedder, vs, reranker, rag.RetrieverConfig{
		TopKChunks:    cfg.Retrieval.TopKChunks,
		TopKSummaries: cfg.Retrieval.TopKSummaries,
	}, log)
	if err != nil {
		vs.Close()
		return nil, fmt.Errorf("create retriever: %w", err)
	}

	counter, err := newTokenCounter(cfg)
	if err != nil {
		vs.Close()
		return nil, fmt.Errorf("create token counter: %w", err)
	}

	builder := rag.NewQueryBuilder(rag.QueryBuilderConfig{
		MaxEntityQueries: cfg.Retrieval.MaxEntityQueries,
		MaxThreadQueries: cfg.Retrieval.MaxThreadQueries,
	})
	compressor := narrative.NewCompressor(counter, narrative.TierRatios{
		MustHave:  cfg.Context.MustHaveRatio,
		Important: cfg.Context.ImportantRatio,
		Reference: cfg.Context.ReferenceRatio,
	})

	return &Pipeline{
		cfg:        cfg,
		log:        log,
		embedder:   embedder,
		store:      vs,
		builder:    builder,
		retriever:  retriever,
		assembler:  narrative.NewAssembler(narrative.DefaultAssemblerConfig()),
		compressor: compressor,
		counter:    counter,
	}, nil
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (store.VectorStore, error) {
	switch cfg.Store.Backend {
	case "", "sqlite":
		sc := store.DefaultConfig()
		sc.Path = cfg.Store.Path
		sc.Dimension = cfg.Embedder.Dimension
		return store.OpenSQLite(sc, log)
	case "milvus":
		mc := store.DefaultMilvusConfig(cfg.Embedder.Dimension)
		mc.Address = cfg.Store.MilvusAddress
		return store.NewMilvusStore(ctx, mc, log)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func newTokenCounter(cfg config.Config) (narrative.TokenCounter, error) {
	if cfg.Context.TokenCounter == "tiktoken" {
		return narrative.NewTiktokenCounter(cfg.Embedder.Model)
	}
	return narrative.NewEstimatedCounter(cfg.Context.CharsPerToken), nil
}

// Close releases the pipeline's storage.
func (p *Pipeline) Close() error {
	return p.store.Close()
}

// Store exposes the underlying vector store for maintenance commands.
func (p *Pipeline) Store() store.VectorStore {
	return p.store
}

// BuildChapterContext runs the full flow for one writing task: query
// building, retrieval, scene-state extraction, tiered assembly, and
// compression under the configured token budget. Retrieval failures degrade
// the result instead of failing it; the returned error covers only input
// problems.
func (p *Pipeline) BuildChapterContext(ctx context.Context, project *story.Project, task story.WritingTask) (*ContextResult, error) {
	if project == nil {
		return nil, fmt.Errorf("project cannot be nil")
	}
	if task.Chapter <= 0 {
		return nil, fmt.Errorf("task chapter must be positive, got %d", task.Chapter)
	}

	query := p.builder.Build(task, project.Setting, project.Roster, project.Analysis, project.Threads)
	p.log.Debug("built retrieval query",
		zap.String("project", project.ID),
		zap.Int("chapter", task.Chapter),
		zap.Int("queries", len(query.AllQueries())))

	retrieval := p.retriever.Retrieve(ctx, project.ID, query, task.Chapter, project.TotalChapters())
	if retrieval.Reason != "" {
		p.log.Info("retrieval degraded", zap.String("reason", retrieval.Reason))
	}

	scene := narrative.ExtractSceneState(project.Analysis, priorChapterText(project, task.Chapter))

	gc := p.assembler.Assemble(task, project.Setting, project.Roster, retrieval, project.Analysis, project.Threads)
	text := p.compressor.Compress(gc, p.cfg.Context.MaxContextTokens)

	return &ContextResult{
		Text:       text,
		Tokens:     p.counter.Count(text),
		Query:      query,
		Retrieval:  retrieval,
		SceneState: scene,
	}, nil
}

// priorChapterText returns the text of the chapter immediately before the
// target, or "" when it is not present in the project file.
func priorChapterText(project *story.Project, targetChapter int) string {
	for _, ch := range project.Chapters {
		if ch.Chapter == targetChapter-1 {
			return ch.Text
		}
	}
	return ""
}
