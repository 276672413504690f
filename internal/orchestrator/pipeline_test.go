package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-labs/loom/internal/config"
	"github.com/inkwell-labs/loom/internal/story"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	// No API key: the pipeline must come up with retrieval disabled.
	t.Setenv("OPENAI_API_KEY", "")

	cfg := config.Default()
	cfg.Store.Path = ":memory:"
	cfg.Embedder.Dimension = 0

	p, err := NewPipeline(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func testProject() *story.Project {
	return &story.Project{
		ID: "novel",
		Setting: story.Setting{
			Genre:   "maritime fantasy",
			Premise: "A drowned city resurfaces once a generation.",
		},
		Roster: []story.Character{{Name: "Ava"}, {Name: "Bo"}},
		Analysis: &story.ChapterAnalysis{
			Chapter: 5,
			Tone:    "uneasy",
			CharacterStates: map[string]string{
				"Ava": "at the tiller",
			},
		},
		Task: &story.WritingTask{
			Chapter: 6,
			Title:   "The Crossing",
			Summary: "Ava and Bo cross the strait.",
		},
		Chapters: []story.ChapterContent{
			{Chapter: 5, Title: "Departure", Summary: "They slip out before dawn.",
				Text: "The harbor fell away behind them. No one spoke."},
		},
	}
}

func TestBuildChapterContextWithoutEmbedder(t *testing.T) {
	p := newTestPipeline(t)
	project := testProject()

	result, err := p.BuildChapterContext(context.Background(), project, *project.Task)
	require.NoError(t, err)

	// The context is still usable: story state without retrieval.
	assert.Contains(t, result.Text, "Ava, Bo")
	assert.Contains(t, result.Text, "## Chapter 6")
	assert.Contains(t, result.Retrieval.Reason, "retrieval skipped")
	assert.Empty(t, result.Retrieval.Chunks)

	// The scene state picks up the prior chapter's ending.
	assert.Equal(t, "uneasy", result.SceneState.Tone)
	assert.Contains(t, result.SceneState.PriorEndingExcerpt, "No one spoke.")
}

func TestBuildChapterContextRespectsBudget(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg := config.Default()
	cfg.Store.Path = ":memory:"
	cfg.Embedder.Dimension = 0
	cfg.Context.MaxContextTokens = 80

	p, err := NewPipeline(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer p.Close()

	result, err := p.BuildChapterContext(context.Background(), testProject(), *testProject().Task)
	require.NoError(t, err)
	assert.LessOrEqual(t, result.Tokens, 80)
	assert.NotEmpty(t, result.Text)
}

func TestBuildChapterContextInvalidInputs(t *testing.T) {
	p := newTestPipeline(t)

	_, err := p.BuildChapterContext(context.Background(), nil, story.WritingTask{Chapter: 1})
	assert.Error(t, err)

	_, err = p.BuildChapterContext(context.Background(), testProject(), story.WritingTask{})
	assert.Error(t, err)
}

func TestIndexChaptersWithoutEmbedder(t *testing.T) {
	p := newTestPipeline(t)

	_, err := p.IndexChapters(context.Background(), testProject(), DefaultIndexOptions())
	assert.ErrorIs(t, err, ErrNoEmbedder)
}

func TestPriorChapterText(t *testing.T) {
	project := testProject()

	assert.Equal(t, "The harbor fell away behind them. No one spoke.", priorChapterText(project, 6))
	assert.Equal(t, "", priorChapterText(project, 4))
}

func TestOpenStoreUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Backend = "postgres"

	_, err := NewPipeline(context.Background(), cfg, nil)
	assert.Error(t, err)
}
