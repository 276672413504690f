package narrative

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-labs/loom/internal/story"
)

func TestExtractSceneState(t *testing.T) {
	analysis := &story.ChapterAnalysis{
		TimeMarker:      "dawn, three days later",
		Locations:       []string{"the pier", "the strait"},
		Tone:            "uneasy",
		CharacterStates: map[string]string{"Ava": "at the tiller"},
		OpenTensions:    []string{"one", "two", "three", "four"},
	}

	state := ExtractSceneState(analysis, "The boat slid into the fog. Bo said nothing.")

	assert.Equal(t, "dawn, three days later", state.TimeMarker)
	assert.Equal(t, "the pier", state.PrimaryLocation)
	assert.Equal(t, "uneasy", state.Tone)
	assert.Equal(t, "at the tiller", state.CharacterPositions["Ava"])
	// Open threads are capped at three.
	assert.Equal(t, []string{"one", "two", "three"}, state.OpenThreads)
	assert.Equal(t, "The boat slid into the fog. Bo said nothing.", state.PriorEndingExcerpt)
	assert.False(t, state.IsEmpty())
}

func TestExtractSceneStateNilAnalysis(t *testing.T) {
	state := ExtractSceneState(nil, "The lamp went out.")

	assert.True(t, state.IsEmpty())
	assert.Equal(t, "The lamp went out.", state.PriorEndingExcerpt)
}

func TestExtractSceneStateExcerptSentenceSnap(t *testing.T) {
	first := strings.Repeat("a", 300) + "."
	ending := first + " " + strings.Repeat("b", 400)

	state := ExtractSceneState(nil, ending)

	// Truncation snaps back to the last full sentence.
	assert.Equal(t, first, state.PriorEndingExcerpt)
}

func TestExtractSceneStateExcerptNoSentenceBoundary(t *testing.T) {
	ending := strings.Repeat("x", 700)

	state := ExtractSceneState(nil, ending)

	require.True(t, strings.HasSuffix(state.PriorEndingExcerpt, "..."))
	assert.Len(t, state.PriorEndingExcerpt, 603)
}

func TestSceneStateIsEmptyIgnoresExcerpt(t *testing.T) {
	assert.True(t, SceneState{PriorEndingExcerpt: "text"}.IsEmpty())
	assert.False(t, SceneState{Tone: "calm"}.IsEmpty())
}
