package narrative

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullContext() *GenerationContext {
	return &GenerationContext{
		MustHave: MustHaveTier{
			Basics: &SettingBasics{
				Genre:   "maritime fantasy",
				Style:   "close third person",
				Tone:    "melancholy",
				Premise: strings.Repeat("A drowned city resurfaces once a generation. ", 10),
			},
			Roster: []string{"Ava", "Bo", "Celine", "Darius", "Esme"},
			Task: &TaskBrief{
				Chapter: 6,
				Title:   "The Crossing",
				Summary: "Ava and Bo cross the strait while the storm builds.",
				Goals:   "Reach the far shore; lose the ledger overboard.",
			},
			PriorEnding: &PriorEnding{
				Tone:               "uneasy",
				CharacterPositions: map[string]string{"Ava": "at the tiller", "Bo": "bailing water"},
				OpenTensions:       []string{"the harbormaster knows", "the ledger is a forgery"},
				RecentEvents:       []string{"Bo burned the customs house"},
			},
		},
		Important: ImportantTier{
			Threads: []ThreadBrief{{Description: "the usurper's plot", Priority: "high"}},
			Summaries: []SummaryExcerpt{
				{Chapter: 5, Title: "Departure", Summary: "They slip out of the harbor before dawn.", Score: 0.8},
			},
			CharacterStates: map[string]string{"Celine": "waiting in the capital"},
		},
		Reference: ReferenceTier{
			Synopsis: strings.Repeat("Long ago the city drowned. ", 20),
			Passages: []PassageExcerpt{
				{Chapter: 4, Label: "Chapter 4", Content: strings.Repeat("The strait churned grey. ", 15), Score: 0.7},
				{Chapter: 3, Label: "Chapter 3", Content: strings.Repeat("Salt crusted the ropes. ", 15), Score: 0.6},
			},
			MinorThreads: []ThreadBrief{{Description: "the missing ledger", Priority: "low"}},
		},
	}
}

func TestCompressNeverExceedsBudget(t *testing.T) {
	counter := NewEstimatedCounter(4)
	c := NewCompressor(counter, DefaultTierRatios())

	for _, budget := range []int{50, 100, 200, 500, 1000, 4000} {
		out := c.Compress(fullContext(), budget)
		assert.LessOrEqual(t, counter.Count(out), budget, "budget %d", budget)
		assert.NotEmpty(t, out, "budget %d", budget)
	}
}

func TestCompressRosterAndTaskSurviveTightBudget(t *testing.T) {
	counter := NewEstimatedCounter(4)
	c := NewCompressor(counter, DefaultTierRatios())

	// Tight enough that the oversized premise cannot fit whole, but the
	// name roster and the task must still appear.
	out := c.Compress(fullContext(), 150)

	assert.Contains(t, out, "Ava, Bo, Celine, Darius, Esme")
	assert.Contains(t, out, "## Chapter 6")
	assert.LessOrEqual(t, counter.Count(out), 150)
}

func TestCompressTierOrdering(t *testing.T) {
	c := NewCompressor(NewEstimatedCounter(4), DefaultTierRatios())

	out := c.Compress(fullContext(), 4000)

	task := strings.Index(out, "## Chapter 6")
	threads := strings.Index(out, "## Active threads")
	passage := strings.Index(out, "### Passage from")
	require.GreaterOrEqual(t, task, 0)
	require.GreaterOrEqual(t, threads, 0)
	require.GreaterOrEqual(t, passage, 0)
	assert.Less(t, task, threads)
	assert.Less(t, threads, passage)
}

func TestCompressDegenerateInputs(t *testing.T) {
	c := NewCompressor(nil, TierRatios{})

	assert.Empty(t, c.Compress(nil, 1000))
	assert.Empty(t, c.Compress(fullContext(), 0))
	assert.Empty(t, c.Compress(fullContext(), -5))
	assert.Empty(t, c.Compress(&GenerationContext{}, 1000))
}

func TestCompressRedistributesUnusedMustHave(t *testing.T) {
	counter := NewEstimatedCounter(4)
	c := NewCompressor(counter, DefaultTierRatios())

	// A sparse must-have tier leaves most of its 45% unused; reference
	// content larger than the base 20% share should still make it in.
	gc := &GenerationContext{
		MustHave: MustHaveTier{
			Roster: []string{"Ava"},
			Task:   &TaskBrief{Chapter: 2, Summary: "Ava walks."},
		},
		Reference: ReferenceTier{
			Synopsis: strings.Repeat("Background lore. ", 40),
		},
	}

	// At 600 tokens the synopsis only fits because the must-have surplus
	// flows into the reference budget.
	out := c.Compress(gc, 600)
	assert.Contains(t, out, "## Synopsis so far")
	assert.LessOrEqual(t, counter.Count(out), 600)
}

func TestCompressOmitsOversizedImportantSections(t *testing.T) {
	counter := NewEstimatedCounter(4)
	c := NewCompressor(counter, DefaultTierRatios())

	gc := fullContext()
	gc.Important.Summaries = []SummaryExcerpt{
		{Chapter: 5, Summary: strings.Repeat("Very long summary text. ", 100)},
	}

	out := c.Compress(gc, 600)
	// The summaries section exceeds its sub-share and is dropped whole,
	// never truncated mid-section.
	assert.NotContains(t, out, "## Earlier chapters")
	assert.LessOrEqual(t, counter.Count(out), 600)
}

func TestNewCompressorNormalizesRatios(t *testing.T) {
	c := NewCompressor(nil, TierRatios{MustHave: 9, Important: 7, Reference: 4})

	assert.InDelta(t, 0.45, c.ratios.MustHave, 1e-9)
	assert.InDelta(t, 0.35, c.ratios.Important, 1e-9)
	assert.InDelta(t, 0.20, c.ratios.Reference, 1e-9)
}

func TestBudgetTextForceAppendTruncates(t *testing.T) {
	b := &budgetText{counter: NewEstimatedCounter(4), max: 30}

	ok := b.forceAppend(strings.Repeat("word ", 100), 30)
	require.True(t, ok)
	assert.LessOrEqual(t, b.tokens(), 30)
	assert.True(t, strings.HasSuffix(b.text, "..."))
}

func TestBudgetTextTryAppendRejects(t *testing.T) {
	b := &budgetText{counter: NewEstimatedCounter(4), max: 10}

	assert.False(t, b.tryAppend(strings.Repeat("x", 100), 0))
	assert.Empty(t, b.text)
	assert.True(t, b.tryAppend("short", 0))
	assert.Equal(t, "short", b.text)
}
