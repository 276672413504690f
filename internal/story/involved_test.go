package story

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvolvedCharacters(t *testing.T) {
	roster := []Character{
		{Name: "Ava"},
		{Name: "Bo"},
		{Name: "Rose"},
		{Name: ""},
	}

	involved := InvolvedCharacters("Ava and Bo argue about the map", roster)
	require.Len(t, involved, 2)
	assert.Equal(t, "Ava", involved[0].Name)
	assert.Equal(t, "Bo", involved[1].Name)
}

func TestInvolvedCharactersCaseSensitive(t *testing.T) {
	roster := []Character{{Name: "Rose"}, {Name: "Ash"}}

	// Lowercase occurrences are common nouns, not the characters.
	involved := InvolvedCharacters("a rose in the ash of the fire", roster)
	assert.Empty(t, involved)
}

func TestInvolvedCharactersEmptyTask(t *testing.T) {
	assert.Empty(t, InvolvedCharacters("", []Character{{Name: "Ava"}}))
}

func TestRosterNames(t *testing.T) {
	roster := []Character{{Name: "Ava"}, {Name: ""}, {Name: "Bo"}}
	assert.Equal(t, []string{"Ava", "Bo"}, RosterNames(roster))
}

func TestWritingTaskText(t *testing.T) {
	task := WritingTask{Title: "The Crossing", Summary: "Ava sails."}
	assert.Equal(t, "The Crossing Ava sails.", task.Text())

	assert.Equal(t, "", WritingTask{}.Text())
}

func TestChapterAnalysisLastLocation(t *testing.T) {
	var nilAnalysis *ChapterAnalysis
	assert.Equal(t, "", nilAnalysis.LastLocation())

	a := &ChapterAnalysis{Locations: []string{"the pier", "the strait"}}
	assert.Equal(t, "the strait", a.LastLocation())
}

func TestThreadPriorityString(t *testing.T) {
	assert.Equal(t, "high", PriorityHigh.String())
	assert.Equal(t, "medium", PriorityMedium.String())
	assert.Equal(t, "low", PriorityLow.String())
	assert.Equal(t, "low", ThreadPriority(42).String())
}
