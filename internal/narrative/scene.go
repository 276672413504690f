package narrative

import (
	"strings"

	"github.com/inkwell-labs/loom/internal/story"
)

// maxExcerptChars bounds the prior-ending excerpt carried in a SceneState.
const maxExcerptChars = 600

// maxSceneThreads bounds the open threads carried in a SceneState.
const maxSceneThreads = 3

// SceneState is a compact "where we left off" snapshot derived from the
// prior chapter's analysis and ending text.
type SceneState struct {
	TimeMarker         string            `json:"time_marker,omitempty"`
	PrimaryLocation    string            `json:"primary_location,omitempty"`
	CharacterPositions map[string]string `json:"character_positions,omitempty"`
	Tone               string            `json:"tone,omitempty"`
	OpenThreads        []string          `json:"open_threads,omitempty"`
	PriorEndingExcerpt string            `json:"prior_ending_excerpt,omitempty"`
}

// IsEmpty reports whether no structured field is set. The excerpt alone does
// not make a scene state non-empty.
func (s SceneState) IsEmpty() bool {
	return s.TimeMarker == "" &&
		s.PrimaryLocation == "" &&
		len(s.CharacterPositions) == 0 &&
		s.Tone == "" &&
		len(s.OpenThreads) == 0
}

// ExtractSceneState derives a SceneState from the prior chapter. The excerpt
// is always set from priorEnding; a nil analysis only shrinks the result,
// it is never an error.
func ExtractSceneState(analysis *story.ChapterAnalysis, priorEnding string) SceneState {
	state := SceneState{
		PriorEndingExcerpt: excerpt(priorEnding, maxExcerptChars),
	}
	if analysis == nil {
		return state
	}

	state.TimeMarker = analysis.TimeMarker
	state.Tone = analysis.Tone
	if len(analysis.Locations) > 0 {
		state.PrimaryLocation = analysis.Locations[0]
	}
	if len(analysis.CharacterStates) > 0 {
		state.CharacterPositions = make(map[string]string, len(analysis.CharacterStates))
		for name, pos := range analysis.CharacterStates {
			state.CharacterPositions[name] = pos
		}
	}
	for _, t := range analysis.OpenTensions {
		if len(state.OpenThreads) >= maxSceneThreads {
			break
		}
		state.OpenThreads = append(state.OpenThreads, t)
	}
	return state
}

// excerpt trims text and right-truncates it to at most max runes, snapping
// to the nearest preceding sentence boundary when one exists.
func excerpt(text string, max int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	cut := runes[:max]
	if idx := lastSentenceEnd(cut); idx > 0 {
		return strings.TrimSpace(string(cut[:idx+1]))
	}
	return strings.TrimSpace(string(cut)) + "..."
}

func lastSentenceEnd(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		switch runes[i] {
		case '.', '!', '?':
			return i
		}
	}
	return -1
}
