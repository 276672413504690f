// Package narrative assembles retrieval results and structured story state
// into a tiered generation context and compresses it into prompt text under
// a token budget.
package narrative

import (
	"github.com/inkwell-labs/loom/internal/story"
)

// SettingBasics is the minimal setting description the generator must see.
type SettingBasics struct {
	Genre   string `json:"genre,omitempty"`
	Style   string `json:"style,omitempty"`
	Tone    string `json:"tone,omitempty"`
	Premise string `json:"premise,omitempty"`
}

// TaskBrief is the current task's structured fields.
type TaskBrief struct {
	Chapter int    `json:"chapter"`
	Title   string `json:"title,omitempty"`
	Summary string `json:"summary,omitempty"`
	Goals   string `json:"goals,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// PriorEnding is the compact "where we left off" state in the must-have tier.
type PriorEnding struct {
	CharacterPositions map[string]string `json:"character_positions,omitempty"`
	OpenTensions       []string          `json:"open_tensions,omitempty"` // at most 5
	RecentEvents       []string          `json:"recent_events,omitempty"` // at most 3, high importance only
	Tone               string            `json:"tone,omitempty"`
}

// MustHaveTier holds the facts the generator cannot write without.
type MustHaveTier struct {
	Basics      *SettingBasics `json:"basics,omitempty"`
	Roster      []string       `json:"roster,omitempty"` // full name roster for name consistency
	Task        *TaskBrief     `json:"task,omitempty"`
	PriorEnding *PriorEnding   `json:"prior_ending,omitempty"`
}

// ThreadBrief is a plot thread rendered into context.
type ThreadBrief struct {
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// SummaryExcerpt is one retrieved chapter summary, truncated for context.
type SummaryExcerpt struct {
	Chapter int     `json:"chapter"`
	Title   string  `json:"title,omitempty"`
	Summary string  `json:"summary"`
	Score   float64 `json:"score"`
}

// ImportantTier holds state that strongly shapes the chapter but can be
// dropped piecewise under budget pressure.
type ImportantTier struct {
	Characters      []story.Character    `json:"characters,omitempty"`    // involved characters, at most 5
	Relationships   []story.Relationship `json:"relationships,omitempty"` // touching involved characters, at most 10
	Threads         []ThreadBrief        `json:"threads,omitempty"`       // high priority, at most 3
	CharacterStates map[string]string    `json:"character_states,omitempty"`
	Summaries       []SummaryExcerpt     `json:"summaries,omitempty"` // top 3
}

// PassageExcerpt is one retrieved passage, truncated and score-tagged.
type PassageExcerpt struct {
	Chapter int     `json:"chapter"`
	Label   string  `json:"label,omitempty"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// ReferenceTier holds background the generator may consult when room allows.
type ReferenceTier struct {
	Locations    []story.NamedDetail `json:"locations,omitempty"`
	Items        []story.NamedDetail `json:"items,omitempty"`
	Synopsis     string              `json:"synopsis,omitempty"`
	Passages     []PassageExcerpt    `json:"passages,omitempty"` // top 5
	MinorThreads []ThreadBrief       `json:"minor_threads,omitempty"`
}

// GenerationContext is the three-tier priority structure handed to the
// compressor. Tiers are assembled independently and no fact appears in more
// than one tier.
type GenerationContext struct {
	MustHave  MustHaveTier  `json:"must_have"`
	Important ImportantTier `json:"important"`
	Reference ReferenceTier `json:"reference"`
}
