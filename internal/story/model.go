// Package story defines the shared domain types for a writing project:
// the task being written, the character roster, plot threads, setting
// information, and the structured analysis of previously written chapters.
package story

import "strings"

// WritingTask describes the chapter the generator is about to write.
type WritingTask struct {
	Chapter int    `json:"chapter"`
	Title   string `json:"title,omitempty"`
	Summary string `json:"summary,omitempty"`
	Goals   string `json:"goals,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// Text returns the task's title and summary joined for substring matching.
func (t WritingTask) Text() string {
	return strings.TrimSpace(t.Title + " " + t.Summary)
}

// Character is a roster entry for one named character.
type Character struct {
	Name        string `json:"name"`
	Identity    string `json:"identity,omitempty"` // e.g. "the masked envoy"
	Description string `json:"description,omitempty"`
	Personality string `json:"personality,omitempty"`
	Goal        string `json:"goal,omitempty"`
}

// Relationship links two roster characters.
type Relationship struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Kind        string `json:"kind"` // e.g. "rivals", "siblings"
	Description string `json:"description,omitempty"`
}

// ThreadPriority orders plot threads by narrative urgency.
type ThreadPriority int

const (
	PriorityLow ThreadPriority = iota
	PriorityMedium
	PriorityHigh
)

// String returns the lowercase label used in rendered context.
func (p ThreadPriority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

// PlotThread is an unresolved storyline the generator should keep alive.
type PlotThread struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Priority    ThreadPriority `json:"priority"`
	Entities    []string       `json:"entities,omitempty"` // character names tied to the thread
}

// Setting holds the project-wide story configuration.
type Setting struct {
	Genre     string            `json:"genre,omitempty"`
	Style     string            `json:"style,omitempty"`
	Tone      string            `json:"tone,omitempty"`
	Premise   string            `json:"premise,omitempty"` // one-line pitch
	Synopsis  string            `json:"synopsis,omitempty"`
	Locations []NamedDetail     `json:"locations,omitempty"`
	Items     []NamedDetail     `json:"items,omitempty"`
	Relations []Relationship    `json:"relations,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// NamedDetail is a named world-building fact (location, item, faction).
type NamedDetail struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// RecentEvent is one event recorded by chapter analysis.
type RecentEvent struct {
	Description string `json:"description"`
	Importance  int    `json:"importance"` // 1..5, 5 = pivotal
}

// ChapterAnalysis is the structured analysis of the most recently written
// chapter. All fields are optional; an absent analysis is represented by a
// nil *ChapterAnalysis, never by a zero value with special meaning.
type ChapterAnalysis struct {
	Chapter         int               `json:"chapter"`
	TimeMarker      string            `json:"time_marker,omitempty"` // e.g. "dawn, three days later"
	Locations       []string          `json:"locations,omitempty"`   // most recent last
	Tone            string            `json:"tone,omitempty"`
	CharacterStates map[string]string `json:"character_states,omitempty"` // name -> where/how we left them
	OpenTensions    []string          `json:"open_tensions,omitempty"`
	RecentEvents    []RecentEvent     `json:"recent_events,omitempty"`
}

// LastLocation returns the most recently recorded location, if any.
func (a *ChapterAnalysis) LastLocation() string {
	if a == nil || len(a.Locations) == 0 {
		return ""
	}
	return a.Locations[len(a.Locations)-1]
}
