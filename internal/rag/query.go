package rag

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/inkwell-labs/loom/internal/story"
)

// EnhancedQuery is the multi-dimensional retrieval query derived from one
// writing task. It is built once per task and consumed once.
type EnhancedQuery struct {
	MainQuery        string              `json:"main_query"`
	SecondaryQueries []string            `json:"secondary_queries,omitempty"`
	ThreadQueries    []string            `json:"thread_queries,omitempty"`
	LocationQuery    string              `json:"location_query,omitempty"`
	EntityHints      map[string][]string `json:"entity_hints,omitempty"`
}

// AllQueries returns every non-empty query text, main query first.
func (q EnhancedQuery) AllQueries() []string {
	out := make([]string, 0, 2+len(q.SecondaryQueries)+len(q.ThreadQueries))
	out = append(out, q.MainQuery)
	out = append(out, q.SecondaryQueries...)
	out = append(out, q.ThreadQueries...)
	if q.LocationQuery != "" {
		out = append(out, q.LocationQuery)
	}
	return out
}

// QueryBuilderConfig bounds the secondary query expansion.
type QueryBuilderConfig struct {
	MaxEntityQueries int
	MaxThreadQueries int
}

// DefaultQueryBuilderConfig returns the tuned defaults.
func DefaultQueryBuilderConfig() QueryBuilderConfig {
	return QueryBuilderConfig{
		MaxEntityQueries: 3,
		MaxThreadQueries: 2,
	}
}

// QueryBuilder derives an EnhancedQuery from the current writing task and
// prior story state.
type QueryBuilder struct {
	cfg QueryBuilderConfig
}

// NewQueryBuilder creates a builder with the given bounds, falling back to
// defaults for non-positive values.
func NewQueryBuilder(cfg QueryBuilderConfig) *QueryBuilder {
	def := DefaultQueryBuilderConfig()
	if cfg.MaxEntityQueries <= 0 {
		cfg.MaxEntityQueries = def.MaxEntityQueries
	}
	if cfg.MaxThreadQueries <= 0 {
		cfg.MaxThreadQueries = def.MaxThreadQueries
	}
	return &QueryBuilder{cfg: cfg}
}

// Ordered locative patterns: explicit movement verbs first, then bare
// prepositions anchored to a capitalized place name to avoid matching
// idioms like "in trouble".
var locationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:arrives?|arrived|returns?|returned|travels?|travelled|heads?|headed)\s+(?:at|to|in|into|back to)\s+([^.,;:!?\n]+)`),
	regexp.MustCompile(`\b(?:at|in|inside|near|beneath|towards?)\s+(?:the\s+)?([A-Z][^.,;:!?\n]*)`),
}

// Build constructs the retrieval query set. Every input except the task is
// optional; missing state only shrinks the query set.
func (b *QueryBuilder) Build(
	task story.WritingTask,
	setting story.Setting,
	roster []story.Character,
	analysis *story.ChapterAnalysis,
	threads []story.PlotThread,
) EnhancedQuery {
	taskText := task.Text()
	involved := story.InvolvedCharacters(taskText, roster)

	q := EnhancedQuery{
		MainQuery:        b.mainQuery(task),
		SecondaryQueries: b.entityQueries(involved, analysis),
		ThreadQueries:    b.threadQueries(taskText, threads),
		LocationQuery:    b.locationQuery(taskText, analysis),
		EntityHints:      b.entityHints(taskText, setting, involved),
	}
	return q
}

// mainQuery concatenates title, summary and user notes, one per line. When
// all three are absent it falls back to a bare chapter identifier so the
// query is never empty.
func (b *QueryBuilder) mainQuery(task story.WritingTask) string {
	var lines []string
	for _, part := range []string{task.Title, task.Summary, task.Notes} {
		if s := strings.TrimSpace(part); s != "" {
			lines = append(lines, s)
		}
	}
	if len(lines) == 0 {
		return fmt.Sprintf("Chapter %d", task.Chapter)
	}
	return strings.Join(lines, "\n")
}

// entityQueries builds one query per involved character, enriched with the
// character's last-known state when the prior analysis recorded one.
func (b *QueryBuilder) entityQueries(involved []story.Character, analysis *story.ChapterAnalysis) []string {
	var queries []string
	for _, c := range involved {
		if len(queries) >= b.cfg.MaxEntityQueries {
			break
		}
		q := c.Name
		if analysis != nil {
			if state, ok := analysis.CharacterStates[c.Name]; ok && state != "" {
				q = c.Name + " " + state
			}
		}
		queries = append(queries, q)
	}
	return queries
}

// threadQueries always includes high-priority threads; lower-priority
// threads join only when their description or tagged entities overlap the
// task text. High-priority threads come first in the ordering.
func (b *QueryBuilder) threadQueries(taskText string, threads []story.PlotThread) []string {
	taskLower := strings.ToLower(taskText)

	var high, relevant []string
	for _, th := range threads {
		if th.Description == "" {
			continue
		}
		if th.Priority == story.PriorityHigh {
			high = append(high, th.Description)
			continue
		}
		if threadOverlapsTask(th, taskLower) {
			relevant = append(relevant, th.Description)
		}
	}

	queries := append(high, relevant...)
	if len(queries) > b.cfg.MaxThreadQueries {
		queries = queries[:b.cfg.MaxThreadQueries]
	}
	return queries
}

func threadOverlapsTask(th story.PlotThread, taskLower string) bool {
	if taskLower == "" {
		return false
	}
	for _, entity := range th.Entities {
		if entity != "" && strings.Contains(taskLower, strings.ToLower(entity)) {
			return true
		}
	}
	// Any shared word of meaningful length counts as overlap.
	for _, word := range strings.Fields(strings.ToLower(th.Description)) {
		if len([]rune(word)) >= 4 && strings.Contains(taskLower, word) {
			return true
		}
	}
	return false
}

// locationQuery extracts a locative phrase from the task text via the
// ordered patterns, bounded to 2-10 tokens including the preposition. With
// no match it falls back to the most recent location the prior analysis
// recorded.
func (b *QueryBuilder) locationQuery(taskText string, analysis *story.ChapterAnalysis) string {
	for _, pattern := range locationPatterns {
		m := pattern.FindStringSubmatch(taskText)
		if len(m) < 2 {
			continue
		}
		place := strings.TrimSpace(m[1])
		words := strings.Fields(place)
		if len(words) == 0 || len(words) > 9 {
			continue
		}
		return place
	}
	return analysis.LastLocation()
}

// entityHints collects per-category retrieval augmentation hints: involved
// characters (with an identity alias when one is known), plus setting
// locations and items mentioned in the task text.
func (b *QueryBuilder) entityHints(taskText string, setting story.Setting, involved []story.Character) map[string][]string {
	hints := make(map[string][]string)

	for _, c := range involved {
		hints["characters"] = append(hints["characters"], c.Name)
		if c.Identity != "" {
			hints["characters"] = append(hints["characters"], fmt.Sprintf("%s (%s)", c.Name, c.Identity))
		}
	}
	for _, loc := range setting.Locations {
		if loc.Name != "" && strings.Contains(taskText, loc.Name) {
			hints["locations"] = append(hints["locations"], loc.Name)
		}
	}
	for _, item := range setting.Items {
		if item.Name != "" && strings.Contains(taskText, item.Name) {
			hints["items"] = append(hints["items"], item.Name)
		}
	}

	if len(hints) == 0 {
		return nil
	}
	return hints
}
