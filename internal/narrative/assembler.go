package narrative

import (
	"github.com/inkwell-labs/loom/internal/rag"
	"github.com/inkwell-labs/loom/internal/story"
)

// AssemblerConfig bounds how much of each input survives into the tiers.
// The limits are tuned quality parameters, not correctness requirements.
type AssemblerConfig struct {
	MaxInvolvedCharacters int
	MaxRelationships      int
	MaxImportantThreads   int
	MaxMinorThreads       int
	MaxSummaries          int
	MaxPassages           int
	MaxOpenTensions       int
	MaxRecentEvents       int
	SummaryMaxChars       int
	PassageMaxChars       int
	SynopsisMaxChars      int
}

// DefaultAssemblerConfig returns the tuned defaults.
func DefaultAssemblerConfig() AssemblerConfig {
	return AssemblerConfig{
		MaxInvolvedCharacters: 5,
		MaxRelationships:      10,
		MaxImportantThreads:   3,
		MaxMinorThreads:       5,
		MaxSummaries:          3,
		MaxPassages:           5,
		MaxOpenTensions:       5,
		MaxRecentEvents:       3,
		SummaryMaxChars:       400,
		PassageMaxChars:       600,
		SynopsisMaxChars:      1000,
	}
}

// Assembler merges retrieval results with structured story state into the
// three-tier context. Tier assignment is fixed by field rather than scored:
// predictability under compression beats flexibility here.
type Assembler struct {
	cfg AssemblerConfig
}

// NewAssembler creates an assembler, replacing non-positive limits with
// defaults.
func NewAssembler(cfg AssemblerConfig) *Assembler {
	def := DefaultAssemblerConfig()
	if cfg.MaxInvolvedCharacters <= 0 {
		cfg.MaxInvolvedCharacters = def.MaxInvolvedCharacters
	}
	if cfg.MaxRelationships <= 0 {
		cfg.MaxRelationships = def.MaxRelationships
	}
	if cfg.MaxImportantThreads <= 0 {
		cfg.MaxImportantThreads = def.MaxImportantThreads
	}
	if cfg.MaxMinorThreads <= 0 {
		cfg.MaxMinorThreads = def.MaxMinorThreads
	}
	if cfg.MaxSummaries <= 0 {
		cfg.MaxSummaries = def.MaxSummaries
	}
	if cfg.MaxPassages <= 0 {
		cfg.MaxPassages = def.MaxPassages
	}
	if cfg.MaxOpenTensions <= 0 {
		cfg.MaxOpenTensions = def.MaxOpenTensions
	}
	if cfg.MaxRecentEvents <= 0 {
		cfg.MaxRecentEvents = def.MaxRecentEvents
	}
	if cfg.SummaryMaxChars <= 0 {
		cfg.SummaryMaxChars = def.SummaryMaxChars
	}
	if cfg.PassageMaxChars <= 0 {
		cfg.PassageMaxChars = def.PassageMaxChars
	}
	if cfg.SynopsisMaxChars <= 0 {
		cfg.SynopsisMaxChars = def.SynopsisMaxChars
	}
	return &Assembler{cfg: cfg}
}

// Assemble builds the GenerationContext for one writing task. Analysis and
// threads are optional; retrieval may be empty.
func (a *Assembler) Assemble(
	task story.WritingTask,
	setting story.Setting,
	roster []story.Character,
	retrieval rag.Result,
	analysis *story.ChapterAnalysis,
	threads []story.PlotThread,
) *GenerationContext {
	involved := story.InvolvedCharacters(task.Text(), roster)
	involvedNames := make(map[string]bool, len(involved))
	for _, c := range involved {
		involvedNames[c.Name] = true
	}

	return &GenerationContext{
		MustHave:  a.mustHave(task, setting, roster, analysis, involvedNames),
		Important: a.important(involved, setting, analysis, threads, retrieval.Summaries, involvedNames),
		Reference: a.reference(setting, threads, retrieval.Chunks),
	}
}

func (a *Assembler) mustHave(
	task story.WritingTask,
	setting story.Setting,
	roster []story.Character,
	analysis *story.ChapterAnalysis,
	involvedNames map[string]bool,
) MustHaveTier {
	tier := MustHaveTier{
		Roster: story.RosterNames(roster),
		Task: &TaskBrief{
			Chapter: task.Chapter,
			Title:   task.Title,
			Summary: task.Summary,
			Goals:   task.Goals,
			Notes:   task.Notes,
		},
	}

	if setting.Genre != "" || setting.Style != "" || setting.Tone != "" || setting.Premise != "" {
		tier.Basics = &SettingBasics{
			Genre:   setting.Genre,
			Style:   setting.Style,
			Tone:    setting.Tone,
			Premise: setting.Premise,
		}
	}

	if analysis != nil {
		ending := &PriorEnding{Tone: analysis.Tone}
		// Positions of the characters this chapter involves; the rest of
		// the state snapshot lives in the important tier so no fact is
		// duplicated across tiers.
		for name, state := range analysis.CharacterStates {
			if involvedNames[name] {
				if ending.CharacterPositions == nil {
					ending.CharacterPositions = make(map[string]string)
				}
				ending.CharacterPositions[name] = state
			}
		}
		for _, tension := range analysis.OpenTensions {
			if len(ending.OpenTensions) >= a.cfg.MaxOpenTensions {
				break
			}
			ending.OpenTensions = append(ending.OpenTensions, tension)
		}
		for _, event := range analysis.RecentEvents {
			if len(ending.RecentEvents) >= a.cfg.MaxRecentEvents {
				break
			}
			if event.Importance >= 4 {
				ending.RecentEvents = append(ending.RecentEvents, event.Description)
			}
		}
		if ending.Tone != "" || len(ending.CharacterPositions) > 0 ||
			len(ending.OpenTensions) > 0 || len(ending.RecentEvents) > 0 {
			tier.PriorEnding = ending
		}
	}

	return tier
}

func (a *Assembler) important(
	involved []story.Character,
	setting story.Setting,
	analysis *story.ChapterAnalysis,
	threads []story.PlotThread,
	summaries []rag.ScoredSummary,
	involvedNames map[string]bool,
) ImportantTier {
	var tier ImportantTier

	for _, c := range involved {
		if len(tier.Characters) >= a.cfg.MaxInvolvedCharacters {
			break
		}
		tier.Characters = append(tier.Characters, c)
	}

	for _, rel := range setting.Relations {
		if len(tier.Relationships) >= a.cfg.MaxRelationships {
			break
		}
		if involvedNames[rel.From] || involvedNames[rel.To] {
			tier.Relationships = append(tier.Relationships, rel)
		}
	}

	for _, th := range threads {
		if len(tier.Threads) >= a.cfg.MaxImportantThreads {
			break
		}
		if th.Priority == story.PriorityHigh {
			tier.Threads = append(tier.Threads, ThreadBrief{
				Description: th.Description,
				Priority:    th.Priority.String(),
			})
		}
	}

	if analysis != nil {
		for name, state := range analysis.CharacterStates {
			if involvedNames[name] {
				continue // already in the must-have prior ending
			}
			if tier.CharacterStates == nil {
				tier.CharacterStates = make(map[string]string)
			}
			tier.CharacterStates[name] = state
		}
	}

	for _, s := range summaries {
		if len(tier.Summaries) >= a.cfg.MaxSummaries {
			break
		}
		tier.Summaries = append(tier.Summaries, SummaryExcerpt{
			Chapter: s.Chapter,
			Title:   s.Title,
			Summary: truncate(s.Summary, a.cfg.SummaryMaxChars),
			Score:   s.FinalScore,
		})
	}

	return tier
}

func (a *Assembler) reference(
	setting story.Setting,
	threads []story.PlotThread,
	chunks []rag.ScoredChunk,
) ReferenceTier {
	tier := ReferenceTier{
		Locations: setting.Locations,
		Items:     setting.Items,
		Synopsis:  truncate(setting.Synopsis, a.cfg.SynopsisMaxChars),
	}

	for _, c := range chunks {
		if len(tier.Passages) >= a.cfg.MaxPassages {
			break
		}
		tier.Passages = append(tier.Passages, PassageExcerpt{
			Chapter: c.Chapter,
			Label:   c.Label,
			Content: truncate(c.Content, a.cfg.PassageMaxChars),
			Score:   c.FinalScore,
		})
	}

	for _, th := range threads {
		if len(tier.MinorThreads) >= a.cfg.MaxMinorThreads {
			break
		}
		if th.Priority != story.PriorityHigh {
			tier.MinorThreads = append(tier.MinorThreads, ThreadBrief{
				Description: th.Description,
				Priority:    th.Priority.String(),
			})
		}
	}

	return tier
}

// truncate right-truncates s to at most max runes, appending an ellipsis
// when anything was cut. max <= 0 means no limit.
func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
