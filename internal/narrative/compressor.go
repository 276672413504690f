package narrative

import (
	"fmt"
	"sort"
	"strings"
)

// TierRatios splits the token budget across the three tiers. Values are
// normalized at construction when they do not sum to 1.
type TierRatios struct {
	MustHave  float64
	Important float64
	Reference float64
}

// DefaultTierRatios returns the tuned 45/35/20 split.
func DefaultTierRatios() TierRatios {
	return TierRatios{MustHave: 0.45, Important: 0.35, Reference: 0.20}
}

// Sub-budget fractions of the important tier, by sub-section.
const (
	importantThreadsShare       = 0.25
	importantEntitiesShare      = 0.30
	importantRelationshipsShare = 0.20
	importantPriorStateShare    = 0.15
	importantSummariesShare     = 0.10

	// Passages take half of the reference budget; minor threads use what
	// remains.
	referencePassagesShare = 0.50
)

const tierSeparator = "\n\n"

// Compressor renders a GenerationContext into prompt text whose estimated
// token count never exceeds the caller's budget. The guarantee holds by
// construction: every append re-counts the whole candidate text, so there is
// no post-hoc truncation step.
type Compressor struct {
	counter TokenCounter
	ratios  TierRatios
}

// NewCompressor creates a compressor. A nil counter defaults to character
// estimation at 4 chars per token.
func NewCompressor(counter TokenCounter, ratios TierRatios) *Compressor {
	if counter == nil {
		counter = NewEstimatedCounter(0)
	}
	sum := ratios.MustHave + ratios.Important + ratios.Reference
	if sum <= 0 {
		ratios = DefaultTierRatios()
	} else if sum != 1 {
		ratios.MustHave /= sum
		ratios.Important /= sum
		ratios.Reference /= sum
	}
	return &Compressor{counter: counter, ratios: ratios}
}

// budgetText accumulates output under a hard global token ceiling. Appends
// that would push the counted total over the ceiling are rejected.
type budgetText struct {
	counter TokenCounter
	text    string
	max     int
}

func (b *budgetText) tokens() int {
	if b.text == "" {
		return 0
	}
	return b.counter.Count(b.text)
}

func (b *budgetText) candidate(block string) string {
	if b.text == "" {
		return block
	}
	return b.text + tierSeparator + block
}

// tryAppend adds block if the whole text stays within both the global
// ceiling and the given absolute ceiling (0 = no extra ceiling).
func (b *budgetText) tryAppend(block string, ceiling int) bool {
	if strings.TrimSpace(block) == "" {
		return false
	}
	cand := b.candidate(block)
	n := b.counter.Count(cand)
	if n > b.max || (ceiling > 0 && n > ceiling) {
		return false
	}
	b.text = cand
	return true
}

// forceAppend adds block, right-truncating it as far as needed to fit the
// ceilings. Returns false only when no prefix at all fits.
func (b *budgetText) forceAppend(block string, ceiling int) bool {
	if b.tryAppend(block, ceiling) {
		return true
	}
	runes := []rune(block)
	// Shrink proportionally toward the available room, then step down.
	for len(runes) > 0 {
		next := len(runes) * 9 / 10
		if next == len(runes) {
			next--
		}
		runes = runes[:next]
		trimmed := strings.TrimSpace(string(runes))
		if trimmed == "" {
			return false
		}
		if b.tryAppend(trimmed+"...", ceiling) {
			return true
		}
	}
	return false
}

// Compress renders the tiered context under maxTokens. Unused must-have
// budget is redistributed 60/40 into the important and reference budgets.
func (c *Compressor) Compress(gc *GenerationContext, maxTokens int) string {
	if gc == nil || maxTokens <= 0 {
		return ""
	}

	b := &budgetText{counter: c.counter, max: maxTokens}

	mustBudget := int(float64(maxTokens) * c.ratios.MustHave)
	importantBudget := int(float64(maxTokens) * c.ratios.Important)
	referenceBudget := int(float64(maxTokens) * c.ratios.Reference)

	c.renderMustHave(b, gc.MustHave, mustBudget)

	if unused := mustBudget - b.tokens(); unused > 0 {
		importantBudget += unused * 6 / 10
		referenceBudget += unused * 4 / 10
	}

	c.renderImportant(b, gc.Important, importantBudget)
	c.renderReference(b, gc.Reference, referenceBudget)

	return b.text
}

// renderMustHave emits the must-have tier. Basics and the prior-ending state
// are trimmed first; the name roster and the current task are never dropped,
// only truncated once the budget is exhausted.
func (c *Compressor) renderMustHave(b *budgetText, tier MustHaveTier, budget int) {
	ceiling := budget

	basics := renderBasics(tier.Basics)
	roster := renderRoster(tier.Roster)
	task := renderTask(tier.Task)
	prior := renderPriorEnding(tier.PriorEnding)

	// Reserve room for the mandatory sections before basics may spend.
	reserve := 0
	for _, mandatory := range []string{roster, task} {
		cost := c.counter.Count(mandatory)
		if limit := budget * 3 / 10; cost > limit {
			cost = limit
		}
		reserve += cost
	}

	if basicsCeiling := ceiling - reserve; basicsCeiling > 0 {
		if !b.tryAppend(basics, basicsCeiling) {
			b.forceAppend(basics, basicsCeiling)
		}
	}
	b.forceAppend(roster, ceiling)
	b.forceAppend(task, ceiling)
	b.tryAppend(prior, ceiling)
}

// renderImportant emits the important tier: each named sub-section gets a
// share of the tier budget and is included only when it fits.
func (c *Compressor) renderImportant(b *budgetText, tier ImportantTier, budget int) {
	if budget <= 0 {
		return
	}
	ceiling := b.tokens() + budget

	sections := []struct {
		text  string
		share float64
	}{
		{renderThreads("Active threads", tier.Threads), importantThreadsShare},
		{renderCharacters(tier.Characters), importantEntitiesShare},
		{renderRelationships(tier.Relationships), importantRelationshipsShare},
		{renderCharacterStates(tier.CharacterStates), importantPriorStateShare},
		{renderSummaries(tier.Summaries), importantSummariesShare},
	}
	for _, s := range sections {
		if s.text == "" {
			continue
		}
		subBudget := int(float64(budget) * s.share)
		if c.counter.Count(s.text) > subBudget {
			continue
		}
		b.tryAppend(s.text, ceiling)
	}
}

// renderReference emits the reference tier last, under whatever budget
// remains: passages first, then minor threads, then world detail. Sections
// that do not fit are silently omitted rather than truncated mid-section.
func (c *Compressor) renderReference(b *budgetText, tier ReferenceTier, budget int) {
	if budget <= 0 {
		return
	}
	start := b.tokens()
	ceiling := start + budget

	passageCeiling := start + int(float64(budget)*referencePassagesShare)
	for _, p := range tier.Passages {
		b.tryAppend(renderPassage(p), passageCeiling)
	}

	b.tryAppend(renderThreads("Background threads", tier.MinorThreads), ceiling)
	b.tryAppend(renderWorldDetail(tier.Locations, tier.Items), ceiling)
	b.tryAppend(renderSynopsis(tier.Synopsis), ceiling)
}

func renderBasics(basics *SettingBasics) string {
	if basics == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Story\n")
	writeField(&sb, "Genre", basics.Genre)
	writeField(&sb, "Style", basics.Style)
	writeField(&sb, "Tone", basics.Tone)
	writeField(&sb, "Premise", basics.Premise)
	return strings.TrimRight(sb.String(), "\n")
}

func renderRoster(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return "## Characters (use these names exactly)\n" + strings.Join(names, ", ")
}

func renderTask(task *TaskBrief) string {
	if task == nil {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Chapter %d\n", task.Chapter)
	writeField(&sb, "Title", task.Title)
	writeField(&sb, "Summary", task.Summary)
	writeField(&sb, "Goals", task.Goals)
	writeField(&sb, "Notes", task.Notes)
	return strings.TrimRight(sb.String(), "\n")
}

func renderPriorEnding(prior *PriorEnding) string {
	if prior == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Where we left off\n")
	writeField(&sb, "Tone", prior.Tone)
	for _, name := range sortedKeys(prior.CharacterPositions) {
		fmt.Fprintf(&sb, "- %s: %s\n", name, prior.CharacterPositions[name])
	}
	for _, t := range prior.OpenTensions {
		fmt.Fprintf(&sb, "- Unresolved: %s\n", t)
	}
	for _, e := range prior.RecentEvents {
		fmt.Fprintf(&sb, "- Recently: %s\n", e)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderThreads(heading string, threads []ThreadBrief) string {
	if len(threads) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## " + heading + "\n")
	for _, th := range threads {
		fmt.Fprintf(&sb, "- [%s] %s\n", th.Priority, th.Description)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func writeField(sb *strings.Builder, name, value string) {
	if value != "" {
		fmt.Fprintf(sb, "%s: %s\n", name, value)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
