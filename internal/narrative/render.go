package narrative

import (
	"fmt"
	"strings"

	"github.com/inkwell-labs/loom/internal/story"
)

// Section renderers for the important and reference tiers. Renderers return
// "" for empty input so the compressor can skip the section entirely.

func renderCharacters(chars []story.Character) string {
	if len(chars) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## In this chapter\n")
	for _, c := range chars {
		sb.WriteString("- " + c.Name)
		if c.Identity != "" {
			sb.WriteString(" (" + c.Identity + ")")
		}
		var traits []string
		for _, t := range []string{c.Description, c.Personality, c.Goal} {
			if t != "" {
				traits = append(traits, t)
			}
		}
		if len(traits) > 0 {
			sb.WriteString(": " + strings.Join(traits, "; "))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderRelationships(rels []story.Relationship) string {
	if len(rels) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Relationships\n")
	for _, r := range rels {
		fmt.Fprintf(&sb, "- %s and %s: %s", r.From, r.To, r.Kind)
		if r.Description != "" {
			sb.WriteString(" (" + r.Description + ")")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderCharacterStates(states map[string]string) string {
	if len(states) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Elsewhere\n")
	for _, name := range sortedKeys(states) {
		fmt.Fprintf(&sb, "- %s: %s\n", name, states[name])
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderSummaries(summaries []SummaryExcerpt) string {
	if len(summaries) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Earlier chapters\n")
	for _, s := range summaries {
		if s.Title != "" {
			fmt.Fprintf(&sb, "Chapter %d (%s): %s\n", s.Chapter, s.Title, s.Summary)
		} else {
			fmt.Fprintf(&sb, "Chapter %d: %s\n", s.Chapter, s.Summary)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderPassage(p PassageExcerpt) string {
	label := p.Label
	if label == "" {
		label = fmt.Sprintf("Chapter %d", p.Chapter)
	}
	return fmt.Sprintf("### Passage from %s (relevance %.2f)\n%s", label, p.Score, p.Content)
}

func renderWorldDetail(locations, items []story.NamedDetail) string {
	if len(locations) == 0 && len(items) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## World\n")
	for _, loc := range locations {
		writeDetail(&sb, "Place", loc)
	}
	for _, item := range items {
		writeDetail(&sb, "Item", item)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func writeDetail(sb *strings.Builder, kind string, d story.NamedDetail) {
	if d.Name == "" {
		return
	}
	fmt.Fprintf(sb, "- %s: %s", kind, d.Name)
	if d.Description != "" {
		sb.WriteString(", " + d.Description)
	}
	sb.WriteString("\n")
}

func renderSynopsis(synopsis string) string {
	if synopsis == "" {
		return ""
	}
	return "## Synopsis so far\n" + synopsis
}
