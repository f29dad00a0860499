package synth

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sentrastack/sentra-diag/internal/models"
)

const systemPrompt = `You are a senior support engineer diagnosing a security agent from its logs.
You receive rule-based findings, statistical health scores, and excerpts from the product knowledge base.
Respond with a JSON object: {"narrative": "<root cause diagnosis and remediation steps>", "confidence": <0..1>}.
Base the diagnosis only on the supplied evidence.`

// defaultPromptBudget caps the characters of knowledge text embedded in one
// prompt; the highest-relevance excerpts are kept.
const defaultPromptBudget = 6000

// BuildPrompt assembles the single structured user prompt from all layers.
func BuildPrompt(findings []models.Finding, health map[string]models.ComponentHealth, retrievals []models.RetrievalResult, budget int) string {
	if budget <= 0 {
		budget = defaultPromptBudget
	}

	var b strings.Builder

	b.WriteString("## Findings\n")
	if len(findings) == 0 {
		b.WriteString("No issues detected by the rule engine.\n")
	}
	for _, finding := range findings {
		fmt.Fprintf(&b, "- [%s] %s/%s: %s (confidence %.2f)\n",
			finding.Severity, finding.Component, finding.Category, finding.Message, finding.Confidence)
	}

	b.WriteString("\n## Component health (0-100)\n")
	components := make([]string, 0, len(health))
	for component := range health {
		components = append(components, component)
	}
	sort.Strings(components)
	for _, component := range components {
		entry := health[component]
		fmt.Fprintf(&b, "- %s: %.0f", component, entry.Score)
		if len(entry.AnomalyFlags) > 0 {
			fmt.Fprintf(&b, " (anomalous: %s)", strings.Join(entry.AnomalyFlags, ", "))
		}
		b.WriteString("\n")
	}

	knowledge := flattenKnowledge(retrievals)
	if len(knowledge) > 0 {
		b.WriteString("\n## Knowledge base excerpts\n")
		used := 0
		for _, match := range knowledge {
			text := match.Section.Text
			if used+len(text) > budget {
				remaining := budget - used
				if remaining < 200 {
					break
				}
				text = text[:remaining]
			}
			fmt.Fprintf(&b, "[%s p.%d-%d, relevance %.2f]\n%s\n\n",
				match.Section.SourceDocument, match.Section.PageStart, match.Section.PageEnd, match.Score, text)
			used += len(text)
			if used >= budget {
				break
			}
		}
	}

	return b.String()
}

// flattenKnowledge orders all retrieved sections highest relevance first.
func flattenKnowledge(retrievals []models.RetrievalResult) []models.SectionMatch {
	matches := make([]models.SectionMatch, 0)
	for _, result := range retrievals {
		matches = append(matches, result.Matches...)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Section.ID < matches[j].Section.ID
	})
	return matches
}
