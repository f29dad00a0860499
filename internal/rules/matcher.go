package rules

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sentrastack/sentra-diag/internal/models"
)

// Matcher applies one analysis type's ordered rule table to parser records.
// Matching is deterministic: identical input always yields identical output.
type Matcher struct {
	analysisType string
	format       string
	rules        []compiledRule
	families     []string
}

// NewMatcher compiles a rule pack.
func NewMatcher(pack Pack) (*Matcher, error) {
	compiled, err := compile(pack)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	families := make([]string, 0)
	for _, rule := range compiled {
		if _, ok := seen[rule.Family]; ok {
			continue
		}
		seen[rule.Family] = struct{}{}
		families = append(families, rule.Family)
	}

	return &Matcher{
		analysisType: pack.AnalysisType,
		format:       pack.Format,
		rules:        compiled,
		families:     families,
	}, nil
}

// AnalysisType returns the analysis type this matcher serves.
func (m *Matcher) AnalysisType() string { return m.analysisType }

// Format returns the parser format the matcher's pack expects.
func (m *Matcher) Format() string { return m.format }

// lineTag marks one record as evidence for one rule within one family.
type lineTag struct {
	record models.Record
}

// Match runs the two-pass rule match. Pass 1 tags each line with at most one
// rule per family (first rule in pack order wins inside a family, so a line
// never produces duplicate findings for the same signature, but independent
// families may each claim the same line as evidence). Pass 2 assembles one
// Finding per (rule, component) from the tagged lines. Untagged lines are
// dropped unless they trip the generic fatal heuristic.
func (m *Matcher) Match(records []models.Record) []models.Finding {
	tagsByRule := make(map[int][]lineTag)
	matchedLines := make(map[int]bool, len(records))

	for _, record := range records {
		for _, family := range m.families {
			for idx, rule := range m.rules {
				if rule.Family != family {
					continue
				}
				if !rule.matches(record) {
					continue
				}
				tagsByRule[idx] = append(tagsByRule[idx], lineTag{record: record})
				matchedLines[recordKey(record)] = true
				break // first match wins within this family
			}
		}
	}

	var findings []models.Finding
	for idx := range m.rules {
		tags, ok := tagsByRule[idx]
		if !ok {
			continue
		}
		findings = append(findings, m.assemble(idx, tags)...)
	}

	findings = append(findings, m.catchAll(records, matchedLines)...)
	return findings
}

// assemble groups one rule's tagged lines by component into findings.
func (m *Matcher) assemble(ruleIdx int, tags []lineTag) []models.Finding {
	rule := m.rules[ruleIdx]

	byComponent := make(map[string][]lineTag)
	componentOrder := make([]string, 0)
	for _, tag := range tags {
		component := rule.Component
		if component == "" {
			component = tag.record.Component
		}
		if component == "" {
			component = "agent"
		}
		if _, ok := byComponent[component]; !ok {
			componentOrder = append(componentOrder, component)
		}
		byComponent[component] = append(byComponent[component], tag)
	}
	sort.Strings(componentOrder)

	findings := make([]models.Finding, 0, len(componentOrder))
	for _, component := range componentOrder {
		group := byComponent[component]
		evidence := make([]string, 0, len(group))
		earliest := time.Time{}
		for _, tag := range group {
			evidence = append(evidence, formatEvidence(tag.record))
			if earliest.IsZero() || (!tag.record.Timestamp.IsZero() && tag.record.Timestamp.Before(earliest)) {
				earliest = tag.record.Timestamp
			}
		}
		findings = append(findings, models.Finding{
			ID:           fmt.Sprintf("%s/%s", rule.ID, component),
			Timestamp:    earliest,
			Component:    component,
			Category:     rule.Category,
			Severity:     rule.severity,
			RuleSeverity: rule.severity,
			Message:      fmt.Sprintf("%s (%d occurrences)", rule.Message, len(group)),
			Evidence:     evidence,
			Confidence:   rule.Confidence,
		})
	}
	return findings
}

// fatalMarkers drive the generic error-level heuristic for unmatched lines.
var fatalMarkers = []string{"fatal", "panic", "segmentation fault", "stack trace"}

func (m *Matcher) catchAll(records []models.Record, matchedLines map[int]bool) []models.Finding {
	byComponent := make(map[string][]models.Record)
	componentOrder := make([]string, 0)
	for _, record := range records {
		if matchedLines[recordKey(record)] {
			continue
		}
		lower := strings.ToLower(record.Message)
		hit := record.Level == "critical"
		for _, marker := range fatalMarkers {
			if strings.Contains(lower, marker) {
				hit = true
				break
			}
		}
		if !hit {
			continue
		}
		component := record.Component
		if component == "" {
			component = "agent"
		}
		if _, ok := byComponent[component]; !ok {
			componentOrder = append(componentOrder, component)
		}
		byComponent[component] = append(byComponent[component], record)
	}
	sort.Strings(componentOrder)

	findings := make([]models.Finding, 0, len(componentOrder))
	for _, component := range componentOrder {
		group := byComponent[component]
		evidence := make([]string, 0, len(group))
		earliest := time.Time{}
		for _, record := range group {
			evidence = append(evidence, formatEvidence(record))
			if earliest.IsZero() || (!record.Timestamp.IsZero() && record.Timestamp.Before(earliest)) {
				earliest = record.Timestamp
			}
		}
		findings = append(findings, models.Finding{
			ID:           fmt.Sprintf("catchall/%s", component),
			Timestamp:    earliest,
			Component:    component,
			Category:     "unclassified_fatal",
			Severity:     models.SeverityError,
			RuleSeverity: models.SeverityError,
			Message:      fmt.Sprintf("Unclassified fatal output in %s (%d lines)", component, len(group)),
			Evidence:     evidence,
			Confidence:   0.3,
		})
	}
	return findings
}

func formatEvidence(record models.Record) string {
	firstLine := record.Message
	if idx := strings.IndexByte(firstLine, '\n'); idx >= 0 {
		firstLine = firstLine[:idx]
	}
	return fmt.Sprintf("%s:%d %s", record.Source, record.Line, firstLine)
}

// recordKey identifies a record within one match run. Source+line is unique
// per parsed file.
func recordKey(record models.Record) int {
	hash := 0
	for _, r := range record.Source {
		hash = hash*31 + int(r)
	}
	return hash*100000 + record.Line
}
