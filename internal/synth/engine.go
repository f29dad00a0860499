package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/sentrastack/sentra-diag/internal/models"
)

// Result is the synthesis fragment merged into the final report.
type Result struct {
	Narrative  string
	Confidence float64
	LLMUsed    bool
}

// Engine builds the structured prompt and invokes the narrative service.
// Stateless between invocations; an LLM failure is absorbed locally and
// answered with a deterministic template instead.
type Engine struct {
	client       Client
	logger       *slog.Logger
	promptBudget int
}

// NewEngine constructs the synthesis engine. client may be nil, which forces
// the template path.
func NewEngine(client Client, logger *slog.Logger, promptBudget int) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if promptBudget <= 0 {
		promptBudget = defaultPromptBudget
	}
	return &Engine{client: client, logger: logger, promptBudget: promptBudget}
}

// Synthesize produces the narrative and confidence for one analysis. The
// error path never propagates: on LLM failure the template narrative is
// returned with LLMUsed=false so the caller can record the degradation.
func (e *Engine) Synthesize(ctx context.Context, findings []models.Finding, health map[string]models.ComponentHealth, retrievals []models.RetrievalResult) Result {
	base := ruleConfidence(findings)

	if e.client == nil {
		return Result{Narrative: templateNarrative(findings, health, retrievals), Confidence: base}
	}

	prompt := BuildPrompt(findings, health, retrievals, e.promptBudget)
	answer, err := e.client.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		e.logger.Warn("llm call failed, using template narrative", slog.Any("error", err))
		return Result{Narrative: templateNarrative(findings, health, retrievals), Confidence: base}
	}

	narrative, modelConfidence := parseAnswer(answer)
	if strings.TrimSpace(narrative) == "" {
		e.logger.Warn("llm returned empty narrative, using template narrative")
		return Result{Narrative: templateNarrative(findings, health, retrievals), Confidence: base}
	}

	confidence := base
	if modelConfidence > 0 {
		confidence = clamp(0.6*base + 0.4*modelConfidence)
	}
	return Result{Narrative: narrative, Confidence: confidence, LLMUsed: true}
}

// parseAnswer extracts the narrative and optional model-reported confidence
// from the structured response; a non-JSON answer is kept verbatim.
func parseAnswer(answer string) (string, float64) {
	var payload struct {
		Narrative  string  `json:"narrative"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(answer), &payload); err != nil || payload.Narrative == "" {
		return answer, 0
	}
	if payload.Confidence < 0 || payload.Confidence > 1 {
		payload.Confidence = 0
	}
	return payload.Narrative, payload.Confidence
}

// ruleConfidence derives the deterministic confidence from the findings
// alone: the mean finding confidence blended with the fraction of
// high-confidence findings. A clean bundle is a confident result.
func ruleConfidence(findings []models.Finding) float64 {
	if len(findings) == 0 {
		return 0.8
	}
	sum := 0.0
	high := 0
	for _, finding := range findings {
		sum += finding.Confidence
		if finding.Confidence >= 0.7 {
			high++
		}
	}
	mean := sum / float64(len(findings))
	highFrac := float64(high) / float64(len(findings))
	return clamp(0.5*mean + 0.5*highFrac)
}

// templateNarrative renders the deterministic fallback from the rule and
// statistical layers only.
func templateNarrative(findings []models.Finding, health map[string]models.ComponentHealth, retrievals []models.RetrievalResult) string {
	var b strings.Builder

	if len(findings) == 0 {
		b.WriteString("No known issues were detected in the submitted logs. ")
	} else {
		worst := findings[0]
		for _, finding := range findings[1:] {
			if models.SeverityRank(finding.Severity) > models.SeverityRank(worst.Severity) ||
				(models.SeverityRank(finding.Severity) == models.SeverityRank(worst.Severity) && finding.Confidence > worst.Confidence) {
				worst = finding
			}
		}
		fmt.Fprintf(&b, "Most likely root cause: %s in component %q (%s, confidence %.2f). ",
			worst.Message, worst.Component, worst.Severity, worst.Confidence)
		fmt.Fprintf(&b, "%d issue(s) were detected in total. ", len(findings))
	}

	unhealthy := make([]string, 0)
	for component, entry := range health {
		if entry.Score < 70 {
			unhealthy = append(unhealthy, fmt.Sprintf("%s (%.0f)", component, entry.Score))
		}
	}
	sort.Strings(unhealthy)
	if len(unhealthy) > 0 {
		fmt.Fprintf(&b, "Degraded components: %s. ", strings.Join(unhealthy, ", "))
	}

	if docs := flattenKnowledge(retrievals); len(docs) > 0 {
		top := docs[0]
		fmt.Fprintf(&b, "See %s pages %d-%d for remediation guidance.",
			top.Section.SourceDocument, top.Section.PageStart, top.Section.PageEnd)
	} else if len(findings) > 0 {
		b.WriteString("Review the evidence lines attached to each finding and re-run after remediation.")
	}

	return strings.TrimSpace(b.String())
}

func clamp(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
