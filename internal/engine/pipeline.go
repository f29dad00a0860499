// Package engine sequences the analysis stages for one job.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/sentrastack/sentra-diag/internal/knowledge"
	"github.com/sentrastack/sentra-diag/internal/metrics"
	"github.com/sentrastack/sentra-diag/internal/models"
	"github.com/sentrastack/sentra-diag/internal/parser"
	"github.com/sentrastack/sentra-diag/internal/rules"
	"github.com/sentrastack/sentra-diag/internal/stats"
	"github.com/sentrastack/sentra-diag/internal/synth"
	"github.com/sentrastack/sentra-diag/internal/utils"
)

// ProgressFunc receives stage transitions while a job runs.
type ProgressFunc func(stage models.Stage, percent int)

// Pipeline drives one analysis end-to-end: parse, match, enhance, retrieve,
// synthesize. Optional stages degrade locally; only input errors fail a run.
type Pipeline struct {
	logger    *slog.Logger
	registry  *parser.Registry
	matchers  map[string]*rules.Matcher
	enhancer  *stats.Enhancer
	retriever *knowledge.Retriever
	synth     *synth.Engine
}

// NewPipeline constructs an analysis pipeline.
func NewPipeline(
	logger *slog.Logger,
	registry *parser.Registry,
	matchers map[string]*rules.Matcher,
	enhancer *stats.Enhancer,
	retriever *knowledge.Retriever,
	synthEngine *synth.Engine,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = parser.NewRegistry()
	}
	return &Pipeline{
		logger:    logger,
		registry:  registry,
		matchers:  matchers,
		enhancer:  enhancer,
		retriever: retriever,
		synth:     synthEngine,
	}
}

// SupportsAnalysisType reports whether a matcher is registered for the type.
func (p *Pipeline) SupportsAnalysisType(analysisType string) bool {
	_, ok := p.matchers[analysisType]
	return ok
}

// AnalysisTypes lists the registered analysis types, sorted.
func (p *Pipeline) AnalysisTypes() []string {
	types := make([]string, 0, len(p.matchers))
	for name := range p.matchers {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// Run executes the stage sequence for one bundle. Cancellation is observed
// at stage boundaries only; a stage in flight completes before the check.
func (p *Pipeline) Run(ctx context.Context, bundle models.LogBundle, analysisType string, progress ProgressFunc) (*models.AnalysisReport, error) {
	if progress == nil {
		progress = func(models.Stage, int) {}
	}

	matcher, ok := p.matchers[analysisType]
	if !ok {
		return nil, utils.NewAppError("engine.Run", utils.KindInvalidArgument,
			fmt.Sprintf("unknown analysis type %q", analysisType), nil)
	}

	// Parsing.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	progress(models.StageParsing, 10)
	stageStart := time.Now()
	records, fileIssues, err := p.registry.ParseBundle(bundle, matcher.Format())
	if err != nil {
		return nil, err
	}
	metrics.ObserveStage(string(models.StageParsing), time.Since(stageStart))

	// Matching.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	progress(models.StageMatching, 30)
	stageStart = time.Now()
	findings := matcher.Match(records)
	findings = append(findings, fileIssueFindings(fileIssues)...)
	metrics.ObserveStage(string(models.StageMatching), time.Since(stageStart))

	// Enhancing.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	progress(models.StageEnhancing, 50)
	stageStart = time.Now()
	enhanced, health, anomalyReport := p.enhancer.Enhance(findings, records)
	metrics.ObserveStage(string(models.StageEnhancing), time.Since(stageStart))

	// Retrieving.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	progress(models.StageRetrieving, 65)
	stageStart = time.Now()
	var retrievals []models.RetrievalResult
	queriesAttempted := 0
	if p.retriever != nil {
		retrievals, queriesAttempted = p.retriever.Retrieve(ctx, health, enhanced)
	}
	metrics.ObserveStage(string(models.StageRetrieving), time.Since(stageStart))

	// Synthesizing.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	progress(models.StageSynthesizing, 85)
	stageStart = time.Now()
	// Cancellation is observed at stage boundaries only; a mid-flight LLM
	// call runs to completion and its result is discarded afterwards.
	synthResult := p.synth.Synthesize(context.WithoutCancel(ctx), enhanced, health, retrievals)
	metrics.ObserveStage(string(models.StageSynthesizing), time.Since(stageStart))

	// Finalizing.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	progress(models.StageFinalizing, 95)

	knowledgeOK := queriesAttempted == 0 || len(retrievals) > 0
	level := degradationLevel(synthResult.LLMUsed, knowledgeOK)

	report := &models.AnalysisReport{
		Summary:            buildSummary(enhanced, health, anomalyReport, level),
		Findings:           enhanced,
		ComponentHealth:    health,
		RetrievedKnowledge: retrievals,
		AnomalyReport:      anomalyReport,
		AINarrative:        synthResult.Narrative,
		ConfidenceScore:    synthResult.Confidence,
		DegradationLevel:   level,
		CreatedAt:          time.Now().UTC(),
	}
	return report, nil
}

// degradationLevel reflects which optional stages actually ran. It must
// never report full when the LLM call failed.
func degradationLevel(llmOK, knowledgeOK bool) models.DegradationLevel {
	switch {
	case llmOK && knowledgeOK:
		return models.DegradationFull
	case llmOK:
		return models.DegradationNoKnowledge
	case knowledgeOK:
		return models.DegradationNoLLM
	default:
		return models.DegradationRulesOnly
	}
}

// fileIssueFindings converts per-file structural failures into low-confidence
// findings so a partially unusable bundle still yields a report.
func fileIssueFindings(issues []parser.FileIssue) []models.Finding {
	findings := make([]models.Finding, 0, len(issues))
	for _, issue := range issues {
		findings = append(findings, models.Finding{
			ID:           fmt.Sprintf("malformed/%s", issue.File),
			Component:    "bundle",
			Category:     "malformed_input",
			Severity:     models.SeverityWarning,
			RuleSeverity: models.SeverityWarning,
			Message:      fmt.Sprintf("File %s could not be parsed and was skipped", issue.File),
			Evidence:     []string{issue.Err.Error()},
			Confidence:   0.4,
		})
	}
	return findings
}

func buildSummary(findings []models.Finding, health map[string]models.ComponentHealth, anomalyReport models.AnomalyReport, level models.DegradationLevel) string {
	counts := make(map[models.Severity]int)
	for _, finding := range findings {
		counts[finding.Severity]++
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d finding(s): %d critical, %d error, %d warning, %d info.",
		len(findings), counts[models.SeverityCritical], counts[models.SeverityError],
		counts[models.SeverityWarning], counts[models.SeverityInfo])

	worstComponent := ""
	worstScore := 101.0
	for component, entry := range health {
		if entry.Score < worstScore || (entry.Score == worstScore && component < worstComponent) {
			worstComponent = component
			worstScore = entry.Score
		}
	}
	if worstComponent != "" {
		fmt.Fprintf(&b, " Lowest component health: %s (%.0f).", worstComponent, worstScore)
	}
	if len(anomalyReport.Anomalies) > 0 {
		fmt.Fprintf(&b, " %d statistical anomal(ies) flagged.", len(anomalyReport.Anomalies))
	}
	if anomalyReport.Degraded {
		b.WriteString(" Statistical models unavailable; deterministic scoring only.")
	}
	if level != models.DegradationFull {
		fmt.Fprintf(&b, " Degradation: %s.", level)
	}
	return b.String()
}
