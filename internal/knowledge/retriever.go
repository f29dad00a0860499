package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/sentrastack/sentra-diag/internal/cache"
	"github.com/sentrastack/sentra-diag/internal/models"
)

const keywordsPerQuery = 5

// Retriever turns analysis findings into targeted knowledge queries, issues
// them against the Store, and deduplicates the results. Store unavailability
// is non-fatal: the retriever returns nothing and the analysis proceeds in
// the no_knowledge degradation.
type Retriever struct {
	store            Store
	cache            cache.Provider
	logger           *slog.Logger
	maxQueries       int
	healthyThreshold float64
	cacheTTL         time.Duration
}

// NewRetriever constructs a Retriever; cacheProvider may be nil.
func NewRetriever(store Store, cacheProvider cache.Provider, logger *slog.Logger, maxQueries int, healthyThreshold float64, cacheTTL time.Duration) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if maxQueries <= 0 {
		maxQueries = 8
	}
	if healthyThreshold <= 0 {
		healthyThreshold = 70
	}
	return &Retriever{
		store:            store,
		cache:            cacheProvider,
		logger:           logger,
		maxQueries:       maxQueries,
		healthyThreshold: healthyThreshold,
		cacheTTL:         cacheTTL,
	}
}

type candidateQuery struct {
	text        string
	filters     Filters
	healthScore float64
	severity    int
}

// Retrieve generates queries from unhealthy components and finding
// categories, issues up to maxQueries of them by priority, and returns the
// deduplicated results plus the number of queries attempted. Identical
// inputs always produce identical output regardless of query issue order.
func (r *Retriever) Retrieve(ctx context.Context, health map[string]models.ComponentHealth, findings []models.Finding) ([]models.RetrievalResult, int) {
	if r.store == nil {
		return nil, 0
	}

	queries := r.buildQueries(health, findings)
	if len(queries) > r.maxQueries {
		queries = queries[:r.maxQueries]
	}

	type hit struct {
		queryIdx int
		match    models.SectionMatch
	}
	bestBySection := make(map[string]hit)
	queryOrder := make([]string, 0, len(queries))

	for idx, query := range queries {
		queryOrder = append(queryOrder, query.text)
		matches, err := r.search(ctx, query.text, query.filters)
		if err != nil {
			r.logger.Warn("knowledge search unavailable", slog.String("query", query.text), slog.Any("error", err))
			continue
		}
		for _, match := range matches {
			existing, ok := bestBySection[match.Section.ID]
			if !ok || match.Score > existing.match.Score ||
				(match.Score == existing.match.Score && idx < existing.queryIdx) {
				bestBySection[match.Section.ID] = hit{queryIdx: idx, match: match}
			}
		}
	}

	// Reassemble one result per query containing only the sections it won.
	grouped := make(map[int][]models.SectionMatch)
	for _, h := range bestBySection {
		grouped[h.queryIdx] = append(grouped[h.queryIdx], h.match)
	}

	results := make([]models.RetrievalResult, 0, len(queries))
	for idx, text := range queryOrder {
		matches := grouped[idx]
		if len(matches) == 0 {
			continue
		}
		sort.SliceStable(matches, func(i, j int) bool {
			if matches[i].Score != matches[j].Score {
				return matches[i].Score > matches[j].Score
			}
			return matches[i].Section.ID < matches[j].Section.ID
		})
		results = append(results, models.RetrievalResult{Query: text, Matches: matches})
	}
	return results, len(queries)
}

// buildQueries produces candidates ordered by priority: lower health first,
// then higher severity, then query text for determinism.
func (r *Retriever) buildQueries(health map[string]models.ComponentHealth, findings []models.Finding) []candidateQuery {
	findingsByComponent := make(map[string][]models.Finding)
	findingsByCategory := make(map[string][]models.Finding)
	for _, finding := range findings {
		findingsByComponent[finding.Component] = append(findingsByComponent[finding.Component], finding)
		findingsByCategory[finding.Category] = append(findingsByCategory[finding.Category], finding)
	}

	candidates := make([]candidateQuery, 0)
	seen := make(map[string]struct{})

	// One query per unhealthy component.
	components := make([]string, 0, len(health))
	for component := range health {
		components = append(components, component)
	}
	sort.Strings(components)
	for _, component := range components {
		entry := health[component]
		if entry.Score >= r.healthyThreshold {
			continue
		}
		related := findingsByComponent[component]
		text := buildQueryText(component, topCategory(related), related)
		if _, ok := seen[text]; ok {
			continue
		}
		seen[text] = struct{}{}
		candidates = append(candidates, candidateQuery{
			text:        text,
			filters:     Filters{Component: component, IssueType: topCategory(related)},
			healthScore: entry.Score,
			severity:    maxSeverityRank(related),
		})
	}

	// One query per distinct finding category.
	categories := make([]string, 0, len(findingsByCategory))
	for category := range findingsByCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	for _, category := range categories {
		related := findingsByCategory[category]
		component := related[0].Component
		text := buildQueryText(component, category, related)
		if _, ok := seen[text]; ok {
			continue
		}
		seen[text] = struct{}{}
		score := 100.0
		if entry, ok := health[component]; ok {
			score = entry.Score
		}
		candidates = append(candidates, candidateQuery{
			text:        text,
			filters:     Filters{Component: component, IssueType: category},
			healthScore: score,
			severity:    maxSeverityRank(related),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].healthScore != candidates[j].healthScore {
			return candidates[i].healthScore < candidates[j].healthScore
		}
		if candidates[i].severity != candidates[j].severity {
			return candidates[i].severity > candidates[j].severity
		}
		return candidates[i].text < candidates[j].text
	})
	return candidates
}

func (r *Retriever) search(ctx context.Context, query string, filters Filters) ([]models.SectionMatch, error) {
	key := "kq:" + query + "|" + filters.Component + "|" + filters.IssueType + "|" + filters.Severity

	if cached, err := r.cache.Get(ctx, key); err == nil {
		var matches []models.SectionMatch
		if err := json.Unmarshal(cached, &matches); err == nil {
			return matches, nil
		}
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		r.logger.Debug("knowledge cache read failed", slog.Any("error", err))
	}

	matches, err := r.store.Search(ctx, query, filters)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(matches); err == nil {
		if err := r.cache.Set(ctx, key, payload, r.cacheTTL); err != nil {
			r.logger.Debug("knowledge cache write failed", slog.Any("error", err))
		}
	}
	return matches, nil
}

func buildQueryText(component, category string, related []models.Finding) string {
	texts := make([]string, 0, len(related))
	for _, finding := range related {
		texts = append(texts, finding.Message)
	}
	parts := []string{component}
	if category != "" {
		parts = append(parts, category)
	}
	parts = append(parts, TopKeywords(texts, keywordsPerQuery)...)
	return joinNonEmpty(parts)
}

func topCategory(findings []models.Finding) string {
	counts := make(map[string]int)
	for _, finding := range findings {
		counts[finding.Category]++
	}
	best := ""
	for category, count := range counts {
		if best == "" || count > counts[best] || (count == counts[best] && category < best) {
			best = category
		}
	}
	return best
}

func maxSeverityRank(findings []models.Finding) int {
	max := -1
	for _, finding := range findings {
		if rank := models.SeverityRank(finding.Severity); rank > max {
			max = rank
		}
	}
	return max
}

func joinNonEmpty(parts []string) string {
	out := ""
	for _, part := range parts {
		if part == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += part
	}
	return out
}
