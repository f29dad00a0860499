package knowledge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sentrastack/sentra-diag/internal/cache"
	"github.com/sentrastack/sentra-diag/internal/models"
)

type countingStore struct {
	inner    Store
	err      error
	searches int
}

func (s *countingStore) Search(ctx context.Context, query string, filters Filters) ([]models.SectionMatch, error) {
	s.searches++
	if s.err != nil {
		return nil, s.err
	}
	return s.inner.Search(ctx, query, filters)
}

func (s *countingStore) Version(ctx context.Context) (string, error) { return "test", nil }
func (s *countingStore) Close() error                                { return nil }

type mapCache struct {
	entries map[string][]byte
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	if value, ok := c.entries[key]; ok {
		return value, nil
	}
	return nil, cache.ErrCacheMiss
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.entries[key] = value
	return nil
}

func (c *mapCache) Del(_ context.Context, key string) error {
	delete(c.entries, key)
	return nil
}

func (c *mapCache) Close() error { return nil }

func certSection() models.KnowledgeSection {
	return models.KnowledgeSection{
		ID:             "kb-001",
		SourceDocument: "agent-troubleshooting.pdf",
		PageStart:      12,
		PageEnd:        14,
		ComponentTags:  []string{"updater", "proxy"},
		IssueTypeTags:  []string{"certificate_error"},
		Keywords:       []string{"certificate", "expired", "validation"},
		Text:           "When certificate validation fails, renew the expired certificate and restart the updater.",
	}
}

func certFinding(component string) models.Finding {
	return models.Finding{
		ID:         "cert-expired/" + component,
		Component:  component,
		Category:   "certificate_error",
		Severity:   models.SeverityError,
		Message:    "Certificate validation failure (2 occurrences)",
		Confidence: 0.9,
	}
}

func TestRetrieveMatchesRelevantSections(t *testing.T) {
	store := NewMemoryStore([]models.KnowledgeSection{certSection()}, "2024.1", 0.15)
	retriever := NewRetriever(store, nil, nil, 8, 70, 0)

	health := map[string]models.ComponentHealth{
		"updater": {Component: "updater", Score: 40},
	}
	results, attempted := retriever.Retrieve(context.Background(), health, []models.Finding{certFinding("updater")})
	if attempted == 0 {
		t.Fatalf("expected queries to be attempted")
	}
	if len(results) != 1 {
		t.Fatalf("expected one retrieval result, got %d", len(results))
	}
	if results[0].Matches[0].Section.ID != "kb-001" {
		t.Fatalf("expected kb-001 retrieved, got %+v", results[0].Matches)
	}
	if score := results[0].Matches[0].Score; score < 0.15 || score > 1 {
		t.Fatalf("score outside [floor,1]: %f", score)
	}
}

func TestRetrieveDeduplicatesAcrossQueries(t *testing.T) {
	store := NewMemoryStore([]models.KnowledgeSection{certSection()}, "2024.1", 0.15)
	retriever := NewRetriever(store, nil, nil, 8, 70, 0)

	// Two unhealthy components generate two queries that both hit kb-001.
	health := map[string]models.ComponentHealth{
		"updater": {Component: "updater", Score: 40},
		"proxy":   {Component: "proxy", Score: 50},
	}
	findings := []models.Finding{certFinding("updater"), certFinding("proxy")}

	results, _ := retriever.Retrieve(context.Background(), health, findings)
	total := 0
	for _, result := range results {
		for _, match := range result.Matches {
			if match.Section.ID == "kb-001" {
				total++
			}
		}
	}
	if total != 1 {
		t.Fatalf("expected kb-001 attributed to exactly one query, got %d", total)
	}
}

func TestRetrieveCapsQueryCount(t *testing.T) {
	store := &countingStore{inner: NewMemoryStore(nil, "2024.1", 0.15)}
	retriever := NewRetriever(store, nil, nil, 1, 70, 0)

	health := map[string]models.ComponentHealth{
		"updater": {Component: "updater", Score: 40},
		"proxy":   {Component: "proxy", Score: 50},
		"scanner": {Component: "scanner", Score: 60},
	}
	_, attempted := retriever.Retrieve(context.Background(), health, []models.Finding{certFinding("updater")})
	if attempted != 1 {
		t.Fatalf("expected attempts capped at 1, got %d", attempted)
	}
	if store.searches != 1 {
		t.Fatalf("expected a single store search, got %d", store.searches)
	}
}

func TestRetrieveStoreFailureIsNonFatal(t *testing.T) {
	store := &countingStore{err: errors.New("index offline")}
	retriever := NewRetriever(store, nil, nil, 8, 70, 0)

	health := map[string]models.ComponentHealth{
		"updater": {Component: "updater", Score: 40},
	}
	results, attempted := retriever.Retrieve(context.Background(), health, []models.Finding{certFinding("updater")})
	if len(results) != 0 {
		t.Fatalf("expected no results from a failing store, got %+v", results)
	}
	if attempted == 0 {
		t.Fatalf("expected attempted queries recorded for degradation tagging")
	}
}

func TestRetrieveHealthyBundleSkipsQueries(t *testing.T) {
	store := &countingStore{inner: NewMemoryStore([]models.KnowledgeSection{certSection()}, "2024.1", 0.15)}
	retriever := NewRetriever(store, nil, nil, 8, 70, 0)

	health := map[string]models.ComponentHealth{
		"updater": {Component: "updater", Score: 100},
	}
	results, attempted := retriever.Retrieve(context.Background(), health, nil)
	if attempted != 0 || len(results) != 0 {
		t.Fatalf("expected no queries for a healthy bundle, got attempted=%d results=%d", attempted, len(results))
	}
	if store.searches != 0 {
		t.Fatalf("expected store untouched, got %d searches", store.searches)
	}
}

func TestRetrieveUsesCache(t *testing.T) {
	store := &countingStore{inner: NewMemoryStore([]models.KnowledgeSection{certSection()}, "2024.1", 0.15)}
	provider := &mapCache{entries: make(map[string][]byte)}
	retriever := NewRetriever(store, provider, nil, 8, 70, time.Minute)

	health := map[string]models.ComponentHealth{
		"updater": {Component: "updater", Score: 40},
	}
	findings := []models.Finding{certFinding("updater")}

	first, _ := retriever.Retrieve(context.Background(), health, findings)
	searchesAfterFirst := store.searches
	second, _ := retriever.Retrieve(context.Background(), health, findings)

	if store.searches != searchesAfterFirst {
		t.Fatalf("expected repeat queries served from cache, got %d extra searches", store.searches-searchesAfterFirst)
	}
	if len(first) != len(second) {
		t.Fatalf("cache changed the result shape: %d vs %d", len(first), len(second))
	}
}

func TestTopKeywordsDeterministic(t *testing.T) {
	texts := []string{
		"certificate validation problem",
		"certificate renewal pending",
	}
	keywords := TopKeywords(texts, 2)
	if len(keywords) != 2 || keywords[0] != "certificate" {
		t.Fatalf("expected most frequent token first, got %v", keywords)
	}
	// Alphabetical among equal frequencies.
	if keywords[1] != "pending" {
		t.Fatalf("expected alphabetical tiebreak, got %v", keywords)
	}
}
