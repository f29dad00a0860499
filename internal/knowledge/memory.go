package knowledge

import (
	"context"
	"sort"

	"github.com/sentrastack/sentra-diag/internal/models"
)

// MemoryStore is an in-process Store over a fixed section slice. Used by
// tests and as the zero-dependency fallback when no index file is configured.
type MemoryStore struct {
	sections []models.KnowledgeSection
	version  string
	floor    float64
}

// NewMemoryStore builds a MemoryStore with the given relevance floor.
func NewMemoryStore(sections []models.KnowledgeSection, version string, floor float64) *MemoryStore {
	if floor <= 0 {
		floor = 0.15
	}
	return &MemoryStore{sections: sections, version: version, floor: floor}
}

// Search ranks sections by relevance, dropping those below the floor.
func (s *MemoryStore) Search(_ context.Context, query string, filters Filters) ([]models.SectionMatch, error) {
	queryTokens := Tokenize(query)

	matches := make([]models.SectionMatch, 0)
	for _, section := range s.sections {
		score := scoreSection(section, queryTokens, filters)
		if score < s.floor {
			continue
		}
		matches = append(matches, models.SectionMatch{Section: section, Score: score})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Section.ID < matches[j].Section.ID
	})
	if len(matches) > maxSearchResults {
		matches = matches[:maxSearchResults]
	}
	return matches, nil
}

// Version returns the index version label.
func (s *MemoryStore) Version(context.Context) (string, error) {
	return s.version, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
