// Package knowledge serves the pre-built expert documentation index and the
// retrieval coordinator that queries it from analysis findings.
package knowledge

import (
	"context"

	"github.com/sentrastack/sentra-diag/internal/models"
)

// Filters narrows a search to sections tagged for a component, issue type,
// or severity.
type Filters struct {
	Component string
	IssueType string
	Severity  string
}

// Store is a read-only, pre-indexed knowledge base. Search returns sections
// ranked by relevance in [0,1]; an empty result is not an error.
type Store interface {
	Search(ctx context.Context, query string, filters Filters) ([]models.SectionMatch, error)
	Version(ctx context.Context) (string, error)
	Close() error
}

// maxSearchResults bounds a single search's result set.
const maxSearchResults = 10
