package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/sentrastack/sentra-diag/internal/models"
)

// SQLiteStore serves the versioned on-disk knowledge index built by the
// offline ingestion pipeline. Read-only at analysis time.
type SQLiteStore struct {
	db    *sql.DB
	floor float64
}

// OpenSQLiteStore opens the index read-only and verifies its schema version.
func OpenSQLiteStore(path string, floor float64) (*SQLiteStore, error) {
	if floor <= 0 {
		floor = 0.15
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open knowledge index: %w", err)
	}

	store := &SQLiteStore{db: db, floor: floor}
	if _, err := store.Version(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("knowledge index %s unusable: %w", path, err)
	}
	return store, nil
}

// Version reads the index version from the meta table.
func (s *SQLiteStore) Version(ctx context.Context) (string, error) {
	var version string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'version'`).Scan(&version)
	if err != nil {
		return "", fmt.Errorf("read index version: %w", err)
	}
	return version, nil
}

// Search narrows candidates with tag filters in SQL, then ranks them with
// the shared relevance scorer. Results below the floor are dropped.
func (s *SQLiteStore) Search(ctx context.Context, query string, filters Filters) ([]models.SectionMatch, error) {
	where := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if filters.Component != "" {
		where = append(where, `(',' || lower(component_tags) || ',') LIKE ?`)
		args = append(args, "%,"+strings.ToLower(filters.Component)+",%")
	}
	if filters.IssueType != "" {
		where = append(where, `(',' || lower(issue_type_tags) || ',') LIKE ?`)
		args = append(args, "%,"+strings.ToLower(filters.IssueType)+",%")
	}

	stmt := `SELECT id, source_document, page_start, page_end, component_tags, issue_type_tags, keywords, body FROM sections`
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query sections: %w", err)
	}
	defer rows.Close()

	queryTokens := Tokenize(query)
	matches := make([]models.SectionMatch, 0)
	for rows.Next() {
		var section models.KnowledgeSection
		var componentTags, issueTags, keywords string
		if err := rows.Scan(&section.ID, &section.SourceDocument, &section.PageStart, &section.PageEnd,
			&componentTags, &issueTags, &keywords, &section.Text); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		section.ComponentTags = splitTags(componentTags)
		section.IssueTypeTags = splitTags(issueTags)
		section.Keywords = splitTags(keywords)

		score := scoreSection(section, queryTokens, filters)
		if score < s.floor {
			continue
		}
		matches = append(matches, models.SectionMatch{Section: section, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sections: %w", err)
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

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func splitTags(joined string) []string {
	if joined == "" {
		return nil
	}
	parts := strings.Split(joined, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}
