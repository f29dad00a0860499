package knowledge

import (
	"sort"
	"strings"

	"github.com/sentrastack/sentra-diag/internal/models"
)

// stopwords are dropped during tokenization; they carry no retrieval signal.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "this": {},
	"that": {}, "has": {}, "have": {}, "was": {}, "were": {}, "are": {},
	"not": {}, "but": {}, "can": {}, "will": {}, "into": {}, "its": {},
	"error": {}, "failed": {}, "failure": {}, "detected": {}, "occurrences": {},
}

// Tokenize lowercases, splits on non-alphanumerics, and drops stopwords and
// short tokens.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		if len(field) < 3 {
			continue
		}
		if _, ok := stopwords[field]; ok {
			continue
		}
		tokens = append(tokens, field)
	}
	return tokens
}

// TopKeywords returns the n most frequent tokens, highest frequency first,
// alphabetical within ties for determinism.
func TopKeywords(texts []string, n int) []string {
	counts := make(map[string]int)
	for _, text := range texts {
		for _, token := range Tokenize(text) {
			counts[token]++
		}
	}
	tokens := make([]string, 0, len(counts))
	for token := range counts {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if counts[tokens[i]] != counts[tokens[j]] {
			return counts[tokens[i]] > counts[tokens[j]]
		}
		return tokens[i] < tokens[j]
	})
	if len(tokens) > n {
		tokens = tokens[:n]
	}
	return tokens
}

// scoreSection computes a relevance measure in [0,1] from keyword, tag, and
// body overlap with the query tokens.
func scoreSection(section models.KnowledgeSection, queryTokens []string, filters Filters) float64 {
	if len(queryTokens) == 0 {
		return 0
	}

	keywordSet := make(map[string]struct{}, len(section.Keywords))
	for _, kw := range section.Keywords {
		keywordSet[strings.ToLower(kw)] = struct{}{}
	}
	body := strings.ToLower(section.Text)

	keywordHits := 0
	bodyHits := 0
	for _, token := range queryTokens {
		if _, ok := keywordSet[token]; ok {
			keywordHits++
		}
		if strings.Contains(body, token) {
			bodyHits++
		}
	}

	tagScore := 0.0
	tagChecks := 0.0
	if filters.Component != "" {
		tagChecks++
		if containsFold(section.ComponentTags, filters.Component) {
			tagScore++
		}
	}
	if filters.IssueType != "" {
		tagChecks++
		if containsFold(section.IssueTypeTags, filters.IssueType) {
			tagScore++
		}
	}
	tagOverlap := 0.0
	if tagChecks > 0 {
		tagOverlap = tagScore / tagChecks
	}

	n := float64(len(queryTokens))
	score := 0.6*(float64(keywordHits)/n) + 0.25*tagOverlap + 0.15*(float64(bodyHits)/n)
	if score > 1 {
		score = 1
	}
	return score
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}
