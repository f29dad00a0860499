// Package parser turns raw bundle files into normalized log records.
package parser

import (
	"fmt"

	"github.com/sentrastack/sentra-diag/internal/models"
	"github.com/sentrastack/sentra-diag/internal/utils"
)

// Parser decodes one supported log format into normalized records.
type Parser interface {
	Format() string
	Parse(file models.BundleFile) ([]models.Record, error)
}

// FileIssue records a file that failed structural validation. The bundle is
// flagged partially unusable but parsing continues on remaining files.
type FileIssue struct {
	File string
	Err  error
}

// Registry holds the available format parsers.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry constructs a Registry with all built-in parsers.
func NewRegistry() *Registry {
	reg := &Registry{parsers: make(map[string]Parser)}
	for _, p := range []Parser{NewTextParser(), NewXMLParser(), NewCSVParser()} {
		reg.parsers[p.Format()] = p
	}
	return reg
}

// Formats lists the registered format names.
func (r *Registry) Formats() []string {
	formats := make([]string, 0, len(r.parsers))
	for name := range r.parsers {
		formats = append(formats, name)
	}
	return formats
}

// Supports reports whether the format hint matches a registered parser.
func (r *Registry) Supports(formatHint string) bool {
	_, ok := r.parsers[formatHint]
	return ok
}

// ParseBundle runs the hinted parser over every file in the bundle.
// A file that fails structural validation is reported as a FileIssue and
// skipped; the remaining files still contribute records. The bundle itself
// is never mutated.
func (r *Registry) ParseBundle(bundle models.LogBundle, formatHint string) ([]models.Record, []FileIssue, error) {
	p, ok := r.parsers[formatHint]
	if !ok {
		return nil, nil, utils.NewAppError("parser.ParseBundle", utils.KindUnsupportedFormat,
			fmt.Sprintf("no parser registered for format %q", formatHint), nil)
	}

	var records []models.Record
	var issues []FileIssue
	for _, file := range bundle.Files {
		fileRecords, err := p.Parse(file)
		if err != nil {
			issues = append(issues, FileIssue{File: file.Name, Err: err})
			continue
		}
		records = append(records, fileRecords...)
	}
	return records, issues, nil
}

func malformed(op, file, msg string, err error) error {
	return utils.NewAppError(op, utils.KindMalformedInput, fmt.Sprintf("%s: %s", file, msg), err)
}
