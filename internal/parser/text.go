package parser

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"
	"time"

	"github.com/sentrastack/sentra-diag/internal/models"
	"github.com/sentrastack/sentra-diag/internal/utils"
)

// textLinePattern matches the agent's plain-text log layout:
//
//	2024-03-01 10:00:05 [updater] ERROR failed to fetch manifest
var textLinePattern = regexp.MustCompile(
	`^(\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})?)\s+\[([^\]]+)\]\s+([A-Z]+)\s+(.*)$`)

const textTimeLayout = "2006-01-02 15:04:05"

// TextParser decodes the agent's plain-text log family.
type TextParser struct{}

// NewTextParser constructs a plain-text log parser.
func NewTextParser() *TextParser {
	return &TextParser{}
}

// Format returns the format name this parser handles.
func (p *TextParser) Format() string { return "text" }

// Parse tokenizes a text log file. Lines that do not match the layout are
// folded into the preceding record as continuation text (stack traces); a
// file whose first non-empty line is unrecognizable fails structural
// validation.
func (p *TextParser) Parse(file models.BundleFile) ([]models.Record, error) {
	const op = "parser.text.Parse"
	if bytes.IndexByte(file.Data, 0) >= 0 {
		return nil, malformed(op, file.Name, "binary content in text log", nil)
	}

	var records []models.Record
	scanner := bufio.NewScanner(bytes.NewReader(file.Data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	sawStructured := false
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		match := textLinePattern.FindStringSubmatch(line)
		if match == nil {
			if len(records) > 0 {
				last := &records[len(records)-1]
				last.Message = last.Message + "\n" + line
				continue
			}
			return nil, malformed(op, file.Name, "expected header line not found", nil)
		}
		sawStructured = true

		ts, err := parseTextTime(match[1])
		if err != nil {
			ts = time.Time{}
		}
		records = append(records, models.Record{
			Timestamp: ts,
			Source:    file.Name,
			Component: strings.ToLower(match[2]),
			Level:     normalizeLevel(match[3]),
			Message:   match[4],
			Line:      lineNo,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, malformed(op, file.Name, "scan failed", err)
	}
	if !sawStructured {
		return nil, malformed(op, file.Name, "no log lines found", nil)
	}
	return records, nil
}

func parseTextTime(value string) (time.Time, error) {
	if t, err := time.Parse(textTimeLayout, value); err == nil {
		return t, nil
	}
	return utils.ParseRFC3339(strings.Replace(value, " ", "T", 1))
}

func normalizeLevel(level string) string {
	switch strings.ToUpper(level) {
	case "WARN", "WARNING":
		return "warning"
	case "ERR", "ERROR":
		return "error"
	case "FATAL", "CRIT", "CRITICAL":
		return "critical"
	case "DEBUG", "TRACE":
		return "debug"
	default:
		return "info"
	}
}
