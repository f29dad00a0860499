package parser

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"

	"github.com/sentrastack/sentra-diag/internal/models"
	"github.com/sentrastack/sentra-diag/internal/utils"
)

// csvHeader is the expected column set for telemetry exports. Extra trailing
// columns are tolerated; a missing or reordered prefix is a structural error.
var csvHeader = []string{"timestamp", "component", "level", "message"}

// CSVParser decodes the agent's telemetry CSV export.
type CSVParser struct{}

// NewCSVParser constructs a telemetry CSV parser.
func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

// Format returns the format name this parser handles.
func (p *CSVParser) Format() string { return "csv" }

// Parse validates the header row and decodes the remaining rows. Rows with
// the wrong field count fail the file; telemetry exports are machine-written.
func (p *CSVParser) Parse(file models.BundleFile) ([]models.Record, error) {
	const op = "parser.csv.Parse"

	reader := csv.NewReader(bytes.NewReader(file.Data))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, malformed(op, file.Name, "missing header row", err)
	}
	if len(header) < len(csvHeader) {
		return nil, malformed(op, file.Name, "short header row", nil)
	}
	for i, want := range csvHeader {
		if !strings.EqualFold(strings.TrimSpace(header[i]), want) {
			return nil, malformed(op, file.Name, "unexpected header column "+header[i], nil)
		}
	}

	var records []models.Record
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, malformed(op, file.Name, "bad csv row", err)
		}
		line++
		if len(row) < len(csvHeader) {
			return nil, malformed(op, file.Name, "short csv row", nil)
		}

		ts, err := utils.ParseRFC3339(strings.TrimSpace(row[0]))
		if err != nil {
			// Telemetry rows occasionally carry epoch-less placeholders;
			// keep the row, drop the timestamp.
			records = append(records, models.Record{
				Source:    file.Name,
				Component: strings.ToLower(strings.TrimSpace(row[1])),
				Level:     normalizeLevel(row[2]),
				Message:   row[3],
				Line:      line,
			})
			continue
		}
		records = append(records, models.Record{
			Timestamp: ts,
			Source:    file.Name,
			Component: strings.ToLower(strings.TrimSpace(row[1])),
			Level:     normalizeLevel(row[2]),
			Message:   row[3],
			Line:      line,
		})
	}
	return records, nil
}
