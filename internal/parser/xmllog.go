package parser

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
	"time"

	"github.com/sentrastack/sentra-diag/internal/models"
)

// XMLParser decodes the agent's exported event log format:
//
//	<agentlog>
//	  <entry time="2024-03-01T10:00:05Z" component="driver" level="error">...</entry>
//	</agentlog>
type XMLParser struct{}

// NewXMLParser constructs an event-XML parser.
func NewXMLParser() *XMLParser {
	return &XMLParser{}
}

// Format returns the format name this parser handles.
func (p *XMLParser) Format() string { return "xml" }

type xmlEntry struct {
	Time      string `xml:"time,attr"`
	Component string `xml:"component,attr"`
	Level     string `xml:"level,attr"`
	Message   string `xml:",chardata"`
}

// Parse streams entries out of the XML document. Any well-formedness
// violation fails the whole file; XML exports are machine-written, so a
// broken document signals truncation rather than noise.
func (p *XMLParser) Parse(file models.BundleFile) ([]models.Record, error) {
	const op = "parser.xml.Parse"

	decoder := xml.NewDecoder(bytes.NewReader(file.Data))
	var records []models.Record
	rootSeen := false
	line := 0

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, malformed(op, file.Name, "not well-formed XML", err)
		}

		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}
		if !rootSeen {
			if start.Name.Local != "agentlog" {
				return nil, malformed(op, file.Name, "unexpected root element "+start.Name.Local, nil)
			}
			rootSeen = true
			continue
		}
		if start.Name.Local != "entry" {
			if err := decoder.Skip(); err != nil {
				return nil, malformed(op, file.Name, "not well-formed XML", err)
			}
			continue
		}

		var entry xmlEntry
		if err := decoder.DecodeElement(&entry, &start); err != nil {
			return nil, malformed(op, file.Name, "not well-formed XML", err)
		}
		line++

		ts, err := time.Parse(time.RFC3339, entry.Time)
		if err != nil {
			ts = time.Time{}
		}
		records = append(records, models.Record{
			Timestamp: ts,
			Source:    file.Name,
			Component: strings.ToLower(strings.TrimSpace(entry.Component)),
			Level:     normalizeLevel(entry.Level),
			Message:   strings.TrimSpace(entry.Message),
			Line:      line,
		})
	}

	if !rootSeen {
		return nil, malformed(op, file.Name, "missing agentlog root element", nil)
	}
	return records, nil
}
