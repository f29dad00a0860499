// Package rules implements the signature database matched against parser output.
package rules

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sentrastack/sentra-diag/internal/models"
)

// Rule is a single issue signature inside a rule pack.
type Rule struct {
	ID         string   `yaml:"id"`
	Family     string   `yaml:"family"`
	Category   string   `yaml:"category"`
	Component  string   `yaml:"component"`
	Severity   string   `yaml:"severity"`
	Pattern    string   `yaml:"pattern"`
	Contains   []string `yaml:"contains"`
	Message    string   `yaml:"message"`
	Confidence float64  `yaml:"confidence"`
}

// Pack binds an ordered rule table to one analysis type and log format.
type Pack struct {
	AnalysisType string `yaml:"analysis_type"`
	Format       string `yaml:"format"`
	Rules        []Rule `yaml:"rules"`
}

type compiledRule struct {
	Rule
	re       *regexp.Regexp
	severity models.Severity
}

// LoadDir reads every *.yaml pack in dir and returns a matcher per analysis
// type. A missing directory yields the built-in default packs.
func LoadDir(dir string, logger *slog.Logger) (map[string]*Matcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	packs := DefaultPacks()

	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read rules dir: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				return nil, fmt.Errorf("read rule pack %s: %w", entry.Name(), err)
			}
			var pack Pack
			if err := yaml.Unmarshal(data, &pack); err != nil {
				return nil, fmt.Errorf("parse rule pack %s: %w", entry.Name(), err)
			}
			if pack.AnalysisType == "" {
				return nil, fmt.Errorf("rule pack %s: analysis_type is required", entry.Name())
			}
			packs = append(packs, pack)
			logger.Info("rule pack loaded", slog.String("file", entry.Name()), slog.Int("rules", len(pack.Rules)))
		}
	}

	matchers := make(map[string]*Matcher, len(packs))
	for _, pack := range packs {
		matcher, err := NewMatcher(pack)
		if err != nil {
			return nil, err
		}
		// Later packs (on-disk) override built-ins for the same type.
		matchers[pack.AnalysisType] = matcher
	}
	return matchers, nil
}

func compile(pack Pack) ([]compiledRule, error) {
	compiled := make([]compiledRule, 0, len(pack.Rules))
	for _, rule := range pack.Rules {
		if rule.ID == "" || rule.Family == "" {
			return nil, fmt.Errorf("rule pack %s: rule id and family are required", pack.AnalysisType)
		}
		cr := compiledRule{Rule: rule}
		if rule.Pattern != "" {
			re, err := regexp.Compile("(?i)" + rule.Pattern)
			if err != nil {
				return nil, fmt.Errorf("rule %s: bad pattern: %w", rule.ID, err)
			}
			cr.re = re
		}
		cr.severity = models.Severity(rule.Severity)
		if models.SeverityRank(cr.severity) < 0 {
			cr.severity = models.SeverityWarning
		}
		if cr.Confidence <= 0 || cr.Confidence > 1 {
			cr.Confidence = 0.8
		}
		compiled = append(compiled, cr)
	}
	return compiled, nil
}

func (r *compiledRule) matches(record models.Record) bool {
	if r.re != nil && !r.re.MatchString(record.Message) {
		return false
	}
	for _, needle := range r.Contains {
		if needle != "" && !strings.Contains(strings.ToLower(record.Message), strings.ToLower(needle)) {
			return false
		}
	}
	return r.re != nil || len(r.Contains) > 0
}

// DefaultPacks returns the built-in signature tables for the supported
// analysis types. On-disk packs with the same analysis type replace them.
func DefaultPacks() []Pack {
	return []Pack{
		{
			AnalysisType: "agent-log",
			Format:       "text",
			Rules: []Rule{
				{ID: "cert-expired", Family: "certificate", Category: "certificate_error", Severity: "error",
					Pattern: `certificate (has )?(expired|is invalid|verification failed)`,
					Message: "Certificate validation failure", Confidence: 0.9},
				{ID: "cert-chain", Family: "certificate", Category: "certificate_error", Severity: "warning",
					Pattern: `unable to (get|verify) (local issuer|issuer) certificate`,
					Message: "Incomplete certificate chain", Confidence: 0.85},
				{ID: "tls-handshake", Family: "handshake", Category: "handshake_failure", Severity: "error",
					Pattern: `(tls|ssl) handshake (failed|timeout|error)`,
					Message: "TLS handshake failure with backend", Confidence: 0.9},
				{ID: "conn-refused", Family: "connectivity", Category: "connectivity", Severity: "error",
					Pattern: `connection refused|no route to host|network is unreachable`,
					Message: "Agent cannot reach its backend", Confidence: 0.85},
				{ID: "conn-timeout", Family: "connectivity", Category: "connectivity", Severity: "warning",
					Pattern: `(dial|connect|request) tim(ed)? ?out`,
					Message: "Backend connections are timing out", Confidence: 0.75},
				{ID: "proxy-auth", Family: "connectivity", Category: "proxy_error", Severity: "warning",
					Pattern: `proxy (authentication|auth) (required|failed)`,
					Message: "Proxy authentication is failing", Confidence: 0.8},
				{ID: "update-fail", Family: "update", Category: "update_failure", Severity: "error",
					Pattern: `(update|upgrade|manifest) (download|fetch|apply) (failed|error)`,
					Message: "Agent update pipeline failure", Confidence: 0.85},
				{ID: "signature-db", Family: "update", Category: "update_failure", Severity: "warning",
					Pattern: `signature (database|db) (outdated|stale|load failed)`,
					Message: "Signature database is stale", Confidence: 0.8},
				{ID: "driver-load", Family: "driver", Category: "driver_error", Severity: "critical",
					Pattern: `(kernel |filter )?driver (failed to load|load failed|not loaded|initialization failed)`,
					Message: "Protection driver failed to load", Confidence: 0.95},
				{ID: "svc-crash", Family: "service", Category: "service_crash", Severity: "critical",
					Pattern: `(service|process) (crashed|terminated unexpectedly|exited with code [1-9])`,
					Message: "Agent service crash detected", Confidence: 0.9},
				{ID: "disk-full", Family: "resources", Category: "resource_exhaustion", Severity: "error",
					Pattern: `(no space left on device|disk (is )?full|quota exceeded)`,
					Message: "Host is out of disk space", Confidence: 0.9},
				{ID: "mem-pressure", Family: "resources", Category: "resource_exhaustion", Severity: "warning",
					Pattern: `(out of memory|memory pressure|cannot allocate memory)`,
					Message: "Host is under memory pressure", Confidence: 0.8},
			},
		},
		{
			AnalysisType: "event-xml",
			Format:       "xml",
			Rules: []Rule{
				{ID: "xml-driver-load", Family: "driver", Category: "driver_error", Severity: "critical",
					Pattern: `driver.*(failed|blocked|unsigned)`,
					Message: "Protection driver failure in event log", Confidence: 0.9},
				{ID: "xml-svc-crash", Family: "service", Category: "service_crash", Severity: "critical",
					Pattern: `(terminated unexpectedly|faulting module)`,
					Message: "Service crash recorded in event log", Confidence: 0.9},
				{ID: "xml-tamper", Family: "tamper", Category: "tamper_protection", Severity: "error",
					Pattern: `tamper protection (triggered|blocked|violation)`,
					Message: "Tamper protection event", Confidence: 0.85},
				{ID: "xml-conn", Family: "connectivity", Category: "connectivity", Severity: "warning",
					Pattern: `cloud (lookup|connection) (failed|unavailable)`,
					Message: "Cloud connectivity degraded", Confidence: 0.75},
			},
		},
		{
			AnalysisType: "telemetry-csv",
			Format:       "csv",
			Rules: []Rule{
				{ID: "csv-scan-abort", Family: "scanning", Category: "scan_failure", Severity: "error",
					Pattern: `scan (aborted|failed|incomplete)`,
					Message: "Scheduled scan failures", Confidence: 0.85},
				{ID: "csv-quarantine", Family: "quarantine", Category: "quarantine_error", Severity: "warning",
					Pattern: `quarantine (failed|error|denied)`,
					Message: "Quarantine operations failing", Confidence: 0.8},
				{ID: "csv-policy", Family: "policy", Category: "policy_error", Severity: "warning",
					Pattern: `policy (sync|apply) (failed|rejected)`,
					Message: "Policy synchronisation failure", Confidence: 0.8},
				{ID: "csv-conn", Family: "connectivity", Category: "connectivity", Severity: "warning",
					Pattern: `telemetry upload (failed|retry)`,
					Message: "Telemetry uploads failing", Confidence: 0.7},
			},
		},
	}
}
