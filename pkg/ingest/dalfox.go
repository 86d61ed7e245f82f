package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xingrin/reconctl/pkg/types"
)

type dalfoxLine struct {
	Type     string `json:"type"`
	PoC      string `json:"poc"`
	CWE      string `json:"cwe"`
	Severity string `json:"severity"`
	Param    string `json:"param"`
}

var dalfoxSeverities = map[string]types.VulnSeverity{
	"info":     types.SeverityInfo,
	"low":      types.SeverityLow,
	"medium":   types.SeverityMedium,
	"high":     types.SeverityHigh,
	"critical": types.SeverityCritical,
}

// ParseDalfoxLine converts one dalfox JSON-lines finding into a
// Vulnerability. dalfox only emits "type":"V" lines for confirmed
// vulnerabilities; other line types (info, error) are not findings and are
// skipped as malformed rather than stored.
func ParseDalfoxLine(line string) (Row, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || !strings.HasPrefix(trimmed, "{") {
		return nil, ErrNotJSONPreamble
	}

	var d dalfoxLine
	if err := json.Unmarshal([]byte(trimmed), &d); err != nil {
		return nil, fmt.Errorf("dalfox: %w", err)
	}
	if d.Type != "V" || d.PoC == "" {
		return nil, fmt.Errorf("dalfox: not a confirmed vulnerability line")
	}

	severity, ok := dalfoxSeverities[strings.ToLower(d.Severity)]
	if !ok {
		severity = types.SeverityMedium
	}

	return types.Vulnerability{
		URL:       d.PoC,
		VulnType:  "xss",
		Severity:  severity,
		Source:    "dalfox",
		RawOutput: []byte(trimmed),
	}, nil
}
