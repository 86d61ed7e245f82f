package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xingrin/reconctl/pkg/types"
)

type nucleiLine struct {
	TemplateID string `json:"template-id"`
	MatchedAt  string `json:"matched-at"`
	Info       struct {
		Name     string `json:"name"`
		Severity string `json:"severity"`
	} `json:"info"`
}

var nucleiSeverities = map[string]types.VulnSeverity{
	"info":     types.SeverityInfo,
	"low":      types.SeverityLow,
	"medium":   types.SeverityMedium,
	"high":     types.SeverityHigh,
	"critical": types.SeverityCritical,
}

// ParseNucleiLine converts one nuclei JSON-lines finding into a Vulnerability.
func ParseNucleiLine(line string) (Row, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || !strings.HasPrefix(trimmed, "{") {
		return nil, ErrNotJSONPreamble
	}

	var n nucleiLine
	if err := json.Unmarshal([]byte(trimmed), &n); err != nil {
		return nil, fmt.Errorf("nuclei: %w", err)
	}
	if n.TemplateID == "" || n.MatchedAt == "" {
		return nil, fmt.Errorf("nuclei: missing template-id or matched-at")
	}

	severity, ok := nucleiSeverities[strings.ToLower(n.Info.Severity)]
	if !ok {
		severity = types.SeverityUnknown
	}

	return types.Vulnerability{
		URL:       n.MatchedAt,
		VulnType:  n.TemplateID,
		Severity:  severity,
		Source:    "nuclei",
		RawOutput: []byte(trimmed),
	}, nil
}
