package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/xingrin/reconctl/pkg/types"
)

// rawToolConfig is the on-the-wire shape of one (stage, tool) entry inside
// a ScanEngine's opaque config payload.
type rawToolConfig struct {
	Enabled           bool              `json:"enabled"`
	Timeout           string            `json:"timeout"`
	Config            map[string]string `json:"config"`
	TemplateRepoNames []string          `json:"template_repo_names"`
}

// DecodeEngineConfig parses a ScanEngine's opaque config payload (spec.md
// §3: "named configuration bundle, opaque text payload consumed by
// pipeline") into the (stage, tool) -> ToolConfig table RunScan consumes.
// The payload is a JSON object keyed by stage name, each value keyed by
// tool name.
func DecodeEngineConfig(raw string) (EngineConfig, error) {
	var parsed map[types.Stage]map[string]rawToolConfig
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("pipeline: decode engine config: %w", err)
	}

	engine := make(EngineConfig, len(parsed))
	for stage, tools := range parsed {
		decoded := make(map[string]ToolConfig, len(tools))
		for tool, rc := range tools {
			decoded[tool] = ToolConfig{
				Enabled:           rc.Enabled,
				Timeout:           rc.Timeout,
				Config:            rc.Config,
				TemplateRepoNames: rc.TemplateRepoNames,
			}
		}
		engine[stage] = decoded
	}
	return engine, nil
}
