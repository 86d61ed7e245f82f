// Package toolcmd builds the shell command line for one (stage, tool) pair
// from a static template table plus a per-scan tool config (spec.md §4.5).
package toolcmd

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/xingrin/reconctl/pkg/types"
)

//go:embed templates.toml
var templatesFS embed.FS

// Template is one (stage, tool) entry in the command table.
type Template struct {
	Base      string            `toml:"base"`
	Optional  map[string]string `toml:"optional"`
	InputType string            `toml:"input_type"`
}

// table is stage -> tool -> Template, decoded once at package init from the
// embedded templates.toml.
type table map[types.Stage]map[string]Template

var templates table

func init() {
	data, err := templatesFS.ReadFile("templates.toml")
	if err != nil {
		panic(fmt.Sprintf("toolcmd: read embedded templates.toml: %v", err))
	}
	var parsed map[string]map[string]Template
	if _, err := toml.Decode(string(data), &parsed); err != nil {
		panic(fmt.Sprintf("toolcmd: parse embedded templates.toml: %v", err))
	}

	templates = make(table, len(parsed))
	for stage, tools := range parsed {
		templates[types.Stage(stage)] = tools
	}
}

// ConfigError reports an unknown tool/stage pair or a malformed template
// substitution — a configuration mistake surfaced at task-build time
// (spec.md §7).
type ConfigError struct {
	Stage types.Stage
	Tool  string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("toolcmd: %s/%s: %s", e.Stage, e.Tool, e.Msg)
}

// Lookup returns the template for a (stage, tool) pair.
func Lookup(stage types.Stage, tool string) (Template, error) {
	tools, ok := templates[stage]
	if !ok {
		return Template{}, &ConfigError{Stage: stage, Tool: tool, Msg: "unknown scan stage"}
	}
	tmpl, ok := tools[tool]
	if !ok {
		return Template{}, &ConfigError{Stage: stage, Tool: tool, Msg: "unknown tool for stage"}
	}
	return tmpl, nil
}

// Build substitutes required placeholders in the tool's base template, then
// appends each optional fragment whose config key is present with a
// non-empty value, in deterministic (sorted) key order.
func Build(stage types.Stage, tool string, placeholders map[string]string, toolConfig map[string]string) (string, error) {
	tmpl, err := Lookup(stage, tool)
	if err != nil {
		return "", err
	}

	base, err := substitute(tmpl.Base, placeholders)
	if err != nil {
		return "", &ConfigError{Stage: stage, Tool: tool, Msg: err.Error()}
	}

	keys := make([]string, 0, len(tmpl.Optional))
	for k := range tmpl.Optional {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(base)
	for _, key := range keys {
		value, present := toolConfig[key]
		if !present || value == "" {
			continue
		}
		fragment, err := substitute(tmpl.Optional[key], mergeConfigValue(placeholders, key, value))
		if err != nil {
			return "", &ConfigError{Stage: stage, Tool: tool, Msg: err.Error()}
		}
		b.WriteString(fragment)
	}
	return b.String(), nil
}

// mergeConfigValue returns placeholders with key's own config value made
// available as a substitution slot of the same name, so a fragment like
// " -p {ports}" can reference the config key it was triggered by.
func mergeConfigValue(placeholders map[string]string, key, value string) map[string]string {
	merged := make(map[string]string, len(placeholders)+1)
	for k, v := range placeholders {
		merged[k] = v
	}
	merged[key] = value
	return merged
}

// substitute replaces every {placeholder} in format with values[placeholder].
// A placeholder with no matching value is a configuration error.
func substitute(format string, values map[string]string) (string, error) {
	var b strings.Builder
	i := 0
	for i < len(format) {
		if format[i] == '{' {
			end := strings.IndexByte(format[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated placeholder in %q", format)
			}
			name := format[i+1 : i+end]
			value, ok := values[name]
			if !ok {
				return "", fmt.Errorf("missing value for placeholder %q", name)
			}
			b.WriteString(value)
			i += end + 1
			continue
		}
		b.WriteByte(format[i])
		i++
	}
	return b.String(), nil
}

// SupportedStages enumerates the scan stages the table recognizes (spec.md
// §4.5).
func SupportedStages() []types.Stage {
	return []types.Stage{
		types.StageSubdomainDiscovery,
		types.StagePortScan,
		types.StageSiteScan,
		types.StageDirectoryScan,
		types.StageURLFetch,
		types.StageVulnScan,
	}
}
