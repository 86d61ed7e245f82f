package ingest

import (
	"strings"

	"github.com/xingrin/reconctl/pkg/types"
)

// ParseSubdomainLine converts one subfinder/amass output line into a
// Subdomain. Both tools print one bare hostname per line (spec.md §4.6's
// "subdomain_discovery" stage, templates.toml's "-o {output_path}"); amass
// additionally appends " (passive)"/" (active)" source annotations on some
// lines, stripped here since only the hostname itself is a Subdomain field.
func ParseSubdomainLine(line string) (Row, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, ErrNotJSONPreamble
	}

	if idx := strings.IndexByte(trimmed, ' '); idx != -1 {
		trimmed = trimmed[:idx]
	}
	trimmed = strings.ToLower(trimmed)

	return types.Subdomain{Name: trimmed}, nil
}
