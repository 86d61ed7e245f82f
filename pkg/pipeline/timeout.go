package pipeline

import (
	"fmt"
	"strconv"
	"time"
)

// perLineSeconds gives the tool-specific cost-per-input-line used to derive
// an "auto" timeout (spec.md §4.6). Tools absent from this table fall back
// to defaultPerLineSeconds.
var perLineSeconds = map[string]int{
	"dalfox": 100,
	"nuclei": 30,
}

const (
	defaultPerLineSeconds = 10
	defaultMinTimeout     = 60 * time.Second
)

// resolveTimeout implements spec.md §4.6's per-tool timeout resolution:
// "auto" computes max(min_timeout, line_count*per_line_seconds); anything
// else must parse as an integer number of seconds.
func resolveTimeout(tool, configured string, lineCount int) (time.Duration, error) {
	if configured == "" || configured == "auto" {
		perLine := defaultPerLineSeconds
		if v, ok := perLineSeconds[tool]; ok {
			perLine = v
		}
		computed := time.Duration(lineCount*perLine) * time.Second
		if computed < defaultMinTimeout {
			return defaultMinTimeout, nil
		}
		return computed, nil
	}

	seconds, err := strconv.Atoi(configured)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", configured, err)
	}
	return time.Duration(seconds) * time.Second, nil
}
