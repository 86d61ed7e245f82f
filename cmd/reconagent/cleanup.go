package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xingrin/reconctl/pkg/log"
)

// runCleanup implements run_cleanup (spec.md §127 "cleanup-all iterates
// every online worker running a run_cleanup script with a retention-days
// argument"): a worker-local filesystem sweep, not a database operation —
// it never calls connectFromControlPlane. Every per-scan result/log
// directory under resultsMount/logsMount older than retention_days is
// removed outright.
func runCleanup(flags map[string]string) error {
	raw, err := requireFlag(flags, "retention_days")
	if err != nil {
		return err
	}
	retentionDays, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("reconagent: --retention_days must be an integer: %w", err)
	}

	cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	var removed, kept int
	for _, dir := range []string{resultsMount, logsMount} {
		n, k, err := sweepOlderThan(dir, cutoff)
		if err != nil {
			return fmt.Errorf("reconagent: sweep %s: %w", dir, err)
		}
		removed += n
		kept += k
	}

	log.Logger.Info().Int("retention_days", retentionDays).Int("removed", removed).Int("kept", kept).Msg("reconagent: cleanup complete")
	return nil
}

// sweepOlderThan removes every top-level entry of dir whose modification
// time is before cutoff, reporting how many it removed vs. kept. A
// missing dir is not an error — a worker that never ran a scan has
// nothing to clean up.
func sweepOlderThan(dir string, cutoff time.Time) (removed, kept int, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, err
	}

	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			return removed, kept, err
		}
		if info.ModTime().Before(cutoff) {
			if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
				return removed, kept, err
			}
			removed++
		} else {
			kept++
		}
	}
	return removed, kept, nil
}
