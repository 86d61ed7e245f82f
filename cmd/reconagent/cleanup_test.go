package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkdirWithAge(t *testing.T, parent, name string, age time.Duration) {
	t.Helper()
	dir := filepath.Join(parent, name)
	require.NoError(t, os.Mkdir(dir, 0o755))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(dir, mtime, mtime))
}

func TestSweepOlderThan_RemovesOnlyEntriesPastCutoff(t *testing.T) {
	dir := t.TempDir()
	mkdirWithAge(t, dir, "scan-old", 40*24*time.Hour)
	mkdirWithAge(t, dir, "scan-new", 1*time.Hour)

	removed, kept, err := sweepOlderThan(dir, time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, kept)

	_, err = os.Stat(filepath.Join(dir, "scan-old"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "scan-new"))
	assert.NoError(t, err)
}

func TestSweepOlderThan_MissingDirIsNotAnError(t *testing.T) {
	removed, kept, err := sweepOlderThan(filepath.Join(t.TempDir(), "missing"), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	assert.Equal(t, 0, kept)
}

func TestRunCleanup_RejectsNonIntegerRetentionDays(t *testing.T) {
	err := runCleanup(map[string]string{"retention_days": "soon"})
	assert.Error(t, err)
}

func TestRunCleanup_RejectsMissingRetentionDays(t *testing.T) {
	err := runCleanup(map[string]string{})
	assert.Error(t, err)
}
