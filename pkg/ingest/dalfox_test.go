package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xingrin/reconctl/pkg/types"
)

func TestParseDalfoxLine_ValidFindingRecord(t *testing.T) {
	row, err := ParseDalfoxLine(`{"type":"V","poc":"https://example.com/?q=<script>","cwe":"CWE-79","severity":"high","param":"q"}`)
	require.NoError(t, err)

	vuln := row.(types.Vulnerability)
	assert.Equal(t, "https://example.com/?q=<script>", vuln.URL)
	assert.Equal(t, "xss", vuln.VulnType)
	assert.Equal(t, types.SeverityHigh, vuln.Severity)
}

func TestParseDalfoxLine_NonFindingLineIsError(t *testing.T) {
	_, err := ParseDalfoxLine(`{"type":"info","msg":"scanning started"}`)
	assert.Error(t, err)
}

func TestParseDalfoxLine_NonJSONPreambleIsSilentlyDiscarded(t *testing.T) {
	_, err := ParseDalfoxLine("dalfox v2.9.0 starting")
	assert.ErrorIs(t, err, ErrNotJSONPreamble)
}

func TestParseDalfoxLine_UnknownSeverityDefaultsToMedium(t *testing.T) {
	row, err := ParseDalfoxLine(`{"type":"V","poc":"https://example.com","severity":"weird"}`)
	require.NoError(t, err)
	assert.Equal(t, types.SeverityMedium, row.(types.Vulnerability).Severity)
}
