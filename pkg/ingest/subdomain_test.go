package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xingrin/reconctl/pkg/types"
)

func TestParseSubdomainLine_BareHostname(t *testing.T) {
	row, err := ParseSubdomainLine("api.example.com")
	require.NoError(t, err)

	sub, ok := row.(types.Subdomain)
	require.True(t, ok)
	assert.Equal(t, "api.example.com", sub.Name)
}

func TestParseSubdomainLine_LowercasesHostname(t *testing.T) {
	row, err := ParseSubdomainLine("API.Example.COM")
	require.NoError(t, err)
	assert.Equal(t, "api.example.com", row.(types.Subdomain).Name)
}

func TestParseSubdomainLine_StripsAmassSourceAnnotation(t *testing.T) {
	row, err := ParseSubdomainLine("dev.example.com (passive)")
	require.NoError(t, err)
	assert.Equal(t, "dev.example.com", row.(types.Subdomain).Name)
}

func TestParseSubdomainLine_EmptyLineIsSilentlyDiscarded(t *testing.T) {
	_, err := ParseSubdomainLine("   ")
	assert.ErrorIs(t, err, ErrNotJSONPreamble)
}
