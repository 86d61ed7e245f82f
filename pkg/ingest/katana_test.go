package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xingrin/reconctl/pkg/types"
)

func TestParseKatanaLine_ValidRecord(t *testing.T) {
	row, err := ParseKatanaLine(`{"request":{"endpoint":"https://example.com/app.js"},"response":{"status_code":200,"content_type":"application/javascript","headers":{"server":"nginx"}}}`)
	require.NoError(t, err)

	asset := row.(types.HTTPAsset)
	assert.Equal(t, "https://example.com/app.js", asset.URL)
	assert.Equal(t, 200, asset.StatusCode)
	assert.Equal(t, "nginx", asset.Webserver)
}

func TestParseKatanaLine_NonJSONPreambleIsSilentlyDiscarded(t *testing.T) {
	_, err := ParseKatanaLine("katana v1.0.0")
	assert.ErrorIs(t, err, ErrNotJSONPreamble)
}

func TestParseKatanaLine_MissingEndpointIsError(t *testing.T) {
	_, err := ParseKatanaLine(`{"response":{"status_code":200}}`)
	assert.Error(t, err)
}
