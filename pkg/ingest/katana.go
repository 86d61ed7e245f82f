package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xingrin/reconctl/pkg/types"
)

// katana's JSON-lines output nests the crawled request/response, unlike
// naabu/httpx/nuclei/dalfox's flatter shapes.
type katanaLine struct {
	Request struct {
		Endpoint string `json:"endpoint"`
	} `json:"request"`
	Response struct {
		StatusCode  int    `json:"status_code"`
		ContentType string `json:"content_type"`
		Headers     struct {
			Server string `json:"server"`
		} `json:"headers"`
	} `json:"response"`
}

// ParseKatanaLine converts one katana JSON-lines crawl record into an
// HTTPAsset (destined for the Endpoint table once url_fetch wires it in).
func ParseKatanaLine(line string) (Row, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || !strings.HasPrefix(trimmed, "{") {
		return nil, ErrNotJSONPreamble
	}

	var k katanaLine
	if err := json.Unmarshal([]byte(trimmed), &k); err != nil {
		return nil, fmt.Errorf("katana: %w", err)
	}
	if k.Request.Endpoint == "" {
		return nil, fmt.Errorf("katana: missing request.endpoint")
	}

	return types.HTTPAsset{
		URL:         k.Request.Endpoint,
		StatusCode:  k.Response.StatusCode,
		ContentType: k.Response.ContentType,
		Webserver:   k.Response.Headers.Server,
	}, nil
}
