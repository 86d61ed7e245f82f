package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xingrin/reconctl/pkg/types"
)

type httpxLine struct {
	URL           string   `json:"url"`
	Host          string   `json:"host"`
	Title         string   `json:"title"`
	Webserver     string   `json:"webserver"`
	StatusCode    int      `json:"status_code"`
	ContentLength int64    `json:"content_length"`
	ContentType   string   `json:"content_type"`
	Tech          []string `json:"tech"`
	Location      string   `json:"location"`
	VHost         bool     `json:"vhost"`
}

// ParseHTTPXLine converts one httpx JSON-lines record into an HTTPAsset.
// The caller decides whether the resulting asset belongs to site_scan
// (Website) or url_fetch (Endpoint) — both share the HTTPAsset shape.
func ParseHTTPXLine(line string) (Row, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || !strings.HasPrefix(trimmed, "{") {
		return nil, ErrNotJSONPreamble
	}

	var h httpxLine
	if err := json.Unmarshal([]byte(trimmed), &h); err != nil {
		return nil, fmt.Errorf("httpx: %w", err)
	}
	if h.URL == "" {
		return nil, fmt.Errorf("httpx: missing url")
	}

	return types.HTTPAsset{
		URL:           h.URL,
		Host:          h.Host,
		Title:         h.Title,
		Webserver:     h.Webserver,
		StatusCode:    h.StatusCode,
		ContentLength: h.ContentLength,
		ContentType:   h.ContentType,
		Tech:          h.Tech,
		Location:      h.Location,
		VHost:         h.VHost,
	}, nil
}
