package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xingrin/reconctl/pkg/types"
)

type naabuLine struct {
	Host string `json:"host"`
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// ParseNaabuLine converts one naabu JSON-lines record into a HostPortMapping.
// naabu occasionally prints a banner before its first JSON object; such
// lines are discarded silently rather than logged as malformed.
func ParseNaabuLine(line string) (Row, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || !strings.HasPrefix(trimmed, "{") {
		return nil, ErrNotJSONPreamble
	}

	var n naabuLine
	if err := json.Unmarshal([]byte(trimmed), &n); err != nil {
		return nil, fmt.Errorf("naabu: %w", err)
	}
	if n.IP == "" || n.Port == 0 {
		return nil, fmt.Errorf("naabu: missing ip or port")
	}

	host := n.Host
	if host == "" {
		host = n.IP
	}

	return types.HostPortMapping{
		Host: host,
		IP:   n.IP,
		Port: n.Port,
	}, nil
}
