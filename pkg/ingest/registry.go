package ingest

import (
	"context"
	"fmt"
	"time"
)

// parsers maps each streaming tool to its dialect-specific line parser
// (spec.md §4.7: "Ingestors are dialect-specific").
var parsers = map[string]LineParser{
	"subfinder": ParseSubdomainLine,
	"amass":     ParseSubdomainLine,
	"naabu":     ParseNaabuLine,
	"httpx":     ParseHTTPXLine,
	"katana":    ParseKatanaLine,
	"dalfox":    ParseDalfoxLine,
	"nuclei":    ParseNucleiLine,
}

// ScanIngestor binds a Streamer to one scan and exposes the narrow
// IngestStream signature pkg/pipeline expects, looking up each tool's
// parser by name.
type ScanIngestor struct {
	streamer *Streamer
	scanID   string
}

// NewScanIngestor builds a ScanIngestor for one scan. batchSize <= 0 uses
// the Streamer's default.
func NewScanIngestor(executor StreamExecutor, sink BatchSink, scanID string, batchSize int) *ScanIngestor {
	return &ScanIngestor{
		streamer: NewStreamer(executor, sink, batchSize),
		scanID:   scanID,
	}
}

// IngestStream satisfies pkg/pipeline.StreamIngestor.
func (s *ScanIngestor) IngestStream(ctx context.Context, tool, cmd string, timeout time.Duration, logPath string) (int, error) {
	parser, err := parserFor(tool)
	if err != nil {
		return 0, err
	}
	return s.streamer.Run(ctx, s.scanID, tool, cmd, timeout, logPath, parser)
}

// IngestOutputFile replays a non-streaming tool's completed output file
// (naabu, httpx — run via execute_and_wait, spec.md §4.6) through the same
// dialect parser and batch-to-sink path as IngestStream.
func (s *ScanIngestor) IngestOutputFile(ctx context.Context, tool, path string) (int, error) {
	parser, err := parserFor(tool)
	if err != nil {
		return 0, err
	}
	return s.streamer.IngestFile(ctx, s.scanID, tool, path, parser)
}

func parserFor(tool string) (LineParser, error) {
	p, ok := parsers[tool]
	if !ok {
		return nil, fmt.Errorf("ingest: no parser registered for tool %q", tool)
	}
	return p, nil
}
