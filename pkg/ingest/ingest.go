// Package ingest converts sanitized tool output lines from pkg/executor's
// streaming path into asset DTOs, batches them, and hands each full batch
// to the Asset Store (spec.md §4.7).
package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/xingrin/reconctl/pkg/log"
	"github.com/xingrin/reconctl/pkg/metrics"
)

// StreamLine mirrors pkg/executor.StreamLine so this package depends only on
// the shape it needs, not the executor package itself.
type StreamLine struct {
	Text string
	Err  error
}

// StreamExecutor runs a streaming tool command and yields its sanitized
// output lines.
type StreamExecutor interface {
	ExecuteStream(ctx context.Context, tool, cmd string, timeout time.Duration, logPath string) (<-chan StreamLine, error)
}

// Row is one parsed, dialect-specific DTO ready for the Asset Store.
type Row any

// BatchSink hands a full batch of rows for one tool off to the Asset Store.
type BatchSink interface {
	SaveBatch(ctx context.Context, scanID, tool string, rows []Row) error
}

// ErrNotJSONPreamble marks a non-JSON line preceding a tool's JSON stream —
// for JSON-dialect tools this is discarded silently, never logged
// (spec.md §4.7).
var ErrNotJSONPreamble = errors.New("ingest: non-JSON preamble line")

// LineParser converts one sanitized output line into a Row, or returns an
// error if the line is malformed for its tool's dialect.
type LineParser func(line string) (Row, error)

const defaultBatchSize = 500

// Streamer runs one tool over the streaming path and feeds parsed rows to a
// BatchSink in fixed-size batches.
type Streamer struct {
	executor  StreamExecutor
	sink      BatchSink
	batchSize int
}

// NewStreamer builds a Streamer. batchSize <= 0 uses defaultBatchSize.
func NewStreamer(executor StreamExecutor, sink BatchSink, batchSize int) *Streamer {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Streamer{executor: executor, sink: sink, batchSize: batchSize}
}

// Run executes tool via the streaming path, parses each line with parser,
// and flushes full batches to the sink. If the sink rejects a batch
// (StorageError, spec.md §7), Run cancels its own context so the
// subprocess is killed promptly, then returns the error.
func (s *Streamer) Run(ctx context.Context, scanID, tool, cmd string, timeout time.Duration, logPath string, parser LineParser) (int, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines, err := s.executor.ExecuteStream(runCtx, tool, cmd, timeout, logPath)
	if err != nil {
		return 0, err
	}

	return s.consume(runCtx, cancel, scanID, tool, lines, parser)
}

// IngestFile replays an already-completed tool's output file through the
// same dialect parser and batching path as Run. Non-streaming tools
// (naabu, httpx) still emit JSON-lines output, written via
// execute_and_wait rather than execute_stream; this lets them share the
// same ingestor dialect instead of duplicating the parse/batch logic.
func (s *Streamer) IngestFile(ctx context.Context, scanID, tool, path string, parser LineParser) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	defer f.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan StreamLine)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- StreamLine{Text: scanner.Text()}:
			case <-runCtx.Done():
				return
			}
		}
	}()

	return s.consume(runCtx, cancel, scanID, tool, lines, parser)
}

func (s *Streamer) consume(ctx context.Context, cancel context.CancelFunc, scanID, tool string, lines <-chan StreamLine, parser LineParser) (int, error) {
	var batch []Row
	total := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.sink.SaveBatch(ctx, scanID, tool, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for l := range lines {
		if l.Err != nil {
			continue
		}
		row, err := parser(l.Text)
		if err != nil {
			if !errors.Is(err, ErrNotJSONPreamble) {
				log.Logger.Debug().Str("tool", tool).Err(err).Str("line", l.Text).Msg("skipping malformed ingest line")
				metrics.IngestLinesMalformedTotal.WithLabelValues(tool).Inc()
			}
			continue
		}

		batch = append(batch, row)
		if len(batch) >= s.batchSize {
			if err := flush(); err != nil {
				cancel()
				return total, err
			}
		}
	}

	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}
