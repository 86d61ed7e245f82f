package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStreamExecutor struct {
	lines []StreamLine
}

func (f *fakeStreamExecutor) ExecuteStream(ctx context.Context, tool, cmd string, timeout time.Duration, logPath string) (<-chan StreamLine, error) {
	out := make(chan StreamLine, len(f.lines))
	for _, l := range f.lines {
		out <- l
	}
	close(out)
	return out, nil
}

type fakeSink struct {
	batches [][]Row
	failOn  int
}

func (f *fakeSink) SaveBatch(ctx context.Context, scanID, tool string, rows []Row) error {
	if f.failOn > 0 && len(f.batches)+1 == f.failOn {
		return errors.New("storage error")
	}
	f.batches = append(f.batches, rows)
	return nil
}

func constParser(err error) LineParser {
	return func(line string) (Row, error) {
		if err != nil {
			return nil, err
		}
		return line, nil
	}
}

func TestStreamer_BatchesFullBatchesToSink(t *testing.T) {
	lines := make([]StreamLine, 5)
	for i := range lines {
		lines[i] = StreamLine{Text: "row"}
	}
	exec := &fakeStreamExecutor{lines: lines}
	sink := &fakeSink{}
	s := NewStreamer(exec, sink, 2)

	count, err := s.Run(context.Background(), "scan-1", "naabu", "cmd", time.Minute, "/log", constParser(nil))
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	assert.Len(t, sink.batches, 3) // 2 + 2 + 1 (final partial flush)
}

func TestStreamer_MalformedLinesAreSkippedNotFatal(t *testing.T) {
	exec := &fakeStreamExecutor{lines: []StreamLine{{Text: "bad"}, {Text: "bad"}}}
	sink := &fakeSink{}
	s := NewStreamer(exec, sink, 10)

	count, err := s.Run(context.Background(), "scan-1", "naabu", "cmd", time.Minute, "/log", constParser(errors.New("malformed")))
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, sink.batches)
}

func TestStreamer_NonJSONPreambleIsSkippedSilently(t *testing.T) {
	exec := &fakeStreamExecutor{lines: []StreamLine{{Text: "banner"}, {Text: "row"}}}
	sink := &fakeSink{}
	s := NewStreamer(exec, sink, 10)
	calls := 0
	parser := func(line string) (Row, error) {
		calls++
		if line == "banner" {
			return nil, ErrNotJSONPreamble
		}
		return line, nil
	}

	count, err := s.Run(context.Background(), "scan-1", "naabu", "cmd", time.Minute, "/log", parser)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 2, calls)
}

func TestStreamer_ExecutorLineErrorsAreSkipped(t *testing.T) {
	exec := &fakeStreamExecutor{lines: []StreamLine{{Err: errors.New("stderr noise")}, {Text: "row"}}}
	sink := &fakeSink{}
	s := NewStreamer(exec, sink, 10)

	count, err := s.Run(context.Background(), "scan-1", "naabu", "cmd", time.Minute, "/log", constParser(nil))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStreamer_SinkFailureStopsIngestionAndReturnsError(t *testing.T) {
	lines := make([]StreamLine, 4)
	for i := range lines {
		lines[i] = StreamLine{Text: "row"}
	}
	exec := &fakeStreamExecutor{lines: lines}
	sink := &fakeSink{failOn: 1}
	s := NewStreamer(exec, sink, 2)

	_, err := s.Run(context.Background(), "scan-1", "naabu", "cmd", time.Minute, "/log", constParser(nil))
	assert.Error(t, err)
}

func TestScanIngestor_UnknownToolIsError(t *testing.T) {
	exec := &fakeStreamExecutor{}
	sink := &fakeSink{}
	ingestor := NewScanIngestor(exec, sink, "scan-1", 10)

	_, err := ingestor.IngestStream(context.Background(), "not-a-tool", "cmd", time.Minute, "/log")
	assert.Error(t, err)
}

func TestStreamer_IngestFileReplaysLinesThroughParser(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "naabu_output.json")
	content := "{\"ip\":\"10.0.0.1\",\"port\":80}\n{\"ip\":\"10.0.0.2\",\"port\":443}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	sink := &fakeSink{}
	s := NewStreamer(&fakeStreamExecutor{}, sink, 10)

	count, err := s.IngestFile(context.Background(), "scan-1", "naabu", path, ParseNaabuLine)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestStreamer_IngestFileMissingFileIsError(t *testing.T) {
	sink := &fakeSink{}
	s := NewStreamer(&fakeStreamExecutor{}, sink, 10)

	_, err := s.IngestFile(context.Background(), "scan-1", "naabu", "/no/such/file", ParseNaabuLine)
	assert.Error(t, err)
}

func TestScanIngestor_IngestOutputFileDispatchesToItsParser(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "httpx_output.json")
	content := "{\"url\":\"https://example.com\",\"status_code\":200}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	sink := &fakeSink{}
	ingestor := NewScanIngestor(&fakeStreamExecutor{}, sink, "scan-1", 10)

	count, err := ingestor.IngestOutputFile(context.Background(), "httpx", path)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestScanIngestor_KnownToolDispatchesToItsParser(t *testing.T) {
	exec := &fakeStreamExecutor{lines: []StreamLine{{Text: `{"ip":"10.0.0.1","port":80}`}}}
	sink := &fakeSink{}
	ingestor := NewScanIngestor(exec, sink, "scan-1", 10)

	count, err := ingestor.IngestStream(context.Background(), "naabu", "cmd", time.Minute, "/log")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
