// Package scanengine resolves a ScanEngine name to its decoded
// pkg/pipeline.EngineConfig by reading a named JSON bundle off disk
// (spec.md §3: "named configuration bundle, opaque text payload consumed
// by pipeline"). Bundles are hot-reloadable: an fsnotify watch on the
// bundle directory invalidates a cached entry the moment its file
// changes, so updating an engine's config never requires restarting the
// worker process that runs it — the same hot-reload posture pkg/toolcmd's
// embedded template table deliberately does not need, since that table
// ships with the binary.
package scanengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/xingrin/reconctl/pkg/log"
	"github.com/xingrin/reconctl/pkg/pipeline"
)

// Resolver loads named engine bundles from baseDir, one file per engine:
// baseDir/<name>.json.
type Resolver struct {
	baseDir string

	mu    sync.RWMutex
	cache map[string]pipeline.EngineConfig

	watcher *fsnotify.Watcher
}

// New builds a Resolver rooted at baseDir and starts watching it for
// changes. Call Close when done to stop the watch goroutine.
func New(baseDir string) (*Resolver, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("scanengine: new watcher: %w", err)
	}
	if err := watcher.Add(baseDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("scanengine: watch %s: %w", baseDir, err)
	}

	r := &Resolver{baseDir: baseDir, cache: make(map[string]pipeline.EngineConfig), watcher: watcher}
	go r.watchLoop()
	return r, nil
}

// Resolve returns the decoded EngineConfig for name, reading and caching
// the backing file on first use.
func (r *Resolver) Resolve(ctx context.Context, name string) (pipeline.EngineConfig, error) {
	r.mu.RLock()
	cfg, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return cfg, nil
	}

	cfg, err := r.load(name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[name] = cfg
	r.mu.Unlock()
	return cfg, nil
}

func (r *Resolver) load(name string) (pipeline.EngineConfig, error) {
	path := filepath.Join(r.baseDir, name+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scanengine: read %s: %w", name, err)
	}
	cfg, err := pipeline.DecodeEngineConfig(string(data))
	if err != nil {
		return nil, fmt.Errorf("scanengine: %s: %w", name, err)
	}
	return cfg, nil
}

// watchLoop invalidates a cached engine the moment its backing file
// changes, so the next Resolve call reloads it from disk.
func (r *Resolver) watchLoop() {
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			name := engineNameFromPath(event.Name)
			if name == "" {
				continue
			}
			r.mu.Lock()
			delete(r.cache, name)
			r.mu.Unlock()
			log.Logger.Info().Str("engine", name).Str("op", event.Op.String()).Msg("scanengine: bundle changed, cache invalidated")
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			log.Logger.Warn().Err(err).Msg("scanengine: watch error")
		}
	}
}

func engineNameFromPath(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if ext != ".json" {
		return ""
	}
	return base[:len(base)-len(ext)]
}

// Close stops the watch goroutine.
func (r *Resolver) Close() error {
	return r.watcher.Close()
}
