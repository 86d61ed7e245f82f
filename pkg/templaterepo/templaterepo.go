// Package templaterepo resolves named Nuclei template repositories to
// local filesystem paths (spec.md §4.6 "Nuclei special case").
//
// Git synchronization of those repositories is explicitly out of scope
// (spec.md §1: "wordlist/Nuclei-template Git synchronization" is a
// deliberately external collaborator) — this package assumes each named
// repository has already been cloned or updated by that external process
// and only resolves names to paths, refusing names it can't find on disk.
package templaterepo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// ConfigError reports a template repo name with no corresponding local
// checkout — a configuration mistake surfaced at task-build time, same as
// pkg/toolcmd.ConfigError.
type ConfigError struct {
	RepoName string
	Msg      string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("templaterepo: %s: %s", e.RepoName, e.Msg)
}

// Resolver satisfies pkg/pipeline.TemplateRepoResolver: it looks each
// named repository up under a fixed base directory, one subdirectory per
// repo name, and reports the ones that don't exist as a ConfigError
// rather than silently skipping them.
type Resolver struct {
	baseDir string
}

// New builds a Resolver rooted at baseDir (e.g. /var/lib/reconctl/templates).
func New(baseDir string) *Resolver {
	return &Resolver{baseDir: baseDir}
}

// Resolve returns the local path of each named repo, in the same order as
// repoNames. The first name with no matching checkout aborts the whole
// call — a partial template set would silently narrow Nuclei's coverage
// instead of failing loudly.
func (r *Resolver) Resolve(ctx context.Context, repoNames []string) ([]string, error) {
	paths := make([]string, 0, len(repoNames))
	for _, name := range repoNames {
		path := filepath.Join(r.baseDir, name)
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, &ConfigError{RepoName: name, Msg: "no local checkout found"}
			}
			return nil, &ConfigError{RepoName: name, Msg: err.Error()}
		}
		if !info.IsDir() {
			return nil, &ConfigError{RepoName: name, Msg: "checkout path is not a directory"}
		}
		paths = append(paths, path)
	}
	return paths, nil
}
