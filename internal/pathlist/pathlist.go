// Package pathlist turns user-supplied inputs into the ordered file list of
// an ingestion batch.
package pathlist

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// Expand returns inputs with every directory replaced by the regular files
// beneath it, walked with numWorkers goroutines. Inputs keep their order and
// each directory's files are sorted lexically, so the same tree always yields
// the same batch. Paths that cannot be stat'ed are kept as given; the
// ingestion worker reports them as skipped.
func Expand(ctx context.Context, inputs, excludePaths []string, numWorkers int) ([]string, error) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	excludes := make(map[string]struct{}, len(excludePaths))
	for _, p := range excludePaths {
		excludes[filepath.Clean(p)] = struct{}{}
	}

	var out []string
	for _, in := range inputs {
		if _, excluded := excludes[filepath.Clean(in)]; excluded {
			continue
		}
		info, err := os.Stat(in)
		if err != nil || !info.IsDir() {
			out = append(out, in)
			continue
		}

		files := make(chan string, 1000)
		go walk(ctx, filepath.Clean(in), excludes, numWorkers, files, func(path string, err error) {
			slog.Warn("pathlist: cannot read", "path", path, "error", err)
		})
		var found []string
		for f := range files {
			found = append(found, f)
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("expand %q: %w", in, err)
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}
