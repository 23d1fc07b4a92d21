// Package discovery finds Callgrind trace files on disk. It is an
// external collaborator per spec §1 (file discovery is explicitly out of
// the core's scope) implemented here so the module's doublestar
// dependency has a real call site.
package discovery

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	cgerrors "github.com/haltmark/cgprof/internal/errors"
)

// DefaultPattern matches Callgrind trace files by the profiler's default
// output naming convention.
const DefaultPattern = "**/*.callgrind"

// Find returns every file under root matching pattern, sorted for
// deterministic output. An empty pattern uses DefaultPattern.
func Find(root, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}

	fsys := os.DirFS(root)
	matches, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return nil, cgerrors.NewIoReadError(root, "glob", err)
	}

	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = filepath.Join(root, m)
	}
	sort.Strings(out)
	return out, nil
}

// ToRelative converts an absolute path to one relative to root for
// display, falling back to the original path when the path falls outside
// root or the conversion fails.
func ToRelative(absPath, root string) string {
	if absPath == "" || root == "" {
		return absPath
	}
	if !filepath.IsAbs(absPath) {
		return absPath
	}
	absPath = filepath.Clean(absPath)
	root = filepath.Clean(root)

	rel, err := filepath.Rel(root, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return absPath
	}
	return rel
}
