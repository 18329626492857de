package ingestion

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/Benny93/notemap/internal/graph"
)

// documentExt is the extension of note documents.
const documentExt = ".json"

// Default patterns to ignore (in addition to .gitignore).
var defaultIgnorePatterns = []string{
	".git/",
	".notemap/",
	"node_modules/",
	"package.json",
	"package-lock.json",
	"tsconfig.json",
	".DS_Store",
}

// WalkDocuments returns the note documents under dir, sorted by path.
// Hidden directories and paths matched by .gitignore are skipped.
func WalkDocuments(dir string) ([]string, error) {
	matcher, err := loadGitignoreMatcher(dir)
	if err != nil {
		return nil, fmt.Errorf("reading .gitignore: %w", err)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != dir && shouldSkipDir(d.Name(), path, dir, matcher) {
				return filepath.SkipDir
			}
			return nil
		}

		if isDocument(path, dir, matcher) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(paths)
	return paths, nil
}

// LoadDir reads every document under dir into one graph. Links may cross
// documents.
func LoadDir(dir string) (*graph.FullGraph, error) {
	paths, err := WalkDocuments(dir)
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}

	merged := &Document{}
	for _, path := range paths {
		doc, err := readDocument(path)
		if err != nil {
			return nil, err
		}
		merged.Merge(doc)
	}

	g := graph.NewFullGraph()
	if err := merged.AddTo(g); err != nil {
		return nil, fmt.Errorf("loading %s: %w", dir, err)
	}
	return g, nil
}

// LoadPath reads a file or a directory.
func LoadPath(path string) (*graph.FullGraph, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

func readDocument(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	doc, err := DecodeDocument(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// loadGitignoreMatcher builds a matcher from the default patterns and the
// .gitignore at root, if any.
func loadGitignoreMatcher(root string) (gitignore.Matcher, error) {
	patterns := make([]gitignore.Pattern, 0, len(defaultIgnorePatterns))
	for _, p := range defaultIgnorePatterns {
		patterns = append(patterns, gitignore.ParsePattern(p, nil))
	}

	content, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}

	return gitignore.NewMatcher(patterns), nil
}

// isDocument reports whether path is a note document that is not ignored.
func isDocument(path, root string, matcher gitignore.Matcher) bool {
	if !strings.EqualFold(filepath.Ext(path), documentExt) {
		return false
	}

	relPath, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(relPath, "..") {
		return false
	}
	return !matcher.Match(splitPath(relPath), false)
}

// shouldSkipDir checks if a directory should be skipped.
func shouldSkipDir(name, path, root string, matcher gitignore.Matcher) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}

	relPath, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return matcher.Match(splitPath(relPath), true)
}

// splitPath splits a path into its components.
func splitPath(path string) []string {
	return strings.Split(path, string(filepath.Separator))
}
