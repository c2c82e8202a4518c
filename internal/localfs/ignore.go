package localfs

import (
	"bufio"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"
)

// IgnoreFileName is read from the local root when present. It uses gitignore
// syntax and applies to both the local and the remote tree.
const IgnoreFileName = ".savesyncignore"

var defaultIgnoreLines = []string{
	IgnoreFileName,
	"*" + tempMarker + "*",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
	// editors
	"*.swp",
	"*~",
}

// IgnoreList decides which relative paths take no part in a sync. Paths are
// slash separated and relative to the sync root.
type IgnoreList struct {
	ignore  *gitignore.GitIgnore
	exclude []string
}

// LoadIgnoreList compiles the default rules, the ignore file under root (if
// any) and the exclude globs into a single list.
func LoadIgnoreList(fs afero.Fs, root string, exclude []string) (*IgnoreList, error) {
	for _, pattern := range exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}

	lines := append([]string{}, defaultIgnoreLines...)

	ignorePath := filepath.Join(root, IgnoreFileName)
	if ok, _ := afero.Exists(fs, ignorePath); ok {
		file, err := fs.Open(ignorePath)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", ignorePath, err)
		}
		defer file.Close()

		rules := 0
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			lines = append(lines, line)
			rules++
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read %s: %w", ignorePath, err)
		}
		slog.Debug("loaded ignore file", "path", ignorePath, "rules", rules)
	}

	return &IgnoreList{
		ignore:  gitignore.CompileIgnoreLines(lines...),
		exclude: exclude,
	}, nil
}

// ShouldIgnore reports whether rel is excluded. A nil list ignores nothing.
func (l *IgnoreList) ShouldIgnore(rel string) bool {
	if l == nil {
		return false
	}
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "/")
	if rel == "" {
		return false
	}
	if l.ignore != nil && l.ignore.MatchesPath(rel) {
		return true
	}
	for _, pattern := range l.exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}
