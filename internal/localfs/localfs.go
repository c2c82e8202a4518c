// Package localfs is the local half of a sync: it enumerates save files under
// a root and reads, writes and stamps them. All access goes through an
// afero.Fs so tests can run against memory.
package localfs

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/openmined/savesync/internal/utils"
	"github.com/spf13/afero"
)

const tempMarker = ".savesync-tmp-"

// File is a regular file found under the local root.
type File struct {
	// Path is the native path on disk.
	Path string
	// RelPath is slash separated and relative to the enumeration root.
	RelPath string
	Size    int64
	ModTime time.Time
}

type FS struct {
	fs afero.Fs
}

func New(fs afero.Fs) *FS {
	return &FS{fs: fs}
}

// NewOS returns an FS on the host filesystem.
func NewOS() *FS {
	return New(afero.NewOsFs())
}

// Afero exposes the underlying filesystem.
func (f *FS) Afero() afero.Fs {
	return f.fs
}

// Enumerate lists every regular file below root whose relative path matches
// pattern and is not ignored. A nil pattern matches everything. The result is
// sorted by relative path.
func (f *FS) Enumerate(root string, pattern *regexp.Regexp, ignore *IgnoreList) ([]File, error) {
	info, err := f.fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", root)
	}

	var files []File
	err = afero.Walk(f.fs, root, func(path string, info iofs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := utils.ToSlashRel(root, path)
		if err != nil {
			return err
		}
		if ignore.ShouldIgnore(rel) {
			return nil
		}
		if pattern != nil && !pattern.MatchString(rel) {
			return nil
		}

		files = append(files, File{
			Path:    path,
			RelPath: rel,
			Size:    info.Size(),
			ModTime: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	slices.SortFunc(files, func(a, b File) int {
		return strings.Compare(a.RelPath, b.RelPath)
	})
	return files, nil
}

// Stat returns the file at path. found is false, with a nil error, when
// nothing exists there.
func (f *FS) Stat(path string) (file File, found bool, err error) {
	info, err := f.fs.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return File{}, false, nil
	}
	if err != nil {
		return File{}, false, err
	}
	if info.IsDir() {
		return File{}, false, fmt.Errorf("%s is a directory", path)
	}
	return File{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime().UTC(),
	}, true, nil
}

// LocalPath maps the slash separated rel onto root. Remote paths compare
// case-insensitively, so each segment reuses the spelling of an existing
// local entry that differs only in case: folders for the directory part and a
// regular file for the last segment. Segments with no such entry keep rel's
// spelling.
func (f *FS) LocalPath(root, rel string) (string, error) {
	segments := strings.Split(rel, "/")
	dir := root
	for i, seg := range segments {
		last := i == len(segments)-1
		name, err := f.matchCase(dir, seg, !last)
		if err != nil {
			return "", err
		}
		if name == "" {
			return filepath.Join(append([]string{dir}, segments[i:]...)...), nil
		}
		dir = filepath.Join(dir, name)
	}
	return dir, nil
}

// matchCase returns the entry of dir named seg, preferring an exact match,
// or "" when dir does not exist or holds no entry of the wanted kind.
func (f *FS) matchCase(dir, seg string, wantDir bool) (string, error) {
	infos, err := afero.ReadDir(f.fs, dir)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	match := ""
	for _, info := range infos {
		if info.IsDir() != wantDir || !strings.EqualFold(info.Name(), seg) {
			continue
		}
		if info.Name() == seg {
			return seg, nil
		}
		if match == "" {
			match = info.Name()
		}
	}
	return match, nil
}

func (f *FS) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(f.fs, path)
}

// WriteFile replaces path with data. Missing parent directories are created
// and the content is written to a sibling temp file first, then renamed.
func (f *FS) WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := f.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(f.fs, dir, "."+filepath.Base(path)+tempMarker+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		f.fs.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		f.fs.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := f.fs.Rename(tmpName, path); err != nil {
		f.fs.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", tmpName, err)
	}
	return nil
}

// SetModTime sets both the access and modification time of path to t.
func (f *FS) SetModTime(path string, t time.Time) error {
	return f.fs.Chtimes(path, t, t)
}

func (f *FS) MkdirAll(path string) error {
	return f.fs.MkdirAll(path, 0o755)
}
