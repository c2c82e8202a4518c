// Package memremote is an in-memory remote.Storage used by tests and dry
// experiments. Folders are implicit: a folder exists while any file lives
// below it.
package memremote

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/openmined/savesync/internal/remote"
)

type object struct {
	data     []byte
	modified time.Time
	rev      string
}

// Store keeps files keyed by their lower-cased canonical path, mirroring the
// case-insensitive behaviour of consumer cloud drives.
type Store struct {
	mu      sync.Mutex
	objects map[string]*object
	names   map[string]string
	revs    int

	// Now stamps uploads. Defaults to time.Now.
	Now func() time.Time

	// Account returned by CurrentAccount.
	Account remote.Account

	// Fail forces the named operation to fail for the given path ("" matches
	// any path). Keys are "list", "metadata", "upload", "download", "account".
	Fail map[string]map[string]error

	// Calls counts operations by name.
	Calls map[string]int

	closed bool
}

var _ remote.Storage = (*Store)(nil)

func New() *Store {
	return &Store{
		objects: make(map[string]*object),
		names:   make(map[string]string),
		Now:     time.Now,
		Account: remote.Account{ID: "dbid:test", DisplayName: "Test User", Email: "test@example.com"},
		Fail:    make(map[string]map[string]error),
		Calls:   make(map[string]int),
	}
}

// Put stores data at p with an explicit modification time.
func (s *Store) Put(p string, data []byte, modified time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(remote.Clean(p), data, modified)
}

func (s *Store) put(p string, data []byte, modified time.Time) *object {
	s.revs++
	obj := &object{
		data:     append([]byte(nil), data...),
		modified: modified.UTC().Truncate(time.Second),
		rev:      fmt.Sprintf("%09x", s.revs),
	}
	key := strings.ToLower(p)
	s.objects[key] = obj
	s.names[key] = p
	return obj
}

// Content returns the stored bytes at p.
func (s *Store) Content(p string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[strings.ToLower(remote.Clean(p))]
	if !ok {
		return nil, false
	}
	return obj.data, true
}

// FailOn makes op fail with err for path p ("" for every path).
func (s *Store) FailOn(op, p string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail[op] == nil {
		s.Fail[op] = make(map[string]error)
	}
	if p != "" {
		p = strings.ToLower(remote.Clean(p))
	}
	s.Fail[op][p] = err
}

func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) failure(op, p string) error {
	s.Calls[op]++
	byPath := s.Fail[op]
	if byPath == nil {
		return nil
	}
	if err, ok := byPath[""]; ok {
		return err
	}
	return byPath[strings.ToLower(p)]
}

func (s *Store) entry(key string, obj *object) *remote.Entry {
	p := s.names[key]
	return &remote.Entry{
		Name:           path.Base(p),
		Path:           p,
		Kind:           remote.KindFile,
		Size:           int64(len(obj.data)),
		Rev:            obj.rev,
		ServerModified: obj.modified,
	}
}

func (s *Store) CurrentAccount(ctx context.Context) (*remote.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("account", ""); err != nil {
		return nil, err
	}
	acc := s.Account
	return &acc, nil
}

// ListFolder returns the direct children of folder, folders first, each group
// sorted by name.
func (s *Store) ListFolder(ctx context.Context, folder string) ([]remote.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	folder = remote.Clean(folder)
	if err := s.failure("list", folder); err != nil {
		return nil, err
	}

	prefix := strings.ToLower(folder)
	if prefix != "/" {
		prefix += "/"
	}

	found := false
	folders := make(map[string]remote.Entry)
	var files []remote.Entry
	for key, obj := range s.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		found = true
		name := s.names[key]
		rest := name[len(prefix):]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			child := rest[:i]
			childKey := strings.ToLower(child)
			if _, ok := folders[childKey]; !ok {
				folders[childKey] = remote.Entry{
					Name: child,
					Path: remote.Join(folder, child),
					Kind: remote.KindFolder,
				}
			}
			continue
		}
		files = append(files, *s.entry(key, obj))
	}
	if !found && folder != "/" {
		return nil, fmt.Errorf("list %s: %w", folder, remote.ErrNotFound)
	}

	entries := make([]remote.Entry, 0, len(folders)+len(files))
	for _, f := range folders {
		entries = append(entries, f)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return append(entries, files...), nil
}

func (s *Store) GetMetadata(ctx context.Context, p string) (*remote.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p = remote.Clean(p)
	if err := s.failure("metadata", p); err != nil {
		return nil, err
	}
	key := strings.ToLower(p)
	obj, ok := s.objects[key]
	if !ok {
		return nil, remote.ErrNotFound
	}
	return s.entry(key, obj), nil
}

func (s *Store) Upload(ctx context.Context, p string, data []byte, opts remote.UploadOptions) (*remote.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p = remote.Clean(p)
	if err := s.failure("upload", p); err != nil {
		return nil, err
	}
	obj := s.put(p, data, s.Now())
	return s.entry(strings.ToLower(p), obj), nil
}

func (s *Store) Download(ctx context.Context, p string) ([]byte, *remote.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p = remote.Clean(p)
	if err := s.failure("download", p); err != nil {
		return nil, nil, err
	}
	key := strings.ToLower(p)
	obj, ok := s.objects[key]
	if !ok {
		return nil, nil, remote.ErrNotFound
	}
	return append([]byte(nil), obj.data...), s.entry(key, obj), nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
