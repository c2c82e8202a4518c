package savesync

import (
	"context"
	"errors"
	"iter"

	"github.com/openmined/savesync/internal/remote"
)

// Lister walks a remote tree one ListFolder call per folder.
type Lister struct {
	storage remote.Storage
}

func NewLister(storage remote.Storage) *Lister {
	return &Lister{storage: storage}
}

type listFrame struct {
	path    string
	listed  bool
	folders []remote.Entry
	files   []remote.Entry
}

// Walk yields every entry below root depth first. Each subfolder is yielded
// and walked completely before the next one; a folder's own files come after
// all of its subfolders. A listing failure is yielded once as an error
// wrapping ErrRemoteUnavailable and ends the sequence. A root that does not
// exist yields nothing.
func (l *Lister) Walk(ctx context.Context, root string) iter.Seq2[remote.Entry, error] {
	root = remote.Clean(root)

	return func(yield func(remote.Entry, error) bool) {
		stack := []*listFrame{{path: root}}

		for len(stack) > 0 {
			top := stack[len(stack)-1]

			if !top.listed {
				if err := ctx.Err(); err != nil {
					yield(remote.Entry{}, newSyncError(ErrRemoteUnavailable, "list", top.path, err))
					return
				}

				entries, err := l.storage.ListFolder(ctx, top.path)
				if err != nil {
					if top.path == root && errors.Is(err, remote.ErrNotFound) {
						return
					}
					yield(remote.Entry{}, newSyncError(ErrRemoteUnavailable, "list", top.path, err))
					return
				}

				for _, e := range entries {
					if e.IsFolder() {
						top.folders = append(top.folders, e)
					} else {
						top.files = append(top.files, e)
					}
				}
				top.listed = true
			}

			if len(top.folders) > 0 {
				sub := top.folders[0]
				top.folders = top.folders[1:]
				if !yield(sub, nil) {
					return
				}
				stack = append(stack, &listFrame{path: sub.Path})
				continue
			}

			for _, f := range top.files {
				if !yield(f, nil) {
					return
				}
			}
			stack = stack[:len(stack)-1]
		}
	}
}
