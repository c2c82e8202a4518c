package savesync

import (
	"errors"
	"fmt"
)

var (
	ErrRemoteUnavailable = errors.New("remote unavailable")
	ErrRemoteLookup      = errors.New("remote lookup failed")
	ErrFilesystem        = errors.New("filesystem error")
	ErrTransfer          = errors.New("transfer failed")
)

// SyncError ties a failure to the operation and path it happened on. Kind is
// one of the sentinels above; errors.Is matches both Kind and the cause.
type SyncError struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *SyncError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
}

func (e *SyncError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func newSyncError(kind error, op, path string, err error) *SyncError {
	return &SyncError{Kind: kind, Op: op, Path: path, Err: err}
}
