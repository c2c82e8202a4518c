package savesync

import (
	"context"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/savesync/internal/history"
	"github.com/openmined/savesync/internal/localfs"
	"github.com/openmined/savesync/internal/remote"
)

// Recorder receives every completed transfer.
type Recorder interface {
	Record(ctx context.Context, t history.Transfer) error
}

// Executor moves whole files between the two trees. After each transfer the
// local file is stamped with the remote modification time so an unchanged
// pair compares equal on the next pass.
type Executor struct {
	storage  remote.Storage
	local    *localfs.FS
	recorder Recorder
	dryRun   bool
	runID    string
}

func NewExecutor(storage remote.Storage, local *localfs.FS) *Executor {
	return &Executor{storage: storage, local: local}
}

// Upload sends file to remotePath in overwrite mode. In dry-run mode it only
// logs and returns a nil entry.
func (e *Executor) Upload(ctx context.Context, file localfs.File, remotePath string) (*remote.Entry, error) {
	if e.dryRun {
		slog.Info("dry run: would upload", "path", remotePath, "size", humanize.IBytes(uint64(file.Size)))
		return nil, nil
	}

	data, err := e.local.ReadFile(file.Path)
	if err != nil {
		return nil, newSyncError(ErrFilesystem, "read", file.Path, err)
	}

	entry, err := e.storage.Upload(ctx, remotePath, data, remote.UploadOptions{ClientModified: file.ModTime})
	if err != nil {
		return nil, newSyncError(ErrTransfer, "upload", remotePath, err)
	}
	slog.Info("saved", "path", remotePath, "rev", entry.Rev, "size", humanize.IBytes(uint64(len(data))))

	if err := e.stamp(file.Path, entry.ServerModified); err != nil {
		return nil, err
	}
	e.record(ctx, history.DirectionUpload, file.RelPath, entry, int64(len(data)))
	return entry, nil
}

// Download fetches entry and writes it to localPath, replacing what is there.
func (e *Executor) Download(ctx context.Context, entry remote.Entry, relPath, localPath string) error {
	if e.dryRun {
		slog.Info("dry run: would download", "path", entry.Path, "size", humanize.IBytes(uint64(entry.Size)))
		return nil
	}

	data, got, err := e.storage.Download(ctx, entry.Path)
	if err != nil {
		return newSyncError(ErrTransfer, "download", entry.Path, err)
	}
	if got == nil {
		got = &entry
	}

	if err := e.local.WriteFile(localPath, data); err != nil {
		return newSyncError(ErrFilesystem, "write", localPath, err)
	}

	modified := got.ServerModified
	if modified.IsZero() {
		modified = entry.ServerModified
	}
	if err := e.stamp(localPath, modified); err != nil {
		return err
	}
	e.record(ctx, history.DirectionDownload, relPath, got, int64(len(data)))
	return nil
}

func (e *Executor) stamp(path string, modified time.Time) error {
	if modified.IsZero() {
		return nil
	}
	if err := e.local.SetModTime(path, modified); err != nil {
		return newSyncError(ErrFilesystem, "chtimes", path, err)
	}
	return nil
}

// record is best effort: the history log never drives a decision.
func (e *Executor) record(ctx context.Context, dir history.Direction, relPath string, entry *remote.Entry, size int64) {
	if e.recorder == nil {
		return
	}
	err := e.recorder.Record(ctx, history.Transfer{
		RunID:     e.runID,
		Direction: dir,
		Path:      relPath,
		Rev:       entry.Rev,
		Size:      size,
		Modified:  entry.ServerModified,
	})
	if err != nil {
		slog.Warn("failed to record transfer", "path", relPath, "error", err)
	}
}
