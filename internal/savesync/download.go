package savesync

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/openmined/savesync/internal/localfs"
	"github.com/openmined/savesync/internal/remote"
)

// DecideDownload picks the action for a remote file given its local
// counterpart, if any.
func DecideDownload(cmp Comparator, entry remote.Entry, local localfs.File, found bool) Decision {
	if !found {
		return Download
	}
	if cmp.IsLaterThan(entry.ServerModified, local.ModTime) {
		return Download
	}
	return Skip
}

// folderBatch holds the files of one remote folder. The lister emits a
// folder's files back to back, so a change of parent closes the batch.
type folderBatch struct {
	folder string
	files  []remote.Entry
}

func (s *Syncer) downloadPhase(ctx context.Context, ignore *localfs.IgnoreList) (PhaseStats, error) {
	var stats PhaseStats
	var batch folderBatch

	flush := func() error {
		if len(batch.files) == 0 {
			return nil
		}
		err := s.downloadFolder(ctx, batch, &stats)
		batch = folderBatch{}
		return err
	}

	for entry, err := range s.lister.Walk(ctx, s.cfg.RemoteRoot) {
		if err != nil {
			return stats, err
		}

		rel, ok := remote.Rel(s.cfg.RemoteRoot, entry.Path)
		if !ok || ignore.ShouldIgnore(rel) {
			continue
		}

		if entry.IsFolder() {
			if err := flush(); err != nil {
				return stats, err
			}
			slog.Info("D " + entry.Path + "/")
			continue
		}

		parent := path.Dir(entry.Path)
		if !strings.EqualFold(batch.folder, parent) {
			if err := flush(); err != nil {
				return stats, err
			}
			batch.folder = parent
		}
		batch.files = append(batch.files, entry)
	}

	if err := flush(); err != nil {
		return stats, err
	}
	return stats, nil
}

func (s *Syncer) downloadFolder(ctx context.Context, batch folderBatch, stats *PhaseStats) error {
	total := len(batch.files)
	slog.Info(fmt.Sprintf("%d files found for %s", total, batch.folder))

	downloaded := 0
	for _, entry := range batch.files {
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, _ := remote.Rel(s.cfg.RemoteRoot, entry.Path)
		localPath, err := s.local.LocalPath(s.cfg.LocalRoot, rel)
		if err != nil {
			return newSyncError(ErrFilesystem, "resolve", filepath.Join(s.cfg.LocalRoot, filepath.FromSlash(rel)), err)
		}

		local, found, err := s.local.Stat(localPath)
		if err != nil {
			return newSyncError(ErrFilesystem, "stat", localPath, err)
		}

		stats.Total++
		if DecideDownload(s.cfg.Comparator, entry, local, found) == Skip {
			stats.Skipped++
			slog.Info("up-to-date", "path", rel)
			continue
		}

		if err := s.exec.Download(ctx, entry, rel, localPath); err != nil {
			return err
		}
		downloaded++
		stats.Transferred++
		stats.Bytes += entry.Size
		slog.Info("downloaded", "progress", fmt.Sprintf("%d/%d", downloaded, total), "folder", batch.folder, "path", rel)
	}
	return nil
}
