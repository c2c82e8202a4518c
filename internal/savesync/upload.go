package savesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openmined/savesync/internal/localfs"
	"github.com/openmined/savesync/internal/remote"
)

// DecideUpload picks the action for a local file given its remote
// counterpart, if any.
func DecideUpload(cmp Comparator, local localfs.File, counterpart *remote.Entry, found bool) Decision {
	if !found || counterpart == nil {
		return Upload
	}
	if cmp.IsLaterThan(local.ModTime, counterpart.ServerModified) {
		return Upload
	}
	return Skip
}

func (s *Syncer) uploadPhase(ctx context.Context, ignore *localfs.IgnoreList) (PhaseStats, error) {
	var stats PhaseStats

	files, err := s.local.Enumerate(s.cfg.LocalRoot, s.cfg.Pattern, ignore)
	if err != nil {
		return stats, newSyncError(ErrFilesystem, "enumerate", s.cfg.LocalRoot, err)
	}
	stats.Total = len(files)
	slog.Info("local files found", "count", len(files), "root", s.cfg.LocalRoot)

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		remotePath := remote.Join(s.cfg.RemoteRoot, file.RelPath)
		counterpart, found, err := s.lookup(ctx, remotePath)
		if err != nil {
			return stats, err
		}

		if DecideUpload(s.cfg.Comparator, file, counterpart, found) == Skip {
			stats.Skipped++
			slog.Info("upload not needed", "path", file.RelPath)
			continue
		}

		if _, err := s.exec.Upload(ctx, file, remotePath); err != nil {
			return stats, err
		}
		stats.Transferred++
		stats.Bytes += file.Size
		slog.Info("uploaded", "progress", fmt.Sprintf("%d/%d", stats.Transferred, stats.Total), "path", file.RelPath)
	}

	return stats, nil
}

// lookup fetches remote metadata. A missing path is reported through found,
// never as an error.
func (s *Syncer) lookup(ctx context.Context, p string) (entry *remote.Entry, found bool, err error) {
	entry, err = s.storage.GetMetadata(ctx, p)
	if errors.Is(err, remote.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, newSyncError(ErrRemoteLookup, "metadata", p, err)
	}
	return entry, true, nil
}
