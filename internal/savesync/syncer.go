// Package savesync implements the two-phase sync between a local save
// directory and a remote folder. The upload phase pushes local files that are
// missing or newer remotely; the download phase then pulls remote files that
// are missing or newer locally. The newer modification time always wins and
// nothing is ever deleted.
package savesync

import (
	"context"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/openmined/savesync/internal/localfs"
	"github.com/openmined/savesync/internal/remote"
)

// PhaseStats counts what one phase did. Total is the number of files
// considered. In dry-run mode Transferred and Bytes count planned transfers.
type PhaseStats struct {
	Total       int
	Transferred int
	Skipped     int
	Bytes       int64
}

type Result struct {
	RunID    string
	Account  remote.Account
	Upload   PhaseStats
	Download PhaseStats
	DryRun   bool
	Duration time.Duration
}

type Syncer struct {
	cfg     *Config
	storage remote.Storage
	local   *localfs.FS
	lister  *Lister
	exec    *Executor
}

type Option func(*Syncer)

// WithRecorder logs every completed transfer to r.
func WithRecorder(r Recorder) Option {
	return func(s *Syncer) {
		s.exec.recorder = r
	}
}

func New(cfg *Config, storage remote.Storage, local *localfs.FS, opts ...Option) *Syncer {
	exec := NewExecutor(storage, local)
	exec.dryRun = cfg.DryRun

	s := &Syncer{
		cfg:     cfg,
		storage: storage,
		local:   local,
		lister:  NewLister(storage),
		exec:    exec,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs a full pass: the upload phase to completion, then the
// download phase. The first error aborts the pass.
func (s *Syncer) Run(ctx context.Context) (*Result, error) {
	return s.run(ctx, true, true)
}

// RunUpload performs only the upload phase.
func (s *Syncer) RunUpload(ctx context.Context) (*Result, error) {
	return s.run(ctx, true, false)
}

// RunDownload performs only the download phase.
func (s *Syncer) RunDownload(ctx context.Context) (*Result, error) {
	return s.run(ctx, false, true)
}

func (s *Syncer) run(ctx context.Context, upload, download bool) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: uuid.New().String(), DryRun: s.cfg.DryRun}
	s.exec.runID = res.RunID

	slog.Info("sync start",
		"run", res.RunID,
		"local", s.cfg.LocalRoot,
		"remote", s.cfg.RemoteRoot,
		"upload", upload,
		"download", download,
		"dryRun", s.cfg.DryRun,
	)

	account, err := s.storage.CurrentAccount(ctx)
	if err != nil {
		return res, newSyncError(ErrRemoteUnavailable, "account", "", err)
	}
	res.Account = *account
	slog.Info("account", "name", account.DisplayName, "email", account.Email)

	if err := s.local.MkdirAll(s.cfg.LocalRoot); err != nil {
		return res, newSyncError(ErrFilesystem, "mkdir", s.cfg.LocalRoot, err)
	}

	ignore, err := localfs.LoadIgnoreList(s.local.Afero(), s.cfg.LocalRoot, s.cfg.Exclude)
	if err != nil {
		return res, newSyncError(ErrFilesystem, "ignore", s.cfg.LocalRoot, err)
	}

	if upload {
		res.Upload, err = s.uploadPhase(ctx, ignore)
		if err != nil {
			return res, err
		}
		slog.Info("upload phase done",
			"uploaded", res.Upload.Transferred,
			"skipped", res.Upload.Skipped,
			"size", humanize.IBytes(uint64(res.Upload.Bytes)),
		)
	}

	if download {
		res.Download, err = s.downloadPhase(ctx, ignore)
		if err != nil {
			return res, err
		}
		slog.Info("download phase done",
			"downloaded", res.Download.Transferred,
			"skipped", res.Download.Skipped,
			"size", humanize.IBytes(uint64(res.Download.Bytes)),
		)
	}

	res.Duration = time.Since(start)
	slog.Info("sync done", "run", res.RunID, "took", res.Duration.Round(time.Millisecond))
	return res, nil
}
