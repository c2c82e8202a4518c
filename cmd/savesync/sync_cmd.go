package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/savesync/internal/history"
	"github.com/openmined/savesync/internal/localfs"
	"github.com/openmined/savesync/internal/savesync"
	"github.com/openmined/savesync/internal/workspace"
	"github.com/spf13/cobra"
)

type phase int

const (
	phaseBoth phase = iota
	phaseUpload
	phaseDownload
)

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Upload newer local saves, then download newer remote saves",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSync(cmd, phaseBoth)
		},
	}
}

func newUploadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upload",
		Short: "Only upload local saves that are missing or newer remotely",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSync(cmd, phaseUpload)
		},
	}
}

func newDownloadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Only download remote saves that are missing or newer locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSync(cmd, phaseDownload)
		},
	}
}

func (a *app) runSync(cmd *cobra.Command, p phase) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ws, err := workspace.NewWorkspace(cfg.DataDir)
	if err != nil {
		return err
	}
	if err := ws.Setup(); err != nil {
		return err
	}

	logs, err := setupLogging(cmd.OutOrStdout(), ws.LogFile, cfg.Debug)
	if err != nil {
		return err
	}
	defer logs.Close()

	slog.Debug("config", "config", cfg)

	if err := ws.Lock(); err != nil {
		return err
	}
	defer ws.Unlock()

	ctx := cmd.Context()
	storage, err := newStorage(ctx, cfg)
	if err != nil {
		logError("remote open failed", err)
		return err
	}
	defer storage.Close()

	var opts []savesync.Option
	if hist, err := history.Open(ws.HistoryPath); err != nil {
		slog.Warn("transfer history disabled", "error", err)
	} else {
		defer hist.Close()
		opts = append(opts, savesync.WithRecorder(hist))
	}

	syncer := savesync.New(cfg.SyncConfig(), storage, localfs.NewOS(), opts...)

	var res *savesync.Result
	switch p {
	case phaseUpload:
		res, err = syncer.RunUpload(ctx)
	case phaseDownload:
		res, err = syncer.RunDownload(ctx)
	default:
		res, err = syncer.Run(ctx)
	}
	if err != nil {
		logError("sync failed", err)
		return err
	}

	printResult(cmd.OutOrStdout(), res, p)
	return nil
}

func printResult(w io.Writer, res *savesync.Result, p phase) {
	title := "sync complete"
	if res.DryRun {
		title = "dry run complete, nothing was transferred"
	}
	fmt.Fprintln(w, green.Render(title))

	if res.Account.DisplayName != "" {
		fmt.Fprintf(w, "%s %s %s\n", gray.Render("account "), res.Account.DisplayName, gray.Render(res.Account.Email))
	}
	if p != phaseDownload {
		fmt.Fprintf(w, "%s %d uploaded, %d skipped, %s\n", cyan.Render("upload  "),
			res.Upload.Transferred, res.Upload.Skipped, humanize.IBytes(uint64(res.Upload.Bytes)))
	}
	if p != phaseUpload {
		fmt.Fprintf(w, "%s %d downloaded, %d skipped, %s\n", cyan.Render("download"),
			res.Download.Transferred, res.Download.Skipped, humanize.IBytes(uint64(res.Download.Bytes)))
	}
	fmt.Fprintf(w, "%s %s\n", gray.Render("took    "), res.Duration.Round(time.Millisecond))
}
