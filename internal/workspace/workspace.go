// Package workspace owns the savesync data directory: logs, the transfer
// history database and the lock that keeps a single sync running.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/openmined/savesync/internal/utils"
)

const (
	logsDir     = "logs"
	lockFile    = "savesync.lock"
	historyFile = "history.db"
	logFile     = "savesync.log"
)

var ErrWorkspaceLocked = errors.New("another savesync process is running")

type Workspace struct {
	Root        string
	LogsDir     string
	LogFile     string
	HistoryPath string

	flock *flock.Flock
}

func NewWorkspace(dataDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", dataDir, err)
	}

	logs := filepath.Join(root, logsDir)
	return &Workspace{
		Root:        root,
		LogsDir:     logs,
		LogFile:     filepath.Join(logs, logFile),
		HistoryPath: filepath.Join(root, historyFile),
		flock:       flock.New(filepath.Join(root, lockFile)),
	}, nil
}

// Setup creates the directory layout.
func (w *Workspace) Setup() error {
	for _, dir := range []string{w.Root, w.LogsDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.Root); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.Root, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}
	return nil
}

func (w *Workspace) Unlock() error {
	// only the holder removes the lock file
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}
	return os.Remove(w.flock.Path())
}
