package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/savesync/internal/remote"
	"github.com/openmined/savesync/internal/savesync"
	"github.com/openmined/savesync/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_RunsFullSync(t *testing.T) {
	env := newTestEnv(t)
	local := filepath.Join(env.local, "snes", "zelda.srm")
	require.NoError(t, os.MkdirAll(filepath.Dir(local), 0o755))
	require.NoError(t, os.WriteFile(local, []byte("zelda"), 0o644))
	env.store.Put("/RetroPie/gba/pokemon.srm", []byte("pokemon"), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	out, err := env.run(t)
	require.NoError(t, err)

	assert.Contains(t, out, "sync complete")
	assert.Contains(t, out, "1 uploaded")
	assert.Contains(t, out, "1 downloaded")
	assert.True(t, env.store.Closed())

	content, ok := env.store.Content("/RetroPie/snes/zelda.srm")
	require.True(t, ok)
	assert.Equal(t, "zelda", string(content))

	data, err := os.ReadFile(filepath.Join(env.local, "gba", "pokemon.srm"))
	require.NoError(t, err)
	assert.Equal(t, "pokemon", string(data))

	assert.FileExists(t, filepath.Join(env.data, "logs", "savesync.log"))
	assert.FileExists(t, filepath.Join(env.data, "history.db"))

	out, err = env.run(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "snes/zelda.srm")
	assert.Contains(t, out, "gba/pokemon.srm")
}

func TestUploadCommand_DryRun(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.local, "mario.srm"), []byte("m"), 0o644))

	out, err := env.run(t, "upload", "--dry-run")
	require.NoError(t, err)

	assert.Contains(t, out, "dry run complete")
	assert.Contains(t, out, "1 uploaded")
	assert.NotContains(t, out, "downloaded")
	assert.Equal(t, 0, env.store.Calls["upload"])
	assert.Equal(t, 0, env.store.Calls["list"])
}

func TestDownloadCommand_OnlyDownloads(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.local, "mario.srm"), []byte("m"), 0o644))

	_, err := env.run(t, "download")
	require.NoError(t, err)
	assert.Equal(t, 0, env.store.Calls["metadata"])
	assert.Equal(t, 0, env.store.Calls["upload"])
}

func TestSyncCommand_FailureClosesRemote(t *testing.T) {
	env := newTestEnv(t)
	env.store.FailOn("account", "", remote.ErrUnauthorized)

	_, err := env.run(t, "sync")
	require.Error(t, err)
	assert.ErrorIs(t, err, savesync.ErrRemoteUnavailable)
	assert.ErrorIs(t, err, remote.ErrUnauthorized)
	assert.True(t, env.store.Closed())
}

func TestSyncCommand_RefusesConcurrentRun(t *testing.T) {
	env := newTestEnv(t)

	ws, err := workspace.NewWorkspace(env.data)
	require.NoError(t, err)
	require.NoError(t, ws.Lock())
	t.Cleanup(func() { _ = ws.Unlock() })

	_, err = env.run(t, "sync")
	assert.ErrorIs(t, err, workspace.ErrWorkspaceLocked)
}

func TestHistoryCommand_Empty(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "history", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "no transfers yet")
}

func TestWhoamiCommand(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Test User - test@example.com")
	assert.Contains(t, out, "sl.t*****")
	assert.NotContains(t, out, "test-token")
}

func TestCauses(t *testing.T) {
	err := &savesync.SyncError{Kind: savesync.ErrTransfer, Op: "upload", Path: "/a", Err: remote.ErrUnauthorized}
	got := causes(err)
	assert.Contains(t, got, savesync.ErrTransfer)
	assert.Contains(t, got, remote.ErrUnauthorized)
}
