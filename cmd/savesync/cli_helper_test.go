package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/openmined/savesync/internal/config"
	"github.com/openmined/savesync/internal/remote"
	"github.com/openmined/savesync/internal/remote/memremote"
	"github.com/stretchr/testify/require"
)

var ansiRE = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRE.ReplaceAllString(s, "")
}

type testEnv struct {
	local  string
	data   string
	config string
	store  *memremote.Store
}

// newTestEnv writes a config file pointing at temp dirs and swaps the remote
// for an in-memory store.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tmp := t.TempDir()
	env := &testEnv{
		local:  filepath.Join(tmp, "roms"),
		data:   filepath.Join(tmp, "data"),
		config: filepath.Join(tmp, "appsettings.json"),
		store:  memremote.New(),
	}
	require.NoError(t, os.MkdirAll(env.local, 0o755))

	settings := map[string]any{
		"AuthToken":         "sl.test-token",
		"LocalSaveRootPath": env.local,
		"DropboxSavePath":   "/RetroPie",
		"SaveFiles":         `\.srm$`,
		"DataDir":           env.data,
	}
	data, err := json.Marshal(settings)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(env.config, data, 0o644))

	prev := newStorage
	newStorage = func(ctx context.Context, cfg *config.Config) (remote.Storage, error) {
		return env.store, nil
	}
	t.Cleanup(func() { newStorage = prev })
	return env
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--config", e.config))
	err := cmd.ExecuteContext(context.Background())
	return stripANSI(out.String()), err
}
