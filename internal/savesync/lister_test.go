package savesync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openmined/savesync/internal/remote"
	"github.com/openmined/savesync/internal/remote/memremote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, l *Lister, root string) ([]string, error) {
	t.Helper()
	var paths []string
	for entry, err := range l.Walk(context.Background(), root) {
		if err != nil {
			return paths, err
		}
		p := entry.Path
		if entry.IsFolder() {
			p += "/"
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func seedTree(store *memremote.Store) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.Put("/saves/top.srm", []byte("t"), ts)
	store.Put("/saves/a/x.srm", []byte("x"), ts)
	store.Put("/saves/a/b/y.srm", []byte("y"), ts)
	store.Put("/saves/c/z.srm", []byte("z"), ts)
}

func TestLister_DepthFirstOrder(t *testing.T) {
	store := memremote.New()
	seedTree(store)

	paths, err := collect(t, NewLister(store), "/saves")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/saves/a/",
		"/saves/a/b/",
		"/saves/a/b/y.srm",
		"/saves/a/x.srm",
		"/saves/c/",
		"/saves/c/z.srm",
		"/saves/top.srm",
	}, paths)
	assert.Equal(t, 4, store.Calls["list"], "one listing per folder")
}

func TestLister_MissingRootIsEmpty(t *testing.T) {
	store := memremote.New()

	paths, err := collect(t, NewLister(store), "/nothing/here")
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestLister_ListFailure(t *testing.T) {
	store := memremote.New()
	seedTree(store)
	cause := errors.New("503 service unavailable")
	store.FailOn("list", "/saves/c", cause)

	paths, err := collect(t, NewLister(store), "/saves")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, []string{"/saves/a/", "/saves/a/b/", "/saves/a/b/y.srm", "/saves/a/x.srm", "/saves/c/"}, paths)

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, "list", syncErr.Op)
	assert.Equal(t, "/saves/c", syncErr.Path)
}

func TestLister_SubfolderNotFoundIsFailure(t *testing.T) {
	store := memremote.New()
	seedTree(store)
	store.FailOn("list", "/saves/a", remote.ErrNotFound)

	_, err := collect(t, NewLister(store), "/saves")
	assert.ErrorIs(t, err, ErrRemoteUnavailable)
}

func TestLister_StopsWhenConsumerBreaks(t *testing.T) {
	store := memremote.New()
	seedTree(store)

	count := 0
	for range NewLister(store).Walk(context.Background(), "/saves") {
		count++
		break
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, store.Calls["list"])
}

func TestLister_CancelledContext(t *testing.T) {
	store := memremote.New()
	seedTree(store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var gotErr error
	for _, err := range NewLister(store).Walk(ctx, "/saves") {
		gotErr = err
	}
	assert.ErrorIs(t, gotErr, context.Canceled)
	assert.Equal(t, 0, store.Calls["list"])
}
