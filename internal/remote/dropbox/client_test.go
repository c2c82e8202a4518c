package dropbox

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openmined/savesync/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "sl.test-token"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(testToken, &Options{APIURL: srv.URL + "/2", ContentURL: srv.URL + "/2"})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func decodeBody(t *testing.T, r *http.Request, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(r.Body).Decode(v))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestNew_RequiresToken(t *testing.T) {
	_, err := New("", nil)
	assert.ErrorIs(t, err, remote.ErrUnauthorized)
}

func TestClient_CurrentAccount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/users/get_current_account", r.URL.Path)
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{
			"account_id": "dbid:abc",
			"name":       map[string]string{"display_name": "Retro Player"},
			"email":      "player@example.com",
		})
	})

	acc, err := c.CurrentAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dbid:abc", acc.ID)
	assert.Equal(t, "Retro Player", acc.DisplayName)
	assert.Equal(t, "player@example.com", acc.Email)
}

func TestClient_CurrentAccount_Unauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, "Error in call to API function \"users/get_current_account\": Invalid authorization value")
	})

	_, err := c.CurrentAccount(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrUnauthorized)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestClient_ListFolder_FollowsCursor(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/2/files/list_folder":
			var arg listFolderArg
			decodeBody(t, r, &arg)
			assert.Equal(t, "/saves", arg.Path)
			assert.False(t, arg.Recursive)
			writeJSON(w, http.StatusOK, map[string]any{
				"entries": []map[string]any{
					{".tag": "folder", "name": "snes", "path_display": "/saves/snes"},
					{".tag": "file", "name": "game2.srm", "path_display": "/saves/game2.srm",
						"server_modified": "2024-03-01T00:00:00Z", "rev": "015f", "size": 8192},
				},
				"cursor":   "c1",
				"has_more": true,
			})
		case "/2/files/list_folder/continue":
			var arg listFolderContinueArg
			decodeBody(t, r, &arg)
			assert.Equal(t, "c1", arg.Cursor)
			writeJSON(w, http.StatusOK, map[string]any{
				"entries": []map[string]any{
					{".tag": "deleted", "name": "old.srm", "path_display": "/saves/old.srm"},
					{".tag": "file", "name": "game3.srm", "path_display": "/saves/game3.srm",
						"server_modified": "2024-04-01T00:00:00Z", "rev": "0160", "size": 10},
				},
				"cursor":   "c2",
				"has_more": false,
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	entries, err := c.ListFolder(context.Background(), "/saves")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.True(t, entries[0].IsFolder())
	assert.Equal(t, "/saves/snes", entries[0].Path)
	assert.True(t, entries[0].ServerModified.IsZero())

	assert.Equal(t, "game2.srm", entries[1].Name)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), entries[1].ServerModified)
	assert.Equal(t, int64(8192), entries[1].Size)
	assert.Equal(t, "015f", entries[1].Rev)

	assert.Equal(t, "/saves/game3.srm", entries[2].Path)
}

func TestClient_ListFolder_RootUsesEmptyPath(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var arg listFolderArg
		decodeBody(t, r, &arg)
		assert.Equal(t, "", arg.Path)
		writeJSON(w, http.StatusOK, map[string]any{"entries": []any{}, "has_more": false})
	})

	entries, err := c.ListFolder(context.Background(), "/")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestClient_GetMetadata_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error_summary": "path/not_found/..",
			"error":         map[string]any{".tag": "path", "path": map[string]any{".tag": "not_found"}},
		})
	})

	_, err := c.GetMetadata(context.Background(), "/saves/game1.srm")
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestClient_GetMetadata_OtherConflictIsNotNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error_summary": "path/restricted_content/.",
		})
	})

	_, err := c.GetMetadata(context.Background(), "/saves/game1.srm")
	require.Error(t, err)
	assert.NotErrorIs(t, err, remote.ErrNotFound)
	assert.Contains(t, err.Error(), "restricted_content")
}

func TestClient_GetMetadata_File(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var arg pathArg
		decodeBody(t, r, &arg)
		assert.Equal(t, "/saves/game1.srm", arg.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			".tag": "file", "name": "game1.srm", "path_display": "/saves/game1.srm",
			"server_modified": "2024-01-02T10:00:00Z", "rev": "a1", "size": 3,
		})
	})

	e, err := c.GetMetadata(context.Background(), "saves/game1.srm")
	require.NoError(t, err)
	assert.Equal(t, remote.KindFile, e.Kind)
	assert.Equal(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), e.ServerModified)
}

func TestClient_Upload_OverwriteMode(t *testing.T) {
	clientModified := time.Date(2024, 1, 2, 10, 0, 0, 123, time.FixedZone("CET", 3600))

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/files/upload", r.URL.Path)
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))

		var arg uploadArg
		require.NoError(t, json.Unmarshal([]byte(r.Header.Get(headerAPIArg)), &arg))
		assert.Equal(t, "/saves/game1.srm", arg.Path)
		assert.Equal(t, "overwrite", arg.Mode)
		assert.False(t, arg.Autorename)
		assert.Equal(t, "2024-01-02T09:00:00Z", arg.ClientModified)

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "SRAM", string(body))

		writeJSON(w, http.StatusOK, map[string]any{
			"name": "game1.srm", "path_display": "/saves/game1.srm", "rev": "5f0a",
			"server_modified": "2024-01-02T10:00:05Z", "size": 4,
		})
	})

	e, err := c.Upload(context.Background(), "/saves/game1.srm", []byte("SRAM"), remote.UploadOptions{ClientModified: clientModified})
	require.NoError(t, err)
	assert.Equal(t, "5f0a", e.Rev)
	assert.Equal(t, time.Date(2024, 1, 2, 10, 0, 5, 0, time.UTC), e.ServerModified)
}

func TestClient_Download(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/files/download", r.URL.Path)
		var arg pathArg
		require.NoError(t, json.Unmarshal([]byte(r.Header.Get(headerAPIArg)), &arg))
		assert.Equal(t, "/saves/game2.srm", arg.Path)

		w.Header().Set(headerAPIResult, `{"name":"game2.srm","path_display":"/saves/game2.srm","rev":"77","size":5,"server_modified":"2024-03-01T00:00:00Z"}`)
		w.Header().Set("Content-Type", "application/octet-stream")
		io.WriteString(w, "bytes")
	})

	data, e, err := c.Download(context.Background(), "/saves/game2.srm")
	require.NoError(t, err)
	assert.Equal(t, []byte("bytes"), data)
	assert.Equal(t, remote.KindFile, e.Kind)
	assert.Equal(t, "77", e.Rev)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), e.ServerModified)
}

func assertASCII(t *testing.T, s string) {
	t.Helper()
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x7f {
			t.Fatalf("non-ASCII byte %#x at %d in %q", s[i], i, s)
		}
	}
}

func TestHeaderArg_EscapesNonASCII(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"ascii", "/saves/game1.srm", `{"path":"/saves/game1.srm"}`},
		{"latin", "/saves/Pokémon.srm", `{"path":"/saves/Pok\u00e9mon.srm"}`},
		{"del", "/saves/a\x7f.srm", `{"path":"/saves/a\u007f.srm"}`},
		{"astral", "/saves/🎮.srm", `{"path":"/saves/\ud83c\udfae.srm"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := headerArg(&pathArg{Path: tt.path})
			require.NoError(t, err)
			assertASCII(t, got)
			assert.Equal(t, tt.want, got)

			var back pathArg
			require.NoError(t, json.Unmarshal([]byte(got), &back))
			assert.Equal(t, tt.path, back.Path)
		})
	}
}

func TestClient_UploadDownload_NonASCIIPath(t *testing.T) {
	const savePath = "/saves/Pokémon.srm"

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(headerAPIArg)
		assertASCII(t, raw)

		var arg pathArg
		require.NoError(t, json.Unmarshal([]byte(raw), &arg))
		assert.Equal(t, savePath, arg.Path)

		switch r.URL.Path {
		case "/2/files/upload":
			writeJSON(w, http.StatusOK, map[string]any{
				"name": "Pokémon.srm", "path_display": savePath, "rev": "a1",
				"server_modified": "2024-01-02T10:00:05Z", "size": 4,
			})
		case "/2/files/download":
			w.Header().Set(headerAPIResult, `{"name":"Pok\u00e9mon.srm","path_display":"/saves/Pok\u00e9mon.srm","rev":"a1","size":4,"server_modified":"2024-01-02T10:00:05Z"}`)
			io.WriteString(w, "SRAM")
		default:
			t.Errorf("unexpected route %s", r.URL.Path)
		}
	})

	e, err := c.Upload(context.Background(), savePath, []byte("SRAM"), remote.UploadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "a1", e.Rev)

	data, e, err := c.Download(context.Background(), savePath)
	require.NoError(t, err)
	assert.Equal(t, []byte("SRAM"), data)
	assert.Equal(t, savePath, e.Path)
}

func TestClient_Download_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, _, err := c.Download(context.Background(), "/saves/game2.srm")
	require.Error(t, err)
	assert.NotErrorIs(t, err, remote.ErrNotFound)
}
