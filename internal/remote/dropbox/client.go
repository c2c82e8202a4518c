// Package dropbox implements remote.Storage on top of the Dropbox HTTP API v2.
package dropbox

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/savesync/internal/remote"
	"github.com/openmined/savesync/internal/version"
)

const (
	DefaultAPIURL     = "https://api.dropboxapi.com/2"
	DefaultContentURL = "https://content.dropboxapi.com/2"

	headerAPIArg    = "Dropbox-API-Arg"
	headerAPIResult = "Dropbox-API-Result"

	routeCurrentAccount     = "/users/get_current_account"
	routeListFolder         = "/files/list_folder"
	routeListFolderContinue = "/files/list_folder/continue"
	routeGetMetadata        = "/files/get_metadata"
	routeUpload             = "/files/upload"
	routeDownload           = "/files/download"

	writeModeOverwrite = "overwrite"
)

// Options configures a Client. Zero values fall back to the public endpoints.
type Options struct {
	APIURL     string
	ContentURL string
	Debug      bool
}

// Client talks to Dropbox with a bearer token. It never retries: a failed
// call is reported to the caller as-is.
type Client struct {
	client     *req.Client
	apiURL     string
	contentURL string
}

var _ remote.Storage = (*Client)(nil)

func New(token string, opts *Options) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("dropbox: %w: empty auth token", remote.ErrUnauthorized)
	}
	if opts == nil {
		opts = &Options{}
	}

	apiURL := opts.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	contentURL := opts.ContentURL
	if contentURL == "" {
		contentURL = DefaultContentURL
	}

	client := req.C().
		SetUserAgent(version.UserAgent()).
		SetCommonBearerAuthToken(token).
		SetCommonRetryCount(0).
		SetCommonErrorResult(&APIError{}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)
	if opts.Debug {
		client.EnableDumpAllWithoutBody()
	}

	return &Client{
		client:     client,
		apiURL:     apiURL,
		contentURL: contentURL,
	}, nil
}

// apiPath converts a canonical remote path into the Dropbox form, where the
// root folder is the empty string.
func apiPath(p string) string {
	p = remote.Clean(p)
	if p == "/" {
		return ""
	}
	return p
}

func (c *Client) CurrentAccount(ctx context.Context) (*remote.Account, error) {
	var account fullAccount
	resp, err := c.client.R().
		SetContext(ctx).
		SetSuccessResult(&account).
		Post(c.apiURL + routeCurrentAccount)
	if err := handleAPIError(resp, err, "get current account"); err != nil {
		return nil, err
	}

	return &remote.Account{
		ID:          account.AccountID,
		DisplayName: account.Name.DisplayName,
		Email:       account.Email,
	}, nil
}

// ListFolder lists one level of folder, following has_more cursors until the
// listing is complete. Deleted entries are never requested.
func (c *Client) ListFolder(ctx context.Context, folder string) ([]remote.Entry, error) {
	var result listFolderResult
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&listFolderArg{Path: apiPath(folder)}).
		SetSuccessResult(&result).
		Post(c.apiURL + routeListFolder)
	if err := handleAPIError(resp, err, "list folder "+folder); err != nil {
		return nil, err
	}

	entries := make([]remote.Entry, 0, len(result.Entries))
	entries = appendEntries(entries, folder, result.Entries)

	for result.HasMore {
		cursor := result.Cursor
		result = listFolderResult{}
		resp, err := c.client.R().
			SetContext(ctx).
			SetBody(&listFolderContinueArg{Cursor: cursor}).
			SetSuccessResult(&result).
			Post(c.apiURL + routeListFolderContinue)
		if err := handleAPIError(resp, err, "list folder continue "+folder); err != nil {
			return nil, err
		}
		entries = appendEntries(entries, folder, result.Entries)
	}

	slog.Debug("dropbox list folder", "path", folder, "entries", len(entries))
	return entries, nil
}

func appendEntries(dst []remote.Entry, folder string, src []metadata) []remote.Entry {
	for i := range src {
		if e, ok := toEntry(&src[i], folder); ok {
			dst = append(dst, *e)
		}
	}
	return dst
}

func toEntry(m *metadata, folder string) (*remote.Entry, bool) {
	var kind remote.EntryKind
	switch m.Tag {
	case tagFile:
		kind = remote.KindFile
	case tagFolder:
		kind = remote.KindFolder
	default:
		return nil, false
	}

	p := m.PathDisplay
	if p == "" {
		p = remote.Join(folder, m.Name)
	}

	e := &remote.Entry{
		Name: m.Name,
		Path: remote.Clean(p),
		Kind: kind,
		Size: m.Size,
		Rev:  m.Rev,
	}
	if kind == remote.KindFile {
		e.ServerModified = m.ServerModified.UTC()
	}
	return e, true
}

func (c *Client) GetMetadata(ctx context.Context, p string) (*remote.Entry, error) {
	var m metadata
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&pathArg{Path: apiPath(p)}).
		SetSuccessResult(&m).
		Post(c.apiURL + routeGetMetadata)
	if err := handleAPIError(resp, err, "get metadata "+p); err != nil {
		return nil, err
	}

	e, ok := toEntry(&m, path.Dir(remote.Clean(p)))
	if !ok {
		// deleted entries only show up when include_deleted is set
		return nil, remote.ErrNotFound
	}
	return e, nil
}

// Upload sends data in a single request with overwrite semantics. Files above
// the single-request limit (150 MiB) are rejected by Dropbox; save files are
// far below it.
func (c *Client) Upload(ctx context.Context, p string, data []byte, opts remote.UploadOptions) (*remote.Entry, error) {
	arg := uploadArg{
		Path: apiPath(p),
		Mode: writeModeOverwrite,
		Mute: true,
	}
	if !opts.ClientModified.IsZero() {
		arg.ClientModified = opts.ClientModified.UTC().Truncate(time.Second).Format(time.RFC3339)
	}
	argHeader, err := headerArg(&arg)
	if err != nil {
		return nil, fmt.Errorf("dropbox upload %s: encode arg: %w", p, err)
	}

	var m metadata
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader(headerAPIArg, argHeader).
		SetContentType("application/octet-stream").
		SetBodyBytes(data).
		SetSuccessResult(&m).
		Post(c.contentURL + routeUpload)
	if err := handleAPIError(resp, err, "upload "+p); err != nil {
		return nil, err
	}

	// the upload route answers with a bare FileMetadata, no ".tag"
	m.Tag = tagFile
	e, _ := toEntry(&m, path.Dir(remote.Clean(p)))
	return e, nil
}

// Download fetches the full content of p. File metadata arrives in the
// Dropbox-API-Result response header.
func (c *Client) Download(ctx context.Context, p string) ([]byte, *remote.Entry, error) {
	argHeader, err := headerArg(&pathArg{Path: apiPath(p)})
	if err != nil {
		return nil, nil, fmt.Errorf("dropbox download %s: encode arg: %w", p, err)
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader(headerAPIArg, argHeader).
		Post(c.contentURL + routeDownload)
	if err := handleAPIError(resp, err, "download "+p); err != nil {
		return nil, nil, err
	}

	data, err := resp.ToBytes()
	if err != nil {
		return nil, nil, fmt.Errorf("dropbox download %s: read body: %w", p, err)
	}

	var m metadata
	if raw := resp.Header.Get(headerAPIResult); raw != "" {
		if err := jsonUnmarshal([]byte(raw), &m); err != nil {
			return nil, nil, fmt.Errorf("dropbox download %s: decode result: %w", p, err)
		}
	}
	m.Tag = tagFile
	if m.Name == "" {
		m.Name = path.Base(remote.Clean(p))
	}
	e, _ := toEntry(&m, path.Dir(remote.Clean(p)))
	return data, e, nil
}

func (c *Client) Close() error {
	c.client.GetClient().CloseIdleConnections()
	return nil
}
