// Package remote defines the cloud-storage capability savesync syncs against
// and the path conventions shared by its backends.
//
// Paths handed to a Storage are absolute, slash separated and never end in a
// slash ("/saves/snes/mario.srm"). The storage root is "/".
package remote

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by GetMetadata and Download when nothing
	// exists at the requested path.
	ErrNotFound = errors.New("remote: not found")

	// ErrUnauthorized is returned when the credential is rejected.
	ErrUnauthorized = errors.New("remote: unauthorized")
)

type EntryKind uint8

const (
	KindFile EntryKind = iota
	KindFolder
)

func (k EntryKind) String() string {
	if k == KindFolder {
		return "folder"
	}
	return "file"
}

// Entry is a file or folder as reported by the storage service.
type Entry struct {
	Name string
	Path string
	Kind EntryKind
	Size int64
	Rev  string

	// ServerModified is the modification time assigned by the service, in UTC.
	// It is zero for folders.
	ServerModified time.Time
}

func (e *Entry) IsFolder() bool { return e.Kind == KindFolder }

// Account identifies the owner of the credential.
type Account struct {
	ID          string
	DisplayName string
	Email       string
}

// UploadOptions carries optional hints for Upload.
type UploadOptions struct {
	// ClientModified is recorded by services that keep the client's own
	// timestamp next to the server one.
	ClientModified time.Time
}

// Storage is the capability surface savesync needs from a remote service.
// Upload always overwrites whatever already exists at the path.
type Storage interface {
	CurrentAccount(ctx context.Context) (*Account, error)
	ListFolder(ctx context.Context, folder string) ([]Entry, error)
	GetMetadata(ctx context.Context, path string) (*Entry, error)
	Upload(ctx context.Context, path string, data []byte, opts UploadOptions) (*Entry, error)
	Download(ctx context.Context, path string) ([]byte, *Entry, error)
	io.Closer
}

// Clean normalizes p to the canonical form described in the package doc.
func Clean(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return path.Clean("/" + p)
}

// Join appends the slash separated relative path rel to root.
func Join(root, rel string) string {
	return Clean(path.Join(Clean(root), rel))
}

// Rel returns p relative to root, or false when p is not below root.
func Rel(root, p string) (string, bool) {
	root, p = Clean(root), Clean(p)
	if root == "/" {
		return strings.TrimPrefix(p, "/"), p != "/"
	}
	if !strings.HasPrefix(strings.ToLower(p), strings.ToLower(root)+"/") {
		return "", false
	}
	return p[len(root)+1:], true
}
