package dropbox

import (
	"time"
)

const (
	tagFile   = "file"
	tagFolder = "folder"
)

type pathArg struct {
	Path string `json:"path"`
}

type listFolderArg struct {
	Path           string `json:"path"`
	Recursive      bool   `json:"recursive"`
	IncludeDeleted bool   `json:"include_deleted"`
}

type listFolderContinueArg struct {
	Cursor string `json:"cursor"`
}

type listFolderResult struct {
	Entries []metadata `json:"entries"`
	Cursor  string     `json:"cursor"`
	HasMore bool       `json:"has_more"`
}

type uploadArg struct {
	Path           string `json:"path"`
	Mode           string `json:"mode"`
	Autorename     bool   `json:"autorename"`
	Mute           bool   `json:"mute"`
	ClientModified string `json:"client_modified,omitempty"`
}

// metadata is the union of FileMetadata, FolderMetadata and DeletedMetadata
// discriminated by ".tag".
type metadata struct {
	Tag            string    `json:".tag"`
	Name           string    `json:"name"`
	PathLower      string    `json:"path_lower"`
	PathDisplay    string    `json:"path_display"`
	ID             string    `json:"id"`
	Rev            string    `json:"rev"`
	Size           int64     `json:"size"`
	ServerModified time.Time `json:"server_modified"`
	ClientModified time.Time `json:"client_modified"`
}

type accountName struct {
	DisplayName string `json:"display_name"`
}

type fullAccount struct {
	AccountID string      `json:"account_id"`
	Name      accountName `json:"name"`
	Email     string      `json:"email"`
}
