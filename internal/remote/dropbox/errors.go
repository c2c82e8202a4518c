package dropbox

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/imroc/req/v3"
	"github.com/openmined/savesync/internal/remote"
)

// APIError is the error envelope returned by the Dropbox API v2 endpoints.
// Route errors come back with status 409 and an error_summary such as
// "path/not_found/..".
type APIError struct {
	Summary    string `json:"error_summary"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dropbox: %d %s", e.StatusCode, e.Summary)
}

// NotFound reports whether the error is a lookup/path not_found route error.
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusConflict && strings.Contains(e.Summary, "not_found")
}

// Is maps API errors onto the shared remote sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case remote.ErrNotFound:
		return e.NotFound()
	case remote.ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	}
	return false
}

// handleAPIError turns a transport error or an error response into an error
// value, or returns nil on success.
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if resp == nil || !resp.IsErrorState() {
		if requestErr != nil {
			return fmt.Errorf("dropbox %s: %w", operation, requestErr)
		}
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	if e, ok := resp.ErrorResult().(*APIError); ok && e.Summary != "" {
		apiErr.Summary = e.Summary
	} else {
		// 400/401/5xx may answer with plain text instead of JSON
		apiErr.Summary = strings.TrimSpace(resp.String())
	}
	return fmt.Errorf("dropbox %s: %w", operation, apiErr)
}
