package savesync

import "regexp"

// Config is everything a sync pass needs to know about the two trees. It is
// built once and shared read-only by every component.
type Config struct {
	// LocalRoot is an absolute native path.
	LocalRoot string
	// RemoteRoot is a canonical remote path, see remote.Clean.
	RemoteRoot string
	// Pattern selects local files by their slash separated relative path.
	// Nil selects every file.
	Pattern *regexp.Regexp
	// Exclude holds doublestar globs applied to both trees on top of the
	// ignore file found in LocalRoot.
	Exclude    []string
	Comparator Comparator
	DryRun     bool
}
