package savesync

// Decision is the action taken for one relative path within a phase.
type Decision uint8

const (
	Skip Decision = iota
	Upload
	Download
)

func (d Decision) String() string {
	switch d {
	case Upload:
		return "upload"
	case Download:
		return "download"
	default:
		return "skip"
	}
}
