package savesync

import "time"

// IsLaterThan reports whether a is strictly after b once both are in UTC.
func IsLaterThan(a, b time.Time) bool {
	return a.UTC().After(b.UTC())
}

// Comparator compares modification times at a shared precision. Filesystems
// like FAT keep 2s resolution and most services report whole seconds, so a
// non-zero Precision stops sub-unit noise from forcing a transfer.
type Comparator struct {
	Precision time.Duration
}

func (c Comparator) IsLaterThan(a, b time.Time) bool {
	if c.Precision > 0 {
		a = a.Truncate(c.Precision)
		b = b.Truncate(c.Precision)
	}
	return IsLaterThan(a, b)
}
