// Package fingerprint computes and compares the cheap per-file metadata
// (size and modification time) aggsync uses as a stand-in for content
// identity, since hashing every file in a large library on every run would
// be far too slow.
package fingerprint

import (
	"fmt"
	"os"
	"time"
)

// DefaultEpsilon is the default modification-time tolerance used by Matches,
// chosen to absorb sub-second filesystem timestamp rounding.
const DefaultEpsilon = 10 * time.Millisecond

// FileFingerprint is the tracked metadata for one file: its size in bytes
// and its modification time, expressed as seconds since the Unix epoch with
// fractional precision so Matches can apply a small tolerance.
type FileFingerprint struct {
	Size         int64
	MTimeSeconds float64
}

// Fingerprint stats the file at path and returns its FileFingerprint.
func Fingerprint(path string) (FileFingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileFingerprint{}, fmt.Errorf("fingerprint %q: %w", path, err)
	}
	return FileFingerprint{
		Size:         info.Size(),
		MTimeSeconds: float64(info.ModTime().UnixNano()) / 1e9,
	}, nil
}

// Matches reports whether a and b refer to what is very likely the same file
// content: equal byte size, and modification times within epsilon of each
// other. It never looks at file contents.
func Matches(a, b FileFingerprint, epsilon time.Duration) bool {
	if a.Size != b.Size {
		return false
	}
	diff := a.MTimeSeconds - b.MTimeSeconds
	if diff < 0 {
		diff = -diff
	}
	return diff < epsilon.Seconds()
}
