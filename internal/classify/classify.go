// Package classify sorts files in an album directory into audio, data, or
// unknown, by extension only — aggsync never inspects file contents or tags.
package classify

import (
	"path/filepath"
	"strings"
)

// Kind is the classification of a single file.
type Kind int

const (
	Unknown Kind = iota
	Audio
	Data
)

func (k Kind) String() string {
	switch k {
	case Audio:
		return "audio"
	case Data:
		return "data"
	default:
		return "unknown"
	}
}

// ExtensionSets is the per-library configuration classify consults: which
// lowercase extensions (without the leading dot) count as audio, which count
// as data, and which single extension transcoded audio output files carry.
type ExtensionSets struct {
	AudioExts   map[string]struct{}
	DataExts    map[string]struct{}
	AudioOutput string
}

// NewExtensionSets builds an ExtensionSets from extension lists, lower-casing
// every entry so lookups are case-insensitive.
func NewExtensionSets(audioExts, dataExts []string, audioOutputExt string) ExtensionSets {
	sets := ExtensionSets{
		AudioExts:   make(map[string]struct{}, len(audioExts)),
		DataExts:    make(map[string]struct{}, len(dataExts)),
		AudioOutput: strings.ToLower(strings.TrimPrefix(audioOutputExt, ".")),
	}
	for _, ext := range audioExts {
		sets.AudioExts[normalizeExt(ext)] = struct{}{}
	}
	for _, ext := range dataExts {
		sets.DataExts[normalizeExt(ext)] = struct{}{}
	}
	return sets
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Extension returns the lowercase extension of path, without the leading
// dot. A path with no extension (or one ending in a bare dot) yields "".
func Extension(path string) string {
	ext := filepath.Ext(path)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Classify returns the Kind of path according to sets, tolerant of files with
// no extension (classified Unknown).
func (sets ExtensionSets) Classify(path string) Kind {
	ext := Extension(path)
	if ext == "" {
		return Unknown
	}
	if _, ok := sets.AudioExts[ext]; ok {
		return Audio
	}
	if _, ok := sets.DataExts[ext]; ok {
		return Data
	}
	return Unknown
}
