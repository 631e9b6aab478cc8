// Package libraryview enumerates a music library's fixed three-level
// structure — library root, artist directories, album directories — and
// bounds the file scan within each album according to its effective
// scan.depth.
package libraryview

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cdzombak/aggsync/internal/manifest"
)

// Library is a configured root directory plus the top-level directory names
// to skip when enumerating artists (e.g. "_other").
type Library struct {
	Name             string
	Path             string
	IgnoredTopLevel  map[string]struct{}
	DefaultScanDepth int
}

// NewLibrary builds a Library, lower-case-insensitive on none of its inputs:
// ignored directory names are compared by exact base name, matching what a
// user would type in configuration.
func NewLibrary(name, path string, ignoredTopLevel []string, defaultScanDepth int) Library {
	ignored := make(map[string]struct{}, len(ignoredTopLevel))
	for _, d := range ignoredTopLevel {
		ignored[d] = struct{}{}
	}
	return Library{Name: name, Path: path, IgnoredTopLevel: ignored, DefaultScanDepth: defaultScanDepth}
}

// Artist is a directory directly under a library root that is not in the
// library's ignore list.
type Artist struct {
	Name string
	Path string
}

// Album is a directory directly under an artist directory: the unit of
// reconciliation.
type Album struct {
	Artist Artist
	Name   string
	Path   string
}

// File is one file found while scanning an album, with its path relative to
// the album directory using forward slashes regardless of OS.
type File struct {
	RelPath string
	AbsPath string
}

// Artists returns the library's artist directories in sorted order.
func (l Library) Artists() ([]Artist, error) {
	entries, err := os.ReadDir(l.Path)
	if err != nil {
		return nil, fmt.Errorf("reading library root %q: %w", l.Path, err)
	}

	var artists []Artist
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, skip := l.IgnoredTopLevel[e.Name()]; skip {
			continue
		}
		artists = append(artists, Artist{Name: e.Name(), Path: filepath.Join(l.Path, e.Name())})
	}
	sort.Slice(artists, func(i, j int) bool { return artists[i].Name < artists[j].Name })
	return artists, nil
}

// Albums returns an artist's album directories in sorted order.
func (a Artist) Albums() ([]Album, error) {
	entries, err := os.ReadDir(a.Path)
	if err != nil {
		return nil, fmt.Errorf("reading artist directory %q: %w", a.Path, err)
	}

	var albums []Album
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		albums = append(albums, Album{Artist: a, Name: e.Name(), Path: filepath.Join(a.Path, e.Name())})
	}
	sort.Slice(albums, func(i, j int) bool { return albums[i].Name < albums[j].Name })
	return albums, nil
}

// EffectiveScanDepth returns this album's scan.depth: the per-album override
// if one is present, else the library's configured default.
func (alb Album) EffectiveScanDepth(libraryDefault int) (int, error) {
	override, err := manifest.LoadOverride(alb.Path)
	if err != nil {
		return 0, fmt.Errorf("loading override for %q: %w", alb.Path, err)
	}
	return override.ScanDepth(libraryDefault), nil
}

// Scan walks the album directory up to depth levels deep (0 = album
// directory only) and returns every regular file or symlink found, sorted by relative
// path. Manifest and override files themselves are excluded, since they are
// aggsync's own bookkeeping, not tracked content.
func (alb Album) Scan(depth int) ([]File, error) {
	var files []File
	if err := scanDir(alb.Path, "", depth, &files); err != nil {
		return nil, fmt.Errorf("scanning album %q: %w", alb.Path, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

func scanDir(absDir, relPrefix string, depthRemaining int, out *[]File) error {
	entries, err := os.ReadDir(absDir)
	if err != nil {
		return fmt.Errorf("reading %q: %w", absDir, err)
	}

	for _, e := range entries {
		if isReservedFileName(e.Name()) {
			continue
		}
		relPath := e.Name()
		if relPrefix != "" {
			relPath = relPrefix + "/" + e.Name()
		}
		absPath := filepath.Join(absDir, e.Name())

		if e.IsDir() {
			if depthRemaining <= 0 {
				continue
			}
			if err := scanDir(absPath, relPath, depthRemaining-1, out); err != nil {
				return err
			}
			continue
		}

		info, err := e.Info()
		if err != nil {
			return fmt.Errorf("stat %q: %w", absPath, err)
		}
		if !info.Mode().IsRegular() && info.Mode()&os.ModeSymlink == 0 {
			continue
		}
		*out = append(*out, File{RelPath: relPath, AbsPath: absPath})
	}
	return nil
}

func isReservedFileName(name string) bool {
	switch name {
	case manifest.SourceFileName, manifest.TranscodeFileName, manifest.OverrideFileName:
		return true
	default:
		return false
	}
}
