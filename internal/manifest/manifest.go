// Package manifest persists and loads the per-album state files aggsync
// compares against the filesystem on each run: the source manifest, the
// transcode manifest, and the optional per-album override file. All three
// are TOML. The two manifests are written atomically, and a manifest schema
// mismatch is treated the same as the file being absent rather than as a
// hard error. The override file is only ever read.
package manifest

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/cdzombak/aggsync/internal/apperr"
	"github.com/cdzombak/aggsync/internal/fingerprint"
)

// CurrentSchemaVersion is the schema_version written to new manifests. A
// manifest on disk with a different version is treated as absent: aggsync
// rebuilds it from scratch rather than guessing at a migration.
const CurrentSchemaVersion = 2

// These are exported so other packages (notably internal/libraryview) can
// recognize and skip aggsync's own bookkeeping files while scanning.
const (
	SourceFileName    = ".album.source-state.euphony"
	TranscodeFileName = ".album.transcode-state.euphony"
	OverrideFileName  = ".album.override.euphony"
)

// Fingerprint mirrors fingerprint.FileFingerprint with TOML struct tags; the
// fingerprint package itself stays free of encoding concerns.
type Fingerprint struct {
	SizeBytes    int64   `toml:"size_bytes"`
	MTimeSeconds float64 `toml:"mtime_seconds"`
}

// ToFingerprint converts a stored Fingerprint back to fingerprint.FileFingerprint.
func ToFingerprint(f Fingerprint) fingerprint.FileFingerprint {
	return fingerprint.FileFingerprint{Size: f.SizeBytes, MTimeSeconds: f.MTimeSeconds}
}

// FromFingerprint converts a freshly computed fingerprint.FileFingerprint
// into the form stored in a manifest.
func FromFingerprint(f fingerprint.FileFingerprint) Fingerprint {
	return Fingerprint{SizeBytes: f.Size, MTimeSeconds: f.MTimeSeconds}
}

// FileSet splits a manifest's tracked files by classify.Kind, keyed by
// album-relative, forward-slash path.
type FileSet struct {
	AudioFiles map[string]Fingerprint `toml:"audio_files"`
	DataFiles  map[string]Fingerprint `toml:"data_files"`
}

func newFileSet() FileSet {
	return FileSet{AudioFiles: map[string]Fingerprint{}, DataFiles: map[string]Fingerprint{}}
}

// SourceManifest is the saved state of an album's original files, as of the
// last successful run.
type SourceManifest struct {
	SchemaVersion int     `toml:"schema_version"`
	TrackedFiles  FileSet `toml:"tracked_files"`
}

// TranscodeManifest is the saved state of an album's transcoded output, plus
// the mapping back from each transcoded relative path to the source relative
// path it was produced from.
type TranscodeManifest struct {
	SchemaVersion     int               `toml:"schema_version"`
	TranscodedFiles   FileSet           `toml:"transcoded_files"`
	OriginalFilePaths map[string]string `toml:"original_file_paths"`
}

func NewSourceManifest() SourceManifest {
	return SourceManifest{SchemaVersion: CurrentSchemaVersion, TrackedFiles: newFileSet()}
}

func NewTranscodeManifest() TranscodeManifest {
	return TranscodeManifest{
		SchemaVersion:     CurrentSchemaVersion,
		TranscodedFiles:   newFileSet(),
		OriginalFilePaths: map[string]string{},
	}
}

// SourcePath returns the on-disk path of the source manifest for the album
// directory albumDir.
func SourcePath(albumDir string) string {
	return filepath.Join(albumDir, SourceFileName)
}

// TranscodePath returns the on-disk path of the transcode manifest for the
// transcoded album directory albumDir.
func TranscodePath(albumDir string) string {
	return filepath.Join(albumDir, TranscodeFileName)
}

// OverridePath returns the on-disk path of the override file for the album
// directory albumDir.
func OverridePath(albumDir string) string {
	return filepath.Join(albumDir, OverrideFileName)
}

// LoadSource loads the source manifest for albumDir. It returns (nil, nil)
// if the file does not exist or its schema_version does not match
// CurrentSchemaVersion; in the latter case, if warn is non-nil, it is called
// with an apperr.ManifestSchemaMismatchf describing what was skipped, per
// spec §7 ("treated as manifest absent (warning at most)"). Pass a nil warn
// func where the caller doesn't care (e.g. tests).
func LoadSource(albumDir string, warn func(error)) (*SourceManifest, error) {
	var m SourceManifest
	ok, err := loadTOML(SourcePath(albumDir), &m)
	if err != nil || !ok {
		return nil, err
	}
	if m.SchemaVersion != CurrentSchemaVersion {
		if warn != nil {
			warn(apperr.ManifestSchemaMismatchf("%s has schema_version %d, want %d; treating as absent", SourcePath(albumDir), m.SchemaVersion, CurrentSchemaVersion))
		}
		return nil, nil
	}
	return &m, nil
}

// LoadTranscode loads the transcode manifest for albumDir, with the same
// absent-on-schema-mismatch semantics as LoadSource.
func LoadTranscode(albumDir string, warn func(error)) (*TranscodeManifest, error) {
	var m TranscodeManifest
	ok, err := loadTOML(TranscodePath(albumDir), &m)
	if err != nil || !ok {
		return nil, err
	}
	if m.SchemaVersion != CurrentSchemaVersion {
		if warn != nil {
			warn(apperr.ManifestSchemaMismatchf("%s has schema_version %d, want %d; treating as absent", TranscodePath(albumDir), m.SchemaVersion, CurrentSchemaVersion))
		}
		return nil, nil
	}
	return &m, nil
}

// loadTOML reports ok=false without an error when path does not exist, so
// callers can treat "absent" and "schema mismatch" identically.
func loadTOML(path string, dest interface{}) (ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, apperr.IOErrorf(err, "reading %s", path)
	}
	if _, err := toml.Decode(string(data), dest); err != nil {
		return false, apperr.ManifestParseErrorf(err, "parsing %s", path)
	}
	return true, nil
}

// SaveSource writes m to albumDir's source manifest path, atomically.
func SaveSource(albumDir string, m SourceManifest) error {
	return saveTOML(SourcePath(albumDir), m)
}

// SaveTranscode writes m to albumDir's transcode manifest path, atomically.
func SaveTranscode(albumDir string, m TranscodeManifest) error {
	return saveTOML(TranscodePath(albumDir), m)
}

// saveTOML encodes v to a temp file in dir's own directory and renames it
// over the destination, so a crash mid-write never leaves a half-written
// manifest in its place.
func saveTOML(path string, v interface{}) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-manifest-*")
	if err != nil {
		return apperr.IOErrorf(err, "creating temp file in %s", dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	enc := toml.NewEncoder(tmp)
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return apperr.IOErrorf(err, "encoding %s", path)
	}
	if err := tmp.Close(); err != nil {
		return apperr.IOErrorf(err, "closing temp file for %s", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return apperr.IOErrorf(err, "renaming into place: %s", path)
	}
	return nil
}

// Override is the optional per-album override file. A nil *ScanOverride
// (or a nil Override itself) means "use library defaults".
type Override struct {
	Scan *ScanOverride `toml:"scan"`
}

type ScanOverride struct {
	Depth *int `toml:"depth"`
}

// LoadOverride loads the override file for albumDir, if present. It returns
// (nil, nil) if no override file exists.
func LoadOverride(albumDir string) (*Override, error) {
	path := OverridePath(albumDir)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.IOErrorf(err, "reading %s", path)
	}
	var o Override
	if _, err := toml.Decode(string(data), &o); err != nil {
		return nil, apperr.ConfigErrorf(err, "parsing %s", path)
	}
	return &o, nil
}

// ScanDepth returns the effective scan depth for an album directory: the
// override's value if present, else fallback.
func (o *Override) ScanDepth(fallback int) int {
	if o == nil || o.Scan == nil || o.Scan.Depth == nil {
		return fallback
	}
	return *o.Scan.Depth
}
