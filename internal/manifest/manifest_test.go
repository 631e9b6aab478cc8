package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSourceManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()

	m := NewSourceManifest()
	m.TrackedFiles.AudioFiles["01 track.flac"] = Fingerprint{SizeBytes: 12345, MTimeSeconds: 1700000000.5}
	m.TrackedFiles.DataFiles["cover.jpg"] = Fingerprint{SizeBytes: 999, MTimeSeconds: 1700000001.0}

	if err := SaveSource(dir, m); err != nil {
		t.Fatalf("SaveSource: %v", err)
	}

	loaded, err := LoadSource(dir, nil)
	if err != nil {
		t.Fatalf("LoadSource: %v", err)
	}
	if loaded == nil {
		t.Fatal("LoadSource returned nil after save")
	}
	if loaded.SchemaVersion != CurrentSchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", loaded.SchemaVersion, CurrentSchemaVersion)
	}
	if got := loaded.TrackedFiles.AudioFiles["01 track.flac"]; got != m.TrackedFiles.AudioFiles["01 track.flac"] {
		t.Errorf("audio fingerprint round-trip mismatch: got %+v", got)
	}
	if got := loaded.TrackedFiles.DataFiles["cover.jpg"]; got != m.TrackedFiles.DataFiles["cover.jpg"] {
		t.Errorf("data fingerprint round-trip mismatch: got %+v", got)
	}
}

func TestTranscodeManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()

	m := NewTranscodeManifest()
	m.TranscodedFiles.AudioFiles["01 track.opus"] = Fingerprint{SizeBytes: 500, MTimeSeconds: 1700000002.0}
	m.OriginalFilePaths["01 track.opus"] = "01 track.flac"

	if err := SaveTranscode(dir, m); err != nil {
		t.Fatalf("SaveTranscode: %v", err)
	}

	loaded, err := LoadTranscode(dir, nil)
	if err != nil {
		t.Fatalf("LoadTranscode: %v", err)
	}
	if loaded == nil {
		t.Fatal("LoadTranscode returned nil after save")
	}
	if loaded.OriginalFilePaths["01 track.opus"] != "01 track.flac" {
		t.Errorf("original_file_paths round-trip mismatch: %+v", loaded.OriginalFilePaths)
	}
}

func TestLoadSourceAbsent(t *testing.T) {
	dir := t.TempDir()
	m, err := LoadSource(dir, nil)
	if err != nil {
		t.Fatalf("LoadSource on empty dir: %v", err)
	}
	if m != nil {
		t.Fatalf("expected nil manifest, got %+v", m)
	}
}

func TestLoadSourceSchemaMismatchTreatedAsAbsent(t *testing.T) {
	dir := t.TempDir()
	m := NewSourceManifest()
	m.SchemaVersion = CurrentSchemaVersion + 1
	if err := SaveSource(dir, m); err != nil {
		t.Fatalf("SaveSource: %v", err)
	}

	var warned error
	loaded, err := LoadSource(dir, func(e error) { warned = e })
	if err != nil {
		t.Fatalf("LoadSource: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected nil for mismatched schema version, got %+v", loaded)
	}
	if warned == nil {
		t.Fatal("expected warn callback to fire for schema mismatch")
	}
}

func TestLoadSourceMalformedFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(SourcePath(dir), []byte("this is not { valid toml"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadSource(dir, nil)
	if err == nil {
		t.Fatal("expected parse error for malformed manifest")
	}
}

func TestLoadOverrideAbsent(t *testing.T) {
	dir := t.TempDir()
	o, err := LoadOverride(dir)
	if err != nil {
		t.Fatalf("LoadOverride: %v", err)
	}
	if o != nil {
		t.Fatalf("expected nil override, got %+v", o)
	}
	if got := o.ScanDepth(3); got != 3 {
		t.Errorf("ScanDepth fallback = %d, want 3", got)
	}
}

func TestLoadOverrideWithDepth(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(OverridePath(dir), []byte("[scan]\ndepth = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	o, err := LoadOverride(dir)
	if err != nil {
		t.Fatalf("LoadOverride: %v", err)
	}
	if o == nil {
		t.Fatal("expected non-nil override")
	}
	if got := o.ScanDepth(5); got != 1 {
		t.Errorf("ScanDepth = %d, want 1", got)
	}
}

func TestSaveSourceIsAtomic(t *testing.T) {
	dir := t.TempDir()
	m := NewSourceManifest()
	if err := SaveSource(dir, m); err != nil {
		t.Fatalf("SaveSource: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == "" && e.Name() != filepath.Base(SourcePath(dir)) {
			continue
		}
		if e.Name() != filepath.Base(SourcePath(dir)) {
			t.Errorf("unexpected leftover file %s", e.Name())
		}
	}
}
