package libraryview

import (
	"os"
	"path/filepath"
	"testing"
)

func mustMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
}

func mustWriteFile(t *testing.T, path string, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestArtistsSortedAndFiltered(t *testing.T) {
	root := t.TempDir()
	mustMkdirAll(t, filepath.Join(root, "Zeta"))
	mustMkdirAll(t, filepath.Join(root, "Alpha"))
	mustMkdirAll(t, filepath.Join(root, "_other"))
	mustWriteFile(t, filepath.Join(root, "readme.txt"), "not a dir")

	lib := NewLibrary("Main", root, []string{"_other"}, 0)
	artists, err := lib.Artists()
	if err != nil {
		t.Fatalf("Artists: %v", err)
	}
	if len(artists) != 2 {
		t.Fatalf("got %d artists, want 2: %+v", len(artists), artists)
	}
	if artists[0].Name != "Alpha" || artists[1].Name != "Zeta" {
		t.Errorf("artists not sorted: %+v", artists)
	}
}

func TestAlbumsSorted(t *testing.T) {
	root := t.TempDir()
	artistDir := filepath.Join(root, "Artist")
	mustMkdirAll(t, filepath.Join(artistDir, "B Album"))
	mustMkdirAll(t, filepath.Join(artistDir, "A Album"))

	lib := NewLibrary("Main", root, nil, 0)
	artists, err := lib.Artists()
	if err != nil {
		t.Fatal(err)
	}
	albums, err := artists[0].Albums()
	if err != nil {
		t.Fatalf("Albums: %v", err)
	}
	if len(albums) != 2 || albums[0].Name != "A Album" || albums[1].Name != "B Album" {
		t.Errorf("albums not sorted: %+v", albums)
	}
}

func TestScanFlatExcludesSubdirsAndReservedFiles(t *testing.T) {
	root := t.TempDir()
	albumDir := filepath.Join(root, "Artist", "Album")
	mustMkdirAll(t, filepath.Join(albumDir, "disc2"))
	mustWriteFile(t, filepath.Join(albumDir, "track.flac"), "x")
	mustWriteFile(t, filepath.Join(albumDir, "disc2", "track2.flac"), "y")
	mustWriteFile(t, filepath.Join(albumDir, ".album.source-state.euphony"), "schema_version = 1")

	alb := Album{Path: albumDir}
	files, err := alb.Scan(0)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(files) != 1 || files[0].RelPath != "track.flac" {
		t.Errorf("Scan(0) = %+v, want just track.flac", files)
	}
}

func TestScanDepthDescends(t *testing.T) {
	root := t.TempDir()
	albumDir := filepath.Join(root, "Artist", "Album")
	mustMkdirAll(t, filepath.Join(albumDir, "disc2"))
	mustWriteFile(t, filepath.Join(albumDir, "track.flac"), "x")
	mustWriteFile(t, filepath.Join(albumDir, "disc2", "track2.flac"), "y")

	alb := Album{Path: albumDir}
	files, err := alb.Scan(1)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2: %+v", len(files), files)
	}
	if files[0].RelPath != "disc2/track2.flac" || files[1].RelPath != "track.flac" {
		t.Errorf("unexpected relative paths: %+v", files)
	}
}

func TestEffectiveScanDepthFallsBackToLibraryDefault(t *testing.T) {
	root := t.TempDir()
	albumDir := filepath.Join(root, "Artist", "Album")
	mustMkdirAll(t, albumDir)

	alb := Album{Path: albumDir}
	depth, err := alb.EffectiveScanDepth(2)
	if err != nil {
		t.Fatalf("EffectiveScanDepth: %v", err)
	}
	if depth != 2 {
		t.Errorf("depth = %d, want 2", depth)
	}
}

func TestEffectiveScanDepthUsesOverride(t *testing.T) {
	root := t.TempDir()
	albumDir := filepath.Join(root, "Artist", "Album")
	mustMkdirAll(t, albumDir)
	mustWriteFile(t, filepath.Join(albumDir, ".album.override.euphony"), "[scan]\ndepth = 3\n")

	alb := Album{Path: albumDir}
	depth, err := alb.EffectiveScanDepth(0)
	if err != nil {
		t.Fatalf("EffectiveScanDepth: %v", err)
	}
	if depth != 3 {
		t.Errorf("depth = %d, want 3", depth)
	}
}
