package albumdriver

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cdzombak/aggsync/internal/changeset"
	"github.com/cdzombak/aggsync/internal/classify"
	"github.com/cdzombak/aggsync/internal/config"
	"github.com/cdzombak/aggsync/internal/manifest"
	"github.com/cdzombak/aggsync/internal/workerpool"
)

func testSets() classify.ExtensionSets {
	return classify.NewExtensionSets([]string{"flac"}, []string{"jpg"}, "mp3")
}

// fakeFfmpeg returns a Ffmpeg config whose "binary" is actually a shell
// script that writes a fixed number of bytes to {OUTPUT_FILE}, simulating a
// successful transcode without needing a real ffmpeg binary.
func fakeFfmpeg() config.Ffmpeg {
	return config.Ffmpeg{
		Binary:                          "/bin/sh",
		AudioTranscodingArgs:            []string{"-c", `mkdir -p "$(dirname "$2")" && printf 'transcoded' > "$2"`, "--", "{INPUT_FILE}", "{OUTPUT_FILE}"},
		AudioTranscodingOutputExtension: "mp3",
	}
}

func TestDrivePersistsManifestsOnFullSuccess(t *testing.T) {
	sourceDir := t.TempDir()
	transcodedDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(sourceDir, "track.flac"), []byte("source audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sourceDir, "cover.jpg"), []byte("cover bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	sets := testSets()
	cs := &changeset.AlbumChangeSet{
		Added: changeset.PathGroup{
			Audio: []changeset.FilePair{{SourceRelPath: "track.flac", TranscodedRelPath: "track.mp3"}},
			Data:  []changeset.FilePair{{SourceRelPath: "cover.jpg", TranscodedRelPath: "cover.jpg"}},
		},
	}

	freshSource := manifest.FileSet{
		AudioFiles: map[string]manifest.Fingerprint{"track.flac": {SizeBytes: 12}},
		DataFiles:  map[string]manifest.Fingerprint{"cover.jpg": {SizeBytes: 11}},
	}

	result, err := Drive(context.Background(), Input{
		SourceAlbumDir:     sourceDir,
		TranscodedAlbumDir: transcodedDir,
		ChangeSet:          cs,
		FreshSource:        freshSource,
		Sets:               sets,
		Ffmpeg:             fakeFfmpeg(),
		NumWorkers:         2,
		MaxRetries:         1,
		RetryDelay:         10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if !result.Ok() {
		t.Fatalf("result not ok: %+v", result)
	}
	if result.AudioFinishedOK != 1 || result.DataFinishedOK != 1 {
		t.Fatalf("unexpected tallies: %+v", result)
	}

	if _, err := os.Stat(filepath.Join(transcodedDir, "track.mp3")); err != nil {
		t.Errorf("expected transcoded output: %v", err)
	}
	if _, err := os.Stat(filepath.Join(transcodedDir, "cover.jpg")); err != nil {
		t.Errorf("expected copied cover: %v", err)
	}

	savedSource, err := manifest.LoadSource(sourceDir, nil)
	if err != nil || savedSource == nil {
		t.Fatalf("LoadSource: %v, %+v", err, savedSource)
	}
	if _, ok := savedSource.TrackedFiles.AudioFiles["track.flac"]; !ok {
		t.Error("expected track.flac in saved source manifest")
	}

	savedTranscode, err := manifest.LoadTranscode(transcodedDir, nil)
	if err != nil || savedTranscode == nil {
		t.Fatalf("LoadTranscode: %v, %+v", err, savedTranscode)
	}
	if savedTranscode.OriginalFilePaths["track.mp3"] != "track.flac" {
		t.Errorf("OriginalFilePaths[track.mp3] = %q, want track.flac", savedTranscode.OriginalFilePaths["track.mp3"])
	}
	if _, ok := savedTranscode.TranscodedFiles.DataFiles["cover.jpg"]; !ok {
		t.Error("expected cover.jpg in saved transcode manifest")
	}
}

func TestDriveDeletesBeforePersisting(t *testing.T) {
	sourceDir := t.TempDir()
	transcodedDir := t.TempDir()

	excessPath := filepath.Join(transcodedDir, "old.mp3")
	if err := os.WriteFile(excessPath, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	cs := &changeset.AlbumChangeSet{
		Excess: changeset.ExcessGroup{
			Audio: []changeset.FilePair{{TranscodedRelPath: "old.mp3"}},
		},
	}

	result, err := Drive(context.Background(), Input{
		SourceAlbumDir:     sourceDir,
		TranscodedAlbumDir: transcodedDir,
		ChangeSet:          cs,
		FreshSource:        manifest.FileSet{},
		Sets:               testSets(),
		Ffmpeg:             fakeFfmpeg(),
		NumWorkers:         1,
		MaxRetries:         1,
		RetryDelay:         10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if !result.Ok() {
		t.Fatalf("result not ok: %+v", result)
	}
	if _, err := os.Stat(excessPath); !os.IsNotExist(err) {
		t.Errorf("expected excess file removed, stat err = %v", err)
	}
}

func TestDriveNoJobsIsNoop(t *testing.T) {
	result, err := Drive(context.Background(), Input{
		SourceAlbumDir:     t.TempDir(),
		TranscodedAlbumDir: t.TempDir(),
		ChangeSet:          &changeset.AlbumChangeSet{},
		FreshSource:        manifest.FileSet{},
		Sets:               testSets(),
		Ffmpeg:             fakeFfmpeg(),
		NumWorkers:         1,
	})
	if err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if !result.Ok() {
		t.Fatalf("expected a no-op empty change set to be Ok(): %+v", result)
	}
}

func TestDriveRetriesFailedCopyThenSucceeds(t *testing.T) {
	sourceDir := t.TempDir()
	transcodedDir := t.TempDir()

	// The source file doesn't exist yet, so the first copy attempt fails;
	// create it during the retry delay so the second attempt succeeds.
	src := filepath.Join(sourceDir, "cover.jpg")

	cs := &changeset.AlbumChangeSet{
		Added: changeset.PathGroup{
			Data: []changeset.FilePair{{SourceRelPath: "cover.jpg", TranscodedRelPath: "cover.jpg"}},
		},
	}

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = os.WriteFile(src, []byte("cover bytes"), 0o644)
	}()

	result, err := Drive(context.Background(), Input{
		SourceAlbumDir:     sourceDir,
		TranscodedAlbumDir: transcodedDir,
		ChangeSet:          cs,
		FreshSource: manifest.FileSet{
			DataFiles: map[string]manifest.Fingerprint{"cover.jpg": {SizeBytes: 11}},
		},
		Sets:       testSets(),
		Ffmpeg:     fakeFfmpeg(),
		NumWorkers: 1,
		MaxRetries: 5,
		RetryDelay: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if !result.Ok() {
		t.Fatalf("expected eventual success after retry: %+v", result)
	}
	if result.DataFinishedOK != 1 {
		t.Errorf("DataFinishedOK = %d, want 1", result.DataFinishedOK)
	}
}

func TestDriveGivesUpAfterMaxRetries(t *testing.T) {
	sourceDir := t.TempDir()
	transcodedDir := t.TempDir()

	cs := &changeset.AlbumChangeSet{
		Added: changeset.PathGroup{
			Data: []changeset.FilePair{{SourceRelPath: "missing.jpg", TranscodedRelPath: "missing.jpg"}},
		},
	}

	result, err := Drive(context.Background(), Input{
		SourceAlbumDir:     sourceDir,
		TranscodedAlbumDir: transcodedDir,
		ChangeSet:          cs,
		FreshSource:        manifest.FileSet{},
		Sets:               testSets(),
		Ffmpeg:             fakeFfmpeg(),
		NumWorkers:         1,
		MaxRetries:         2,
		RetryDelay:         5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if result.Ok() {
		t.Fatal("expected permanent failure for a source file that never appears")
	}
	if result.DataErrored != 1 {
		t.Errorf("DataErrored = %d, want 1", result.DataErrored)
	}

	if _, err := manifest.LoadSource(sourceDir, nil); err != nil {
		t.Fatalf("LoadSource should not error on absent manifest: %v", err)
	}
	if m, _ := manifest.LoadSource(sourceDir, nil); m != nil {
		t.Error("manifests must not be persisted when a job permanently fails")
	}
}

func TestDriveCancellationStopsTranscodeAndSkipsPersist(t *testing.T) {
	sourceDir := t.TempDir()
	transcodedDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(sourceDir, "track.flac"), []byte("source audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	cs := &changeset.AlbumChangeSet{
		Added: changeset.PathGroup{
			Audio: []changeset.FilePair{{SourceRelPath: "track.flac", TranscodedRelPath: "track.mp3"}},
		},
	}

	slowFfmpeg := config.Ffmpeg{
		Binary:               "/bin/sh",
		AudioTranscodingArgs: []string{"-c", `mkdir -p "$(dirname "$1")" && touch "$1" && sleep 5`, "--", "{OUTPUT_FILE}"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	var sawCancelled bool
	result, err := Drive(ctx, Input{
		SourceAlbumDir:     sourceDir,
		TranscodedAlbumDir: transcodedDir,
		ChangeSet:          cs,
		FreshSource: manifest.FileSet{
			AudioFiles: map[string]manifest.Fingerprint{"track.flac": {SizeBytes: 12}},
		},
		Sets:       testSets(),
		Ffmpeg:     slowFfmpeg,
		NumWorkers: 1,
		MaxRetries: 3,
		RetryDelay: 10 * time.Millisecond,
		OnEvent: func(ev workerpool.JobEvent) {
			if ev.Kind == workerpool.EventCancelled {
				sawCancelled = true
			}
		},
	})
	if err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if !result.Cancelled {
		t.Fatalf("expected Result.Cancelled: %+v", result)
	}
	if !sawCancelled {
		t.Error("expected at least one EventCancelled to be observed")
	}
	if m, _ := manifest.LoadSource(sourceDir, nil); m != nil {
		t.Error("manifests must not be persisted after cancellation")
	}
}
