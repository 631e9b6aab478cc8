// Package orchestrator drives a full aggsync run: it walks every configured
// library's artists and albums in sorted order, asks internal/changeset for
// each album's diff, and hands albums with changes to internal/albumdriver,
// aggregating a run summary and honoring a cooperative user-exit request
// along the way.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cdzombak/aggsync/internal/albumdriver"
	"github.com/cdzombak/aggsync/internal/changeset"
	"github.com/cdzombak/aggsync/internal/classify"
	"github.com/cdzombak/aggsync/internal/config"
	"github.com/cdzombak/aggsync/internal/filesize"
	"github.com/cdzombak/aggsync/internal/fingerprint"
	"github.com/cdzombak/aggsync/internal/libraryview"
	"github.com/cdzombak/aggsync/internal/manifest"
	"github.com/cdzombak/aggsync/internal/uiout"
	"github.com/cdzombak/aggsync/internal/workerpool"
)

// UserControl is the Go equivalent of UserControlMessage::Exit: a single,
// idempotent cancellation request a caller (e.g. a SIGINT handler) can send
// to Run from another goroutine.
type UserControl struct {
	once sync.Once
	ch   chan struct{}
}

// NewUserControl builds a ready-to-use UserControl.
func NewUserControl() *UserControl {
	return &UserControl{ch: make(chan struct{})}
}

// Exit requests cancellation. Safe to call more than once or concurrently;
// only the first call has any effect.
func (u *UserControl) Exit() {
	u.once.Do(func() { close(u.ch) })
}

// Done returns a channel that's closed once Exit has been called.
func (u *UserControl) Done() <-chan struct{} {
	return u.ch
}

// AlbumOutcome classifies how one album's processing ended.
type AlbumOutcome string

const (
	AlbumOutcomeOK      AlbumOutcome = "ok"
	AlbumOutcomeFailed  AlbumOutcome = "failed"
	AlbumOutcomeAborted AlbumOutcome = "aborted"
)

// AlbumResult records the outcome of one processed album, for the run
// summary's per-album reporting.
type AlbumResult struct {
	Library      string
	Artist       string
	Album        string
	Outcome      AlbumOutcome
	AudioErrored int
	DataErrored  int
	// SourceBytes is the total size of the album's tracked source files, for
	// the run summary's bandwidth/throughput reporting. Only meaningful when
	// Outcome is AlbumOutcomeOK.
	SourceBytes int64
}

// Summary aggregates the outcome of an entire Run.
type Summary struct {
	AlbumsConsidered int
	AlbumsSkipped    int
	AlbumsOK         int
	FailedAlbums     []AlbumResult
	Aborted          bool
	Elapsed          time.Duration
	// SourceBytesProcessed sums AlbumResult.SourceBytes across every album
	// that finished Ok, for the final summary line.
	SourceBytesProcessed int64
}

// ExitCode maps a Summary to the process exit code described in spec §6: 0
// on full success, 1 if the run was aborted or any album failed after
// retries.
func (s Summary) ExitCode() int {
	if s.Aborted || len(s.FailedAlbums) > 0 {
		return 1
	}
	return 0
}

// Run walks every library/artist/album in cfg, reconciling each changed album
// against the aggregated library. It returns once every library has been
// processed, a ProjectionCollision or config-level error occurs, or uc is
// triggered. Progress and log output go through the uiout.Out attached to
// ctx (see uiout.With/uiout.WithVerbose).
func Run(ctx context.Context, cfg *config.Config, uc *UserControl) (Summary, error) {
	start := time.Now()
	summary := Summary{}
	out := uiout.From(ctx)

	libraries := make([]config.Library, len(cfg.Libraries))
	copy(libraries, cfg.Libraries)
	sort.Slice(libraries, func(i, j int) bool { return libraries[i].Name < libraries[j].Name })

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	go func() {
		select {
		case <-uc.Done():
			cancelRun()
		case <-runCtx.Done():
		}
	}()

libraryLoop:
	for _, lib := range libraries {
		select {
		case <-uc.Done():
			summary.Aborted = true
			break libraryLoop
		default:
		}

		out.Log(fmt.Sprintf("Scanning library %q (%s) ...", lib.Name, lib.Path))
		sets := extensionSetsFor(lib, cfg.Tools.Ffmpeg.AudioTranscodingOutputExtension)
		lv := libraryview.NewLibrary(lib.Name, lib.Path, lib.IgnoredDirectoriesInBaseDirectory, 0)

		artists, err := lv.Artists()
		if err != nil {
			return summary, fmt.Errorf("listing artists in library %q: %w", lib.Name, err)
		}

		sourceArtistNames := make(map[string]struct{}, len(artists))
		for _, artist := range artists {
			sourceArtistNames[artist.Name] = struct{}{}
		}

		for _, artist := range artists {
			select {
			case <-uc.Done():
				summary.Aborted = true
				break libraryLoop
			default:
			}

			albums, err := artist.Albums()
			if err != nil {
				return summary, fmt.Errorf("listing albums for %s/%s: %w", lib.Name, artist.Name, err)
			}

			sourceAlbumNames := make(map[string]struct{}, len(albums))
			for _, album := range albums {
				sourceAlbumNames[album.Name] = struct{}{}
			}

			for _, album := range albums {
				select {
				case <-uc.Done():
					summary.Aborted = true
					break libraryLoop
				default:
				}

				transcodedAlbumDir := filepath.Join(cfg.AggregatedLibrary.Path, lib.Name, artist.Name, album.Name)
				outcome, err := processAlbum(runCtx, cfg, lib, sets, album, transcodedAlbumDir, out)
				if err != nil {
					var collisionErr *collisionError
					if asCollision(err, &collisionErr) {
						return summary, err
					}
					out.Warning(fmt.Sprintf("skipping %s/%s/%s: %v", lib.Name, artist.Name, album.Name, err))
					summary.AlbumsConsidered++
					summary.FailedAlbums = append(summary.FailedAlbums, AlbumResult{
						Library: lib.Name, Artist: artist.Name, Album: album.Name, Outcome: AlbumOutcomeFailed,
					})
					continue
				}
				if outcome == nil {
					summary.AlbumsSkipped++
					continue
				}
				summary.AlbumsConsidered++
				recordOutcome(&summary, *outcome)
				if outcome.Outcome == AlbumOutcomeAborted {
					summary.Aborted = true
					break libraryLoop
				}
			}

			if err := reconcileVanishedAlbums(runCtx, cfg, lib, sets, artist, sourceAlbumNames, cfg.AggregatedLibrary.Path, out, &summary); err != nil {
				return summary, err
			}
		}

		if err := reconcileVanishedArtists(runCtx, cfg, lib, sets, sourceArtistNames, out, &summary); err != nil {
			return summary, err
		}
	}

	summary.Elapsed = time.Since(start)
	out.Log(fmt.Sprintf(
		"Done in %s: %d album(s) changed (%d ok, %d failed), %d unchanged, %s processed.",
		summary.Elapsed.Round(time.Millisecond), summary.AlbumsConsidered, summary.AlbumsOK,
		len(summary.FailedAlbums), summary.AlbumsSkipped, filesize.ByteCountBothStyles(summary.SourceBytesProcessed),
	))
	if summary.Aborted {
		out.Warning("run was cancelled; some albums may not have been fully processed")
	}
	for _, f := range summary.FailedAlbums {
		out.Warning(fmt.Sprintf("album failed: %s/%s/%s (audio errors: %d, data errors: %d)",
			f.Library, f.Artist, f.Album, f.AudioErrored, f.DataErrored))
	}
	return summary, nil
}

func recordOutcome(summary *Summary, outcome AlbumResult) {
	switch outcome.Outcome {
	case AlbumOutcomeOK:
		summary.AlbumsOK++
		summary.SourceBytesProcessed += outcome.SourceBytes
	case AlbumOutcomeFailed:
		summary.FailedAlbums = append(summary.FailedAlbums, outcome)
	}
}

// collisionError lets Run distinguish a fatal projection collision from an
// ordinary per-album IO error without importing internal/apperr's sentinel
// directly into every call site.
type collisionError struct{ err error }

func (c *collisionError) Error() string { return c.err.Error() }
func (c *collisionError) Unwrap() error { return c.err }

func asCollision(err error, target **collisionError) bool {
	ce, ok := err.(*collisionError)
	if !ok {
		return false
	}
	*target = ce
	return true
}

// processAlbum reconciles a single album and returns nil (no outcome) if it
// has no changes to make.
func processAlbum(ctx context.Context, cfg *config.Config, lib config.Library, sets classify.ExtensionSets, album libraryview.Album, transcodedAlbumDir string, out uiout.Out) (*AlbumResult, error) {
	depth, err := album.EffectiveScanDepth(0)
	if err != nil {
		return nil, err
	}

	freshSourceFiles, err := album.Scan(depth)
	if err != nil {
		return nil, err
	}
	freshSource, err := buildFileSet(freshSourceFiles, sets)
	if err != nil {
		return nil, err
	}

	savedSource, err := manifest.LoadSource(album.Path, func(e error) { out.Warning(e.Error()) })
	if err != nil {
		return nil, err
	}

	transcodedAlbum := libraryview.Album{Name: album.Name, Path: transcodedAlbumDir}
	freshTranscodeFiles, err := transcodedAlbum.Scan(depth)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		// A transcoded album directory that doesn't exist yet (first run)
		// simply has no files.
		return nil, err
	}
	freshTranscode, err := buildFileSet(freshTranscodeFiles, sets)
	if err != nil {
		return nil, err
	}

	savedTranscode, err := manifest.LoadTranscode(transcodedAlbumDir, func(e error) { out.Warning(e.Error()) })
	if err != nil {
		return nil, err
	}

	cs, err := changeset.Generate(changeset.GenerateInput{
		SavedSource:    savedSource,
		FreshSource:    freshSource,
		SavedTranscode: savedTranscode,
		FreshTranscode: freshTranscode,
		Sets:           sets,
		OutputExt:      sets.AudioOutput,
	})
	if err != nil {
		return nil, &collisionError{err: err}
	}
	if !cs.HasChanges() {
		return nil, nil
	}

	total := int64(cs.NumChangedAudioFiles() + cs.NumChangedDataFiles())
	_, progress, stop := uiout.WithProgress(ctx, fmt.Sprintf("%s / %s", album.Artist.Name, album.Name), total)
	defer stop()
	done := int64(0)

	result, err := albumdriver.Drive(ctx, albumdriver.Input{
		SourceAlbumDir:     album.Path,
		TranscodedAlbumDir: transcodedAlbumDir,
		ChangeSet:          cs,
		FreshSource:        freshSource,
		Sets:               sets,
		Ffmpeg:             cfg.Tools.Ffmpeg,
		NumWorkers:         cfg.AggregatedLibrary.TranscodeThreads,
		MaxRetries:         cfg.AggregatedLibrary.FailureMaxRetries,
		RetryDelay:         cfg.AggregatedLibrary.FailureDelay(),
		OnEvent: func(ev workerpool.JobEvent) {
			if ev.Kind == workerpool.EventFinished || ev.Kind == workerpool.EventCancelled {
				done++
				progress(done)
			}
			if ev.Kind == workerpool.EventFinished && ev.Err != nil {
				out.Warning(fmt.Sprintf("%s failed: %v", ev.Job.TargetPath, ev.Err))
			}
		},
	})
	if err != nil {
		return nil, err
	}

	base := AlbumResult{Library: lib.Name, Artist: album.Artist.Name, Album: album.Name}
	switch {
	case result.Cancelled:
		base.Outcome = AlbumOutcomeAborted
	case result.Ok():
		base.Outcome = AlbumOutcomeOK
		base.SourceBytes = totalBytes(freshSource)
	default:
		base.Outcome = AlbumOutcomeFailed
		base.AudioErrored = result.AudioErrored
		base.DataErrored = result.DataErrored
	}
	return &base, nil
}

// reconcileVanishedAlbums drives an entire_album_deletion for every album
// directory still present in the transcoded tree for this artist that no
// longer exists on the source side.
func reconcileVanishedAlbums(ctx context.Context, cfg *config.Config, lib config.Library, sets classify.ExtensionSets, artist libraryview.Artist, sourceAlbumNames map[string]struct{}, aggregatedRoot string, out uiout.Out, summary *Summary) error {
	transcodedArtistDir := filepath.Join(aggregatedRoot, lib.Name, artist.Name)
	transcodedArtist := libraryview.Artist{Name: artist.Name, Path: transcodedArtistDir}
	transcodedAlbums, err := transcodedArtist.Albums()
	if err != nil {
		// No transcoded artist directory yet is not an error: nothing to
		// reconcile.
		return nil
	}

	for _, talbum := range transcodedAlbums {
		if _, ok := sourceAlbumNames[talbum.Name]; ok {
			continue
		}
		if err := driveEntireAlbumDeletion(ctx, cfg, lib, talbum.Path, out, summary); err != nil {
			return err
		}
	}
	return nil
}

// reconcileVanishedArtists covers the case where an entire artist directory
// disappeared from source: every album under the matching transcoded artist
// directory is deleted the same way.
func reconcileVanishedArtists(ctx context.Context, cfg *config.Config, lib config.Library, sets classify.ExtensionSets, sourceArtistNames map[string]struct{}, out uiout.Out, summary *Summary) error {
	transcodedLibraryDir := filepath.Join(cfg.AggregatedLibrary.Path, lib.Name)
	transcodedLibrary := libraryview.NewLibrary(lib.Name, transcodedLibraryDir, nil, 0)
	transcodedArtists, err := transcodedLibrary.Artists()
	if err != nil {
		return nil
	}

	for _, tartist := range transcodedArtists {
		if _, ok := sourceArtistNames[tartist.Name]; ok {
			continue
		}
		albums, err := tartist.Albums()
		if err != nil {
			return fmt.Errorf("listing transcoded albums under vanished artist %q: %w", tartist.Name, err)
		}
		for _, talbum := range albums {
			if err := driveEntireAlbumDeletion(ctx, cfg, lib, talbum.Path, out, summary); err != nil {
				return err
			}
		}
	}
	return nil
}

func driveEntireAlbumDeletion(ctx context.Context, cfg *config.Config, lib config.Library, transcodedAlbumDir string, out uiout.Out, summary *Summary) error {
	cs, err := changeset.EntireAlbumDeletion(transcodedAlbumDir, func(e error) { out.Warning(e.Error()) })
	if err != nil {
		return fmt.Errorf("computing deletion for vanished album %q: %w", transcodedAlbumDir, err)
	}
	if !cs.HasChanges() {
		return nil
	}

	out.Log(fmt.Sprintf("Album removed from source; cleaning up %s ...", transcodedAlbumDir))
	result, err := albumdriver.Drive(ctx, albumdriver.Input{
		SourceAlbumDir:      transcodedAlbumDir,
		TranscodedAlbumDir:  transcodedAlbumDir,
		ChangeSet:           cs,
		FreshSource:         manifest.FileSet{},
		Sets:                extensionSetsFor(lib, cfg.Tools.Ffmpeg.AudioTranscodingOutputExtension),
		Ffmpeg:              cfg.Tools.Ffmpeg,
		NumWorkers:          cfg.AggregatedLibrary.TranscodeThreads,
		MaxRetries:          cfg.AggregatedLibrary.FailureMaxRetries,
		RetryDelay:          cfg.AggregatedLibrary.FailureDelay(),
		EntireAlbumDeletion: true,
	})
	if err != nil {
		return err
	}

	summary.AlbumsConsidered++
	switch {
	case result.Cancelled:
		summary.Aborted = true
	case result.Ok():
		summary.AlbumsOK++
	default:
		summary.FailedAlbums = append(summary.FailedAlbums, AlbumResult{
			Library: lib.Name, Album: filepath.Base(transcodedAlbumDir), Outcome: AlbumOutcomeFailed,
			AudioErrored: result.AudioErrored, DataErrored: result.DataErrored,
		})
	}
	return nil
}

// extensionSetsFor builds the classify.ExtensionSets for a library. The
// output extension is folded into AudioExts alongside the library's
// configured source audio extensions: a transcoded file carries the output
// extension, and classify.Classify needs to recognize it as audio both when
// reasoning about π's image and when sorting excess_in_transcoded files.
func extensionSetsFor(lib config.Library, outputExt string) classify.ExtensionSets {
	audioExts := append([]string{}, lib.Transcoding.AudioFileExtensions...)
	audioExts = append(audioExts, outputExt)
	return classify.NewExtensionSets(audioExts, lib.Transcoding.OtherFileExtensions, outputExt)
}

func totalBytes(fs manifest.FileSet) int64 {
	var total int64
	for _, fp := range fs.AudioFiles {
		total += fp.SizeBytes
	}
	for _, fp := range fs.DataFiles {
		total += fp.SizeBytes
	}
	return total
}

func buildFileSet(files []libraryview.File, sets classify.ExtensionSets) (manifest.FileSet, error) {
	fs := manifest.FileSet{AudioFiles: map[string]manifest.Fingerprint{}, DataFiles: map[string]manifest.Fingerprint{}}
	for _, f := range files {
		kind := sets.Classify(f.RelPath)
		if kind == classify.Unknown {
			continue
		}
		raw, err := fingerprint.Fingerprint(f.AbsPath)
		if err != nil {
			return fs, err
		}
		fp := manifest.FromFingerprint(raw)
		switch kind {
		case classify.Audio:
			fs.AudioFiles[f.RelPath] = fp
		case classify.Data:
			fs.DataFiles[f.RelPath] = fp
		}
	}
	return fs, nil
}
