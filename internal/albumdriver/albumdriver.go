// Package albumdriver turns one album's change set into concrete jobs,
// drives them through a worker pool with bounded retries, and persists
// updated manifests once every job has succeeded.
package albumdriver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cdzombak/aggsync/internal/changeset"
	"github.com/cdzombak/aggsync/internal/classify"
	"github.com/cdzombak/aggsync/internal/config"
	"github.com/cdzombak/aggsync/internal/dzutil"
	"github.com/cdzombak/aggsync/internal/fingerprint"
	"github.com/cdzombak/aggsync/internal/job"
	"github.com/cdzombak/aggsync/internal/manifest"
	"github.com/cdzombak/aggsync/internal/workerpool"
)

// Input bundles everything Drive needs to reconcile one album.
type Input struct {
	SourceAlbumDir     string
	TranscodedAlbumDir string
	ChangeSet          *changeset.AlbumChangeSet
	// FreshSource is the album's complete current source file set, as scanned
	// for the changeset.Generate call that produced ChangeSet. It becomes the
	// new source manifest verbatim once every job below succeeds.
	FreshSource manifest.FileSet
	Sets        classify.ExtensionSets
	Ffmpeg      config.Ffmpeg
	NumWorkers  int
	MaxRetries  int
	RetryDelay  time.Duration
	// OnEvent, if non-nil, is called for every job event as it happens, for
	// progress reporting. It must not block.
	OnEvent func(workerpool.JobEvent)
	// EntireAlbumDeletion marks a change set built by
	// changeset.EntireAlbumDeletion: the source album directory no longer
	// exists, so on success Drive removes the transcoded manifest and prunes
	// the (now empty) transcoded album directory instead of regenerating
	// manifests from a nonexistent source.
	EntireAlbumDeletion bool
}

// Result summarizes how Drive's run of one album went.
type Result struct {
	AudioFinishedOK int
	DataFinishedOK  int
	AudioErrored    int
	DataErrored     int
	Cancelled       bool
}

// Ok reports whether the album is now fully up to date: nothing cancelled
// and nothing permanently failed.
func (r Result) Ok() bool {
	return !r.Cancelled && r.AudioErrored == 0 && r.DataErrored == 0
}

type category int

const (
	catAudio category = iota
	catData
)

type trackedJob struct {
	j        job.Job
	cat      category
	attempts int
}

// Drive builds every job implied by in.ChangeSet in delete, then copy, then
// transcode order, runs them through a worker pool sized to in.NumWorkers,
// and retries a failed job up to in.MaxRetries times (waiting in.RetryDelay
// between attempts). If ctx is cancelled, in-flight transcode/copy jobs stop
// early and no further retries are scheduled. Manifests are only persisted
// when the returned Result reports Ok().
func Drive(ctx context.Context, in Input) (Result, error) {
	jobs, err := buildJobs(in)
	if err != nil {
		return Result{}, err
	}

	var result Result
	if len(jobs) == 0 {
		return result, nil
	}

	pool := workerpool.New(in.NumWorkers, len(jobs)+4)
	pool.Start()

	tracked := make(map[job.ID]*trackedJob, len(jobs))
	for _, tj := range jobs {
		tracked[tj.j.ID] = tj
		pool.Enqueue(tj.j)
	}

	go func() {
		<-ctx.Done()
		pool.Cancel()
	}()

	pending := len(jobs)
	for ev := range pool.Events() {
		if in.OnEvent != nil {
			in.OnEvent(ev)
		}

		switch ev.Kind {
		case workerpool.EventStarting:
			// nothing to tally yet

		case workerpool.EventCancelled:
			result.Cancelled = true
			pending--

		case workerpool.EventFinished:
			te := tracked[ev.Job.ID]
			if ev.Err == nil {
				tally(&result, te.cat, true)
				pending--
				break
			}

			te.attempts++
			if ctx.Err() == nil && te.attempts <= in.MaxRetries {
				scheduleRetry(ctx, pool, te.j, in.RetryDelay)
			} else {
				tally(&result, te.cat, false)
				pending--
			}
		}

		if pending == 0 {
			pool.Close()
		}
	}

	if !result.Ok() {
		return result, nil
	}
	if in.EntireAlbumDeletion {
		if err := removeAlbumBookkeeping(in); err != nil {
			return result, err
		}
		return result, nil
	}
	if err := persistManifests(in); err != nil {
		return result, err
	}
	return result, nil
}

// removeAlbumBookkeeping deletes the transcoded album's manifest (the source
// side no longer exists, so there's nothing to regenerate) and removes the
// transcoded album directory if deleting every job target left it empty.
func removeAlbumBookkeeping(in Input) error {
	manifestPath := manifest.TranscodePath(in.TranscodedAlbumDir)
	if err := dzutil.RemoveIfExists(manifestPath); err != nil {
		return fmt.Errorf("removing stale transcode manifest %q: %w", manifestPath, err)
	}
	entries, err := os.ReadDir(in.TranscodedAlbumDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %q: %w", in.TranscodedAlbumDir, err)
	}
	if len(entries) == 0 {
		if err := os.Remove(in.TranscodedAlbumDir); err != nil {
			return fmt.Errorf("removing empty album directory %q: %w", in.TranscodedAlbumDir, err)
		}
	}
	return nil
}

func tally(r *Result, cat category, ok bool) {
	switch cat {
	case catAudio:
		if ok {
			r.AudioFinishedOK++
		} else {
			r.AudioErrored++
		}
	case catData:
		if ok {
			r.DataFinishedOK++
		} else {
			r.DataErrored++
		}
	}
}

// scheduleRetry waits retryDelay (or until ctx is cancelled, whichever comes
// first) and then re-enqueues j. Re-enqueuing even after ctx is cancelled is
// intentional: the pool's own cancellation flag is what stops the job, which
// produces a proper EventCancelled rather than leaving the job's bookkeeping
// dangling.
func scheduleRetry(ctx context.Context, pool *workerpool.Pool, j job.Job, delay time.Duration) {
	go func() {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
		pool.Enqueue(j)
	}()
}

func buildJobs(in Input) ([]*trackedJob, error) {
	var jobs []*trackedJob

	addDelete := func(pair changeset.FilePair, cat category) error {
		target := filepath.Join(in.TranscodedAlbumDir, pair.TranscodedRelPath)
		j, err := job.NewDeleteJob(in.TranscodedAlbumDir, target)
		if err != nil {
			return err
		}
		jobs = append(jobs, &trackedJob{j: j, cat: cat})
		return nil
	}
	addCopy := func(pair changeset.FilePair) error {
		src := filepath.Join(in.SourceAlbumDir, pair.SourceRelPath)
		dst := filepath.Join(in.TranscodedAlbumDir, pair.TranscodedRelPath)
		j, err := job.NewCopyDataJob(src, dst)
		if err != nil {
			return err
		}
		jobs = append(jobs, &trackedJob{j: j, cat: catData})
		return nil
	}
	addTranscode := func(pair changeset.FilePair) error {
		src := filepath.Join(in.SourceAlbumDir, pair.SourceRelPath)
		dst := filepath.Join(in.TranscodedAlbumDir, pair.TranscodedRelPath)
		j, err := job.NewTranscodeAudioJob(src, dst, in.Sets, in.Ffmpeg.Binary, in.Ffmpeg.AudioTranscodingArgs)
		if err != nil {
			return err
		}
		jobs = append(jobs, &trackedJob{j: j, cat: catAudio})
		return nil
	}

	// Delete first: clear out space and stale files before writing anything
	// new into the transcoded tree.
	for _, p := range in.ChangeSet.Removed.Audio {
		if err := addDelete(p, catAudio); err != nil {
			return nil, err
		}
	}
	for _, p := range in.ChangeSet.Removed.Data {
		if err := addDelete(p, catData); err != nil {
			return nil, err
		}
	}
	for _, p := range in.ChangeSet.Excess.Audio {
		if err := addDelete(p, catAudio); err != nil {
			return nil, err
		}
	}
	for _, p := range in.ChangeSet.Excess.Data {
		if err := addDelete(p, catData); err != nil {
			return nil, err
		}
	}
	for _, p := range in.ChangeSet.Excess.Unknown {
		if err := addDelete(p, catData); err != nil {
			return nil, err
		}
	}

	// Copy next: cheap compared to transcoding, and some data files (cover
	// art) are nice to have in place before a transcode of the same album
	// finishes so partial output looks less broken if interrupted.
	for _, p := range in.ChangeSet.Added.Data {
		if err := addCopy(p); err != nil {
			return nil, err
		}
	}
	for _, p := range in.ChangeSet.Changed.Data {
		if err := addCopy(p); err != nil {
			return nil, err
		}
	}
	for _, p := range in.ChangeSet.Missing.Data {
		if err := addCopy(p); err != nil {
			return nil, err
		}
	}

	// Transcode last.
	for _, p := range in.ChangeSet.Added.Audio {
		if err := addTranscode(p); err != nil {
			return nil, err
		}
	}
	for _, p := range in.ChangeSet.Changed.Audio {
		if err := addTranscode(p); err != nil {
			return nil, err
		}
	}
	for _, p := range in.ChangeSet.Missing.Audio {
		if err := addTranscode(p); err != nil {
			return nil, err
		}
	}

	return jobs, nil
}

// persistManifests rebuilds the source and transcode manifests from scratch
// from in.FreshSource and the current on-disk state of the transcoded
// directory. It's only called once every job has succeeded, so every
// projected path is expected to exist by now.
func persistManifests(in Input) error {
	sourceManifest := manifest.NewSourceManifest()
	sourceManifest.TrackedFiles = in.FreshSource

	transcodeManifest := manifest.NewTranscodeManifest()
	for relPath := range in.FreshSource.AudioFiles {
		if err := recordTranscoded(in, relPath, &transcodeManifest, true); err != nil {
			return err
		}
	}
	for relPath := range in.FreshSource.DataFiles {
		if err := recordTranscoded(in, relPath, &transcodeManifest, false); err != nil {
			return err
		}
	}

	if err := manifest.SaveSource(in.SourceAlbumDir, sourceManifest); err != nil {
		return err
	}
	if err := manifest.SaveTranscode(in.TranscodedAlbumDir, transcodeManifest); err != nil {
		return err
	}
	return nil
}

func recordTranscoded(in Input, sourceRelPath string, tm *manifest.TranscodeManifest, audio bool) error {
	transcodedRelPath := changeset.Project(sourceRelPath, in.Sets, in.Sets.AudioOutput)
	absPath := filepath.Join(in.TranscodedAlbumDir, transcodedRelPath)

	fp, err := fingerprint.Fingerprint(absPath)
	if err != nil {
		return fmt.Errorf("fingerprinting transcoded output %q: %w", absPath, err)
	}

	tm.OriginalFilePaths[transcodedRelPath] = sourceRelPath
	if audio {
		tm.TranscodedFiles.AudioFiles[transcodedRelPath] = manifest.FromFingerprint(fp)
	} else {
		tm.TranscodedFiles.DataFiles[transcodedRelPath] = manifest.FromFingerprint(fp)
	}
	return nil
}
