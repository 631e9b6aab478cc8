// Package changeset computes the five-way diff between an album's saved
// manifests and its current on-disk state: which files were added, changed,
// removed, are missing from the transcoded copy, or are unexpected excess.
package changeset

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cdzombak/aggsync/internal/classify"
	"github.com/cdzombak/aggsync/internal/fingerprint"
	"github.com/cdzombak/aggsync/internal/manifest"
)

// FilePair names one tracked file by its source-relative path and the
// transcoded-relative path it projects to. Groups that have no source
// counterpart (excess files) leave SourceRelPath empty.
type FilePair struct {
	SourceRelPath     string
	TranscodedRelPath string
}

// PathGroup splits a list of FilePairs by classify.Kind.
type PathGroup struct {
	Audio []FilePair
	Data  []FilePair
}

func (g PathGroup) Len() int { return len(g.Audio) + len(g.Data) }

// ExcessGroup is PathGroup plus an Unknown bucket, since excess files may not
// match any configured extension at all.
type ExcessGroup struct {
	Audio   []FilePair
	Data    []FilePair
	Unknown []FilePair
}

func (g ExcessGroup) Len() int { return len(g.Audio) + len(g.Data) + len(g.Unknown) }

// AlbumChangeSet is the outcome of comparing an album's saved state against
// its fresh filesystem state. All five groups are disjoint.
type AlbumChangeSet struct {
	Added   PathGroup
	Changed PathGroup
	Removed PathGroup
	Missing PathGroup
	Excess  ExcessGroup
}

// HasChanges reports whether any group is non-empty.
func (cs AlbumChangeSet) HasChanges() bool {
	return cs.Added.Len() > 0 || cs.Changed.Len() > 0 || cs.Removed.Len() > 0 ||
		cs.Missing.Len() > 0 || cs.Excess.Len() > 0
}

// NumChangedAudioFiles counts audio-classified entries across every group.
func (cs AlbumChangeSet) NumChangedAudioFiles() int {
	return len(cs.Added.Audio) + len(cs.Changed.Audio) + len(cs.Removed.Audio) +
		len(cs.Missing.Audio) + len(cs.Excess.Audio)
}

// NumChangedDataFiles counts data- and unknown-classified entries across
// every group (unknown files are lumped with data for reporting, since
// they're not audio and still need disposing of).
func (cs AlbumChangeSet) NumChangedDataFiles() int {
	return len(cs.Added.Data) + len(cs.Changed.Data) + len(cs.Removed.Data) +
		len(cs.Missing.Data) + len(cs.Excess.Data) + len(cs.Excess.Unknown)
}

// GenerateInput bundles the saved and fresh state changeset.Generate diffs.
// Fresh*.FileSet must already reflect the current filesystem — Generate does
// no disk I/O itself, only set comparisons.
type GenerateInput struct {
	SavedSource    *manifest.SourceManifest
	FreshSource    manifest.FileSet
	SavedTranscode *manifest.TranscodeManifest
	FreshTranscode manifest.FileSet
	Sets           classify.ExtensionSets
	OutputExt      string
	Epsilon        time.Duration
}

// Generate runs the five-way diff described by the package doc, returning a
// ProjectionCollision error (via internal/apperr) if two source files would
// project to the same transcoded path.
func Generate(in GenerateInput) (*AlbumChangeSet, error) {
	savedSourceAudio, savedSourceData := fileSetMaps(savedSourceFileSet(in.SavedSource))
	freshSourceAudio, freshSourceData := fileSetMaps(in.FreshSource)
	savedTranscodeAudio, savedTranscodeData := fileSetMaps(savedTranscodeFileSet(in.SavedTranscode))
	freshTranscodeAudio, freshTranscodeData := fileSetMaps(in.FreshTranscode)

	allFreshSourcePaths := append(keysOf(freshSourceAudio), keysOf(freshSourceData)...)
	projected, err := ProjectAll(allFreshSourcePaths, in.Sets, in.OutputExt)
	if err != nil {
		return nil, err
	}

	cs := &AlbumChangeSet{}

	cs.Added.Audio = pairsFor(setSub(freshSourceAudio, savedSourceAudio), projected)
	cs.Added.Data = pairsFor(setSub(freshSourceData, savedSourceData), projected)

	epsilon := in.Epsilon
	if epsilon <= 0 {
		epsilon = fingerprint.DefaultEpsilon
	}

	changedAudio := filterChanged(setIntersect(freshSourceAudio, savedSourceAudio), savedSourceAudio, freshSourceAudio, epsilon)
	changedData := filterChanged(setIntersect(freshSourceData, savedSourceData), savedSourceData, freshSourceData, epsilon)
	cs.Changed.Audio = pairsFor(changedAudio, projected)
	cs.Changed.Data = pairsFor(changedData, projected)

	unchangedAudio := filterUnchanged(setIntersect(freshSourceAudio, savedSourceAudio), savedSourceAudio, freshSourceAudio, epsilon)
	unchangedData := filterUnchanged(setIntersect(freshSourceData, savedSourceData), savedSourceData, freshSourceData, epsilon)

	removedRawAudio := setSub(savedSourceAudio, freshSourceAudio)
	removedRawData := setSub(savedSourceData, freshSourceData)
	cs.Removed.Audio = removedThatStillExist(removedRawAudio, in.Sets, in.OutputExt, freshTranscodeAudio)
	cs.Removed.Data = removedThatStillExist(removedRawData, in.Sets, in.OutputExt, freshTranscodeData)

	cs.Missing.Audio = missingFromTranscoded(unchangedAudio, projected, freshTranscodeAudio)
	cs.Missing.Data = missingFromTranscoded(unchangedData, projected, freshTranscodeData)

	expectedTranscoded := make(map[string]struct{}, len(projected))
	for _, t := range projected {
		expectedTranscoded[t] = struct{}{}
	}
	cs.Excess = excessFiles(freshTranscodeAudio, freshTranscodeData, savedTranscodeAudio, savedTranscodeData, expectedTranscoded, in.Sets)

	sortChangeSet(cs)
	return cs, nil
}

func savedSourceFileSet(m *manifest.SourceManifest) manifest.FileSet {
	if m == nil {
		return manifest.FileSet{AudioFiles: map[string]manifest.Fingerprint{}, DataFiles: map[string]manifest.Fingerprint{}}
	}
	return m.TrackedFiles
}

func savedTranscodeFileSet(m *manifest.TranscodeManifest) manifest.FileSet {
	if m == nil {
		return manifest.FileSet{AudioFiles: map[string]manifest.Fingerprint{}, DataFiles: map[string]manifest.Fingerprint{}}
	}
	return m.TranscodedFiles
}

func fileSetMaps(fs manifest.FileSet) (map[string]manifest.Fingerprint, map[string]manifest.Fingerprint) {
	audio := fs.AudioFiles
	data := fs.DataFiles
	if audio == nil {
		audio = map[string]manifest.Fingerprint{}
	}
	if data == nil {
		data = map[string]manifest.Fingerprint{}
	}
	return audio, data
}

func keysOf(m map[string]manifest.Fingerprint) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func setSub(a, b map[string]manifest.Fingerprint) []string {
	var out []string
	for k := range a {
		if _, ok := b[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

func setIntersect(a, b map[string]manifest.Fingerprint) []string {
	var out []string
	for k := range a {
		if _, ok := b[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

func filterChanged(keys []string, saved, fresh map[string]manifest.Fingerprint, epsilon time.Duration) []string {
	var out []string
	for _, k := range keys {
		if !fingerprint.Matches(manifest.ToFingerprint(saved[k]), manifest.ToFingerprint(fresh[k]), epsilon) {
			out = append(out, k)
		}
	}
	return out
}

func filterUnchanged(keys []string, saved, fresh map[string]manifest.Fingerprint, epsilon time.Duration) []string {
	var out []string
	for _, k := range keys {
		if fingerprint.Matches(manifest.ToFingerprint(saved[k]), manifest.ToFingerprint(fresh[k]), epsilon) {
			out = append(out, k)
		}
	}
	return out
}

func pairsFor(sourceRelPaths []string, projected map[string]string) []FilePair {
	out := make([]FilePair, 0, len(sourceRelPaths))
	for _, p := range sourceRelPaths {
		out = append(out, FilePair{SourceRelPath: p, TranscodedRelPath: projected[p]})
	}
	return out
}

// removedThatStillExist keeps only the source paths from removedRaw whose
// projected transcoded counterpart is still present in freshTranscoded —
// there is nothing to clean up for a source file whose transcoded copy was
// already gone.
func removedThatStillExist(removedRaw []string, sets classify.ExtensionSets, outputExt string, freshTranscoded map[string]manifest.Fingerprint) []FilePair {
	var out []FilePair
	for _, p := range removedRaw {
		t := Project(p, sets, outputExt)
		if _, ok := freshTranscoded[t]; ok {
			out = append(out, FilePair{SourceRelPath: p, TranscodedRelPath: t})
		}
	}
	return out
}

func missingFromTranscoded(unchanged []string, projected map[string]string, freshTranscoded map[string]manifest.Fingerprint) []FilePair {
	var out []FilePair
	for _, p := range unchanged {
		t := projected[p]
		if _, ok := freshTranscoded[t]; !ok {
			out = append(out, FilePair{SourceRelPath: p, TranscodedRelPath: t})
		}
	}
	return out
}

func excessFiles(freshAudio, freshData, savedAudio, savedData map[string]manifest.Fingerprint, expected map[string]struct{}, sets classify.ExtensionSets) ExcessGroup {
	fresh := make(map[string]struct{}, len(freshAudio)+len(freshData))
	for k := range freshAudio {
		fresh[k] = struct{}{}
	}
	for k := range freshData {
		fresh[k] = struct{}{}
	}
	saved := make(map[string]struct{}, len(savedAudio)+len(savedData))
	for k := range savedAudio {
		saved[k] = struct{}{}
	}
	for k := range savedData {
		saved[k] = struct{}{}
	}

	var group ExcessGroup
	for k := range fresh {
		if _, ok := saved[k]; ok {
			continue
		}
		if _, ok := expected[k]; ok {
			continue
		}
		pair := FilePair{TranscodedRelPath: k}
		switch sets.Classify(k) {
		case classify.Audio:
			group.Audio = append(group.Audio, pair)
		case classify.Data:
			group.Data = append(group.Data, pair)
		default:
			group.Unknown = append(group.Unknown, pair)
		}
	}
	return group
}

func sortChangeSet(cs *AlbumChangeSet) {
	sortPairs(cs.Added.Audio)
	sortPairs(cs.Added.Data)
	sortPairs(cs.Changed.Audio)
	sortPairs(cs.Changed.Data)
	sortPairs(cs.Removed.Audio)
	sortPairs(cs.Removed.Data)
	sortPairs(cs.Missing.Audio)
	sortPairs(cs.Missing.Data)
	sortPairs(cs.Excess.Audio)
	sortPairs(cs.Excess.Data)
	sortPairs(cs.Excess.Unknown)
}

func sortPairs(pairs []FilePair) {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].SourceRelPath != pairs[j].SourceRelPath {
			return pairs[i].SourceRelPath < pairs[j].SourceRelPath
		}
		return pairs[i].TranscodedRelPath < pairs[j].TranscodedRelPath
	})
}

// EntireAlbumDeletion builds the change set for an album that has vanished
// entirely from the source tree between runs: every transcoded file still on
// disk according to the saved transcode manifest is placed in Removed. If no
// transcode manifest exists (or its schema doesn't match), it returns an
// empty change set — aggsync never deletes files it has no record of having
// produced.
func EntireAlbumDeletion(transcodedAlbumDir string, warn func(error)) (*AlbumChangeSet, error) {
	saved, err := manifest.LoadTranscode(transcodedAlbumDir, warn)
	if err != nil {
		return nil, err
	}
	cs := &AlbumChangeSet{}
	if saved == nil {
		return cs, nil
	}

	for relPath := range saved.TranscodedFiles.AudioFiles {
		if fileExists(filepath.Join(transcodedAlbumDir, relPath)) {
			cs.Removed.Audio = append(cs.Removed.Audio, FilePair{TranscodedRelPath: relPath})
		}
	}
	for relPath := range saved.TranscodedFiles.DataFiles {
		if fileExists(filepath.Join(transcodedAlbumDir, relPath)) {
			cs.Removed.Data = append(cs.Removed.Data, FilePair{TranscodedRelPath: relPath})
		}
	}
	sortChangeSet(cs)
	return cs, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
