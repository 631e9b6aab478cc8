// Package job defines the three kinds of filesystem operations aggsync's
// worker pool executes on behalf of an album: transcoding an audio file,
// copying a data file verbatim, and deleting a file that no longer belongs.
// Every constructor validates its preconditions before the job is ever
// queued, so a malformed job never reaches a worker goroutine.
package job

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/cdzombak/aggsync/internal/classify"
)

// ID uniquely identifies one queued job, for correlating JobEvents back to
// the job that produced them.
type ID = uuid.UUID

// Kind identifies which operation a Job performs.
type Kind int

const (
	TranscodeAudio Kind = iota
	CopyData
	Delete
)

func (k Kind) String() string {
	switch k {
	case TranscodeAudio:
		return "transcode"
	case CopyData:
		return "copy"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Job is one unit of work for the worker pool. SourcePath is empty for
// Delete jobs, which only act on TargetPath.
type Job struct {
	ID         ID
	Kind       Kind
	SourcePath string
	TargetPath string

	// FFmpegBinary and FFmpegArgs are populated for TranscodeAudio jobs only;
	// placeholders ({INPUT_FILE}/{OUTPUT_FILE}) are already resolved.
	FFmpegBinary string
	FFmpegArgs   []string
}

// NewTranscodeAudioJob validates that sourcePath has one of the library's
// configured audio extensions and targetPath has the configured ffmpeg
// output extension, then builds the resolved ffmpeg argument list.
func NewTranscodeAudioJob(sourcePath, targetPath string, sets classify.ExtensionSets, ffmpegBinary string, ffmpegArgTemplate []string) (Job, error) {
	if sets.Classify(sourcePath) != classify.Audio {
		return Job{}, fmt.Errorf("invalid source file extension %q: expected a tracked audio extension", classify.Extension(sourcePath))
	}
	if classify.Extension(targetPath) != sets.AudioOutput {
		return Job{}, fmt.Errorf("invalid ffmpeg output file extension %q: expected %q", classify.Extension(targetPath), sets.AudioOutput)
	}

	replacer := strings.NewReplacer("{INPUT_FILE}", sourcePath, "{OUTPUT_FILE}", targetPath)
	args := make([]string, len(ffmpegArgTemplate))
	for i, arg := range ffmpegArgTemplate {
		args[i] = replacer.Replace(arg)
	}

	return Job{
		ID:           uuid.New(),
		Kind:         TranscodeAudio,
		SourcePath:   sourcePath,
		TargetPath:   targetPath,
		FFmpegBinary: ffmpegBinary,
		FFmpegArgs:   args,
	}, nil
}

// NewCopyDataJob validates that sourcePath and targetPath are distinct.
func NewCopyDataJob(sourcePath, targetPath string) (Job, error) {
	if sourcePath == "" || targetPath == "" {
		return Job{}, fmt.Errorf("copy job requires both a source and target path")
	}
	if filepath.Clean(sourcePath) == filepath.Clean(targetPath) {
		return Job{}, fmt.Errorf("copy job source and target are the same path: %q", sourcePath)
	}
	return Job{ID: uuid.New(), Kind: CopyData, SourcePath: sourcePath, TargetPath: targetPath}, nil
}

// NewDeleteJob validates that targetPath is non-empty, absolute, and
// contained within root (internal/albumdriver passes the transcoded album
// directory), rejecting the root itself and any target
// that escapes it via a ".." component — a corrupt or hand-edited manifest
// must never be able to turn into a delete outside the tree it's scoped to.
func NewDeleteJob(root, targetPath string) (Job, error) {
	if targetPath == "" {
		return Job{}, fmt.Errorf("delete job requires a target path")
	}
	if !filepath.IsAbs(targetPath) {
		return Job{}, fmt.Errorf("delete job target path must be absolute: %q", targetPath)
	}
	if root == "" || !filepath.IsAbs(root) {
		return Job{}, fmt.Errorf("delete job requires an absolute root, got %q", root)
	}
	rel, err := filepath.Rel(root, targetPath)
	if err != nil {
		return Job{}, fmt.Errorf("delete job target %q is not under root %q: %w", targetPath, root, err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return Job{}, fmt.Errorf("delete job target %q escapes root %q", targetPath, root)
	}
	return Job{ID: uuid.New(), Kind: Delete, TargetPath: targetPath}, nil
}
