// Package config loads and resolves aggsync's TOML configuration file:
// essentials (shared base paths), per-library settings, the aggregated
// (transcoded) library, and the ffmpeg tool invocation.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/cdzombak/aggsync/internal/apperr"
)

// Config is the fully resolved configuration: every placeholder substituted,
// paths canonicalized where the original does, and the minimal sanity checks
// applied.
type Config struct {
	Essentials        Essentials
	Libraries         []Library
	AggregatedLibrary AggregatedLibrary
	Tools             Tools
}

type Essentials struct {
	BaseLibraryPath string
	BaseToolsPath   string
}

type Library struct {
	Name                              string
	Path                              string
	IgnoredDirectoriesInBaseDirectory []string
	Validation                        LibraryValidation
	Transcoding                       LibraryTranscoding
}

type LibraryValidation struct {
	AllowedAudioFileExtensions []string
	AllowedOtherFileExtensions []string
	AllowedOtherFilesByName    []string
}

type LibraryTranscoding struct {
	AudioFileExtensions []string
	OtherFileExtensions []string
}

type AggregatedLibrary struct {
	Path                string
	TranscodeThreads    int
	FailureMaxRetries   int
	FailureDelaySeconds int
}

func (a AggregatedLibrary) FailureDelay() time.Duration {
	return time.Duration(a.FailureDelaySeconds) * time.Second
}

type Tools struct {
	Ffmpeg Ffmpeg
}

type Ffmpeg struct {
	Binary                          string
	AudioTranscodingArgs            []string
	AudioTranscodingOutputExtension string
}

// raw mirrors Config but with placeholders unresolved, as read straight off
// disk by BurntSushi/toml.
type raw struct {
	Essentials struct {
		BaseLibraryPath string `toml:"base_library_path"`
		BaseToolsPath   string `toml:"base_tools_path"`
	} `toml:"essentials"`
	Libraries []struct {
		Name                              string   `toml:"name"`
		Path                              string   `toml:"path"`
		IgnoredDirectoriesInBaseDirectory []string `toml:"ignored_directories_in_base_directory"`
		Validation                        struct {
			AllowedAudioFileExtensions []string `toml:"allowed_audio_file_extensions"`
			AllowedOtherFileExtensions []string `toml:"allowed_other_file_extensions"`
			AllowedOtherFilesByName    []string `toml:"allowed_other_files_by_name"`
		} `toml:"validation"`
		Transcoding struct {
			AudioFileExtensions []string `toml:"audio_file_extensions"`
			OtherFileExtensions []string `toml:"other_file_extensions"`
		} `toml:"transcoding"`
	} `toml:"library"`
	AggregatedLibrary struct {
		Path                string `toml:"path"`
		TranscodeThreads    int    `toml:"transcode_threads"`
		FailureMaxRetries   int    `toml:"failure_max_retries"`
		FailureDelaySeconds int    `toml:"failure_delay_seconds"`
	} `toml:"aggregated_library"`
	Tools struct {
		Ffmpeg struct {
			Binary                          string   `toml:"binary"`
			AudioTranscodingArgs            []string `toml:"audio_transcoding_args"`
			AudioTranscodingOutputExtension string   `toml:"audio_transcoding_output_extension"`
		} `toml:"ffmpeg"`
	} `toml:"tools"`
}

// Load reads and resolves the configuration file at path. Placeholder
// resolution runs in this fixed order, mirroring each value's dependency on
// the one before it: {SELF} (executable directory) first, since
// base_library_path/base_tools_path may use it; then {LIBRARY_BASE} and
// {TOOLS_BASE}, since every other path may use those; {DATETIME} last, for
// any path that wants a timestamp baked in (e.g. a log file name).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.ConfigErrorf(err, "reading config file %s", path)
	}

	var r raw
	if _, err := toml.Decode(string(data), &r); err != nil {
		return nil, apperr.ConfigErrorf(err, "parsing config file %s", path)
	}

	selfDir, err := executableDir()
	if err != nil {
		return nil, apperr.ConfigErrorf(err, "determining executable directory")
	}
	now := time.Now()

	resolveSelf := strings.NewReplacer("{SELF}", selfDir).Replace

	baseLibraryPath := resolveSelf(r.Essentials.BaseLibraryPath)
	baseToolsPath := resolveSelf(r.Essentials.BaseToolsPath)

	withBases := strings.NewReplacer(
		"{LIBRARY_BASE}", baseLibraryPath,
		"{TOOLS_BASE}", baseToolsPath,
	).Replace
	withDatetime := strings.NewReplacer("{DATETIME}", now.Format("20060102-150405")).Replace
	resolvePath := func(s string) string { return withDatetime(withBases(s)) }

	cfg := &Config{
		Essentials: Essentials{BaseLibraryPath: baseLibraryPath, BaseToolsPath: baseToolsPath},
	}

	for _, lib := range r.Libraries {
		cfg.Libraries = append(cfg.Libraries, Library{
			Name:                              lib.Name,
			Path:                              resolvePath(lib.Path),
			IgnoredDirectoriesInBaseDirectory: lib.IgnoredDirectoriesInBaseDirectory,
			Validation: LibraryValidation{
				AllowedAudioFileExtensions: lowercaseAll(lib.Validation.AllowedAudioFileExtensions),
				AllowedOtherFileExtensions: lowercaseAll(lib.Validation.AllowedOtherFileExtensions),
				AllowedOtherFilesByName:    lib.Validation.AllowedOtherFilesByName,
			},
			Transcoding: LibraryTranscoding{
				AudioFileExtensions: lowercaseAll(lib.Transcoding.AudioFileExtensions),
				OtherFileExtensions: lowercaseAll(lib.Transcoding.OtherFileExtensions),
			},
		})
	}

	cfg.AggregatedLibrary = AggregatedLibrary{
		Path:                resolvePath(r.AggregatedLibrary.Path),
		TranscodeThreads:    r.AggregatedLibrary.TranscodeThreads,
		FailureMaxRetries:   r.AggregatedLibrary.FailureMaxRetries,
		FailureDelaySeconds: r.AggregatedLibrary.FailureDelaySeconds,
	}
	if cfg.AggregatedLibrary.TranscodeThreads < 1 {
		return nil, apperr.ConfigErrorf(nil, "aggregated_library.transcode_threads must be at least 1, got %d", cfg.AggregatedLibrary.TranscodeThreads)
	}

	cfg.Tools.Ffmpeg = Ffmpeg{
		Binary:                          resolvePath(r.Tools.Ffmpeg.Binary),
		AudioTranscodingArgs:            r.Tools.Ffmpeg.AudioTranscodingArgs,
		AudioTranscodingOutputExtension: strings.ToLower(r.Tools.Ffmpeg.AudioTranscodingOutputExtension),
	}

	return cfg, nil
}

func lowercaseAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(s)
	}
	return out
}

func executableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(exe)
	if err != nil {
		resolved = exe
	}
	return filepath.Dir(resolved), nil
}
