package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cdzombak/aggsync/internal/config"
)

// showConfigCommand is a minimal stand-in for the original program's
// show-config command: it loads and resolves the configuration file and
// prints its shape, without attempting the full schema validation and
// pretty-rendering that command performs upstream (out of scope; see
// spec.md §1).
var showConfigCommand = &cobra.Command{
	Use:   "show-config",
	Short: "Load and print the resolved configuration, without full validation.",
	Args:  cobra.NoArgs,
	RunE:  mainify(runShowConfig),
}

func runShowConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(rootConfig.configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	fmt.Printf("essentials.base_library_path = %s\n", cfg.Essentials.BaseLibraryPath)
	fmt.Printf("essentials.base_tools_path = %s\n", cfg.Essentials.BaseToolsPath)
	fmt.Printf("aggregated_library.path = %s\n", cfg.AggregatedLibrary.Path)
	fmt.Printf("aggregated_library.transcode_threads = %d\n", cfg.AggregatedLibrary.TranscodeThreads)
	fmt.Printf("aggregated_library.failure_max_retries = %d\n", cfg.AggregatedLibrary.FailureMaxRetries)
	fmt.Printf("aggregated_library.failure_delay_seconds = %d\n", cfg.AggregatedLibrary.FailureDelaySeconds)
	fmt.Printf("tools.ffmpeg.binary = %s\n", cfg.Tools.Ffmpeg.Binary)
	fmt.Printf("tools.ffmpeg.audio_transcoding_output_extension = %s\n", cfg.Tools.Ffmpeg.AudioTranscodingOutputExtension)
	fmt.Printf("libraries (%d):\n", len(cfg.Libraries))
	for _, lib := range cfg.Libraries {
		fmt.Printf("  - %s: %s (audio exts %v, data exts %v)\n",
			lib.Name, lib.Path, lib.Transcoding.AudioFileExtensions, lib.Transcoding.OtherFileExtensions)
	}
	return nil
}
