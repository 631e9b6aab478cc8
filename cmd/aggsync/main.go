// Command aggsync reconciles a derived, transcoded audio library against one
// or more curated source libraries: it transcodes audio files into a single
// configured output codec, copies everything else verbatim, and deletes
// whatever no longer belongs, using a persisted two-manifest diff so repeat
// runs only touch what actually changed.
package main

import (
	"os"

	"github.com/cdzombak/aggsync/internal/uiout"
)

func main() {
	if err := rootCommand.Execute(); err != nil {
		uiout.ShowTerminalCursor()
		os.Exit(1)
	}
	os.Exit(exitCode)
}
