package changeset

import (
	"github.com/cdzombak/aggsync/internal/apperr"
	"github.com/cdzombak/aggsync/internal/classify"
	"github.com/cdzombak/aggsync/internal/dzutil"
)

// Project computes π: the transcoded-relative path a source-relative path
// maps to. Audio files have their extension replaced with outputExt; data
// files are carried through unchanged.
func Project(sourceRelPath string, sets classify.ExtensionSets, outputExt string) string {
	if sets.Classify(sourceRelPath) != classify.Audio {
		return sourceRelPath
	}
	return dzutil.RemoveExt(sourceRelPath) + "." + outputExt
}

// ProjectAll applies Project to every path in sourceRelPaths and returns the
// resulting source→transcoded map. It reports a ProjectionCollision if two
// distinct source paths project to the same transcoded path, since that
// would make the reverse mapping (needed to undo a transcode) ambiguous.
func ProjectAll(sourceRelPaths []string, sets classify.ExtensionSets, outputExt string) (map[string]string, error) {
	forward := make(map[string]string, len(sourceRelPaths))
	seen := make(map[string]string, len(sourceRelPaths))
	for _, p := range sourceRelPaths {
		t := Project(p, sets, outputExt)
		if existing, ok := seen[t]; ok && existing != p {
			return nil, apperr.ProjectionCollisionf("both %q and %q project to %q", existing, p, t)
		}
		seen[t] = p
		forward[p] = t
	}
	return forward, nil
}
