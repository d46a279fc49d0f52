package tracked

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/arlift/arlift/internal/gitx"
)

// Bookkeeping file names written next to the app. They are deploy metadata,
// never payload, and are always excluded from enumeration.
const (
	ManifestFileName  = "arlift.manifest.json"
	TrackerFileName   = "arlift.tracker.json"
	OverridesFileName = "arlift.overrides.json"
)

// File is one deployable file of the application directory.
type File struct {
	RelPath string // forward-slash path relative to the app dir
	AbsPath string // absolute path on disk
}

// IsBookkeepingFile returns true if the relative path names one of the
// deploy metadata files at the app dir root.
func IsBookkeepingFile(relPath string) bool {
	switch relPath {
	case ManifestFileName, TrackerFileName, OverridesFileName:
		return true
	}
	return false
}

// Enumerate lists the deployable files of appDir: the intersection of what
// git tracks and what exists on disk, minus bookkeeping files and any path
// matching an exclude glob. A file on disk that git does not track is
// silently skipped; that is the boundary keeping local-only files (secrets,
// scratch output) out of every deployment. A tracked file missing from disk
// is skipped too, which is how deletions surface downstream.
//
// The result is sorted by relative path so enumeration order is stable.
func Enumerate(ctx context.Context, git gitx.Client, appDir string, excludes []string) ([]File, error) {
	relPaths, err := git.ListTrackedFiles(ctx, appDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked files: %w", err)
	}

	var files []File
	for _, rel := range relPaths {
		if IsBookkeepingFile(rel) {
			continue
		}

		excluded, err := matchesAny(excludes, rel)
		if err != nil {
			return nil, err
		}
		if excluded {
			continue
		}

		abs := filepath.Join(appDir, filepath.FromSlash(rel))
		info, err := os.Stat(abs)
		if err != nil {
			if os.IsNotExist(err) {
				// Tracked but deleted from disk.
				continue
			}
			return nil, fmt.Errorf("failed to stat %s: %w", abs, err)
		}
		if info.IsDir() {
			continue
		}

		files = append(files, File{RelPath: rel, AbsPath: abs})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// RelPathSet projects files onto their relative paths.
func RelPathSet(files []File) map[string]bool {
	set := make(map[string]bool, len(files))
	for _, f := range files {
		set[f.RelPath] = true
	}
	return set
}

// matchesAny checks rel against each doublestar pattern.
func matchesAny(patterns []string, rel string) (bool, error) {
	for _, pattern := range patterns {
		ok, err := doublestar.Match(pattern, rel)
		if err != nil {
			return false, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
