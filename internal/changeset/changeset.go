package changeset

import (
	"context"
	"fmt"
	"sort"

	"github.com/arlift/arlift/internal/gitx"
	"github.com/arlift/arlift/internal/tracked"
)

// ChangeSet is the result of comparing the current tracked files against the
// hashes recorded at the last successful deployment. It lives only for the
// duration of one deploy cycle; its effects are persisted through the
// manifest and the tracker.
type ChangeSet struct {
	// Changed holds the relative paths of new or modified files, sorted.
	Changed []string

	// Deleted holds the relative paths that have a stored hash but no
	// longer exist in the tracked set, sorted.
	Deleted []string

	// Hashes maps every currently tracked relative path to its content
	// hash, changed or not. After a successful deploy this becomes the
	// tracker's new hash table.
	Hashes map[string]string

	// Files maps relative paths to the enumerated files.
	Files map[string]tracked.File
}

// HasChanges reports whether the cycle needs to upload anything.
func (cs *ChangeSet) HasChanges() bool {
	return len(cs.Changed) > 0
}

// Resolve hashes every tracked file and classifies it against storedHashes:
// no stored hash means new, a differing hash means modified, a matching hash
// means unchanged. Stored paths absent from the tracked set are deletions.
// A rename shows up as one deletion plus one new file; identical content is
// re-uploaded under the new path.
func Resolve(ctx context.Context, git gitx.Client, files []tracked.File, storedHashes map[string]string) (*ChangeSet, error) {
	cs := &ChangeSet{
		Hashes: make(map[string]string, len(files)),
		Files:  make(map[string]tracked.File, len(files)),
	}

	for _, f := range files {
		hash, err := git.HashObject(ctx, f.AbsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to hash %s: %w", f.RelPath, err)
		}
		cs.Hashes[f.RelPath] = hash
		cs.Files[f.RelPath] = f

		prev, exists := storedHashes[f.RelPath]
		if !exists || prev != hash {
			cs.Changed = append(cs.Changed, f.RelPath)
		}
	}

	for rel := range storedHashes {
		if _, exists := cs.Files[rel]; !exists {
			cs.Deleted = append(cs.Deleted, rel)
		}
	}

	sort.Strings(cs.Changed)
	sort.Strings(cs.Deleted)
	return cs, nil
}
