package gitx

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Client provides the git operations the deploy engine needs: working-tree
// validation, the current commit, the tracked file listing and per-blob
// content hashing.
type Client interface {
	// IsWorkTree reports whether dir belongs to a git working tree.
	IsWorkTree(ctx context.Context, dir string) (bool, error)

	// Head returns the full commit hash the working tree is checked out at.
	Head(ctx context.Context, dir string) (string, error)

	// ListTrackedFiles returns the paths of all files git tracks under dir,
	// relative to dir, using forward slashes. Files that are tracked but
	// deleted from the index are still reported; callers filter on disk
	// presence.
	ListTrackedFiles(ctx context.Context, dir string) ([]string, error)

	// HashObject returns git's blob hash for the file's current content.
	// The hash depends only on the bytes, never on metadata, so identical
	// content hashes identically on every host.
	HashObject(ctx context.Context, path string) (string, error)
}

// ShellClient implements Client by shelling out to the git command
type ShellClient struct{}

// NewShellClient creates a new git client that uses the git command
func NewShellClient() *ShellClient {
	return &ShellClient{}
}

// IsWorkTree checks dir against rev-parse --is-inside-work-tree. A git exit
// failure (not a repository) is reported as false, not as an error; only
// unexpected output becomes an error.
func (c *ShellClient) IsWorkTree(ctx context.Context, dir string) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "rev-parse", "--is-inside-work-tree")
	output, err := cmd.Output()
	if err != nil {
		return false, nil
	}
	return strings.TrimSpace(string(output)) == "true", nil
}

// Head returns the commit hash of HEAD in the working tree containing dir.
func (c *ShellClient) Head(ctx context.Context, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "rev-parse", "HEAD")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w: %s", err, string(output))
	}
	return strings.TrimSpace(string(output)), nil
}

// ListTrackedFiles runs ls-files with NUL termination so paths containing
// newlines or non-ASCII bytes come through unmangled.
func (c *ShellClient) ListTrackedFiles(ctx context.Context, dir string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "ls-files", "-z")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git ls-files failed: %w", err)
	}

	var files []string
	for _, entry := range strings.Split(string(output), "\x00") {
		if entry == "" {
			continue
		}
		files = append(files, entry)
	}
	return files, nil
}

// HashObject computes the blob hash of the file at path without writing
// anything to the object database.
func (c *ShellClient) HashObject(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "hash-object", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git hash-object failed for %s: %w: %s", path, err, string(output))
	}
	return strings.TrimSpace(string(output)), nil
}
