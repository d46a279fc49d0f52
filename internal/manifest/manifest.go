package manifest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/arlift/arlift/internal/fsutil"
	"github.com/arlift/arlift/internal/tracked"
)

// SpecVersion is the wire-format version of the manifest file. It identifies
// the format, not the app, and is never derived from the deployment count.
const SpecVersion = "1"

// entryPointCandidates is the fixed-priority list of conventional entry
// point filenames tried when no override names one.
var entryPointCandidates = []string{"index.html", "index.htm", "default.html"}

// Manifest maps the relative paths of one published app version to their
// permanent content addresses.
type Manifest struct {
	SpecVersion string            `json:"spec_version"`
	EntryPoint  string            `json:"entry_point"`
	Paths       map[string]string `json:"paths"`
}

// New returns an empty manifest for a first deployment.
func New() *Manifest {
	return &Manifest{
		SpecVersion: SpecVersion,
		Paths:       make(map[string]string),
	}
}

// Load reads the manifest file at path. A missing file yields an empty
// manifest (first deployment); unreadable or malformed JSON is an error the
// operator must resolve, never silently replaced, because fabricating a
// fresh manifest risks serving wrong content.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest file %s: %w", path, err)
	}
	if m.Paths == nil {
		m.Paths = make(map[string]string)
	}
	return &m, nil
}

// Save writes the manifest as indented JSON via a temp file and rename, so a
// reader never observes a partially written manifest.
func (m *Manifest) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, data)
}

// Bytes returns the serialized manifest exactly as Save writes it. The same
// bytes are uploaded to the content store.
func (m *Manifest) Bytes() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// ResolveEntryPoint picks the file served by default: the override's entry
// point if set, else the first conventional filename present among the
// tracked files, else the first tracked file in enumeration order. With no
// tracked files and no override there is nothing to serve.
func ResolveEntryPoint(files []tracked.File, ov *Overrides) (string, error) {
	if ov != nil && ov.EntryPoint != "" {
		return ov.EntryPoint, nil
	}

	present := tracked.RelPathSet(files)
	for _, candidate := range entryPointCandidates {
		if present[candidate] {
			return candidate, nil
		}
	}

	if len(files) > 0 {
		return files[0].RelPath, nil
	}
	return "", fmt.Errorf("no entry point resolvable: app has no tracked files")
}

// Reconcile produces the next manifest from the previous one: stale entries
// for files no longer tracked are dropped (each with a diagnostic log line,
// since a dropped entry can also mean a hand-edited manifest healing
// itself), newly uploaded addresses overwrite prior ones, and manual
// overrides are applied last so they always win.
func Reconcile(current *Manifest, uploaded map[string]string, files []tracked.File, ov *Overrides, logger *slog.Logger) (*Manifest, error) {
	entryPoint, err := ResolveEntryPoint(files, ov)
	if err != nil {
		return nil, err
	}

	next := New()
	next.EntryPoint = entryPoint

	present := tracked.RelPathSet(files)
	for rel, addr := range current.Paths {
		if !present[rel] {
			logger.Info("dropping stale manifest entry", "path", rel, "address", addr)
			continue
		}
		next.Paths[rel] = addr
	}

	for rel, addr := range uploaded {
		next.Paths[rel] = addr
	}

	if ov != nil {
		for rel, addr := range ov.Paths {
			next.Paths[rel] = addr
		}
	}

	return next, nil
}
