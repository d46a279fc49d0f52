package manifest

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arlift/arlift/internal/tracked"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func fileSet(rels ...string) []tracked.File {
	files := make([]tracked.File, 0, len(rels))
	for _, rel := range rels {
		files = append(files, tracked.File{RelPath: rel, AbsPath: "/app/" + rel})
	}
	return files
}

func TestLoad_MissingFileYieldsEmptyManifest(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "arlift.manifest.json"))
	require.NoError(t, err)

	assert.Equal(t, SpecVersion, m.SpecVersion)
	assert.Empty(t, m.Paths)
	assert.Empty(t, m.EntryPoint)
}

func TestLoad_MalformedManifestIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arlift.manifest.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arlift.manifest.json")

	m := New()
	m.EntryPoint = "index.html"
	m.Paths["index.html"] = "addr-1"
	m.Paths["assets/app.js"] = "addr-2"
	require.NoError(t, m.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, m, loaded)
}

func TestManifestSerialization(t *testing.T) {
	m := New()
	m.EntryPoint = "index.html"
	m.Paths["index.html"] = "addr-index"
	m.Paths["assets/app.js"] = "addr-js"

	data, err := m.Bytes()
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "manifest", data)
}

func TestResolveEntryPoint_OverrideWins(t *testing.T) {
	ov := &Overrides{EntryPoint: "custom/start.html"}
	ep, err := ResolveEntryPoint(fileSet("index.html", "app.js"), ov)
	require.NoError(t, err)
	assert.Equal(t, "custom/start.html", ep)
}

func TestResolveEntryPoint_ConventionalPriority(t *testing.T) {
	ep, err := ResolveEntryPoint(fileSet("default.html", "index.htm", "index.html"), nil)
	require.NoError(t, err)
	assert.Equal(t, "index.html", ep)

	ep, err = ResolveEntryPoint(fileSet("default.html", "index.htm"), nil)
	require.NoError(t, err)
	assert.Equal(t, "index.htm", ep)

	ep, err = ResolveEntryPoint(fileSet("default.html", "zz.html"), nil)
	require.NoError(t, err)
	assert.Equal(t, "default.html", ep)
}

func TestResolveEntryPoint_FallsBackToFirstTrackedFile(t *testing.T) {
	ep, err := ResolveEntryPoint(fileSet("app.js", "readme.md"), nil)
	require.NoError(t, err)
	assert.Equal(t, "app.js", ep)
}

func TestResolveEntryPoint_NoFilesFails(t *testing.T) {
	_, err := ResolveEntryPoint(nil, nil)
	require.Error(t, err)

	// An override still resolves even with no tracked files.
	ep, err := ResolveEntryPoint(nil, &Overrides{EntryPoint: "hosted.html"})
	require.NoError(t, err)
	assert.Equal(t, "hosted.html", ep)
}

func TestReconcile_AppliesUploads(t *testing.T) {
	current := New()
	current.EntryPoint = "index.html"
	current.Paths["index.html"] = "addr-old"
	current.Paths["app.js"] = "addr-js"

	uploaded := map[string]string{"index.html": "addr-new"}

	next, err := Reconcile(current, uploaded, fileSet("app.js", "index.html"), nil, testLogger())
	require.NoError(t, err)

	assert.Equal(t, SpecVersion, next.SpecVersion)
	assert.Equal(t, "index.html", next.EntryPoint)
	assert.Equal(t, "addr-new", next.Paths["index.html"])
	assert.Equal(t, "addr-js", next.Paths["app.js"])
}

func TestReconcile_DropsStaleEntries(t *testing.T) {
	current := New()
	current.Paths["index.html"] = "addr-index"
	current.Paths["removed.css"] = "addr-gone"

	next, err := Reconcile(current, nil, fileSet("index.html"), nil, testLogger())
	require.NoError(t, err)

	assert.NotContains(t, next.Paths, "removed.css")
	assert.Contains(t, next.Paths, "index.html")
}

func TestReconcile_OverridePrecedence(t *testing.T) {
	current := New()

	uploaded := map[string]string{"widget.js": "addr-Y"}
	ov := &Overrides{Paths: map[string]string{"widget.js": "addr-Z"}}

	next, err := Reconcile(current, uploaded, fileSet("index.html", "widget.js"), ov, testLogger())
	require.NoError(t, err)

	assert.Equal(t, "addr-Z", next.Paths["widget.js"])
}

func TestReconcile_EntryPointFollowsRename(t *testing.T) {
	// Previous deploy served index.html; the file was renamed to index.htm.
	current := New()
	current.EntryPoint = "index.html"
	current.Paths["index.html"] = "addr-old"

	uploaded := map[string]string{"index.htm": "addr-renamed"}

	next, err := Reconcile(current, uploaded, fileSet("index.htm"), nil, testLogger())
	require.NoError(t, err)

	assert.Equal(t, "index.htm", next.EntryPoint)
	assert.NotContains(t, next.Paths, "index.html")
	assert.Equal(t, "addr-renamed", next.Paths["index.htm"])
}

func TestReconcile_EmptyTrackedSetWithOverrideEntryPoint(t *testing.T) {
	current := New()
	current.Paths["index.html"] = "addr-old"

	ov := &Overrides{EntryPoint: "hosted.html", Paths: map[string]string{"hosted.html": "addr-ext"}}

	next, err := Reconcile(current, nil, nil, ov, testLogger())
	require.NoError(t, err)

	assert.Equal(t, "hosted.html", next.EntryPoint)
	assert.Equal(t, map[string]string{"hosted.html": "addr-ext"}, next.Paths)
}

func TestLoadOverrides_Missing(t *testing.T) {
	ov := LoadOverrides(filepath.Join(t.TempDir(), "arlift.overrides.json"), testLogger())
	assert.Empty(t, ov.EntryPoint)
	assert.Empty(t, ov.Paths)
}

func TestLoadOverrides_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arlift.overrides.json")
	require.NoError(t, os.WriteFile(path, []byte("]["), 0644))

	ov := LoadOverrides(path, testLogger())
	assert.Empty(t, ov.Paths)
}

func TestLoadOverrides_Valid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arlift.overrides.json")
	content := `{"entry_point": "start.html", "paths": {"logo.svg": "addr-logo"}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	ov := LoadOverrides(path, testLogger())
	assert.Equal(t, "start.html", ov.EntryPoint)
	assert.Equal(t, "addr-logo", ov.Paths["logo.svg"])
}
