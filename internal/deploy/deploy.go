package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/arlift/arlift/internal/changeset"
	"github.com/arlift/arlift/internal/config"
	"github.com/arlift/arlift/internal/gitx"
	"github.com/arlift/arlift/internal/manifest"
	"github.com/arlift/arlift/internal/registry"
	"github.com/arlift/arlift/internal/store"
	"github.com/arlift/arlift/internal/tracked"
	"github.com/arlift/arlift/internal/tracker"
)

// manifestContentType tags the published manifest blob so gateways can tell
// it apart from payload files.
const manifestContentType = "application/x.arlift-manifest+json"

// Engine orchestrates one deployment cycle: detect changes against the
// tracker, upload changed files, reconcile and publish the manifest,
// register the commit-derived name, then persist state. All collaborators
// are injected so tests can substitute fakes.
//
// The engine holds no lock of its own. Two concurrent runs for the same app
// may both upload (wasted cost, not corruption); production setups should
// wrap one app's deployment in an external advisory lock.
type Engine struct {
	cfg    *config.Config
	appDir string
	git    gitx.Client
	store  store.ContentStore
	reg    registry.NameRegistry
	logger *slog.Logger
	dryRun bool
	now    func() time.Time
}

// NewEngine creates a deployment engine for the app directory. An empty
// appDir falls back to the configured one.
func NewEngine(cfg *config.Config, appDir string, gitClient gitx.Client, contentStore store.ContentStore, reg registry.NameRegistry, logger *slog.Logger, dryRun bool) *Engine {
	if appDir == "" {
		appDir = cfg.App.Dir
	}
	return &Engine{
		cfg:    cfg,
		appDir: appDir,
		git:    gitClient,
		store:  contentStore,
		reg:    reg,
		logger: logger,
		dryRun: dryRun,
		now:    time.Now,
	}
}

func (e *Engine) manifestPath() string {
	return filepath.Join(e.appDir, tracked.ManifestFileName)
}

func (e *Engine) trackerPath() string {
	return filepath.Join(e.appDir, tracked.TrackerFileName)
}

func (e *Engine) overridesPath() string {
	return filepath.Join(e.appDir, tracked.OverridesFileName)
}

// Deploy runs the full cycle. A nil error means the result is either
// skipped or succeeded; a non-nil error is always a *Error naming the
// failed phase, and the tracker file on disk is guaranteed untouched so a
// retry recomputes the same changed set.
func (e *Engine) Deploy(ctx context.Context) (*Result, error) {
	e.logger.Info("starting deployment",
		"app_dir", e.appDir,
		"dry_run", e.dryRun)

	// Validating
	isWorkTree, err := e.git.IsWorkTree(ctx, e.appDir)
	if err != nil {
		return nil, fail(PhaseValidate, err)
	}
	if !isWorkTree {
		return nil, failf(PhaseValidate, "%s is not inside a git working tree", e.appDir)
	}

	reference, err := e.git.Head(ctx, e.appDir)
	if err != nil {
		return nil, fail(PhaseValidate, err)
	}

	files, err := tracked.Enumerate(ctx, e.git, e.appDir, e.cfg.App.Exclude)
	if err != nil {
		return nil, fail(PhaseValidate, err)
	}
	if len(files) == 0 {
		return nil, failf(PhaseValidate, "no tracked files in %s, nothing to deploy", e.appDir)
	}

	overrides := manifest.LoadOverrides(e.overridesPath(), e.logger)
	if _, err := manifest.ResolveEntryPoint(files, overrides); err != nil {
		return nil, fail(PhaseValidate, err)
	}

	// Load prior state before touching the network so a corrupt file fails
	// the run while it is still free.
	current, err := manifest.Load(e.manifestPath())
	if err != nil {
		return nil, fail(PhaseLoadState, err)
	}
	track, err := tracker.Load(e.trackerPath())
	if err != nil {
		return nil, fail(PhaseLoadState, err)
	}

	// DetectingChanges
	cs, err := changeset.Resolve(ctx, e.git, files, track.FileHashes)
	if err != nil {
		return nil, fail(PhaseDetectChanges, err)
	}

	e.logger.Info("change detection complete",
		"reference", reference,
		"tracked", len(files),
		"changed", len(cs.Changed),
		"deleted", len(cs.Deleted))

	if !cs.HasChanges() {
		e.logger.Info("no changed files, skipping deployment", "reference", reference)
		return &Result{
			Status:     StatusSkipped,
			Reference:  reference,
			SkipReason: "no file changes since last deployment",
			Stats:      Stats{FilesTracked: len(files), FilesDeleted: len(cs.Deleted)},
			DryRun:     e.dryRun,
		}, nil
	}

	// Uploading
	uploaded, bytesUploaded, err := e.uploadChanged(ctx, cs)
	if err != nil {
		return nil, fail(PhaseUpload, err)
	}

	// ReconcilingManifest
	next, err := manifest.Reconcile(current, uploaded, files, overrides, e.logger)
	if err != nil {
		return nil, fail(PhaseReconcile, err)
	}

	// PublishingManifest: the manifest itself is one more content-addressed
	// blob, tagged as a manifest.
	manifestData, err := next.Bytes()
	if err != nil {
		return nil, fail(PhasePublishManifest, err)
	}
	manifestAddr, err := e.store.Upload(ctx, manifestData, manifestContentType, []store.Tag{
		{Name: "Type", Value: "manifest"},
		{Name: "Git-Reference", Value: reference},
	})
	if err != nil {
		return nil, fail(PhasePublishManifest, err)
	}

	name := e.deploymentName(reference)

	result := &Result{
		Status:          StatusSucceeded,
		Reference:       reference,
		ManifestAddress: manifestAddr,
		Name:            name,
		ChangedPaths:    cs.Changed,
		Stats: Stats{
			FilesTracked:  len(files),
			FilesUploaded: len(uploaded),
			BytesUploaded: bytesUploaded,
			FilesDeleted:  len(cs.Deleted),
		},
		DryRun: e.dryRun,
	}

	if e.dryRun {
		e.logger.Info("dry-run complete, no name registered and no state written",
			"reference", reference,
			"name", name,
			"manifest_address", manifestAddr,
			"uploaded", len(uploaded))
		return result, nil
	}

	// RegisteringName
	if err := e.registerName(ctx, name, manifestAddr); err != nil {
		return nil, fail(PhaseRegisterName, err)
	}

	// PersistingState: manifest first, then the tracker. The tracker write
	// is the commit point; anything failing before it leaves the prior
	// tracker byte-identical on disk.
	if err := next.Save(e.manifestPath()); err != nil {
		return nil, fail(PhasePersistState, err)
	}
	track.RecordDeployment(reference, manifestAddr, cs.Hashes, cs.Changed, e.now(), e.cfg.Sync.HistoryLimit)
	if err := track.Save(e.trackerPath()); err != nil {
		return nil, fail(PhasePersistState, err)
	}

	e.logger.Info("deployment succeeded",
		"reference", reference,
		"name", name,
		"manifest_address", manifestAddr,
		"uploaded", len(uploaded),
		"bytes", bytesUploaded,
		"deployment_count", track.DeploymentCount)
	return result, nil
}

// uploadChanged uploads every changed file one at a time and returns the
// path to address mapping. Files already uploaded when a later one fails
// stay orphaned in the store; permanent storage cannot take them back.
func (e *Engine) uploadChanged(ctx context.Context, cs *changeset.ChangeSet) (map[string]string, int64, error) {
	uploaded := make(map[string]string, len(cs.Changed))
	var total int64

	for _, rel := range cs.Changed {
		f := cs.Files[rel]
		data, err := os.ReadFile(f.AbsPath)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read %s: %w", rel, err)
		}

		addr, err := e.store.Upload(ctx, data, contentTypeFor(rel), []store.Tag{
			{Name: "Type", Value: "file"},
			{Name: "Content-Path", Value: rel},
		})
		if err != nil {
			return nil, 0, fmt.Errorf("failed to upload %s: %w", rel, err)
		}

		e.logger.Info("uploaded file", "path", rel, "address", addr, "bytes", len(data))
		uploaded[rel] = addr
		total += int64(len(data))
	}

	return uploaded, total, nil
}

// registerName points the deployment name at the manifest address. A name
// that already exists is treated as an idempotent re-deploy of the same
// commit. A timed-out write gets exactly one verification lookup: slow
// registries often commit the record anyway, and a blind retry could only
// manufacture a duplicate-name conflict.
func (e *Engine) registerName(ctx context.Context, name, manifestAddr string) error {
	createCtx, cancel := context.WithTimeout(ctx, e.cfg.RegistryTimeout())
	defer cancel()

	recordID, err := e.reg.Create(createCtx, name, manifestAddr, e.cfg.Registry.TTLSeconds)
	if err == nil {
		e.logger.Info("registered deployment name", "name", name, "record_id", recordID)
		return nil
	}

	if errors.Is(err, registry.ErrNameExists) {
		e.logger.Warn("deployment name already registered, treating as success", "name", name)
		return nil
	}

	if registry.IsTimeout(err) {
		e.logger.Warn("registry write timed out, verifying with a lookup", "name", name)

		verifyCtx, cancelVerify := context.WithTimeout(ctx, e.cfg.RegistryTimeout())
		defer cancelVerify()

		_, found, lookupErr := e.reg.Lookup(verifyCtx, name)
		if lookupErr == nil && found {
			e.logger.Info("registry record exists despite timeout, treating as success", "name", name)
			return nil
		}
		if lookupErr != nil {
			return fmt.Errorf("registry write timed out and verification lookup failed: %w", lookupErr)
		}
		return fmt.Errorf("registry write timed out and no record found on verification: %w", err)
	}

	return err
}

// deploymentName derives the registry name from the commit reference:
// configured prefix (or the app dir's base name) plus the short commit.
func (e *Engine) deploymentName(reference string) string {
	prefix := e.cfg.Registry.NamePrefix
	if prefix == "" {
		prefix = filepath.Base(e.appDir)
	}

	short := reference
	if len(short) > 8 {
		short = short[:8]
	}
	return prefix + "-" + short
}

// contentTypeFor guesses the MIME type from the file extension.
func contentTypeFor(relPath string) string {
	if ct := mime.TypeByExtension(path.Ext(relPath)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
