package deploy

// Status is the outcome of a deployment that did not fail.
type Status string

const (
	// StatusSkipped means change detection found nothing to upload and the
	// cycle stopped without writing anything, not even a timestamp.
	StatusSkipped Status = "skipped"

	// StatusSucceeded means upload, manifest publication and name
	// registration all completed.
	StatusSucceeded Status = "succeeded"
)

// Stats summarizes the work one deployment performed.
type Stats struct {
	FilesTracked  int
	FilesUploaded int
	BytesUploaded int64
	FilesDeleted  int
}

// Result describes a finished deployment cycle. Failures are reported
// through the *Error returned alongside, never through Result.
type Result struct {
	Status    Status
	Reference string

	// SkipReason is set when Status is StatusSkipped.
	SkipReason string

	// ManifestAddress is the content address of the published manifest.
	ManifestAddress string

	// Name is the registry name pointing at the manifest.
	Name string

	ChangedPaths []string
	Stats        Stats

	// DryRun marks a simulated deployment: placeholder addresses, no
	// registry write, no state persisted.
	DryRun bool
}
