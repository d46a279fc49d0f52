package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/arlift/arlift/internal/fsutil"
)

// DefaultHistoryLimit caps the recent-deployment audit list.
const DefaultHistoryLimit = 20

// Tracker is the durable memory of prior deployments for one app. It is read
// at the start of every cycle and fully rewritten only after a successful
// one; a failed deployment leaves it byte-identical on disk.
type Tracker struct {
	// LastDeployedReference is the commit at the last successful
	// deployment; empty means the app has never been deployed.
	LastDeployedReference string `json:"last_deployed_reference,omitempty"`

	// FileHashes maps every tracked relative path to the content hash it
	// had when last deployed.
	FileHashes map[string]string `json:"file_hashes"`

	// DeploymentCount increases by one per successful deployment.
	DeploymentCount int `json:"deployment_count"`

	LastDeployedAt time.Time `json:"last_deployed_at"`

	// RecentDeployments is a bounded audit trail, most recent last. It is
	// never read back for change detection.
	RecentDeployments []Record `json:"recent_deployments"`
}

// Record is one entry of the deployment audit trail.
type Record struct {
	ID              string    `json:"id"`
	Reference       string    `json:"reference"`
	ContentAddress  string    `json:"content_address"`
	ChangedPaths    []string  `json:"changed_paths"`
	Timestamp       time.Time `json:"timestamp"`
}

// New returns an empty tracker for a never-deployed app.
func New() *Tracker {
	return &Tracker{
		FileHashes: make(map[string]string),
	}
}

// Load reads the tracker file at path. Missing file means never deployed;
// malformed JSON is fatal and left to the operator, since guessing prior
// hashes would re-upload everything or, worse, skip real changes.
func Load(path string) (*Tracker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("failed to read tracker file: %w", err)
	}

	var t Tracker
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse tracker file %s: %w", path, err)
	}
	if t.FileHashes == nil {
		t.FileHashes = make(map[string]string)
	}
	return &t, nil
}

// Save persists the tracker as indented JSON with an atomic whole-file
// rewrite.
func (t *Tracker) Save(path string) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, data)
}

// RecordDeployment folds one successful deployment into the tracker: the new
// hash table replaces the old one wholesale, the counter and timestamp
// advance, and the audit trail gains a record, trimmed to historyLimit from
// the front.
func (t *Tracker) RecordDeployment(reference, manifestAddress string, hashes map[string]string, changedPaths []string, now time.Time, historyLimit int) {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}

	t.LastDeployedReference = reference
	t.FileHashes = hashes
	t.DeploymentCount++
	t.LastDeployedAt = now

	t.RecentDeployments = append(t.RecentDeployments, Record{
		ID:             uuid.NewString(),
		Reference:      reference,
		ContentAddress: manifestAddress,
		ChangedPaths:   changedPaths,
		Timestamp:      now,
	})
	if len(t.RecentDeployments) > historyLimit {
		t.RecentDeployments = t.RecentDeployments[len(t.RecentDeployments)-historyLimit:]
	}
}
