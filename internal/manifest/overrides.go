package manifest

import (
	"encoding/json"
	"log/slog"
	"os"
)

// Overrides are operator-authored manifest entries loaded from an optional
// side file in the app dir. They point paths (or the entry point) at
// pre-existing content addresses, letting a deployment reference external
// content without uploading anything for it.
type Overrides struct {
	EntryPoint string            `json:"entry_point,omitempty"`
	Paths      map[string]string `json:"paths,omitempty"`
}

// LoadOverrides reads the override file at path. A missing file means no
// overrides. A malformed file is logged and treated as empty: a broken
// override file must never block a deployment on its own.
func LoadOverrides(path string, logger *slog.Logger) *Overrides {
	empty := &Overrides{Paths: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to read override file, proceeding without overrides", "path", path, "error", err)
		}
		return empty
	}

	var ov Overrides
	if err := json.Unmarshal(data, &ov); err != nil {
		logger.Warn("malformed override file, proceeding without overrides", "path", path, "error", err)
		return empty
	}
	if ov.Paths == nil {
		ov.Paths = make(map[string]string)
	}
	return &ov
}
