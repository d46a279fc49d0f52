package deploy

import "fmt"

// Phase identifies the orchestration step a failure occurred in. A failed
// deployment always reports its phase; "succeeded" is only ever reported
// once upload, manifest publication and name registration have all
// completed.
type Phase string

const (
	PhaseValidate        Phase = "validate"
	PhaseLoadState       Phase = "load-state"
	PhaseDetectChanges   Phase = "detect-changes"
	PhaseUpload          Phase = "upload"
	PhaseReconcile       Phase = "reconcile-manifest"
	PhasePublishManifest Phase = "publish-manifest"
	PhaseRegisterName    Phase = "register-name"
	PhasePersistState    Phase = "persist-state"
)

// Error is a deployment failure tied to its phase.
type Error struct {
	Phase Phase
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("deployment failed during %s: %v", e.Phase, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// fail wraps err with the phase it occurred in.
func fail(phase Phase, err error) *Error {
	return &Error{Phase: phase, Err: err}
}

// failf is fail with formatting.
func failf(phase Phase, format string, args ...any) *Error {
	return &Error{Phase: phase, Err: fmt.Errorf(format, args...)}
}
