package autorepair

import "fmt"

// FatalError aborts a reconciliation pass. Op names the step that
// failed; Instance is empty for failures not tied to one instance.
type FatalError struct {
	Op       string
	Instance string
	Err      error
}

func (e *FatalError) Error() string {
	if e.Instance == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Instance, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func fatal(op, instance string, err error) error {
	return &FatalError{Op: op, Instance: instance, Err: err}
}
