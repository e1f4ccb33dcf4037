package kernel

import "fmt"

// SystemStepError wraps a failure inside a system anchor step
// (START_TX/END_TX), so infrastructure failures are distinguishable
// from business-logic failures raised by handlers.
type SystemStepError struct {
	Phase string
	Step  string
	Err   error
}

func (e *SystemStepError) Error() string {
	return fmt.Sprintf("system step %s:%s failed: %v", e.Phase, e.Step, e.Err)
}

func (e *SystemStepError) Unwrap() error { return e.Err }
