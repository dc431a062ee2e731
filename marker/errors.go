package marker

import (
	"encoding/json"
	"fmt"
)

// PreconditionError reports missing or invalid run inputs. A run that fails
// with a PreconditionError makes no inference calls.
type PreconditionError struct {
	Field string // essays, rubric or guidance
	Err   error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot start marking: %s: %v", e.Field, e.Err)
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// InferenceError reports a failed or malformed call to the model backend.
type InferenceError struct {
	Op      string                 // invoke, stream or decode
	Model   string                 // Model identifier used for the call
	Payload map[string]interface{} // Raw decoded response when its shape was unexpected
	Err     error
}

func (e *InferenceError) Error() string {
	if e.Payload != nil {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			raw = []byte(fmt.Sprintf("%v", e.Payload))
		}
		return fmt.Sprintf("inference %s (%s): %v: %s", e.Op, e.Model, e.Err, raw)
	}
	return fmt.Sprintf("inference %s (%s): %v", e.Op, e.Model, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// Malformed reports whether the backend answered with an unexpected payload.
func (e *InferenceError) Malformed() bool {
	return e.Payload != nil
}

// PersistenceError reports a failure to write or read feedback on disk.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func preconditionFailed(field string, err error) error {
	return &PreconditionError{Field: field, Err: err}
}
