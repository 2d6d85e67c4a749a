package pipeline

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is on any error returned by the stages.
var (
	// ErrIngestion: a source or persisted layer is missing, unreadable or malformed.
	ErrIngestion = errors.New("ingestion error")
	// ErrTransform: a value does not have the expected type or shape mid-pipeline.
	ErrTransform = errors.New("transform error")
	// ErrWrite: a destination could not be written.
	ErrWrite = errors.New("write error")
)

// Error is a stage failure of one Kind. It matches both its Kind and the
// underlying cause with errors.Is / errors.As.
type Error struct {
	Kind error
	// Op names the failing operation, e.g. "Ingest" or "Transform".
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func ingestionError(op string, err error) error {
	return &Error{Kind: ErrIngestion, Op: op, Err: err}
}

func transformError(op string, err error) error {
	return &Error{Kind: ErrTransform, Op: op, Err: err}
}

func writeError(op string, err error) error {
	return &Error{Kind: ErrWrite, Op: op, Err: err}
}

// KindOf returns the kind of a stage error, or nil when err carries none.
func KindOf(err error) error {
	for _, kind := range []error{ErrIngestion, ErrTransform, ErrWrite} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
