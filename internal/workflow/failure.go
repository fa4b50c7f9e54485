package workflow

import (
	"errors"
	"fmt"

	"github.com/Brownie44l1/waste-api/internal/phase"
)

var (
	// ErrBusy is returned when another operation is already in flight.
	ErrBusy = errors.New("another operation is in progress")
	// ErrClosed is returned by operations on a closed driver.
	ErrClosed = errors.New("workflow is closed")
	// ErrNoModel means identify ran before a model was loaded.
	ErrNoModel = errors.New("no model loaded")
	// ErrNoImage means identify ran without a stored image.
	ErrNoImage = errors.New("no image selected")
)

// FailureKind classifies what went wrong in a workflow step.
type FailureKind string

const (
	AssetLoadFailure FailureKind = "asset-load"
	DecodeFailure    FailureKind = "decode"
	InferenceFailure FailureKind = "inference"
)

// Failure records a failed step and the phase it failed in.
type Failure struct {
	Kind      FailureKind
	Operation string
	Phase     phase.Phase
	Err       error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failed in %s (%s): %v", f.Operation, f.Phase, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// KindOf extracts the failure kind from err, if err carries a Failure.
func KindOf(err error) (FailureKind, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return "", false
}
