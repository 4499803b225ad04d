package sweep

import (
	"fmt"

	"github.com/pkg/errors"
)

// FaultKind classifies why a run did not complete
type FaultKind int

const (
	// KindNone is returned by KindOf for errors which are not faults
	KindNone FaultKind = iota

	// KindInstrumentIO is a failed or unparseable exchange with an instrument
	KindInstrumentIO

	// KindPreconditionViolated is an invalid set of run parameters
	KindPreconditionViolated

	// KindCancelled is a run stopped by its CancellationSource.  It is not
	// a failure, but is reported the same way.
	KindCancelled

	// KindSinkIO is a sample sink that failed to accept a sample
	KindSinkIO

	// KindTimeout is a stabilization that did not converge in time
	KindTimeout
)

func (k FaultKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInstrumentIO:
		return "instrument I/O"
	case KindPreconditionViolated:
		return "precondition violated"
	case KindCancelled:
		return "cancelled"
	case KindSinkIO:
		return "sink I/O"
	case KindTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("FaultKind(%d)", int(k))
	}
}

var (
	// ErrBusy is returned by Run when a run is already in progress
	ErrBusy = errors.New("sweep: a run is already in progress")

	// ErrCancelled is the cause of KindCancelled faults
	ErrCancelled = errors.New("sweep: run cancelled")

	// ErrStabilizeTimeout is the cause of KindTimeout faults
	ErrStabilizeTimeout = errors.New("sweep: temperature did not stabilize in time")
)

// Fault is the error type of a run.  Op names the call that failed, e.g.
// "actuator.Read".
type Fault struct {
	Kind FaultKind
	Op   string
	Err  error
}

func (f *Fault) Error() string {
	if f.Op == "" {
		return fmt.Sprintf("sweep: %s: %v", f.Kind, f.Err)
	}
	return fmt.Sprintf("sweep: %s: %s: %v", f.Kind, f.Op, f.Err)
}

// Unwrap returns the underlying error
func (f *Fault) Unwrap() error {
	return f.Err
}

// KindOf returns the kind of the first Fault in err's chain, or KindNone
func KindOf(err error) FaultKind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindNone
}

func instrumentFault(op string, err error) error {
	return &Fault{Kind: KindInstrumentIO, Op: op, Err: err}
}

func precondition(format string, args ...interface{}) error {
	return &Fault{Kind: KindPreconditionViolated, Op: "validate", Err: errors.Errorf(format, args...)}
}
