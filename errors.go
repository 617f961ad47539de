package simdplan

import "github.com/pkg/errors"

// ValidationError reports that an RGraph, ModuleInfo or ClusterInfo violated
// one of the invariants spec.md §3 requires before search can even begin:
// an unknown operator id, a missing placeholder shape, a non-positive
// shape entry, or a zero-device cluster.
type ValidationError struct {
	cause error
}

func (e *ValidationError) Error() string { return "simdplan: validation: " + e.cause.Error() }
func (e *ValidationError) Unwrap() error { return e.cause }

func newValidationError(format string, args ...any) error {
	return &ValidationError{cause: errors.Errorf(format, args...)}
}

// InfeasibilityError reports that the search exhausted the heap without
// ever reaching a complete Program: no sequence of triples connects the
// seed properties to Finished.
type InfeasibilityError struct {
	cause error
}

func (e *InfeasibilityError) Error() string { return "simdplan: infeasible: " + e.cause.Error() }
func (e *InfeasibilityError) Unwrap() error { return e.cause }

func newInfeasibilityError(format string, args ...any) error {
	return &InfeasibilityError{cause: errors.Errorf(format, args...)}
}

// CancellationError reports that the search aborted because its
// *CancelToken was armed mid-search. No partial plan is returned alongside it.
type CancellationError struct {
	cause error
}

func (e *CancellationError) Error() string { return "simdplan: cancelled: " + e.cause.Error() }
func (e *CancellationError) Unwrap() error { return e.cause }

func newCancellationError() error {
	return &CancellationError{cause: errors.New("search cancelled before completion")}
}

// assertf panics with a stack-annotated message. It marks a site that
// assumed an invariant spec.md §7 calls an "internal assertion": a Property
// of an unexpected variant reached code that assumed another. These must
// never be reached on any valid input; they are not part of the recoverable
// error taxonomy above.
func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(errors.Errorf("simdplan: internal assertion failed: "+format, args...))
	}
}
