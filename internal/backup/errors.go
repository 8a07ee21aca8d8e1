package backup

import (
	"errors"
	"fmt"
)

// Kind classifies a backup failure.
type Kind string

const (
	// KindPrecondition covers missing or empty inputs and name collisions.
	KindPrecondition Kind = "precondition"
	// KindPermission covers directories that cannot be created or written.
	KindPermission Kind = "permission"
	// KindIntegrity covers copies that came out empty.
	KindIntegrity Kind = "integrity"
	// KindUnexpected covers everything else, including recovered panics.
	KindUnexpected Kind = "unexpected"
)

// Failure is the error shape returned by every public Scheduler operation.
type Failure struct {
	Op   string
	Kind Kind
	Path string
	Err  error
}

func (f *Failure) Error() string {
	if f.Path == "" {
		return fmt.Sprintf("%s: %s: %v", f.Op, f.Kind, f.Err)
	}
	return fmt.Sprintf("%s: %s: %s: %v", f.Op, f.Kind, f.Path, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// IsKind reports whether err is a Failure of the given kind.
func IsKind(err error, kind Kind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == kind
}

func failf(op string, kind Kind, path string, format string, args ...any) *Failure {
	return &Failure{Op: op, Kind: kind, Path: path, Err: fmt.Errorf(format, args...)}
}
