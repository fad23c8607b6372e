// Package errs defines the error kinds pgsample's top-level command guard
// dispatches on to choose a process exit code, per the error-handling design
// in spec.md §7. Components wrap an error in its kind where the disposition
// is decided (config loading, connecting, staging, sampling, verification);
// ExitCode walks the wrap chain, so further fmt.Errorf("%w") wrapping keeps
// the kind reachable.
package errs

import "fmt"

// Kind classifies an error for the purpose of exit-code mapping.
type Kind int

const (
	KindGeneral Kind = iota
	KindConfiguration
	KindConnection
	KindPermission
	KindIntegrity
	KindIO
	KindTimeout
	KindInternal
)

// ExitCode returns the process exit code spec.md §6 assigns to k.
func (k Kind) ExitCode() int {
	switch k {
	case KindGeneral:
		return 1
	case KindConnection:
		return 2
	case KindPermission:
		return 3
	case KindIntegrity:
		return 4
	case KindConfiguration:
		return 5
	case KindIO:
		return 6
	case KindTimeout:
		return 7
	case KindInternal:
		return 1
	default:
		return 1
	}
}

// Error wraps an underlying error with a disposition Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Err)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func newKind(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Configuration(op string, err error) error { return newKind(KindConfiguration, op, err) }
func Connection(op string, err error) error    { return newKind(KindConnection, op, err) }
func Permission(op string, err error) error    { return newKind(KindPermission, op, err) }
func Integrity(op string, err error) error     { return newKind(KindIntegrity, op, err) }
func IO(op string, err error) error            { return newKind(KindIO, op, err) }
func Timeout(op string, err error) error       { return newKind(KindTimeout, op, err) }
func Internal(op string, err error) error      { return newKind(KindInternal, op, err) }

// ExitCode walks err's wrap chain for an *Error and returns its exit code,
// defaulting to 1 (general) for plain errors.
func ExitCode(err error) int {
	var e *Error
	if as(err, &e) {
		return e.Kind.ExitCode()
	}
	return 1
}

// as is a tiny local errors.As to avoid importing errors just for this.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
