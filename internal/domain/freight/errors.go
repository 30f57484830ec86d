package freight

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Kind partitions errors by how the outer layers must react to them. The HTTP
// layer maps kinds to status codes; the pipeline uses them to tell retryable
// infrastructure failures from hard domain rejections.
type Kind string

const (
	KindValidation     Kind = "validation"     // caller input violates schema → 400
	KindNotFound       Kind = "not_found"      // entity missing → 404
	KindUnauthorized   Kind = "unauthorized"   // sweep secret mismatch → 401
	KindDomain         Kind = "domain"         // invariant violation → 409
	KindInfrastructure Kind = "infrastructure" // adapter/repository/engine failure → 5xx
)

// Error is the service-wide error value. It always carries a Kind and may
// wrap a cause. Module boundaries return *Error instead of throwing ad-hoc
// wrapped strings, so callers can branch on KindOf.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// E builds a new kinded error without a cause.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapE wraps cause with a kind and message. A nil cause yields nil so call
// sites can wrap unconditionally.
func WrapE(cause error, kind Kind, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind from err, walking the wrap chain. Unknown errors
// are treated as infrastructure failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

// IsNotFound reports whether err is a KindNotFound error.
func IsNotFound(err error) bool { return err != nil && KindOf(err) == KindNotFound }

// IsDomain reports whether err is a KindDomain error.
func IsDomain(err error) bool { return err != nil && KindOf(err) == KindDomain }
