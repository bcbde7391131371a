// Package photonerr defines the error-kind taxonomy that every daemon
// component uses to classify failures before they cross the socket
// protocol as an {type:"error"} frame.
package photonerr

import "fmt"

// Kind tags an error with the recovery category from the design's
// error taxonomy.
type Kind string

const (
	KindInvalidRequest Kind = "invalid-request"
	KindUnknownMethod  Kind = "unknown-method"
	KindLockTimeout    Kind = "lock-timeout"
	KindUserError      Kind = "user-error"
	KindMethodMissing  Kind = "method-missing"
	KindClientGone     Kind = "client-gone"
	KindTimeout        Kind = "timeout"
	KindShuttingDown   Kind = "shutting-down"
	KindInternal       Kind = "internal"
)

// Error wraps an underlying cause with a Kind tag so the Dispatcher and
// Method Runner can decide recovery policy without string matching.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func InvalidRequest(msg string) *Error { return New(KindInvalidRequest, msg) }
func UnknownMethod(name string) *Error {
	return New(KindUnknownMethod, fmt.Sprintf("unknown method %q", name))
}
func LockTimeout(name string) *Error {
	return New(KindLockTimeout, fmt.Sprintf("timed out acquiring lock %q", name))
}
func UserError(err error) *Error {
	return Wrap(KindUserError, "method returned an error", err)
}
func MethodMissing(name string) *Error {
	return New(KindMethodMissing, fmt.Sprintf("method %q no longer exists", name))
}
func ClientGone() *Error {
	return New(KindClientGone, "client connection closed while call was pending")
}
func Timeout() *Error {
	return New(KindTimeout, "call deadline exceeded")
}
func ShuttingDown() *Error {
	return New(KindShuttingDown, "daemon is shutting down")
}
func Internal(err error) *Error {
	return Wrap(KindInternal, "internal error", err)
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error, else "".
func KindOf(err error) Kind {
	var e *Error
	for err != nil {
		if ke, ok := err.(*Error); ok {
			e = ke
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return ""
	}
	return e.Kind
}
