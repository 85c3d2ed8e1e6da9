package bootstrap

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a resolution failure.
type Kind string

// Failure kinds.
const (
	KindUnsupportedPlatform Kind = "UnsupportedPlatform"
	KindServerPathNotFound  Kind = "ServerPathNotFound"
	KindFetchFailed         Kind = "FetchFailed"
	KindInstallFailed       Kind = "InstallFailed"
	KindMalformedRequest    Kind = "MalformedRequest"
	KindUnsupportedMethod   Kind = "UnsupportedMethod"
)

// Sentinels for errors.Is. Every *Error matches the sentinel of its kind.
var (
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrServerPathNotFound  = errors.New("server path not found")
	ErrFetchFailed         = errors.New("failed to download language server")
	ErrInstallFailed       = errors.New("failed to install language server")
	ErrMalformedRequest    = errors.New("malformed request")
	ErrUnsupportedMethod   = errors.New("unsupported method")
)

var sentinels = map[Kind]error{
	KindUnsupportedPlatform: ErrUnsupportedPlatform,
	KindServerPathNotFound:  ErrServerPathNotFound,
	KindFetchFailed:         ErrFetchFailed,
	KindInstallFailed:       ErrInstallFailed,
	KindMalformedRequest:    ErrMalformedRequest,
	KindUnsupportedMethod:   ErrUnsupportedMethod,
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return sentinels[e.Kind].Error()
	}
	msg := e.Err.Error()
	if prefix := sentinels[e.Kind].Error(); !strings.HasPrefix(msg, prefix) {
		msg = prefix + ": " + msg
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// Remedy is the suggestion shown to the user alongside the error, if any.
func (e *Error) Remedy() string {
	return Remedy(e.Kind)
}

// Notify reports whether the failure warrants a user-visible notification.
// Platform and request failures end the launch quietly.
func (e *Error) Notify() bool {
	switch e.Kind {
	case KindServerPathNotFound, KindFetchFailed, KindInstallFailed:
		return true
	default:
		return false
	}
}

// Remedy returns the user-facing suggestion for kind.
func Remedy(kind Kind) string {
	switch kind {
	case KindServerPathNotFound:
		return "Check that serverPath points to an executable language server, or clear it to download one automatically."
	case KindFetchFailed, KindInstallFailed:
		return "Set serverPath in the plugin configuration to use a language server that is already installed."
	case KindUnsupportedPlatform:
		return "No prebuilt language server exists for this platform; set serverPath to a locally built one."
	default:
		return ""
	}
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind of err, or "" if err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Malformed wraps err as a KindMalformedRequest failure.
func Malformed(err error) *Error {
	return newError(KindMalformedRequest, err)
}

// UnsupportedMethod builds the failure for a method other than initialize.
func UnsupportedMethod(method string) *Error {
	return newError(KindUnsupportedMethod, fmt.Errorf("%q", method))
}
