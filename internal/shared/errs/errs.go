// Package errs defines the typed error taxonomy shared by every
// command handler. Handlers never return raw OS errors to the
// dispatcher; they wrap them here so replies stay structured and the
// operator-facing text never leaks system internals.
package errs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Kind classifies a command failure.
type Kind uint8

const (
	KindOSFailure Kind = iota
	KindNotFound
	KindPathEscape
	KindNotADirectory
	KindNotAFile
	KindSizeExceeded
	KindInvalidArgument
	KindPermissionDenied
	KindProtected
)

// String returns the internal diagnostic label for a kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPathEscape:
		return "path_escape"
	case KindNotADirectory:
		return "not_a_directory"
	case KindNotAFile:
		return "not_a_file"
	case KindSizeExceeded:
		return "size_exceeded"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindPermissionDenied:
		return "permission_denied"
	case KindProtected:
		return "protected"
	default:
		return "os_failure"
	}
}

// Error carries the failure kind plus the operation and path it was
// attempting, for internal logging. Msg is the operator-facing text.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s %s: %v", e.Kind, e.Op, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s %s: %s", e.Kind, e.Op, e.Path, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a typed error with an operator-facing message.
func New(kind Kind, op, path, msg string) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Msg: msg}
}

// NotFound reports a missing file or directory. The token the operator
// typed is echoed back, not the resolved path.
func NotFound(op, token string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Path: token, Msg: fmt.Sprintf("not found: %s", token)}
}

// PathEscape reports an attempted traversal outside the permitted
// root. UserMessage renders it identically to NotFound.
func PathEscape(op, token string) *Error {
	return &Error{Kind: KindPathEscape, Op: op, Path: token, Msg: fmt.Sprintf("not found: %s", token)}
}

// NotADirectory reports a directory operation against a file.
func NotADirectory(op, token string) *Error {
	return &Error{Kind: KindNotADirectory, Op: op, Path: token, Msg: fmt.Sprintf("not a directory: %s", token)}
}

// NotAFile reports a file operation against a directory.
func NotAFile(op, token string) *Error {
	return &Error{Kind: KindNotAFile, Op: op, Path: token, Msg: fmt.Sprintf("not a file: %s", token)}
}

// SizeExceeded reports a read or transfer above the configured limit.
func SizeExceeded(op, token string, limit int64) *Error {
	return &Error{Kind: KindSizeExceeded, Op: op, Path: token, Msg: fmt.Sprintf("%s exceeds the %d byte limit", token, limit)}
}

// InvalidArgument reports bad arity, shape, or an unparsable value.
func InvalidArgument(op, msg string) *Error {
	return &Error{Kind: KindInvalidArgument, Op: op, Msg: msg}
}

// Protected reports an attempt to touch a disallowed pid or path.
func Protected(op, msg string) *Error {
	return &Error{Kind: KindProtected, Op: op, Msg: msg}
}

// OSFailure wraps an unexpected fault from the filesystem or process
// API. The raw error is retained for logs only.
func OSFailure(op, token string, err error) *Error {
	return &Error{Kind: KindOSFailure, Op: op, Path: token, Msg: fmt.Sprintf("%s failed for %s", op, token), Err: err}
}

// FromOS converts an OS-level error into the matching taxonomy entry.
func FromOS(op, token string, err error) *Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return NotFound(op, token)
	case errors.Is(err, fs.ErrPermission):
		return &Error{Kind: KindPermissionDenied, Op: op, Path: token, Msg: fmt.Sprintf("permission denied: %s", token), Err: err}
	case errors.Is(err, os.ErrInvalid):
		return InvalidArgument(op, err.Error())
	default:
		return OSFailure(op, token, err)
	}
}

// KindOf extracts the kind from any error chain. Unclassified errors
// report KindOSFailure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOSFailure
}

// AsError coerces err into a typed *Error, wrapping unknown errors as
// an OS failure under the given op.
func AsError(op string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return OSFailure(op, "", err)
}

// UserMessage returns the text shown to the operator. PathEscape and
// NotFound are deliberately indistinguishable here so a forbidden
// region never reveals whether a path exists.
func UserMessage(err error) string {
	e := AsError("command", err)
	if e.Kind == KindPathEscape {
		return fmt.Sprintf("not found: %s", e.Path)
	}
	return e.Msg
}
