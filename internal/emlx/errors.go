package emlx

import (
	"errors"
	"fmt"
)

// Sentinel errors identifying the kind of a malformed .emlx file.
// Use errors.Is to test for them; they are always wrapped in a *FormatError.
var (
	ErrInvalidByteCount = errors.New("invalid byte count")
	ErrTruncatedMIME    = errors.New("truncated MIME message")
	ErrEmptyPlist       = errors.New("empty plist")
	ErrInvalidPlist     = errors.New("invalid plist")
)

// FormatError reports input that is not a well-formed .emlx container.
type FormatError struct {
	// Kind is one of the Err* sentinels above.
	Kind error

	// Detail describes the offending input, e.g. the byte count line.
	Detail string

	// Err is the underlying cause, if any (strconv or plist error).
	Err error
}

func (e *FormatError) Error() string {
	msg := "emlx: " + e.Kind.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *FormatError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func formatErr(kind error, err error, format string, args ...any) *FormatError {
	return &FormatError{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}

// IsFormatError reports whether err means the input is not a valid .emlx
// file, as opposed to an I/O failure.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// Error kind names returned by KindOf.
const (
	KindInvalidByteCount = "invalid_byte_count"
	KindTruncatedMIME    = "truncated_mime"
	KindEmptyPlist       = "empty_plist"
	KindInvalidPlist     = "invalid_plist"
	KindIO               = "io"
)

// KindOf classifies a parse error into a short stable name suitable for
// counters and log fields. It returns "" for a nil error and KindIO for
// anything that is not a *FormatError.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidByteCount):
		return KindInvalidByteCount
	case errors.Is(err, ErrTruncatedMIME):
		return KindTruncatedMIME
	case errors.Is(err, ErrEmptyPlist):
		return KindEmptyPlist
	case errors.Is(err, ErrInvalidPlist):
		return KindInvalidPlist
	default:
		return KindIO
	}
}
