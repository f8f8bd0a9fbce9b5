package ingest

import "errors"

// Parse failures are fatal to the single upload that produced them and are
// surfaced to the caller as {kind, message}; nothing is retried.
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrTooLarge          = errors.New("file exceeds maximum upload size")
	ErrMalformed         = errors.New("file structure is unreadable")
)

// ErrorKind maps a parse error onto its wire-level kind.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrTooLarge):
		return "too_large"
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	default:
		return "internal"
	}
}
