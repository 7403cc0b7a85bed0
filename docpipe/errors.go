package docpipe

import (
	"errors"
	"fmt"

	"github.com/fx006/diet-train-app/sniff"
)

// ErrNoData is wrapped by ParseError when a readable document yields no rows.
var ErrNoData = errors.New("no data rows found")

// FileError reports a file rejected before any parsing started.
type FileError struct {
	Path   string
	Reason string
}

func (e *FileError) Error() string { return "file rejected: " + e.Reason }

// ParseError reports an extraction failure.
type ParseError struct {
	Type   sniff.FileType
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.Type, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", e.Type, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

func parseErr(t sniff.FileType, reason string, err error) *ParseError {
	return &ParseError{Type: t, Reason: reason, Err: err}
}
