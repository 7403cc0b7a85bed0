package planimport

import (
	"fmt"

	"github.com/fx006/diet-train-app/validate"
)

// Code is the stable, machine-readable failure class of an import.
type Code string

const (
	CodeFileValidation Code = "FILE_VALIDATION_ERROR"
	CodeFileParse      Code = "FILE_PARSE_ERROR"
	CodeDataValidation Code = "DATA_VALIDATION_ERROR"
	CodeInternal       Code = "INTERNAL_SERVER_ERROR"
)

// Title is the short human label shown next to the code.
func (c Code) Title() string {
	switch c {
	case CodeFileValidation:
		return "file validation failed"
	case CodeFileParse:
		return "file parsing failed"
	case CodeDataValidation:
		return "data validation failed"
	default:
		return "internal server error"
	}
}

// ImportError is the single error an import returns. Validation is set only
// for CodeDataValidation and carries every diagnostic of the batch.
type ImportError struct {
	Code       Code
	Message    string
	Validation *validate.Result
	Err        error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ImportError) Unwrap() error { return e.Err }

// ErrorCode returns the code as a string for audit records.
func (e *ImportError) ErrorCode() string { return string(e.Code) }

func importErr(code Code, err error, format string, args ...any) *ImportError {
	return &ImportError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}
