package recovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"
)

// Category is the failure taxonomy used to pick the user facing message
type Category string

const (
	CategoryPanelCreation Category = "panel-creation"
	CategoryConfigIO      Category = "config-io"
	CategoryConfigParse   Category = "config-parse"
	CategoryProcess       Category = "process"
	CategoryInternal      Category = "internal"
)

// Code is the specific failure inside a category
type Code int

const (
	CodeUnknown Code = iota
	CodePanelCreation
	CodeFileNotFound
	CodePermissionDenied
	CodeFileIO
	CodeParse
	CodeValidation
	CodeFormatterNotFound
	CodeFormatterFailed
	CodeTimeout
	CodeCancelled
	CodePanic
)

// String returns a stable identifier, used as ErrorInfo.Code
func (c Code) String() string {
	switch c {
	case CodePanelCreation:
		return "panel_creation_failed"
	case CodeFileNotFound:
		return "file_not_found"
	case CodePermissionDenied:
		return "permission_denied"
	case CodeFileIO:
		return "file_io"
	case CodeParse:
		return "parse_error"
	case CodeValidation:
		return "validation_error"
	case CodeFormatterNotFound:
		return "formatter_not_found"
	case CodeFormatterFailed:
		return "formatter_failed"
	case CodeTimeout:
		return "timeout"
	case CodeCancelled:
		return "cancelled"
	case CodePanic:
		return "panic"
	default:
		return "unknown"
	}
}

// Error is a classified failure
type Error struct {
	Code       Code      `json:"code"`
	Category   Category  `json:"category"`
	Operation  string    `json:"operation"`
	Path       string    `json:"path,omitempty"`
	Underlying error     `json:"-"`
	Timestamp  time.Time `json:"timestamp"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s [%s] %s: %v", e.Operation, e.Code, e.Path, e.Underlying)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Operation, e.Code, e.Underlying)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// UserMessage is the text shown in notifications
func (e *Error) UserMessage() string {
	var subject string
	switch e.Category {
	case CategoryPanelCreation:
		subject = "Could not open the panel"
	case CategoryConfigIO:
		subject = "Could not access the configuration file"
	case CategoryConfigParse:
		subject = "The configuration is not valid"
	case CategoryProcess:
		subject = "clang-format failed"
	default:
		subject = "Unexpected error"
	}
	if e.Path != "" {
		return fmt.Sprintf("%s (%s): %v", subject, e.Path, e.Underlying)
	}
	return fmt.Sprintf("%s: %v", subject, e.Underlying)
}

// Classify wraps err in an Error. Errors that already are an *Error keep
// their classification.
func Classify(err error, category Category) *Error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		out := *existing
		return &out
	}

	e := &Error{
		Code:       CodeUnknown,
		Category:   category,
		Underlying: err,
		Timestamp:  time.Now(),
	}

	switch {
	case errors.Is(err, context.Canceled):
		e.Code = CodeCancelled
		return e
	case errors.Is(err, context.DeadlineExceeded):
		e.Code = CodeTimeout
		return e
	case errors.Is(err, fs.ErrNotExist):
		e.Code = CodeFileNotFound
		return e
	case errors.Is(err, fs.ErrPermission):
		e.Code = CodePermissionDenied
		return e
	case errors.Is(err, exec.ErrNotFound):
		e.Code = CodeFormatterNotFound
		return e
	}

	msg := strings.ToLower(err.Error())
	switch category {
	case CategoryPanelCreation:
		e.Code = CodePanelCreation
	case CategoryConfigIO:
		e.Code = CodeFileIO
	case CategoryConfigParse:
		if strings.Contains(msg, "invalid") || strings.Contains(msg, "expected") {
			e.Code = CodeValidation
		} else {
			e.Code = CodeParse
		}
	case CategoryProcess:
		switch {
		case strings.Contains(msg, "not found"):
			e.Code = CodeFormatterNotFound
		case strings.Contains(msg, "timed out") || strings.Contains(msg, "timeout"):
			e.Code = CodeTimeout
		default:
			e.Code = CodeFormatterFailed
		}
	}
	return e
}
