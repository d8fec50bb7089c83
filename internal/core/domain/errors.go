package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrAnalysisNotFound = errors.New("analysis not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrValidation       = errors.New("validation failed")
	ErrConnectivity     = errors.New("backend unreachable")
	ErrBackend          = errors.New("backend failure")
	ErrRequestRejected  = errors.New("request rejected")
	ErrTimeout          = errors.New("request timed out")
	ErrCancelled        = errors.New("analysis cancelled")
	ErrTemporary        = errors.New("temporary failure")
)

// Fixed user-facing messages for failure kinds that must stay recognizable
// regardless of the underlying transport error.
const (
	MsgCancelled          = "Analysis cancelled."
	MsgTimeout            = "The detection request timed out. Try again or use a smaller file."
	MsgConnectivity       = "Cannot reach the detection service. Make sure the backend is running and reachable."
	MsgFormatsUnavailable = "unable to validate file: supported formats unavailable"
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ErrorReport is the normalized terminal-failure shape every raised error is
// reduced to before it crosses a component boundary.
type ErrorReport struct {
	Message   string    `json:"error"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *ErrorReport) Error() string {
	if e == nil {
		return "unknown failure"
	}
	return e.Message
}

// ReportFrom extracts the normalized report carried inside err, or builds a
// generic one from its message so callers never inspect transport shapes.
func ReportFrom(err error) ErrorReport {
	var report *ErrorReport
	if errors.As(err, &report) && report != nil {
		return *report
	}
	return ErrorReport{
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
	}
}
