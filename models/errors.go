package models

import (
	"errors"
	"fmt"
)

// Error codes surfaced on stderr and mapped to process exit codes.
const (
	ErrCodeUnrecognizedKind = "UNRECOGNIZED_QUERY_KIND"
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeInvalidConfig    = "INVALID_CONFIG"
	ErrCodeNavigation       = "NAVIGATION_FAILED"
	ErrCodeSelectorTimeout  = "SELECTOR_TIMEOUT"
	ErrCodeExtraction       = "EXTRACTION_FAILED"
	ErrCodeBrowserCrash     = "BROWSER_CRASH"
	ErrCodeCanceled         = "CANCELED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error written to stderr.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps ErrorDetail for the stderr payload.
type ErrorResponse struct {
	Error *ErrorDetail `json:"error"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to the stderr-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// CodeOf returns the code of the first ScrapeError in err's chain,
// or ErrCodeInternal when there is none.
func CodeOf(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// DetailOf builds an ErrorDetail for any error.
func DetailOf(err error) *ErrorDetail {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.ToDetail()
	}
	return &ErrorDetail{Code: ErrCodeInternal, Message: err.Error()}
}
