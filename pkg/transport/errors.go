package transport

import (
	"fmt"
	"net/http"

	"github.com/Sternrassler/rosakhutor-webcams/pkg/hostlimit"
)

// ErrInvalidConnectionLimit is returned by SetConnectionLimit for caps below 1.
var ErrInvalidConnectionLimit = hostlimit.ErrInvalidLimit

// ErrorClass represents a classification of fetch errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents connection, timeout and cancellation errors.
	ErrorClassNetwork ErrorClass = "network"
)

// FetchError is returned by FetchText for any failed request.
type FetchError struct {
	URL        string
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s error: %v", e.URL, e.ErrorClass, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s error (status %d): %s",
		e.URL, e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// classifyStatus maps a non-2xx status code to an error class.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	default:
		// 1xx/3xx that were not followed
		return ErrorClassClient
	}
}

// statusText renders a status line for codes without one.
func statusText(statusCode int) string {
	if text := http.StatusText(statusCode); text != "" {
		return fmt.Sprintf("%d %s", statusCode, text)
	}
	return fmt.Sprintf("%d", statusCode)
}
