// Package errors defines the sentinel errors shared by the indexer and the
// searcher, and maps them to HTTP statuses, response codes and process exit
// codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrIndexNotBuilt      = errors.New("index not built")
	ErrCorruptShard       = errors.New("corrupt shard file")
	ErrCorruptRecord      = errors.New("corrupt index record")
	ErrCorruptAccumulator = errors.New("corrupt accumulator")
	ErrMalformedRecord    = errors.New("malformed corpus record")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInternal           = errors.New("internal error")
	ErrTimeout            = errors.New("operation timed out")
)

// AppError pins an HTTP status to a sentinel.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, StatusCode: statusCode}
}

// IsCorruption reports whether err stems from an on-disk artifact that
// failed validation. Retrying will not help; the index must be rebuilt.
func IsCorruption(err error) bool {
	return errors.Is(err, ErrCorruptShard) ||
		errors.Is(err, ErrCorruptRecord) ||
		errors.Is(err, ErrCorruptAccumulator)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrIndexNotBuilt), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code is the stable machine-readable name of err carried in error
// responses.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrIndexNotBuilt):
		return "index_not_built"
	case IsCorruption(err):
		return "corrupt_index"
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrMalformedRecord):
		return "invalid_input"
	default:
		return "internal"
	}
}

// ExitCode maps a command failure to a process exit status: 2 for bad
// input, 3 for a missing index, 4 for corruption and 1 otherwise.
func ExitCode(err error) int {
	switch Code(err) {
	case "":
		return 0
	case "invalid_input":
		return 2
	case "index_not_built":
		return 3
	case "corrupt_index":
		return 4
	default:
		return 1
	}
}
