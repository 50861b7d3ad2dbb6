package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusTeapot, HTTPStatusCode(New(ErrInternal, http.StatusTeapot, "x")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatusCode(fmt.Errorf("wrap: %w", ErrInvalidInput)))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatusCode(ErrIndexNotBuilt))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatusCode(ErrTimeout))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusCode(errors.New("boom")))
}

func TestAppErrorUnwraps(t *testing.T) {
	err := fmt.Errorf("query: %w", New(ErrTimeout, http.StatusServiceUnavailable, "deadline"))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "query: operation timed out: deadline", err.Error())
}

func TestCodes(t *testing.T) {
	tests := []struct {
		err  error
		code string
		exit int
	}{
		{nil, "", 0},
		{ErrTimeout, "timeout", 1},
		{fmt.Errorf("open: %w", ErrIndexNotBuilt), "index_not_built", 3},
		{fmt.Errorf("%w: bad crc", ErrCorruptShard), "corrupt_index", 4},
		{ErrCorruptRecord, "corrupt_index", 4},
		{ErrCorruptAccumulator, "corrupt_index", 4},
		{ErrInvalidInput, "invalid_input", 2},
		{errors.New("disk full"), "internal", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, Code(tt.err), "%v", tt.err)
		assert.Equal(t, tt.exit, ExitCode(tt.err), "%v", tt.err)
	}
	assert.True(t, IsCorruption(ErrCorruptRecord))
	assert.False(t, IsCorruption(ErrTimeout))
}
