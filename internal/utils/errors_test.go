package utils

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorFormatting(t *testing.T) {
	err := E(CodeTooLarge, "RecordingService.Upload", "recording exceeds 200MB", errors.New("boom"))
	assert.Equal(t, "RecordingService.Upload: recording exceeds 200MB: boom", err.Error())
	assert.True(t, IsCode(err, CodeTooLarge))
	assert.Equal(t, "recording exceeds 200MB", MessageOf(err))
}

func TestCodeOfWrapped(t *testing.T) {
	inner := E(CodeUnavailable, "op", "busy", nil)
	wrapped := fmt.Errorf("outer: %w", inner)
	assert.Equal(t, CodeUnavailable, CodeOf(wrapped))
	assert.Equal(t, CodeTimeout, CodeOf(context.DeadlineExceeded))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("x")))
	assert.Equal(t, Code(""), CodeOf(nil))
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Code]int{
		CodeInvalidArgument: http.StatusBadRequest,
		CodeNotFound:        http.StatusNotFound,
		CodeConflict:        http.StatusConflict,
		CodeTooLarge:        http.StatusRequestEntityTooLarge,
		CodeUnavailable:     http.StatusServiceUnavailable,
		CodeTimeout:         http.StatusGatewayTimeout,
		CodeInternal:        http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(E(code, "op", "msg", nil)), code)
	}
	assert.Equal(t, http.StatusNotFound, HTTPStatus(ErrNotFound))
}

func TestCodeFromStatus(t *testing.T) {
	assert.Equal(t, CodeTooLarge, CodeFromStatus(http.StatusRequestEntityTooLarge))
	assert.Equal(t, CodeTimeout, CodeFromStatus(http.StatusGatewayTimeout))
	assert.Equal(t, CodeTimeout, CodeFromStatus(http.StatusRequestTimeout))
	assert.Equal(t, CodeUnavailable, CodeFromStatus(http.StatusServiceUnavailable))
	assert.Equal(t, CodeUnavailable, CodeFromStatus(http.StatusTooManyRequests))
	assert.Equal(t, CodeInternal, CodeFromStatus(http.StatusTeapot))
}
