package connectcore

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeStringRoundTrip(t *testing.T) {
	cases := []struct {
		code Code
		name string
	}{
		{CodeCanceled, "canceled"},
		{CodeUnknown, "unknown"},
		{CodeInvalidArgument, "invalid_argument"},
		{CodeDeadlineExceeded, "deadline_exceeded"},
		{CodeNotFound, "not_found"},
		{CodeAlreadyExists, "already_exists"},
		{CodePermissionDenied, "permission_denied"},
		{CodeResourceExhausted, "resource_exhausted"},
		{CodeFailedPrecondition, "failed_precondition"},
		{CodeAborted, "aborted"},
		{CodeOutOfRange, "out_of_range"},
		{CodeUnimplemented, "unimplemented"},
		{CodeInternal, "internal"},
		{CodeUnavailable, "unavailable"},
		{CodeDataLoss, "data_loss"},
		{CodeUnauthenticated, "unauthenticated"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.name, tc.code.String())
		assert.Equal(t, tc.code, codeFromWireName(tc.name))
	}
}

func TestCodeFromWireNameUnknown(t *testing.T) {
	assert.Equal(t, CodeUnknown, codeFromWireName("not_a_real_code"))
}

func TestCodeToHTTPStatusMapping(t *testing.T) {
	cases := map[Code]int{
		CodeCanceled:           499,
		CodeUnknown:            http.StatusInternalServerError,
		CodeInvalidArgument:    http.StatusBadRequest,
		CodeDeadlineExceeded:   http.StatusGatewayTimeout,
		CodeNotFound:           http.StatusNotFound,
		CodeAlreadyExists:      http.StatusConflict,
		CodePermissionDenied:   http.StatusForbidden,
		CodeUnauthenticated:    http.StatusUnauthorized,
		CodeResourceExhausted:  http.StatusTooManyRequests,
		CodeUnimplemented:      http.StatusNotImplemented,
		CodeUnavailable:        http.StatusServiceUnavailable,
	}
	for code, status := range cases {
		assert.Equal(t, status, codeToHTTP[code])
		assert.Equal(t, code, codeFromHTTPStatus(status))
	}
}

func TestCodeFromHTTPStatusFallback(t *testing.T) {
	assert.Equal(t, CodeUnknown, codeFromHTTPStatus(599))
}
