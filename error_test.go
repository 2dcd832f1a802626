package connectcore

import (
	"encoding/json"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	err := NewError(CodeNotFound, "no such widget")
	assert.Equal(t, "not_found: no such widget", err.Error())

	bare := NewError(CodeInternal, "")
	assert.Equal(t, "internal", bare.Error())
}

func TestErrorWithDetailsIsImmutable(t *testing.T) {
	base := NewError(CodeInvalidArgument, "bad field")
	withOne := base.WithDetails(ErrorDetail{Type: "x", Value: []byte("a")})
	withTwo := withOne.WithDetails(ErrorDetail{Type: "y", Value: []byte("b")})

	assert.Empty(t, base.Details())
	assert.Len(t, withOne.Details(), 1)
	assert.Len(t, withTwo.Details(), 2)
}

func TestWrapPassesThroughExistingError(t *testing.T) {
	original := NewError(CodeAborted, "conflict")
	assert.Same(t, original, wrap(CodeInternal, original))
}

func TestWrapUnwrapsPkgErrorsCause(t *testing.T) {
	original := NewError(CodeAborted, "conflict")
	wrapped := pkgerrors.Wrap(original, "additional context")
	assert.Same(t, original, wrap(CodeInternal, wrapped))
}

func TestWrapClassifiesPlainError(t *testing.T) {
	got := wrap(CodeUnavailable, pkgerrors.New("boom"))
	assert.Equal(t, CodeUnavailable, got.Code())
	assert.Equal(t, "boom", got.Message())
}

func TestDecodeErrorPayloadRoundTrip(t *testing.T) {
	original := NewError(CodeResourceExhausted, "quota exceeded").
		WithDetails(ErrorDetail{Type: "type.googleapis.com/google.rpc.RetryInfo", Value: []byte{1, 2, 3}})

	body, err := json.Marshal(newErrorPayload(original))
	require.NoError(t, err)

	decoded, ok := decodeErrorPayload(body)
	require.True(t, ok)
	assert.Equal(t, original.Code(), decoded.Code())
	assert.Equal(t, original.Message(), decoded.Message())
	assert.Equal(t, original.Details(), decoded.Details())
}

func TestDecodeErrorPayloadRejectsNonConnectBody(t *testing.T) {
	_, ok := decodeErrorPayload([]byte(`{"oops": "not a connect error"}`))
	assert.False(t, ok)

	_, ok = decodeErrorPayload([]byte(`not even json`))
	assert.False(t, ok)

	_, ok = decodeErrorPayload(nil)
	assert.False(t, ok)
}

func TestErrorFromNonConnectResponse(t *testing.T) {
	err := errorFromNonConnectResponse(404, "404 Not Found")
	assert.Equal(t, CodeNotFound, err.Code())
	assert.Equal(t, "404 Not Found", err.Message())
}

func TestErrorGRPCStatus(t *testing.T) {
	err := NewError(CodePermissionDenied, "nope")
	st := err.GRPCStatus()
	assert.Equal(t, int32(CodePermissionDenied), int32(st.Code()))
	assert.Equal(t, "nope", st.Message())
}
