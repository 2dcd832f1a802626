package connectcore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	pkgerrors "github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorDetail is an opaque, typed piece of error metadata carried in an
// ErrorPayload's "details" array. Value holds the raw bytes exactly as
// they appeared on the wire (base64-decoded); Type is the detail's wire
// type name. Resolving Value back into a concrete message is left to the
// caller's serializer.
type ErrorDetail struct {
	Type  string
	Value []byte
}

// Error is the structured error value produced by the unary and streaming
// call paths. It is immutable once constructed.
type Error struct {
	code    Code
	message string
	details []ErrorDetail
}

// NewError builds an Error directly, without wrapping an underlying cause.
func NewError(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// errorf builds an Error whose message is formatted like fmt.Errorf.
func errorf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

// wrap classifies an arbitrary error (typically already wrapped with
// github.com/pkg/errors for a stack trace) into an Error with the given
// code, preserving its message. If err is already an *Error, it is
// returned unchanged so classification doesn't happen twice.
func wrap(code Code, err error) *Error {
	if err == nil {
		return nil
	}
	if connErr, ok := asError(err); ok {
		return connErr
	}
	return &Error{code: code, message: err.Error()}
}

func asError(err error) (*Error, bool) {
	type causer interface{ Cause() error }
	for err != nil {
		if connErr, ok := err.(*Error); ok {
			return connErr, true
		}
		c, ok := err.(causer)
		if !ok {
			return nil, false
		}
		err = c.Cause()
	}
	return nil, false
}

// Code returns the error's Connect error code.
func (e *Error) Code() Code { return e.code }

// Message returns the error's human-readable message, without the code
// prefix that Error() adds.
func (e *Error) Message() string { return e.message }

// Details returns the error's typed details, in wire order.
func (e *Error) Details() []ErrorDetail { return append([]ErrorDetail(nil), e.details...) }

// WithDetails returns a copy of the error with the given details appended.
func (e *Error) WithDetails(details ...ErrorDetail) *Error {
	next := &Error{code: e.code, message: e.message}
	next.details = append(append([]ErrorDetail(nil), e.details...), details...)
	return next
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.message == "" {
		return e.code.String()
	}
	return e.code.String() + ": " + e.message
}

// GRPCStatus lets *Error satisfy the interface
// google.golang.org/grpc/status.FromError looks for, so callers bridging
// into gRPC-based code (as the corpus's grpc-web client does) can treat a
// Connect error as a *status.Status without an extra conversion step.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(codes.Code(e.code), e.message)
}

// errorPayload is the JSON wire shape of a Connect error, carried either
// as a non-200 unary response body or inside an end-stream envelope.
type errorPayload struct {
	Code    string            `json:"code"`
	Message string            `json:"message,omitempty"`
	Details []errorDetailWire `json:"details,omitempty"`
}

type errorDetailWire struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func newErrorPayload(err *Error) *errorPayload {
	if err == nil {
		return nil
	}
	payload := &errorPayload{
		Code:    err.code.String(),
		Message: err.message,
	}
	for _, d := range err.details {
		payload.Details = append(payload.Details, errorDetailWire{
			Type:  d.Type,
			Value: base64.StdEncoding.EncodeToString(d.Value),
		})
	}
	return payload
}

func (p *errorPayload) asError() (*Error, error) {
	if p == nil {
		return nil, nil
	}
	e := &Error{
		code:    codeFromWireName(p.Code),
		message: p.Message,
	}
	for _, d := range p.Details {
		value, err := base64.StdEncoding.DecodeString(d.Value)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "decode error detail value")
		}
		e.details = append(e.details, ErrorDetail{Type: d.Type, Value: value})
	}
	return e, nil
}

// decodeErrorPayload attempts to parse body as a Connect ErrorPayload. It
// reports ok=false (not an error) when the body simply isn't
// Connect-error-shaped JSON, so the caller can fall back to the HTTP
// status mapping.
func decodeErrorPayload(body []byte) (*Error, bool) {
	if len(body) == 0 {
		return nil, false
	}
	var payload errorPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, false
	}
	if payload.Code == "" {
		return nil, false
	}
	connErr, err := payload.asError()
	if err != nil || connErr == nil {
		return nil, false
	}
	return connErr, true
}

// errorFromNonConnectResponse synthesizes an Error from an HTTP status
// when the body isn't Connect-error-shaped.
func errorFromNonConnectResponse(status int, reason string) *Error {
	return &Error{code: codeFromHTTPStatus(status), message: reason}
}
