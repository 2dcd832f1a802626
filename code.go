package connectcore

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Code is a Connect error code. The closed set of values and their numeric
// ordering matches [google.golang.org/grpc/codes.Code] by design: Connect,
// like gRPC, distinguishes error categories, not arbitrary application
// errors, and the two protocols agree on the mapping so that proxies can
// translate between them without a lookup table of their own.
type Code uint32

const (
	CodeCanceled           Code = Code(codes.Canceled)
	CodeUnknown            Code = Code(codes.Unknown)
	CodeInvalidArgument    Code = Code(codes.InvalidArgument)
	CodeDeadlineExceeded   Code = Code(codes.DeadlineExceeded)
	CodeNotFound           Code = Code(codes.NotFound)
	CodeAlreadyExists      Code = Code(codes.AlreadyExists)
	CodePermissionDenied   Code = Code(codes.PermissionDenied)
	CodeResourceExhausted  Code = Code(codes.ResourceExhausted)
	CodeFailedPrecondition Code = Code(codes.FailedPrecondition)
	CodeAborted            Code = Code(codes.Aborted)
	CodeOutOfRange         Code = Code(codes.OutOfRange)
	CodeUnimplemented      Code = Code(codes.Unimplemented)
	CodeInternal           Code = Code(codes.Internal)
	CodeUnavailable        Code = Code(codes.Unavailable)
	CodeDataLoss           Code = Code(codes.DataLoss)
	CodeUnauthenticated    Code = Code(codes.Unauthenticated)
)

// wireNames is the Connect wire representation of each code: lowercase,
// snake_case, distinct from gRPC's PascalCase strings.
var wireNames = map[Code]string{
	CodeCanceled:           "canceled",
	CodeUnknown:            "unknown",
	CodeInvalidArgument:    "invalid_argument",
	CodeDeadlineExceeded:   "deadline_exceeded",
	CodeNotFound:           "not_found",
	CodeAlreadyExists:      "already_exists",
	CodePermissionDenied:   "permission_denied",
	CodeResourceExhausted:  "resource_exhausted",
	CodeFailedPrecondition: "failed_precondition",
	CodeAborted:            "aborted",
	CodeOutOfRange:         "out_of_range",
	CodeUnimplemented:      "unimplemented",
	CodeInternal:           "internal",
	CodeUnavailable:        "unavailable",
	CodeDataLoss:           "data_loss",
	CodeUnauthenticated:    "unauthenticated",
}

var namesToCode = func() map[string]Code {
	m := make(map[string]Code, len(wireNames))
	for code, name := range wireNames {
		m[name] = code
	}
	return m
}()

// String returns the Connect wire name for the code, e.g. "not_found".
// Unknown codes (outside the closed set) render as "code_<n>".
func (c Code) String() string {
	if name, ok := wireNames[c]; ok {
		return name
	}
	return "code_" + uitoa(uint(c))
}

// codeFromWireName decodes a Connect wire error code string. Unrecognized
// strings map to CodeUnknown.
func codeFromWireName(name string) Code {
	if code, ok := namesToCode[name]; ok {
		return code
	}
	return CodeUnknown
}

// codeToHTTP is the fixed mapping from Connect error code to HTTP status.
// This client never writes error responses; httpToCode below is its
// reverse.
var codeToHTTP = map[Code]int{
	CodeCanceled:           499,
	CodeUnknown:            http.StatusInternalServerError,
	CodeInvalidArgument:    http.StatusBadRequest,
	CodeDeadlineExceeded:   http.StatusGatewayTimeout,
	CodeNotFound:           http.StatusNotFound,
	CodeAlreadyExists:      http.StatusConflict,
	CodePermissionDenied:   http.StatusForbidden,
	CodeResourceExhausted:  http.StatusTooManyRequests,
	CodeFailedPrecondition: http.StatusBadRequest,
	CodeAborted:            http.StatusConflict,
	CodeOutOfRange:         http.StatusBadRequest,
	CodeUnimplemented:      http.StatusNotImplemented,
	CodeInternal:           http.StatusInternalServerError,
	CodeUnavailable:        http.StatusServiceUnavailable,
	CodeDataLoss:           http.StatusInternalServerError,
	CodeUnauthenticated:    http.StatusUnauthorized,
}

// httpToCode is the reverse of codeToHTTP, used only when a non-200 unary
// or streaming response doesn't carry a Connect-formatted error body.
// Several codes share an HTTP status (e.g. 400 is used by InvalidArgument,
// FailedPrecondition, and OutOfRange); the reverse mapping picks a single
// representative for each status, matching the Connect protocol's own
// canonical table.
var httpToCode = map[int]Code{
	499:                            CodeCanceled,
	http.StatusBadRequest:          CodeInvalidArgument,
	http.StatusUnauthorized:        CodeUnauthenticated,
	http.StatusForbidden:           CodePermissionDenied,
	http.StatusNotFound:            CodeNotFound,
	http.StatusConflict:            CodeAlreadyExists,
	http.StatusTooManyRequests:     CodeResourceExhausted,
	http.StatusNotImplemented:      CodeUnimplemented,
	http.StatusServiceUnavailable:  CodeUnavailable,
	http.StatusGatewayTimeout:      CodeDeadlineExceeded,
	http.StatusInternalServerError: CodeUnknown,
}

// codeFromHTTPStatus implements the reverse HTTP-status mapping from spec
// §3: statuses outside the table fall back to CodeUnknown.
func codeFromHTTPStatus(status int) Code {
	if code, ok := httpToCode[status]; ok {
		return code
	}
	return CodeUnknown
}

func uitoa(v uint) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
