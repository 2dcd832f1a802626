package connectcore

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/fenwicklabs/connectcore/codec"
)

// UnaryOutput is the terminal result of a unary call: never itself an
// error return, it always carries either a message or a sticky Err, so
// headers and trailers stay reachable even on failure.
type UnaryOutput[T any] struct {
	msg     *T
	header  Header
	trailer Header
	err     *Error
}

func (o *UnaryOutput[T]) Msg() *T         { return o.msg }
func (o *UnaryOutput[T]) Header() Header  { return o.header }
func (o *UnaryOutput[T]) Trailer() Header { return o.trailer }

func (o *UnaryOutput[T]) Err() error {
	if o.err == nil {
		return nil
	}
	return o.err
}

// callUnary performs one full unary round trip: build, send, read the
// body to completion, and interpret the result. It never returns a Go
// error; transport/protocol/server failures are all reported as a sticky
// *Error on the returned UnaryOutput.
func callUnary[Req, Res any](ctx context.Context, conn *Connection, procedure string, req *Request[Req], opts []CallOption) *UnaryOutput[Res] {
	resolved := resolveCallOptions(opts)
	out := &UnaryOutput[Res]{}

	payload, merr := conn.serializer.Marshal(req.Msg)
	if merr != nil {
		out.err = wrap(CodeInternal, merr)
		return out
	}

	reqCodec, _ := conn.codecs.Get(conn.compressor)
	var body io.Reader = bytes.NewReader(payload)
	header := make(Header)
	header.Set(headerContentType, conn.serializer.ContentTypeUnary)
	header.Set(headerProtocolVersion, protocolVersion)
	header.Set(headerUserAgent, conn.userAgent)
	if resolved.timeout != nil {
		setTimeoutHeader(header, *resolved.timeout)
	}
	if reqCodec != nil && reqCodec.Name() != codec.Identity {
		compressed, cerr := codec.CompressAll(reqCodec, payload)
		if cerr != nil {
			out.err = wrap(CodeInternal, cerr)
			return out
		}
		body = bytes.NewReader(compressed)
		header.Set(headerUnaryEncoding, conn.compressor)
	}
	if names := conn.codecs.Names(); len(names) > 0 {
		header.Set(headerUnaryAcceptEncoding, joinComma(names))
	}
	mergeInto(header, req.Header())
	mergeInto(header, resolved.header)
	encodeOutgoing(header)

	callCtx := ctx
	var cancel context.CancelFunc
	if resolved.timeout != nil {
		callCtx, cancel = context.WithTimeout(ctx, *resolved.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, conn.baseURL+procedure, body)
	if err != nil {
		out.err = errorf(CodeInternal, "build request: %v", err)
		return out
	}
	httpReq.Header = http.Header(header)

	resp, err := conn.httpClient.Do(httpReq)
	if err != nil {
		out.err = classifyTransportError(callCtx, err)
		return out
	}
	defer resp.Body.Close()

	respBody, rerr := io.ReadAll(resp.Body)
	if rerr != nil {
		out.err = wrap(CodeUnavailable, rerr)
		return out
	}

	leading, trailing := splitUnaryTrailers(resp.Header)
	out.header = leading
	out.trailer = trailing

	if resp.StatusCode != http.StatusOK {
		if len(respBody) > 0 {
			if connErr, ok := decodeErrorPayload(respBody); ok {
				out.err = connErr
				return out
			}
		}
		out.err = errorFromNonConnectResponse(resp.StatusCode, resp.Status)
		return out
	}

	if compName := leading.Get(headerUnaryEncoding); compName != "" && compName != codec.Identity {
		respCodec, ok := conn.codecs.Get(compName)
		if !ok {
			out.err = errorf(CodeInternal, "unknown response compression %q", compName)
			return out
		}
		decompressed, derr := codec.DecompressAll(respCodec, respBody)
		if derr != nil {
			out.err = wrap(CodeInternal, derr)
			return out
		}
		respBody = decompressed
	}

	// A Connect error body on an HTTP 200 unary response is a protocol
	// violation: report it as internal rather than as the server's error.
	if connErr, ok := decodeErrorPayload(respBody); ok {
		out.err = errorf(CodeInternal, "HTTP 200 response carried a Connect error body: %v", connErr)
		return out
	}

	msg := new(Res)
	if uerr := conn.serializer.Unmarshal(respBody, msg); uerr != nil {
		out.err = wrap(CodeInternal, uerr)
		return out
	}
	out.msg = msg
	return out
}
