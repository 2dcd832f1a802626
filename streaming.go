package connectcore

import (
	"context"
	"io"
	"net/http"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/fenwicklabs/connectcore/codec"
	"github.com/fenwicklabs/connectcore/connectlog"
	"github.com/fenwicklabs/connectcore/envelope"
)

// clientConn is the shared, non-generic plumbing under every streaming
// call shape (server-stream, client-stream, bidi): it owns the envelope
// body writer, drives the HTTP round trip on its own goroutine so request
// envelopes can be written while the server is still processing them, and
// exposes the response once its headers arrive. The design mirrors
// connect-go's clientStream.makeRequest: an io.Pipe feeds the request body,
// and a background goroutine calls the transport's Do while Send calls
// write into the pipe from the caller's goroutine.
type clientConn struct {
	ctx        context.Context
	cancel     context.CancelFunc
	spec       Spec
	peer       Peer
	serializer Serializer
	codecs     *codec.Registry
	reqCodec   codec.Compressor
	logger     connectlog.Logger

	pw        *io.PipeWriter
	reqHeader Header

	respReady  chan struct{}
	resp       *http.Response
	respErr    *Error
	respHeader Header
	respCodec  codec.Compressor

	closed atomic.Bool
}

func newClientConn(
	ctx context.Context,
	conn *Connection,
	spec Spec,
	procedure string,
	opts callOptions,
) *clientConn {
	callCtx, cancel := context.WithCancel(ctx)
	if opts.timeout != nil {
		callCtx, cancel = context.WithTimeout(callCtx, *opts.timeout)
	}

	pr, pw := io.Pipe()

	header := make(Header)
	header.Set(headerContentType, conn.serializer.ContentTypeStream)
	header.Set(headerProtocolVersion, protocolVersion)
	header.Set(headerUserAgent, conn.userAgent)
	if opts.timeout != nil {
		setTimeoutHeader(header, *opts.timeout)
	}
	reqCodec, _ := conn.codecs.Get(conn.compressor)
	if conn.compressor != codec.Identity {
		header.Set(headerStreamEncoding, conn.compressor)
	}
	if names := conn.codecs.Names(); len(names) > 0 {
		header.Set(headerStreamAcceptEncoding, joinComma(names))
	}
	mergeInto(header, opts.header)
	encodeOutgoing(header)

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, conn.baseURL+procedure, pr)
	cc := &clientConn{
		ctx:        callCtx,
		cancel:     cancel,
		spec:       spec,
		peer:       newPeerFromURL(conn.baseURL),
		serializer: conn.serializer,
		codecs:     conn.codecs,
		reqCodec:   reqCodec,
		logger:     conn.logger,
		pw:         pw,
		reqHeader:  header,
		respReady:  make(chan struct{}),
	}
	if err != nil {
		cc.respErr = errorf(CodeInternal, "build request: %v", err)
		close(cc.respReady)
		return cc
	}
	httpReq.Header = http.Header(header)

	go cc.roundTrip(conn.httpClient, httpReq)
	return cc
}

func (cc *clientConn) roundTrip(hc HTTPClient, req *http.Request) {
	defer close(cc.respReady)

	resp, err := hc.Do(req)
	if err != nil {
		cc.respErr = classifyTransportError(cc.ctx, err)
		return
	}

	leading := make(Header, len(resp.Header))
	for k, v := range resp.Header {
		leading[k] = append([]string(nil), v...)
	}
	decodeIncoming(leading)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = resp.Body.Close()
		if len(body) > 0 {
			if connErr, ok := decodeErrorPayload(body); ok {
				cc.respErr = connErr
				return
			}
		}
		cc.respErr = errorFromNonConnectResponse(resp.StatusCode, resp.Status)
		return
	}

	compName := leading.Get(headerStreamEncoding)
	if compName == "" {
		compName = codec.Identity
	}
	respCodec, ok := cc.codecs.Get(compName)
	if !ok {
		cc.logger.Warnf("connectcore: unknown response compression %q, no fallback available", compName)
		cc.respErr = errorf(CodeInternal, "unknown response compression %q", compName)
		_ = resp.Body.Close()
		return
	}

	cc.resp = resp
	cc.respHeader = leading
	cc.respCodec = respCodec
}

// classifyTransportError maps a transport-level failure to a Connect error
// code: cancellation and deadlines take priority over the generic
// "unavailable" bucket.
func classifyTransportError(ctx context.Context, err error) *Error {
	if pkgerrors.Is(err, context.Canceled) || ctx.Err() == context.Canceled {
		return errorf(CodeCanceled, "%v", err)
	}
	if pkgerrors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return errorf(CodeDeadlineExceeded, "%v", err)
	}
	return errorf(CodeUnavailable, "%v", err)
}

// send marshals, optionally compresses, and writes one envelope to the
// request body.
func (cc *clientConn) send(msg any) *Error {
	if cc.closed.Load() {
		return errorf(CodeInternal, "send called after CloseRequest")
	}
	payload, merr := cc.serializer.Marshal(msg)
	if merr != nil {
		return wrap(CodeInternal, merr)
	}

	var flags byte
	if cc.reqCodec != nil && cc.reqCodec.Name() != codec.Identity {
		compressed, cerr := codec.CompressAll(cc.reqCodec, payload)
		if cerr != nil {
			return wrap(CodeInternal, cerr)
		}
		payload = compressed
		flags |= envelope.FlagCompressed
	}

	if err := envelope.Write(cc.pw, flags, payload); err != nil {
		select {
		case <-cc.respReady:
			if cc.respErr != nil {
				return cc.respErr
			}
		default:
		}
		return wrap(CodeUnavailable, err)
	}
	return nil
}

// closeRequest finishes the request body. It is idempotent.
func (cc *clientConn) closeRequest() *Error {
	if cc.closed.Swap(true) {
		return nil
	}
	if err := cc.pw.Close(); err != nil {
		return wrap(CodeUnavailable, err)
	}
	return nil
}

// awaitResponse blocks until the HTTP response's headers have arrived or
// the round trip has failed.
func (cc *clientConn) awaitResponse() *Error {
	<-cc.respReady
	return cc.respErr
}

func (cc *clientConn) reqHeaderSnapshot() Header {
	return cc.reqHeader.Clone()
}

// decompressPayload decompresses a frame payload flagged as compressed,
// using the codec the server declared for this stream's responses. A
// compressed frame arriving on a stream that negotiated (or defaulted to)
// identity encoding is a protocol violation, not an internal failure.
func decompressPayload(cc *clientConn, payload []byte) ([]byte, *Error) {
	if cc.respCodec == nil || cc.respCodec.Name() == codec.Identity {
		cc.logger.Warnf("connectcore: compressed frame received with %s response encoding", codec.Identity)
		return nil, errorf(CodeInvalidArgument, "protocol error: compressed frame received but stream encoding is identity")
	}
	out, err := codec.DecompressAll(cc.respCodec, payload)
	if err != nil {
		return nil, wrap(CodeInternal, err)
	}
	return out, nil
}

func (cc *clientConn) responseHeader() Header {
	<-cc.respReady
	if cc.respHeader == nil {
		return make(Header)
	}
	return cc.respHeader
}

// release cancels the call's context and, if a response body was
// obtained, closes it, guaranteeing the underlying transport slot is
// freed exactly once regardless of how the stream was exited.
func (cc *clientConn) release() {
	cc.cancel()
	select {
	case <-cc.respReady:
		if cc.resp != nil {
			_ = cc.resp.Body.Close()
		}
	default:
		// Response never arrived (canceled before headers); canceling the
		// context above unblocks the in-flight Do call, and roundTrip's
		// own error handling will close any body it did manage to get.
	}
}

func joinComma(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ","
		}
		out += item
	}
	return out
}
