package connectcore

import (
	"context"
	"net/http"

	"github.com/fenwicklabs/connectcore/codec"
	"github.com/fenwicklabs/connectcore/connectlog"
)

// Connection is a configured route to one Connect server: the HTTP
// transport, base URL, and the serialization/compression/logging
// defaults every call on it inherits. It carries no state about any
// particular RPC.
type Connection struct {
	httpClient HTTPClient
	baseURL    string
	serializer Serializer
	codecs     *codec.Registry
	compressor string
	userAgent  string
	logger     connectlog.Logger
}

// NewConnection builds a Connection against baseURL (scheme + host, e.g.
// "https://api.example.com"). Defaults: http.DefaultClient, binary
// protobuf serialization, identity compression, and the full default
// codec registry (identity, gzip, br, zstd) advertised for negotiation.
func NewConnection(baseURL string, opts ...ClientOption) *Connection {
	o := defaultClientOptions
	o.codecs = codec.New()
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = http.DefaultClient
	}
	if o.userAgent == "" {
		o.userAgent = userAgent()
	}
	return &Connection{
		httpClient: o.httpClient,
		baseURL:    baseURL,
		serializer: o.serializer,
		codecs:     o.codecs,
		compressor: o.compressor,
		userAgent:  o.userAgent,
		logger:     o.logger,
	}
}

// withReqHeader folds a request's own headers into a resolved callOptions,
// used by CallServerStream, since newClientConn builds the HTTP headers
// from callOptions alone and never sees the *Request.
func withReqHeader(resolved callOptions, req AnyRequest) callOptions {
	merged := resolved
	merged.header = make(Header)
	mergeInto(merged.header, req.Header())
	mergeInto(merged.header, resolved.header)
	return merged
}

// CallUnary performs a unary RPC and never returns a Go error: failures
// of every kind are reported as a sticky error on the returned
// UnaryOutput.
func CallUnary[Req, Res any](ctx context.Context, conn *Connection, procedure string, req *Request[Req], opts ...CallOption) *UnaryOutput[Res] {
	req.spec = Spec{StreamType: StreamTypeUnary, Procedure: procedure, IsClient: true}
	req.peer = newPeerFromURL(conn.baseURL)
	return callUnary[Req, Res](ctx, conn, procedure, req, opts)
}

// Unary performs a unary RPC and raises on any failure, returning a
// typed *Response on success.
func Unary[Req, Res any](ctx context.Context, conn *Connection, procedure string, msg *Req, opts ...CallOption) (*Response[Res], error) {
	req := NewRequest(msg)
	out := CallUnary[Req, Res](ctx, conn, procedure, req, opts...)
	if out.Err() != nil {
		return nil, out.Err()
	}
	resp := NewResponse(out.Msg())
	resp.header = out.Header()
	resp.trailer = out.Trailer()
	return resp, nil
}

// CallServerStream opens a server-stream call: the single request message
// is sent and the request half closed before this function returns the
// resulting StreamOutput, which is already in the Open state (or, on
// failure, already Closed with a sticky error) by the time callers see
// it.
func CallServerStream[Req, Res any](ctx context.Context, conn *Connection, procedure string, req *Request[Req], opts ...CallOption) *StreamOutput[Res] {
	req.spec = Spec{StreamType: StreamTypeServer, Procedure: procedure, IsClient: true}
	req.peer = newPeerFromURL(conn.baseURL)
	resolved := withReqHeader(resolveCallOptions(opts), req)

	cc := newClientConn(ctx, conn, req.spec, procedure, resolved)
	if err := cc.send(req.Msg); err != nil {
		cc.release()
		return erroredStreamOutput[Res](err)
	}
	if err := cc.closeRequest(); err != nil {
		cc.release()
		return erroredStreamOutput[Res](err)
	}
	return newStreamOutput[Res](cc)
}

// ServerStream is CallServerStream's raising counterpart. Only caller
// errors raise synchronously here; transport/protocol/server failures
// surface later through the returned StreamOutput's Err, not as a Go error
// from this call.
func ServerStream[Req, Res any](ctx context.Context, conn *Connection, procedure string, msg *Req, opts ...CallOption) (*StreamOutput[Res], error) {
	req := NewRequest(msg)
	return CallServerStream[Req, Res](ctx, conn, procedure, req, opts...), nil
}

// CallClientStream opens a client-stream call. The returned handle is
// ready for Send calls immediately; it does not wait for response
// headers, since the server may not reply until the request stream is
// closed.
func CallClientStream[Req, Res any](ctx context.Context, conn *Connection, procedure string, opts ...CallOption) *ClientStreamForClient[Req, Res] {
	spec := Spec{StreamType: StreamTypeClient, Procedure: procedure, IsClient: true}
	resolved := resolveCallOptions(opts)
	cc := newClientConn(ctx, conn, spec, procedure, resolved)
	return &ClientStreamForClient[Req, Res]{cc: cc}
}

// CallBidiStream opens a half-duplex bidirectional call. Like
// CallClientStream, it returns immediately without waiting for response
// headers.
func CallBidiStream[Req, Res any](ctx context.Context, conn *Connection, procedure string, opts ...CallOption) *BidiStreamForClient[Req, Res] {
	spec := Spec{StreamType: StreamTypeBidi, Procedure: procedure, IsClient: true}
	resolved := resolveCallOptions(opts)
	cc := newClientConn(ctx, conn, spec, procedure, resolved)
	return &BidiStreamForClient[Req, Res]{cc: cc}
}
