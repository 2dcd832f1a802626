// Package connectcore implements the client-side wire runtime for the
// Connect RPC protocol: envelope-framed streaming, the unary/streaming
// protocol adapter, and the stream-output resource lifecycle. Generated
// service clients are expected to sit on top of the [Connection] type exposed
// here; this package does not generate code, serialize schemas, or serve
// RPCs.
package connectcore

import (
	"net/http"
	"net/url"
)

// Version is the semantic version of this module, reported in the default
// User-Agent header.
const Version = "0.1.0"

// StreamType describes whether the client, server, neither, or both sides
// of an RPC stream messages.
type StreamType uint8

const (
	StreamTypeUnary  StreamType = 0b00
	StreamTypeClient StreamType = 0b01
	StreamTypeServer StreamType = 0b10
	StreamTypeBidi   StreamType = StreamTypeClient | StreamTypeServer
)

func (t StreamType) String() string {
	switch t {
	case StreamTypeUnary:
		return "unary"
	case StreamTypeClient:
		return "client_stream"
	case StreamTypeServer:
		return "server_stream"
	case StreamTypeBidi:
		return "bidi_stream"
	default:
		return "unknown"
	}
}

// Spec describes the RPC being invoked: its streaming shape and wire
// procedure path, e.g. "/eliza.v1.ElizaService/Say".
type Spec struct {
	StreamType StreamType
	Procedure  string
	IsClient   bool
}

// Peer describes the other party to an RPC. Addr holds the host or
// host:port the request was sent to.
type Peer struct {
	Addr string
}

func newPeerFromURL(raw string) Peer {
	u, err := url.Parse(raw)
	if err != nil {
		return Peer{}
	}
	return Peer{Addr: u.Host}
}

// HTTPClient is the transport connectcore expects. *http.Client satisfies
// this directly; callers may substitute their own implementation (for
// example to inject tracing or a custom RoundTripper) without depending on
// net/http themselves.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Request wraps a generated request message with the metadata a call
// needs: the RPC Spec, the Peer it's addressed to, and outgoing headers.
type Request[T any] struct {
	Msg *T

	spec   Spec
	peer   Peer
	header Header
}

// NewRequest wraps a request message for a call.
func NewRequest[T any](msg *T) *Request[T] {
	return &Request[T]{Msg: msg}
}

// Any returns the request message as an empty interface.
func (r *Request[_]) Any() any { return r.Msg }

// Spec describes this RPC.
func (r *Request[_]) Spec() Spec { return r.spec }

// Peer describes who this request is addressed to.
func (r *Request[_]) Peer() Peer { return r.peer }

// Header returns the outgoing HTTP headers for this request, allocating
// them lazily.
func (r *Request[_]) Header() Header {
	if r.header == nil {
		r.header = make(Header)
	}
	return r.header
}

func (r *Request[_]) internalOnly() {}

// AnyRequest is the common method set of every [Request], regardless of
// type parameter.
type AnyRequest interface {
	Any() any
	Spec() Spec
	Peer() Peer
	Header() Header

	internalOnly()
}

// Response wraps a generated response message together with the headers
// and trailers the server returned.
type Response[T any] struct {
	Msg *T

	header  Header
	trailer Header
}

// NewResponse wraps a response message.
func NewResponse[T any](msg *T) *Response[T] {
	return &Response[T]{Msg: msg}
}

// Any returns the response message as an empty interface.
func (r *Response[_]) Any() any { return r.Msg }

// Header returns the response's leading HTTP headers.
func (r *Response[_]) Header() Header {
	if r.header == nil {
		r.header = make(Header)
	}
	return r.header
}

// Trailer returns the response's trailing metadata. For a unary call this
// is the set of `Trailer-`-prefixed HTTP headers with the prefix stripped;
// for a streaming call it is the end-stream envelope's metadata field.
func (r *Response[_]) Trailer() Header {
	if r.trailer == nil {
		r.trailer = make(Header)
	}
	return r.trailer
}

func (r *Response[_]) internalOnly() {}

// AnyResponse is the common method set of every [Response], regardless of
// type parameter.
type AnyResponse interface {
	Any() any
	Header() Header
	Trailer() Header

	internalOnly()
}
