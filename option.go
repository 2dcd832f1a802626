package connectcore

import (
	"time"

	"github.com/fenwicklabs/connectcore/codec"
	"github.com/fenwicklabs/connectcore/connectlog"
)

// clientOptions holds connection-level configuration, built up by
// ClientOptions and fixed for the lifetime of a Connection. Mirrors the
// teacher's dialOptions: a plain struct mutated by a slice of functional
// options applied at construction time.
type clientOptions struct {
	httpClient HTTPClient
	baseURL    string
	serializer Serializer
	codecs     *codec.Registry
	compressor string
	userAgent  string
	logger     connectlog.Logger
}

var defaultClientOptions = clientOptions{
	serializer: ProtoSerializer,
	compressor: codec.Identity,
	logger:     connectlog.Nop,
}

// ClientOption configures a Connection at construction time.
type ClientOption func(*clientOptions)

// WithHTTPClient overrides the HTTP transport. Defaults to
// http.DefaultClient.
func WithHTTPClient(c HTTPClient) ClientOption {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithProtoJSON selects the JSON serialization format instead of the
// default binary protobuf format.
func WithProtoJSON() ClientOption {
	return func(o *clientOptions) { o.serializer = JSONSerializer }
}

// WithCodecs overrides the compression codec registry. Defaults to
// codec.New(), which registers identity, gzip, br, and zstd.
func WithCodecs(r *codec.Registry) ClientOption {
	return func(o *clientOptions) { o.codecs = r }
}

// WithRequestCompression sets the codec name used to compress outgoing
// request bodies/envelopes. Must be registered in the codec registry in
// effect (either the default or one passed via WithCodecs); defaults to
// "identity".
func WithRequestCompression(name string) ClientOption {
	return func(o *clientOptions) { o.compressor = name }
}

// WithUserAgent overrides the default User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(o *clientOptions) { o.userAgent = ua }
}

// WithLogger attaches a connectlog.Logger for protocol-level diagnostics.
// Defaults to connectlog.Nop.
func WithLogger(l connectlog.Logger) ClientOption {
	return func(o *clientOptions) { o.logger = l }
}

// callOptions holds per-call configuration layered on top of a Connection's
// clientOptions.
type callOptions struct {
	timeout *time.Duration
	header  Header
}

// CallOption configures a single RPC invocation.
type CallOption func(*callOptions)

// WithTimeout bounds the call's deadline locally and advertises it to the
// server via Connect-Timeout-Ms.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = &d }
}

// WithHeader merges h into the call's outgoing headers.
func WithHeader(h Header) CallOption {
	return func(o *callOptions) {
		if o.header == nil {
			o.header = make(Header)
		}
		mergeInto(o.header, h)
	}
}

func resolveCallOptions(opts []CallOption) callOptions {
	var resolved callOptions
	for _, opt := range opts {
		opt(&resolved)
	}
	return resolved
}
