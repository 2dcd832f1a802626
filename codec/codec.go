// Package codec implements the per-message compression layer the Connect
// protocol negotiates via Content-Encoding (unary) and
// Connect-Content-Encoding (streaming): a name registered on the wire,
// paired with a compressor and decompressor. identity is always present;
// gzip, br, and zstd are registered by default using libraries already
// part of this corpus's dependency graph.
package codec

import (
	"bytes"
	"compress/flate"
	"io"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	pkgerrors "github.com/pkg/errors"
)

// Names used on the wire.
const (
	Identity = "identity"
	Gzip     = "gzip"
	Brotli   = "br"
	Zstd     = "zstd"
)

// Compressor compresses and decompresses message payloads for one named
// codec.
type Compressor interface {
	Name() string
	Compress(w io.Writer) (io.WriteCloser, error)
	Decompress(r io.Reader) (io.Reader, error)
}

// Registry is an injectable, named lookup table of Compressors, so tests
// and callers can swap in fakes without touching global state. The zero
// value is not usable; construct one with New.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]Compressor
	order []string
}

// New returns a Registry with identity, gzip, br, and zstd already
// registered.
func New() *Registry {
	r := &Registry{byKey: make(map[string]Compressor)}
	r.Register(identityCompressor{})
	r.Register(gzipCompressor{})
	r.Register(brotliCompressor{})
	r.Register(zstdCompressor{})
	return r
}

// Register adds or replaces a codec under its own Name().
func (r *Registry) Register(c Compressor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byKey[c.Name()]; !exists {
		r.order = append(r.order, c.Name())
	}
	r.byKey[c.Name()] = c
}

// Get returns the codec registered under name, if any.
func (r *Registry) Get(name string) (Compressor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byKey[name]
	return c, ok
}

// Names returns every registered codec name, in registration order. This
// is what the unary/streaming call paths advertise in
// Accept-Encoding/Connect-Accept-Encoding — only codecs actually loaded in
// the registry, never a fixed wire-known superset.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// identityCompressor is the always-present passthrough codec.
type identityCompressor struct{}

func (identityCompressor) Name() string { return Identity }

func (identityCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

func (identityCompressor) Decompress(r io.Reader) (io.Reader, error) {
	return r, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// gzipCompressor wraps github.com/klauspost/compress/gzip, a drop-in,
// allocation-lighter gzip used consistently across the retrieved corpus
// wherever message compression is needed.
type gzipCompressor struct{}

func (gzipCompressor) Name() string { return Gzip }

func (gzipCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriterLevel(w, flate.DefaultCompression)
}

func (gzipCompressor) Decompress(r io.Reader) (io.Reader, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open gzip reader")
	}
	return gr, nil
}

// brotliCompressor wraps github.com/andybalholm/brotli.
type brotliCompressor struct{}

func (brotliCompressor) Name() string { return Brotli }

func (brotliCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return brotli.NewWriter(w), nil
}

func (brotliCompressor) Decompress(r io.Reader) (io.Reader, error) {
	return brotli.NewReader(r), nil
}

// zstdCompressor wraps github.com/klauspost/compress/zstd. It builds a new
// encoder or decoder on every Compress or Decompress call; nothing is
// pooled or reused across messages.
type zstdCompressor struct{}

func (zstdCompressor) Name() string { return Zstd }

func (zstdCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open zstd writer")
	}
	return enc, nil
}

func (zstdCompressor) Decompress(r io.Reader) (io.Reader, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open zstd reader")
	}
	return &zstdReadCloser{dec}, nil
}

// zstdReadCloser adapts *zstd.Decoder's Close (no error return) to the
// io.Reader this package hands back; callers that only read from the
// returned io.Reader never need to know decoders have a Close method at
// all, but DecompressAll still releases it once it has read the payload.
type zstdReadCloser struct{ dec *zstd.Decoder }

func (z *zstdReadCloser) Read(p []byte) (int, error) { return z.dec.Read(p) }

func (z *zstdReadCloser) Close() error {
	z.dec.Close()
	return nil
}

// CompressAll compresses the full contents of payload with c, returning
// the compressed bytes. Used on the streaming path, where each envelope's
// payload is compressed independently rather than through a shared
// stream, since every envelope must carry its own complete, decodable
// payload.
func CompressAll(c Compressor, payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	wc, err := c.Compress(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := wc.Write(payload); err != nil {
		_ = wc.Close()
		return nil, pkgerrors.Wrap(err, "compress payload")
	}
	if err := wc.Close(); err != nil {
		return nil, pkgerrors.Wrap(err, "flush compressor")
	}
	return buf.Bytes(), nil
}

// DecompressAll decompresses the full contents of payload with c.
func DecompressAll(c Compressor, payload []byte) ([]byte, error) {
	r, err := c.Decompress(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "decompress payload")
	}
	if closer, ok := r.(io.Closer); ok {
		_ = closer.Close()
	}
	return out, nil
}
