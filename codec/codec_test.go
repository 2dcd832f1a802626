package codec_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenwicklabs/connectcore/codec"
)

func TestRegistryDefaults(t *testing.T) {
	r := codec.New()
	assert.ElementsMatch(t, []string{codec.Identity, codec.Gzip, codec.Brotli, codec.Zstd}, r.Names())

	for _, name := range []string{codec.Identity, codec.Gzip, codec.Brotli, codec.Zstd} {
		_, ok := r.Get(name)
		assert.Truef(t, ok, "expected %s to be registered", name)
	}

	_, ok := r.Get("snappy")
	assert.False(t, ok)
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	r := codec.New()
	payload := []byte("the quick brown fox jumps over the lazy dog, repeated for compressibility: " +
		"the quick brown fox jumps over the lazy dog")

	for _, name := range []string{codec.Identity, codec.Gzip, codec.Brotli, codec.Zstd} {
		t.Run(name, func(t *testing.T) {
			c, ok := r.Get(name)
			require.True(t, ok)

			compressed, err := codec.CompressAll(c, payload)
			require.NoError(t, err)

			decompressed, err := codec.DecompressAll(c, compressed)
			require.NoError(t, err)
			assert.Equal(t, payload, decompressed)
		})
	}
}

func TestEmptyPayloadRoundTrip(t *testing.T) {
	r := codec.New()
	for _, name := range []string{codec.Identity, codec.Gzip, codec.Brotli, codec.Zstd} {
		c, ok := r.Get(name)
		require.True(t, ok)

		compressed, err := codec.CompressAll(c, nil)
		require.NoError(t, err)

		decompressed, err := codec.DecompressAll(c, compressed)
		require.NoError(t, err)
		assert.Empty(t, decompressed)
	}
}

func TestRegisterOverridesExisting(t *testing.T) {
	r := codec.New()
	names := r.Names()
	r.Register(passthroughNamed{name: codec.Gzip})
	assert.Equal(t, names, r.Names(), "re-registering an existing name shouldn't change order")
}

type passthroughNamed struct{ name string }

func (p passthroughNamed) Name() string { return p.name }

func (p passthroughNamed) Compress(w io.Writer) (io.WriteCloser, error) {
	return nil, nil
}

func (p passthroughNamed) Decompress(r io.Reader) (io.Reader, error) {
	return nil, nil
}
