package connectcore

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

// Header is a case-insensitive, ordered, multi-valued mapping from header
// name to values. It is built on net/http.Header, which already
// canonicalizes keys via textproto.CanonicalMIMEHeaderKey, giving P7
// (case-insensitive lookup, order-preserving multi-value) for free.
type Header http.Header

// NewHeader returns an empty, ready-to-use Header.
func NewHeader() Header {
	return make(Header)
}

// Get returns the first value associated with key, or "" if absent.
func (h Header) Get(key string) string {
	return http.Header(h).Get(key)
}

// Values returns all values associated with key, in the order they were
// added. The returned slice must not be mutated.
func (h Header) Values(key string) []string {
	return http.Header(h).Values(key)
}

// Set replaces all values associated with key.
func (h Header) Set(key, value string) {
	http.Header(h).Set(key, value)
}

// Add appends value to key's value list.
func (h Header) Add(key, value string) {
	http.Header(h).Add(key, value)
}

// Del removes all values associated with key.
func (h Header) Del(key string) {
	http.Header(h).Del(key)
}

// Clone returns a deep copy of h.
func (h Header) Clone() Header {
	return Header(http.Header(h).Clone())
}

// immutable returns a Header meant for caller-visible response
// headers/trailers, which must never change once handed back. Since Go has
// no first-class immutable map, we settle for documenting the contract and
// returning a defensive clone; callers that need the guarantee enforced
// should treat the result as read-only.
func (h Header) immutable() Header {
	return h.Clone()
}

const binarySuffix = "-bin"

// isBinaryHeader reports whether key is a binary-metadata header, i.e. its
// name ends in "-bin".
func isBinaryHeader(key string) bool {
	return strings.HasSuffix(strings.ToLower(key), binarySuffix)
}

// EncodeBinaryHeader base64url-without-padding encodes a binary header
// value for the wire.
func EncodeBinaryHeader(value []byte) string {
	return base64.RawURLEncoding.EncodeToString(value)
}

// DecodeBinaryHeader decodes a wire-form binary header value. It accepts
// both padded and unpadded base64url, and falls back to standard base64,
// since some peers pad even though the wire format calls for unpadded
// base64url.
func DecodeBinaryHeader(value string) ([]byte, error) {
	if decoded, err := base64.RawURLEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.URLEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}

// encodeOutgoing base64url-encodes every "-bin" header's values in place,
// called while building a request so callers can set raw binary values
// directly.
func encodeOutgoing(h Header) {
	for key, values := range h {
		if !isBinaryHeader(key) {
			continue
		}
		encoded := make([]string, len(values))
		for i, v := range values {
			encoded[i] = EncodeBinaryHeader([]byte(v))
		}
		h[key] = encoded
	}
}

// decodeIncoming base64url-decodes every "-bin" header's values in place,
// called after receiving a response so callers see raw binary values.
func decodeIncoming(h Header) {
	for key, values := range h {
		if !isBinaryHeader(key) {
			continue
		}
		decoded := make([]string, 0, len(values))
		for _, v := range values {
			if raw, err := DecodeBinaryHeader(v); err == nil {
				decoded = append(decoded, string(raw))
			} else {
				decoded = append(decoded, v)
			}
		}
		h[key] = decoded
	}
}

const (
	headerContentType          = "Content-Type"
	headerUserAgent            = "User-Agent"
	headerProtocolVersion      = "Connect-Protocol-Version"
	headerTimeout              = "Connect-Timeout-Ms"
	headerUnaryEncoding        = "Content-Encoding"
	headerUnaryAcceptEncoding  = "Accept-Encoding"
	headerStreamEncoding       = "Connect-Content-Encoding"
	headerStreamAcceptEncoding = "Connect-Accept-Encoding"
	trailerPrefix              = "Trailer-"

	protocolVersion = "1"
)

// maxTimeoutMs is the largest value connect-timeout-ms can carry: an
// eight-digit decimal integer, per the Connect protocol wire format.
const maxTimeoutMs = 99999999

// setTimeoutHeader rounds d up to the nearest millisecond and sets
// Connect-Timeout-Ms. Durations whose millisecond count would overflow the
// wire format's eight digits are clamped to the maximum.
func setTimeoutHeader(h Header, d time.Duration) {
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms <= 0 {
		ms = 1
	}
	if ms > maxTimeoutMs {
		ms = maxTimeoutMs
	}
	h.Set(headerTimeout, strconv.FormatInt(int64(ms), 10))
}

// splitUnaryTrailers partitions a unary HTTP response's headers into
// leading headers and trailing metadata: any header whose canonical name
// starts with "Trailer-" is trailing metadata, with the prefix stripped;
// everything else is a leading header.
func splitUnaryTrailers(h http.Header) (leading, trailing Header) {
	leading = make(Header, len(h))
	trailing = make(Header)
	for key, values := range h {
		canonical := textproto.CanonicalMIMEHeaderKey(key)
		if strings.HasPrefix(canonical, trailerPrefix) {
			name := canonical[len(trailerPrefix):]
			trailing[textproto.CanonicalMIMEHeaderKey(name)] = append(trailing[textproto.CanonicalMIMEHeaderKey(name)], values...)
			continue
		}
		leading[canonical] = append(leading[canonical], values...)
	}
	decodeIncoming(leading)
	decodeIncoming(trailing)
	return leading, trailing
}

// mergeInto copies every key/value from src into dst, appending to any
// existing values.
func mergeInto(dst, src Header) {
	for key, values := range src {
		dst[key] = append(dst[key], values...)
	}
}

// userAgent builds this module's default User-Agent string.
func userAgent() string {
	return fmt.Sprintf("connectcore-go/%s", Version)
}
