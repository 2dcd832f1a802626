// Package transport builds the *http.Client connectcore's Connection talks
// through. It is optional: any type satisfying connectcore.HTTPClient can
// be passed to connectcore.WithHTTPClient directly. This package exists
// for the common case of wanting TLS or dial-timeout configuration without
// hand-rolling an *http.Transport, using the same functional-option style
// as the rest of this module's configuration surfaces.
package transport

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

type options struct {
	tlsConfig   *tls.Config
	insecure    bool
	dialTimeout time.Duration
}

// Option configures the *http.Client built by NewHTTPClient.
type Option func(*options)

// WithInsecure disables TLS server verification. Intended for local
// development and test servers only.
func WithInsecure() Option {
	return func(o *options) { o.insecure = true }
}

// WithTLSConfig sets a custom TLS configuration for outgoing connections.
func WithTLSConfig(conf *tls.Config) Option {
	return func(o *options) { o.tlsConfig = conf }
}

// WithDialTimeout bounds how long the underlying dialer will wait to
// establish a TCP connection. When unset, the dialer cloned from
// http.DefaultTransport is kept, with its 30-second dial timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// NewHTTPClient builds an *http.Client configured by opts. The returned
// client keeps connections alive across calls; callers that create many
// short-lived clients should share one instance instead, the same
// guidance the corpus gives for net/http.Client in general.
func NewHTTPClient(opts ...Option) *http.Client {
	o := options{}
	for _, f := range opts {
		f(&o)
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	if o.tlsConfig != nil {
		base.TLSClientConfig = o.tlsConfig
	}
	if o.insecure {
		if base.TLSClientConfig == nil {
			base.TLSClientConfig = &tls.Config{} //nolint:gosec
		}
		base.TLSClientConfig.InsecureSkipVerify = true
	}
	if o.dialTimeout > 0 {
		base.DialContext = (&net.Dialer{Timeout: o.dialTimeout}).DialContext
	}

	return &http.Client{Transport: base}
}
