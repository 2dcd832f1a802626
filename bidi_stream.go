package connectcore

import (
	"io"
	"sync"

	"github.com/fenwicklabs/connectcore/envelope"
)

// BidiStreamForClient is the caller's side of a bidirectional call. This
// module only ever opens half-duplex bidi streams (spec Non-goals):
// callers are expected to finish sending (CloseRequest) before the first
// Receive, though nothing here prevents interleaving against a server
// that tolerates it. Grounded in the BidiStreamForClient shape used by
// the bumberboy-xk6-connectrpc example (RequestHeader/Send/Receive/
// CloseRequest over a dynamicpb.Message pair).
type BidiStreamForClient[Req, Res any] struct {
	cc *clientConn

	mu      sync.Mutex
	rdr     *envelope.Reader
	header  Header
	trailer Header
	err     *Error
	done    bool
}

// RequestHeader returns the headers that will be sent with the request.
func (s *BidiStreamForClient[Req, Res]) RequestHeader() Header {
	return s.cc.reqHeaderSnapshot()
}

// Send writes one request message.
func (s *BidiStreamForClient[Req, Res]) Send(msg *Req) error {
	if err := s.cc.send(msg); err != nil {
		return err
	}
	return nil
}

// CloseRequest finishes the request half of the stream. Required before
// the server will see EOF on its read side; Receive does not call it
// implicitly, since a caller may still be interleaving sends on a
// full-duplex-tolerant server.
func (s *BidiStreamForClient[Req, Res]) CloseRequest() error {
	if err := s.cc.closeRequest(); err != nil {
		return err
	}
	return nil
}

// Receive reads the next response message. It returns io.EOF once the
// end-stream envelope has been consumed without a reported failure; any
// other error (including a server-reported failure decoded from the
// end-stream envelope, or the body ending without one) is returned
// directly and also latched as the stream's sticky Err.
func (s *BidiStreamForClient[Req, Res]) Receive() (*Res, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}

	if s.rdr == nil {
		if err := s.cc.awaitResponse(); err != nil {
			s.done = true
			s.err = err
			return nil, err
		}
		s.header = s.cc.responseHeader()
		s.rdr = envelope.NewReader(s.cc.resp.Body)
	}

	frame, ferr := s.rdr.Next()
	if ferr == io.EOF {
		s.done = true
		s.err = errorf(CodeInvalidArgument, "missing end-of-stream")
		return nil, s.err
	}
	if ferr != nil {
		s.done = true
		s.err = wrap(CodeUnknown, ferr)
		return nil, s.err
	}

	if frame.IsEndStream() {
		trailer, connErr, perr := parseEndStream(frame.Payload)
		s.trailer = trailer
		s.done = true
		if perr != nil {
			s.cc.logger.Warnf("connectcore: malformed end-stream payload: %v", perr)
			s.err = errorf(CodeInternal, "malformed end-stream payload: %v", perr)
			return nil, s.err
		}
		if connErr != nil {
			s.err = connErr
			return nil, s.err
		}
		return nil, io.EOF
	}

	msg, derr := decodeStreamMessage[Res](s.cc, frame)
	if derr != nil {
		s.done = true
		s.err = derr
		return nil, derr
	}
	return msg, nil
}

// ResponseHeader returns the response's leading metadata. It blocks until
// the response headers have arrived if Receive hasn't been called yet.
func (s *BidiStreamForClient[Req, Res]) ResponseHeader() Header {
	if h := s.cc.responseHeader(); h != nil {
		return h
	}
	return make(Header)
}

// ResponseTrailer returns trailing metadata, populated once Receive has
// observed the end-stream envelope.
func (s *BidiStreamForClient[Req, Res]) ResponseTrailer() Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trailer == nil {
		return make(Header)
	}
	return s.trailer
}

// CloseResponse releases the underlying transport. Safe to call
// regardless of whether the stream was fully drained.
func (s *BidiStreamForClient[Req, Res]) CloseResponse() error {
	s.cc.release()
	return nil
}
