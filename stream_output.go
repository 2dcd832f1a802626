package connectcore

import (
	"encoding/json"
	"io"
	"sync"

	"go.uber.org/atomic"

	"github.com/fenwicklabs/connectcore/envelope"
)

// endStreamResponse is the JSON payload carried by the end-stream envelope:
// response metadata promoted to trailers, and the terminal error, if the
// stream ended in failure.
type endStreamResponse struct {
	Metadata map[string][]string `json:"metadata,omitempty"`
	Error    *errorPayload       `json:"error,omitempty"`
}

func (e *endStreamResponse) trailer() Header {
	h := make(Header, len(e.Metadata))
	for k, v := range e.Metadata {
		for _, value := range v {
			h.Add(k, value)
		}
	}
	decodeIncoming(h)
	return h
}

// parseEndStream decodes an end-stream envelope's JSON payload into
// trailer metadata and, if the call failed, the terminal *Error. The
// third return value is only non-nil if the payload itself couldn't be
// parsed as an EndStreamResponse (a protocol violation, distinct from the
// call ending in a reported error).
func parseEndStream(payload []byte) (Header, *Error, error) {
	var end endStreamResponse
	if err := json.Unmarshal(payload, &end); err != nil {
		return nil, nil, err
	}
	trailer := end.trailer()
	if end.Error == nil {
		return trailer, nil, nil
	}
	connErr, derr := end.Error.asError()
	if derr != nil {
		return trailer, nil, derr
	}
	return trailer, connErr, nil
}

type streamState int32

const (
	streamOpen streamState = iota
	streamDraining
	streamClosed
)

// StreamOutput is the lifecycle handle over a server-to-client message
// sequence: Open while messages may still arrive, Draining once the
// end-stream envelope has been consumed but Close hasn't run yet, Closed
// once the transport has been released. Receive advances the state
// machine; Msg/Err/Header/Trailer are safe to call from any state. The
// generic parameter and the Receive/Msg/Err split mirror bufio.Scanner and
// database/sql.Rows.
type StreamOutput[T any] struct {
	cc  *clientConn
	rdr *envelope.Reader

	state atomic.Int32

	mu      sync.RWMutex
	header  Header
	trailer Header
	current *T
	err     *Error
}

// erroredStreamOutput builds a StreamOutput that is already Closed and
// carries err, for call paths that fail before a clientConn's response
// can meaningfully be awaited (e.g. marshaling the sole request message
// of a server-stream call).
func erroredStreamOutput[T any](err *Error) *StreamOutput[T] {
	out := &StreamOutput[T]{err: err}
	out.state.Store(int32(streamClosed))
	return out
}

func newStreamOutput[T any](cc *clientConn) *StreamOutput[T] {
	out := &StreamOutput[T]{cc: cc}

	if err := cc.awaitResponse(); err != nil {
		out.setErr(err)
		out.state.Store(int32(streamClosed))
		cc.release()
		return out
	}
	out.header = cc.responseHeader()
	out.rdr = envelope.NewReader(cc.resp.Body)
	out.state.Store(int32(streamOpen))
	return out
}

func (s *StreamOutput[T]) setErr(err *Error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// Receive reads the next message. It returns false at end of stream
// (whether clean or failed — callers distinguish the two via Err) or once
// the stream has already been closed. On false, the caller should inspect
// Err and then call Close.
func (s *StreamOutput[T]) Receive() bool {
	if streamState(s.state.Load()) != streamOpen {
		return false
	}

	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	frame, err := s.rdr.Next()
	if err == io.EOF {
		s.setErr(errorf(CodeInvalidArgument, "missing end-of-stream"))
		s.finishClean()
		return false
	}
	if err != nil {
		s.setErr(wrap(CodeUnknown, err))
		s.finishClean()
		return false
	}

	if frame.IsEndStream() {
		trailer, connErr, perr := parseEndStream(frame.Payload)
		if perr != nil {
			s.cc.logger.Warnf("connectcore: malformed end-stream payload: %v", perr)
			s.setErr(errorf(CodeInternal, "malformed end-stream payload: %v", perr))
			s.finishClean()
			return false
		}
		s.mu.Lock()
		s.trailer = trailer
		s.mu.Unlock()
		if connErr != nil {
			s.setErr(connErr)
		}
		s.state.Store(int32(streamDraining))
		return false
	}

	payload := frame.Payload
	if frame.IsCompressed() {
		decompressed, derr := decompressPayload(s.cc, payload)
		if derr != nil {
			s.setErr(derr)
			s.finishClean()
			return false
		}
		payload = decompressed
	}

	msg := new(T)
	if uerr := s.cc.serializer.Unmarshal(payload, msg); uerr != nil {
		s.setErr(wrap(CodeInternal, uerr))
		s.finishClean()
		return false
	}

	s.mu.Lock()
	s.current = msg
	s.mu.Unlock()
	return true
}

// finishClean moves a non-end-stream termination (transport failure,
// malformed frame, natural EOF with no end-stream envelope) straight to
// Draining so Close always performs the actual release.
func (s *StreamOutput[T]) finishClean() {
	s.state.Store(int32(streamDraining))
}

// Msg returns the message produced by the most recent successful
// Receive. It is nil before the first Receive and after Receive returns
// false.
func (s *StreamOutput[T]) Msg() *T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Err returns the sticky terminal error, if the stream ended in failure.
// Safe to call at any point in the lifecycle.
func (s *StreamOutput[T]) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err == nil {
		return nil
	}
	return s.err
}

// Header returns the response's leading metadata, available once Open is
// reached.
func (s *StreamOutput[T]) Header() Header {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.header == nil {
		return make(Header)
	}
	return s.header
}

// Trailer returns response trailing metadata. It is only populated once
// the stream has reached Draining or Closed; it is empty before that, not
// an error.
func (s *StreamOutput[T]) Trailer() Header {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.trailer == nil {
		return make(Header)
	}
	return s.trailer
}

// Close releases the underlying transport. It is idempotent and safe to
// call from any state, including before any Receive call: an abandoned
// stream still releases its connection.
func (s *StreamOutput[T]) Close() error {
	if streamState(s.state.Swap(int32(streamClosed))) == streamClosed {
		return nil
	}
	if s.cc != nil {
		s.cc.release()
	}
	if err := s.Err(); err != nil {
		return err
	}
	return nil
}
