package connectcore

import (
	"io"

	"github.com/fenwicklabs/connectcore/envelope"
)

// ClientStreamForClient is the caller's side of a client-stream call: zero
// or more Send calls followed by exactly one CloseAndReceive, which blocks
// until the server's single response message (or error) arrives. Grounded
// in the generated-client shape the dicenull connect-go example produces
// for client-streaming RPCs.
type ClientStreamForClient[Req, Res any] struct {
	cc *clientConn
}

// Send writes one request message. Calling Send after CloseAndReceive is
// a programmer error and returns CodeInternal.
func (s *ClientStreamForClient[Req, Res]) Send(msg *Req) error {
	if err := s.cc.send(msg); err != nil {
		return err
	}
	return nil
}

// RequestHeader returns the headers that will be sent with the request.
func (s *ClientStreamForClient[Req, Res]) RequestHeader() Header {
	return s.cc.reqHeaderSnapshot()
}

// CloseAndReceive finishes the request and waits for the server's single
// response message. A server that sends zero or more than one message is
// reported as CodeInternal (spec: client-stream's result is the first and
// expected only yielded message).
func (s *ClientStreamForClient[Req, Res]) CloseAndReceive() *UnaryOutput[Res] {
	out := &UnaryOutput[Res]{}

	if err := s.cc.closeRequest(); err != nil {
		out.err = err
		return out
	}
	defer s.cc.release()

	if err := s.cc.awaitResponse(); err != nil {
		out.err = err
		return out
	}
	out.header = s.cc.responseHeader()

	rdr := envelope.NewReader(s.cc.resp.Body)
	frame, ferr := rdr.Next()
	switch {
	case ferr == io.EOF:
		out.err = errorf(CodeInternal, "client stream ended with no response message")
		return out
	case ferr != nil:
		out.err = wrap(CodeUnknown, ferr)
		return out
	}

	if frame.IsEndStream() {
		trailer, connErr, perr := parseEndStream(frame.Payload)
		out.trailer = trailer
		switch {
		case perr != nil:
			s.cc.logger.Warnf("connectcore: malformed end-stream payload: %v", perr)
			out.err = errorf(CodeInternal, "malformed end-stream payload: %v", perr)
		case connErr != nil:
			out.err = connErr
		default:
			out.err = errorf(CodeInternal, "client stream ended with no response message")
		}
		return out
	}

	msg, derr := decodeStreamMessage[Res](s.cc, frame)
	if derr != nil {
		out.err = derr
		return out
	}
	out.msg = msg

	next, nerr := rdr.Next()
	switch {
	case nerr == io.EOF:
		out.err = errorf(CodeInvalidArgument, "missing end-of-stream")
	case nerr != nil:
		out.err = wrap(CodeUnknown, nerr)
	case next.IsEndStream():
		trailer, connErr, perr := parseEndStream(next.Payload)
		out.trailer = trailer
		if perr != nil {
			s.cc.logger.Warnf("connectcore: malformed end-stream payload: %v", perr)
			out.err = errorf(CodeInternal, "malformed end-stream payload: %v", perr)
		} else if connErr != nil {
			out.err = connErr
		}
	default:
		out.err = errorf(CodeInternal, "client stream produced more than one response message")
	}

	return out
}

// decodeStreamMessage decompresses (if flagged) and unmarshals a single
// envelope's payload, shared by every streaming consumption path.
func decodeStreamMessage[T any](cc *clientConn, frame envelope.Frame) (*T, *Error) {
	payload := frame.Payload
	if frame.IsCompressed() {
		decompressed, derr := decompressPayload(cc, payload)
		if derr != nil {
			return nil, derr
		}
		payload = decompressed
	}
	msg := new(T)
	if uerr := cc.serializer.Unmarshal(payload, msg); uerr != nil {
		return nil, wrap(CodeInternal, uerr)
	}
	return msg, nil
}
