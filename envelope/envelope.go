// Package envelope implements the Connect protocol's streaming frame
// format: a one-byte flags field, a four-byte big-endian length, and a
// payload of that many bytes. It is used by the streaming call path to
// multiplex serialized messages and the trailing end-stream sentinel over
// a single HTTP body.
package envelope

import (
	"encoding/binary"
	"io"

	pkgerrors "github.com/pkg/errors"
)

// Flag bits defined on an envelope's single flags octet.
const (
	// FlagCompressed marks the payload as compressed with the stream's
	// per-message codec.
	FlagCompressed byte = 0b00000001
	// FlagEndStream marks this envelope as the terminal end-stream
	// sentinel; its payload is a JSON EndStreamResponse, never a user
	// message.
	FlagEndStream byte = 0b00000010

	reservedMask = ^(FlagCompressed | FlagEndStream)

	headerSize = 5
)

// ErrMalformed is wrapped by errors raised for any envelope that violates
// the wire format: a truncated header, a truncated body, or reserved flag
// bits set. Callers that need to distinguish protocol violations from
// plain I/O failures can check for this with errors.Is.
var ErrMalformed = pkgerrors.New("envelope: malformed frame")

// Write emits one envelope: flags, then the length of payload as a
// four-byte big-endian integer, then payload itself. The caller is
// responsible for compressing payload and setting FlagCompressed before
// calling Write; Write does not compress.
func Write(w io.Writer, flags byte, payload []byte) error {
	var header [headerSize]byte
	header[0] = flags
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return pkgerrors.Wrap(err, "write envelope header")
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return pkgerrors.Wrap(err, "write envelope payload")
	}
	return nil
}

// Frame is one (flags, payload) pair read from the wire.
type Frame struct {
	Flags   byte
	Payload []byte
}

// IsEndStream reports whether this frame is the end-stream sentinel.
func (f Frame) IsEndStream() bool {
	return f.Flags&FlagEndStream != 0
}

// IsCompressed reports whether this frame's payload is compressed.
func (f Frame) IsCompressed() bool {
	return f.Flags&FlagCompressed != 0
}

// Reader reads a lazy sequence of frames from an underlying io.Reader,
// one frame at a time, stopping cleanly at EOF between frames.
type Reader struct {
	r       io.Reader
	header  [headerSize]byte
	done    bool
	lastErr error
}

// NewReader wraps r so frames can be pulled one at a time with Next.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next reads and returns the next frame. It returns io.EOF (unwrapped) once
// the underlying reader is cleanly exhausted between frames; any other
// error return is a protocol or I/O failure and terminates the sequence.
// After an error (including io.EOF), further calls to Next return the
// same error.
func (r *Reader) Next() (Frame, error) {
	if r.done {
		return Frame{}, r.lastErr
	}

	n, err := io.ReadFull(r.r, r.header[:])
	if err != nil {
		if n == 0 && isCleanEOF(err) {
			r.finish(io.EOF)
			return Frame{}, io.EOF
		}
		if err != io.ErrUnexpectedEOF {
			r.finish(pkgerrors.Wrap(err, "read envelope header"))
			return Frame{}, r.lastErr
		}
		r.finish(pkgerrors.Wrap(ErrMalformed, "truncated envelope header"))
		return Frame{}, r.lastErr
	}

	flags := r.header[0]
	if flags&reservedMask != 0 {
		r.finish(pkgerrors.Wrapf(ErrMalformed, "reserved flag bits set: %#b", flags))
		return Frame{}, r.lastErr
	}

	length := binary.BigEndian.Uint32(r.header[1:])
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r.r, payload); err != nil {
			if err != io.ErrUnexpectedEOF && err != io.EOF {
				r.finish(pkgerrors.Wrap(err, "read envelope body"))
				return Frame{}, r.lastErr
			}
			r.finish(pkgerrors.Wrap(ErrMalformed, "truncated envelope body"))
			return Frame{}, r.lastErr
		}
	}

	frame := Frame{Flags: flags, Payload: payload}
	if frame.IsEndStream() {
		// The end-stream envelope is always the last frame on the wire;
		// record that so a subsequent Next call terminates cleanly
		// instead of trying to read past it.
		r.finish(io.EOF)
	}
	return frame, nil
}

func (r *Reader) finish(err error) {
	r.done = true
	r.lastErr = err
}

func isCleanEOF(err error) bool {
	return err == io.EOF
}
