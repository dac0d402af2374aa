package networking

import (
	"encoding/binary"
	"errors"
)

const (
	// FrameMagic starts every frame header on the wire
	FrameMagic uint32 = 0xF150CCC2
	// FrameHeaderSize is magic + length, both u32 big-endian
	FrameHeaderSize = 8
	// MaxFrameSize is the largest valid frame including its header
	MaxFrameSize = 8 * 1024 * 1024

	minReceiveBufferSize = 16 * 1024
)

// FrameResult is the outcome of one FrameReceiver.Advance call
type FrameResult int

const (
	// NeedMoreData means no complete frame is buffered yet
	NeedMoreData FrameResult = iota
	// ReceivedFrame means a full frame payload is available
	ReceivedFrame
	// MalformedStream means the header failed validation; the stream is unusable
	MalformedStream
)

var (
	ErrFrameTooSmall = errors.New("frame must carry at least one payload byte")
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)

const noPendingFrame = -1

// FrameReceiver reassembles length-prefixed frames from a byte stream.
// The owner fills the region returned by PrepareReceive, commits the
// byte count, then calls Advance until it stops yielding frames.
type FrameReceiver struct {
	buffer      []byte
	used        int
	receiveSize int
	pending     int
}

// NewFrameReceiver returns a receiver with the default receive window
func NewFrameReceiver() *FrameReceiver {
	return &FrameReceiver{
		receiveSize: minReceiveBufferSize,
		pending:     noPendingFrame,
	}
}

// PrepareReceive returns a writable region of the internal buffer,
// growing it so the region always spans the full receive window
func (r *FrameReceiver) PrepareReceive() []byte {
	if remaining := len(r.buffer) - r.used; remaining < r.receiveSize {
		grown := make([]byte, len(r.buffer)+(r.receiveSize-remaining))
		copy(grown, r.buffer[:r.used])
		r.buffer = grown
	}
	return r.buffer[r.used : r.used+r.receiveSize]
}

// Commit records that size bytes were written into the region
// returned by the last PrepareReceive
func (r *FrameReceiver) Commit(size int) {
	r.used += size
	if r.used > len(r.buffer) {
		panic("out of bounds receive")
	}
}

// Advance parses the next frame header once enough bytes are buffered
// and returns the payload slice when the whole frame has arrived. The
// returned slice borrows the internal buffer and is only valid until
// Discard or the next PrepareReceive.
func (r *FrameReceiver) Advance() (FrameResult, []byte) {
	if r.pending == noPendingFrame && r.used >= FrameHeaderSize {
		if binary.BigEndian.Uint32(r.buffer[0:4]) != FrameMagic {
			return MalformedStream, nil
		}

		size := binary.BigEndian.Uint32(r.buffer[4:8])
		if size <= FrameHeaderSize || size > MaxFrameSize {
			return MalformedStream, nil
		}

		r.pending = int(size)

		// Grow the receive window so the whole frame fits.
		if r.pending > r.receiveSize {
			r.receiveSize = r.pending
		}
	}

	if r.pending != noPendingFrame && r.used >= r.pending {
		return ReceivedFrame, r.buffer[FrameHeaderSize:r.pending]
	}

	return NeedMoreData, nil
}

// Discard drops the pending frame and shifts any leftover bytes to
// the front of the buffer
func (r *FrameReceiver) Discard() {
	if r.pending != noPendingFrame && r.used >= r.pending {
		leftover := r.used - r.pending
		copy(r.buffer, r.buffer[r.pending:r.used])
		r.used = leftover
		r.pending = noPendingFrame
	}
}

// FrameSender builds outgoing frames. Prepare reserves the header,
// the caller appends the payload, Finalize patches the length field.
type FrameSender struct {
	buffer []byte
}

// Prepare resets the frame buffer and writes the header with a
// placeholder length
func (s *FrameSender) Prepare() []byte {
	s.buffer = s.buffer[:0]
	s.buffer = binary.BigEndian.AppendUint32(s.buffer, FrameMagic)
	s.buffer = binary.BigEndian.AppendUint32(s.buffer, 0xFFFFFFFF)
	return s.buffer
}

// Finalize validates the frame size and patches the length field.
// frame must be the slice returned by Prepare plus appended payload.
func (s *FrameSender) Finalize(frame []byte) ([]byte, error) {
	s.buffer = frame

	if len(frame) <= FrameHeaderSize {
		return nil, ErrFrameTooSmall
	}
	if len(frame) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	binary.BigEndian.PutUint32(frame[4:8], uint32(len(frame)))

	return frame, nil
}
