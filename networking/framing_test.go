package networking

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildFrame assembles a raw frame with the given header fields
func buildFrame(magic uint32, length uint32, payload []byte) []byte {
	frame := binary.BigEndian.AppendUint32(nil, magic)
	frame = binary.BigEndian.AppendUint32(frame, length)
	return append(frame, payload...)
}

// feed pushes raw bytes through the receiver's prepare/commit cycle
func feed(r *FrameReceiver, data []byte) {
	for len(data) > 0 {
		buffer := r.PrepareReceive()
		n := copy(buffer, data)
		r.Commit(n)
		data = data[n:]
	}
}

func Test_ReceiveSingleFrame(t *testing.T) {
	r := NewFrameReceiver()
	payload := []byte{0x00, 0x06, 'h', 'e', 'l', 'l', 'o'}
	feed(r, buildFrame(FrameMagic, uint32(FrameHeaderSize+len(payload)), payload))

	result, got := r.Advance()
	if result != ReceivedFrame {
		t.Fatalf("expected ReceivedFrame, got %d", result)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: %v vs %v", got, payload)
	}

	r.Discard()
	if result, _ := r.Advance(); result != NeedMoreData {
		t.Fatalf("expected NeedMoreData after discard, got %d", result)
	}
}

func Test_ReceiveSplitDelivery(t *testing.T) {
	r := NewFrameReceiver()
	payload := []byte("split across many reads")
	frame := buildFrame(FrameMagic, uint32(FrameHeaderSize+len(payload)), payload)

	// One byte at a time.
	for i, b := range frame {
		buffer := r.PrepareReceive()
		buffer[0] = b
		r.Commit(1)

		result, got := r.Advance()
		if i < len(frame)-1 {
			if result != NeedMoreData {
				t.Fatalf("byte %d: expected NeedMoreData, got %d", i, result)
			}
		} else {
			if result != ReceivedFrame {
				t.Fatalf("expected ReceivedFrame at final byte, got %d", result)
			}
			if !bytes.Equal(got, payload) {
				t.Fatalf("payload mismatch")
			}
		}
	}
}

func Test_ReceiveBackToBackFrames(t *testing.T) {
	r := NewFrameReceiver()
	first := []byte("first frame")
	second := []byte("second")

	stream := buildFrame(FrameMagic, uint32(FrameHeaderSize+len(first)), first)
	stream = append(stream, buildFrame(FrameMagic, uint32(FrameHeaderSize+len(second)), second)...)
	feed(r, stream)

	result, got := r.Advance()
	if result != ReceivedFrame || !bytes.Equal(got, first) {
		t.Fatalf("first frame not received intact")
	}
	r.Discard()

	result, got = r.Advance()
	if result != ReceivedFrame || !bytes.Equal(got, second) {
		t.Fatalf("second frame not received intact after discard")
	}
}

func Test_ReceiveBadMagic(t *testing.T) {
	r := NewFrameReceiver()
	feed(r, buildFrame(0xDEADBEEF, 10, []byte{0x00, 0x01}))

	if result, _ := r.Advance(); result != MalformedStream {
		t.Fatalf("expected MalformedStream for bad magic, got %d", result)
	}
}

func Test_ReceiveLengthBounds(t *testing.T) {
	cases := []struct {
		length uint32
		expect FrameResult
	}{
		{8, MalformedStream},                // length equal to the header is invalid
		{9, NeedMoreData},                   // one payload byte is the minimum
		{MaxFrameSize, NeedMoreData},        // largest valid frame
		{MaxFrameSize + 1, MalformedStream}, // one over the limit
		{0, MalformedStream},
	}

	for _, c := range cases {
		r := NewFrameReceiver()
		feed(r, buildFrame(FrameMagic, c.length, nil))
		if result, _ := r.Advance(); result != c.expect {
			t.Errorf("length %d: expected %d, got %d", c.length, c.expect, result)
		}
	}
}

func Test_ReceiveMaxSizeFrame(t *testing.T) {
	r := NewFrameReceiver()
	payload := make([]byte, MaxFrameSize-FrameHeaderSize)
	payload[0] = 0xAB
	payload[len(payload)-1] = 0xCD
	feed(r, buildFrame(FrameMagic, MaxFrameSize, payload))

	result, got := r.Advance()
	if result != ReceivedFrame {
		t.Fatalf("expected ReceivedFrame for max-size frame, got %d", result)
	}
	if len(got) != len(payload) || got[0] != 0xAB || got[len(got)-1] != 0xCD {
		t.Fatalf("max-size payload not intact")
	}
}

func Test_SendRoundTrip(t *testing.T) {
	s := new(FrameSender)
	payload := []byte{0x00, 0x07, 0xDE, 0xAD}

	buf := s.Prepare()
	buf = append(buf, payload...)
	frame, err := s.Finalize(buf)
	if err != nil {
		t.Fatalf("Finalize failed: %s", err)
	}

	if binary.BigEndian.Uint32(frame[0:4]) != FrameMagic {
		t.Fatalf("magic not written")
	}
	if binary.BigEndian.Uint32(frame[4:8]) != uint32(len(frame)) {
		t.Fatalf("length field not patched")
	}

	r := NewFrameReceiver()
	feed(r, frame)
	result, got := r.Advance()
	if result != ReceivedFrame || !bytes.Equal(got, payload) {
		t.Fatalf("sent frame did not round-trip")
	}
}

func Test_SendEmptyPayloadRejected(t *testing.T) {
	s := new(FrameSender)
	if _, err := s.Finalize(s.Prepare()); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}

func Test_SendOversizeRejected(t *testing.T) {
	s := new(FrameSender)
	buf := s.Prepare()
	buf = append(buf, make([]byte, MaxFrameSize-FrameHeaderSize+1)...)
	if _, err := s.Finalize(buf); err == nil {
		t.Fatalf("expected error for oversize payload")
	}
}
