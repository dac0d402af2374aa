package fileio

import (
	"bytes"
	"errors"
	"testing"
)

// runSession compresses input in chunks of feedSize, then feeds the
// compressed output back through a Decompressor in wireSize pieces
func runSession(t *testing.T, input []byte, feedSize, wireSize int) []byte {
	t.Helper()

	compressor, err := NewCompressor()
	if err != nil {
		t.Fatalf("NewCompressor failed: %s", err)
	}

	compressor.Begin()
	for offset := 0; offset < len(input); offset += feedSize {
		end := min(offset+feedSize, len(input))
		if err := compressor.Feed(input[offset:end]); err != nil {
			t.Fatalf("Feed failed: %s", err)
		}
	}
	if err := compressor.End(); err != nil {
		t.Fatalf("End failed: %s", err)
	}
	compressed := append([]byte(nil), compressor.Bytes()...)
	compressor.Clear()

	decompressor, err := NewDecompressor()
	if err != nil {
		t.Fatalf("NewDecompressor failed: %s", err)
	}
	defer decompressor.Close()

	var decoded bytes.Buffer
	if err := decompressor.Begin(&decoded); err != nil {
		t.Fatalf("Begin failed: %s", err)
	}
	for offset := 0; offset < len(compressed); offset += wireSize {
		end := min(offset+wireSize, len(compressed))
		if err := decompressor.Feed(compressed[offset:end]); err != nil {
			t.Fatalf("decompressor Feed failed: %s", err)
		}
	}
	if err := decompressor.End(); err != nil {
		t.Fatalf("decompressor End failed: %s", err)
	}

	return decoded.Bytes()
}

func Test_CompressRoundTrip(t *testing.T) {
	input := bytes.Repeat([]byte("all work and no play makes jack a dull boy\n"), 4096)

	decoded := runSession(t, input, 128*1024, 64*1024)
	if !bytes.Equal(decoded, input) {
		t.Fatalf("round trip mismatch: %d vs %d bytes", len(decoded), len(input))
	}
}

func Test_CompressSmallPieces(t *testing.T) {
	input := []byte("small payload, many tiny feeds and tiny wire chunks")

	decoded := runSession(t, input, 3, 2)
	if !bytes.Equal(decoded, input) {
		t.Fatalf("round trip mismatch")
	}
}

func Test_CompressorSessionReuse(t *testing.T) {
	first := bytes.Repeat([]byte("first session "), 1000)
	second := bytes.Repeat([]byte("second session, different content "), 1000)

	if decoded := runSession(t, first, 4096, 4096); !bytes.Equal(decoded, first) {
		t.Fatalf("first session mismatch")
	}
	if decoded := runSession(t, second, 4096, 4096); !bytes.Equal(decoded, second) {
		t.Fatalf("second session mismatch")
	}
}

func Test_CompressorShrinksRepetitiveData(t *testing.T) {
	input := make([]byte, 1024*1024)

	compressor, err := NewCompressor()
	if err != nil {
		t.Fatalf("NewCompressor failed: %s", err)
	}
	compressor.Begin()
	if err := compressor.Feed(input); err != nil {
		t.Fatalf("Feed failed: %s", err)
	}
	if err := compressor.End(); err != nil {
		t.Fatalf("End failed: %s", err)
	}

	if compressor.Pending() >= len(input)/10 {
		t.Fatalf("zero bytes should compress hard: %d of %d", compressor.Pending(), len(input))
	}
}

// failAfter accepts a limited number of bytes, then errors
type failAfter struct {
	remaining int
}

var errSinkFull = errors.New("sink full")

func (s *failAfter) Write(data []byte) (int, error) {
	if len(data) > s.remaining {
		return 0, errSinkFull
	}
	s.remaining -= len(data)
	return len(data), nil
}

func Test_DecompressorSinkErrorSurfaces(t *testing.T) {
	input := bytes.Repeat([]byte("compressible content "), 64*1024)

	compressor, err := NewCompressor()
	if err != nil {
		t.Fatalf("NewCompressor failed: %s", err)
	}
	compressor.Begin()
	if err := compressor.Feed(input); err != nil {
		t.Fatalf("Feed failed: %s", err)
	}
	if err := compressor.End(); err != nil {
		t.Fatalf("End failed: %s", err)
	}

	decompressor, err := NewDecompressor()
	if err != nil {
		t.Fatalf("NewDecompressor failed: %s", err)
	}
	defer decompressor.Close()

	if err := decompressor.Begin(&failAfter{remaining: 1024}); err != nil {
		t.Fatalf("Begin failed: %s", err)
	}

	// Either the feed or the finalize must carry the sink error.
	feedErr := decompressor.Feed(compressor.Bytes())
	endErr := decompressor.End()
	if feedErr == nil && endErr == nil {
		t.Fatalf("expected the sink error to surface")
	}
}

func Test_DecompressorGarbageInput(t *testing.T) {
	decompressor, err := NewDecompressor()
	if err != nil {
		t.Fatalf("NewDecompressor failed: %s", err)
	}
	defer decompressor.Close()

	var decoded bytes.Buffer
	if err := decompressor.Begin(&decoded); err != nil {
		t.Fatalf("Begin failed: %s", err)
	}

	feedErr := decompressor.Feed([]byte("this is not a zstd stream at all"))
	endErr := decompressor.End()
	if feedErr == nil && endErr == nil {
		t.Fatalf("expected a decode error for garbage input")
	}
}

func Test_DecompressorAbortMidStream(t *testing.T) {
	input := bytes.Repeat([]byte("abandoned mid transfer "), 10000)

	compressor, err := NewCompressor()
	if err != nil {
		t.Fatalf("NewCompressor failed: %s", err)
	}
	compressor.Begin()
	if err := compressor.Feed(input); err != nil {
		t.Fatalf("Feed failed: %s", err)
	}
	if err := compressor.End(); err != nil {
		t.Fatalf("End failed: %s", err)
	}
	compressed := compressor.Bytes()

	decompressor, err := NewDecompressor()
	if err != nil {
		t.Fatalf("NewDecompressor failed: %s", err)
	}
	defer decompressor.Close()

	var decoded bytes.Buffer
	if err := decompressor.Begin(&decoded); err != nil {
		t.Fatalf("Begin failed: %s", err)
	}
	decompressor.Feed(compressed[:len(compressed)/2])
	decompressor.Abort()

	// The decompressor must be reusable after an aborted session.
	decoded.Reset()
	if err := decompressor.Begin(&decoded); err != nil {
		t.Fatalf("Begin after abort failed: %s", err)
	}
	if err := decompressor.Feed(compressed); err != nil {
		t.Fatalf("Feed after abort failed: %s", err)
	}
	if err := decompressor.End(); err != nil {
		t.Fatalf("End after abort failed: %s", err)
	}
	if !bytes.Equal(decoded.Bytes(), input) {
		t.Fatalf("round trip after abort mismatch")
	}
}
