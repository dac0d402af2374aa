package fileio

import (
	"bytes"
	"errors"
	"io"

	"github.com/klauspost/compress/zstd"
)

var errDecompressionAborted = errors.New("decompression aborted")

// Compressor is a reusable streaming zstd session. Fed bytes
// accumulate as compressed output in an internal buffer which the
// caller drains between feeds.
type Compressor struct {
	encoder *zstd.Encoder
	output  bytes.Buffer
}

// NewCompressor allocates the underlying zstd encoder once; sessions
// are reset per file with Begin
func NewCompressor() (*Compressor, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return &Compressor{encoder: encoder}, nil
}

// Begin starts a fresh compression session and clears leftover output
func (c *Compressor) Begin() {
	c.output.Reset()
	c.encoder.Reset(&c.output)
}

// Feed compresses more input; output lands in the internal buffer
func (c *Compressor) Feed(data []byte) error {
	_, err := c.encoder.Write(data)
	return err
}

// End closes the session, flushing the end-of-stream mark into the
// output buffer
func (c *Compressor) End() error {
	return c.encoder.Close()
}

// Pending returns the number of undrained compressed bytes
func (c *Compressor) Pending() int {
	return c.output.Len()
}

// Bytes returns the undrained compressed output. Valid until the next
// Feed, End or Clear.
func (c *Compressor) Bytes() []byte {
	return c.output.Bytes()
}

// Clear drops output that has been consumed
func (c *Compressor) Clear() {
	c.output.Reset()
}

// Decompressor is a reusable streaming zstd session fed compressed
// bytes packet by packet. Decoded bytes flow into the sink passed to
// Begin, in feed order, via an internal pump goroutine.
type Decompressor struct {
	decoder *zstd.Decoder
	writer  *io.PipeWriter
	done    chan error
	active  bool
}

// NewDecompressor allocates the underlying zstd decoder once;
// sessions are reset per file with Begin
func NewDecompressor() (*Decompressor, error) {
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return &Decompressor{decoder: decoder}, nil
}

// Begin starts a fresh decompression session writing decoded bytes to
// sink. The sink is only called from the pump until End or Abort
// returns.
func (d *Decompressor) Begin(sink io.Writer) error {
	reader, writer := io.Pipe()
	if err := d.decoder.Reset(reader); err != nil {
		writer.Close()
		return err
	}

	d.writer = writer
	d.done = make(chan error, 1)
	d.active = true

	go func() {
		_, err := io.Copy(sink, d.decoder)
		// Unblock any in-flight Feed once the pump stops.
		reader.CloseWithError(err)
		d.done <- err
	}()

	return nil
}

// Feed pushes more compressed bytes into the session. A sink or
// decode error from the pump surfaces here.
func (d *Decompressor) Feed(data []byte) error {
	_, err := d.writer.Write(data)
	return err
}

// End marks end-of-stream and waits for every decoded byte to reach
// the sink
func (d *Decompressor) End() error {
	d.writer.Close()
	d.active = false
	return <-d.done
}

// Abort tears down an unfinished session, discarding buffered state
func (d *Decompressor) Abort() {
	if !d.active {
		return
	}
	d.writer.CloseWithError(errDecompressionAborted)
	<-d.done
	d.active = false
}

// Close releases the decoder. The Decompressor is unusable afterwards.
func (d *Decompressor) Close() {
	d.Abort()
	d.decoder.Close()
}
