package networking

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// ErrorKind classifies connection faults for the owner
type ErrorKind int

const (
	// SocketSendError is a non-disconnect transport write failure
	SocketSendError ErrorKind = iota
	// SocketReceiveError is a non-disconnect transport read failure
	SocketReceiveError
	// FramingSendError means an outgoing frame failed validation
	FramingSendError
	// FramingReceiveError means the inbound stream is malformed
	FramingReceiveError
)

var errMalformedStream = errors.New("malformed frame stream")

// Handler receives decoded packets and fault notifications from a Conn
type Handler interface {
	// OnPacket is called once per well-formed inbound packet
	OnPacket(packet Packet)
	// OnProtocolError is called when a packet cannot be decoded or is
	// illegal for the current state; the connection is already dead
	OnProtocolError(description string)
	// OnError is called on transport or framing faults; the connection
	// is already dead
	OnError(kind ErrorKind, err error)
	// OnDisconnected is called when the peer closes the stream
	OnDisconnected()
}

// Conn owns a byte stream and both frame buffers, and drives the
// receive/dispatch loop. Exactly one Handler consumes its packets.
type Conn struct {
	socket net.Conn

	frameReceiver *FrameReceiver
	frameSender   FrameSender

	handler Handler
	alive   bool
}

// NewConn wraps an established byte stream. The handler must be
// attached with SetHandler before the first Update.
func NewConn(socket net.Conn) *Conn {
	return &Conn{
		socket:        socket,
		frameReceiver: NewFrameReceiver(),
		alive:         true,
	}
}

// SetHandler attaches the packet consumer
func (c *Conn) SetHandler(handler Handler) {
	c.handler = handler
}

// Alive reports whether the connection still processes packets
func (c *Conn) Alive() bool {
	return c.alive
}

// SetNotAlive marks the connection terminal
func (c *Conn) SetNotAlive() {
	c.alive = false
}

// Close releases the underlying byte stream
func (c *Conn) Close() {
	c.socket.Close()
}

// ProtocolError marks the connection terminal and reports a
// protocol-semantic fault to the handler
func (c *Conn) ProtocolError(description string) {
	c.SetNotAlive()
	c.handler.OnProtocolError(description)
}

func (c *Conn) error(kind ErrorKind, err error) {
	c.SetNotAlive()
	c.handler.OnError(kind, err)
}

func (c *Conn) disconnect() {
	c.SetNotAlive()
	c.handler.OnDisconnected()
}

// isDisconnect tells peer-closed conditions apart from transport faults
func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

// SendPacket frames and writes one packet, synchronously. Returns
// false if the connection died; the handler has been notified.
func (c *Conn) SendPacket(packet Packet) bool {
	buf := c.frameSender.Prepare()
	buf = AppendPacket(buf, packet)

	frame, err := c.frameSender.Finalize(buf)
	if err != nil {
		c.error(FramingSendError, err)
		return false
	}

	if _, err := c.socket.Write(frame); err != nil {
		if isDisconnect(err) {
			c.disconnect()
		} else {
			c.error(SocketSendError, err)
		}
		return false
	}

	return true
}

// Update performs one blocking read and dispatches every complete
// frame it produced. Responses are sent synchronously from OnPacket
// before the next frame is consumed.
func (c *Conn) Update() {
	buffer := c.frameReceiver.PrepareReceive()

	read, err := c.socket.Read(buffer)
	if read > 0 {
		c.frameReceiver.Commit(read)
	}
	if err != nil {
		if isDisconnect(err) {
			c.disconnect()
		} else {
			c.error(SocketReceiveError, err)
		}
	}

	for c.alive {
		result, payload := c.frameReceiver.Advance()
		switch result {
		case ReceivedFrame:
			c.dispatch(payload)
			c.frameReceiver.Discard()
		case MalformedStream:
			c.error(FramingReceiveError, errMalformedStream)
		case NeedMoreData:
			return
		}
	}
}

func (c *Conn) dispatch(payload []byte) {
	packet, err := DecodePacket(payload)
	if err != nil {
		c.ProtocolError(err.Error())
		return
	}
	c.handler.OnPacket(packet)
}
