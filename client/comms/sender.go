package comms

import (
	"fmt"
	"io"
	"net"
	"os"

	"github.com/cespare/xxhash/v2"

	"go_fast_push/constants"
	"go_fast_push/fileio"
	"go_fast_push/networking"
	"go_fast_push/progress"
)

type state int

const (
	stateWaitingForHello state = iota
	stateIdle
	stateWaitDirAck
	stateWaitFileAck
	stateWaitUploadAck
	stateFinished
)

// Connection pushes an entry list to the receiver, one acknowledged
// entry at a time
type Connection struct {
	conn *networking.Conn

	entries []fileio.Entry
	current int
	state   state

	upload      *upload
	chunkBuffer []byte

	compressor *fileio.Compressor
	hasher     *xxhash.Digest
	tracker    *progress.Tracker

	noCompression bool
}

type upload struct {
	file *os.File

	virtualPath string
	fsPath      string

	size       uint64
	compressed bool
}

// NewConnection takes ownership of an established socket and the
// entries to push. noCompression forces every file to be sent raw.
func NewConnection(socket net.Conn, entries []fileio.Entry, noCompression bool) (*Connection, error) {
	compressor, err := fileio.NewCompressor()
	if err != nil {
		return nil, err
	}

	c := &Connection{
		conn:          networking.NewConn(socket),
		entries:       entries,
		chunkBuffer:   make([]byte, constants.FILE_CHUNK_SIZE),
		compressor:    compressor,
		hasher:        xxhash.New(),
		noCompression: noCompression,
	}
	c.tracker = progress.NewTracker("uploading", func(message string) {
		fmt.Println(message)
	})
	c.conn.SetHandler(c)

	return c, nil
}

// Start opens the dialogue with the handshake
func (c *Connection) Start() {
	c.conn.SendPacket(networking.SenderHello{})
}

// Alive reports whether the connection still processes packets
func (c *Connection) Alive() bool {
	return c.conn.Alive()
}

// Update performs one blocking receive/dispatch round
func (c *Connection) Update() {
	c.conn.Update()
}

// Finished reports whether every entry was pushed and acknowledged
func (c *Connection) Finished() bool {
	return c.state == stateFinished
}

// Close releases the socket and any open upload handle
func (c *Connection) Close() {
	if c.upload != nil {
		c.upload.file.Close()
		c.upload = nil
	}
	c.conn.Close()
}

// OnError implements networking.Handler
func (c *Connection) OnError(kind networking.ErrorKind, err error) {
	fmt.Println("error -", err)
}

// OnProtocolError implements networking.Handler
func (c *Connection) OnProtocolError(description string) {
	fmt.Println("error -", description)
}

// OnDisconnected implements networking.Handler
func (c *Connection) OnDisconnected() {
	if c.state == stateFinished {
		fmt.Println("disconnected")
	} else {
		fmt.Println("disconnected unexpectedly")
	}
}

// OnPacket implements networking.Handler. Only ReceiverHello and
// Acknowledged are ever legal inputs to the sender.
func (c *Connection) OnPacket(packet networking.Packet) {
	switch p := packet.(type) {
	case networking.ReceiverHello:
		c.onReceiverHello()
	case networking.Acknowledged:
		c.onAcknowledged(p)
	default:
		c.conn.ProtocolError(fmt.Sprintf("received unexpected %T packet", packet))
	}
}

func (c *Connection) onReceiverHello() {
	if c.state != stateWaitingForHello {
		c.conn.ProtocolError("received unexpected ReceiverHello packet")
		return
	}
	c.state = stateIdle
	c.processEntry(0)
}

func (c *Connection) onAcknowledged(p networking.Acknowledged) {
	switch c.state {
	case stateWaitDirAck:
		if !p.Accepted {
			c.conn.ProtocolError("receiver rejected the directory creation request")
			return
		}
		c.state = stateIdle
		c.processNextEntry()

	case stateWaitFileAck:
		if !p.Accepted {
			c.conn.ProtocolError("receiver rejected the file creation request")
			return
		}
		c.uploadAcceptedFile()

	case stateWaitUploadAck:
		if !p.Accepted {
			c.conn.ProtocolError("receiver rejected the file upload")
			return
		}
		c.state = stateIdle
		c.processNextEntry()

	default:
		c.conn.ProtocolError("received unexpected Acknowledged packet")
	}
}

func (c *Connection) processEntry(index int) {
	c.current = index

	if index >= len(c.entries) {
		c.state = stateFinished
		c.conn.SetNotAlive()
		return
	}

	entry := c.entries[index]
	if entry.Type == fileio.EntryDirectory {
		c.createDirectory(entry.RelativePath)
	} else {
		c.startFileUpload(entry.RelativePath, entry.AbsolutePath)
	}
}

func (c *Connection) processNextEntry() {
	c.processEntry(c.current + 1)
}

func (c *Connection) createDirectory(virtualPath string) {
	fmt.Printf("creating directory `%s`...\n", virtualPath)

	if c.conn.SendPacket(networking.CreateDirectory{Path: virtualPath}) {
		c.state = stateWaitDirAck
	}
}

func (c *Connection) startFileUpload(virtualPath, fsPath string) {
	file, err := os.Open(fsPath)
	if err != nil {
		c.conn.ProtocolError(fmt.Sprintf("failed to open file `%s` for reading: %v", fsPath, err))
		return
	}

	size, err := file.Seek(0, io.SeekEnd)
	if err != nil || size < 0 {
		file.Close()
		c.conn.ProtocolError(fmt.Sprintf("failed to size file `%s`", fsPath))
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		c.conn.ProtocolError(fmt.Sprintf("failed to rewind file `%s`", fsPath))
		return
	}

	compressed := !c.noCompression && ShouldCompress(fsPath, uint64(size))

	var flags uint16
	if compressed {
		flags |= networking.FlagCompressed
	}

	if !c.conn.SendPacket(networking.CreateFile{
		Path:  virtualPath,
		Size:  uint64(size),
		Flags: flags,
	}) {
		file.Close()
		return
	}

	c.state = stateWaitFileAck
	c.upload = &upload{
		file:        file,
		virtualPath: virtualPath,
		fsPath:      fsPath,
		size:        uint64(size),
		compressed:  compressed,
	}

	c.tracker.Begin(virtualPath, uint64(size), compressed)
}

// uploadAcceptedFile streams the accepted file as chunks, hashing the
// uncompressed bytes, and closes out with the final digest
func (c *Connection) uploadAcceptedFile() {
	up := c.upload

	c.hasher.Reset()
	if up.compressed {
		c.compressor.Begin()
	}

	var pendingUncompressed uint64
	flush := func() bool {
		if c.compressor.Pending() == 0 {
			return true
		}
		emitted := uint64(c.compressor.Pending())
		if !c.conn.SendPacket(networking.FileChunk{Data: c.compressor.Bytes()}) {
			return false
		}
		c.tracker.Progress(pendingUncompressed, emitted)
		c.compressor.Clear()
		pendingUncompressed = 0
		return true
	}

	var totalRead uint64
	for totalRead < up.size {
		want := uint64(len(c.chunkBuffer))
		if remaining := up.size - totalRead; remaining < want {
			want = remaining
		}

		read, err := up.file.Read(c.chunkBuffer[:want])
		if read == 0 {
			c.conn.ProtocolError(fmt.Sprintf("failed to read file `%s`: %v", up.fsPath, err))
			return
		}
		totalRead += uint64(read)
		chunk := c.chunkBuffer[:read]

		if !up.compressed {
			if !c.conn.SendPacket(networking.FileChunk{Data: chunk}) {
				return
			}
			c.tracker.Progress(uint64(read), uint64(read))
		} else {
			if err := c.compressor.Feed(chunk); err != nil {
				c.conn.ProtocolError(fmt.Sprintf("failed to compress chunk of `%s`: %v", up.fsPath, err))
				return
			}
			pendingUncompressed += uint64(read)

			if totalRead == up.size {
				if err := c.compressor.End(); err != nil {
					c.conn.ProtocolError(fmt.Sprintf("failed to compress chunk of `%s`: %v", up.fsPath, err))
					return
				}
			}

			// One read triggers at most one flush, or none while the
			// pending output stays under the threshold.
			if c.compressor.Pending() >= constants.COMPRESSED_FLUSH_SIZE || totalRead == up.size {
				if !flush() {
					return
				}
			}
		}

		c.hasher.Write(chunk)
	}

	if !c.conn.SendPacket(networking.VerifyFile{Hash: c.hasher.Sum64()}) {
		return
	}

	c.tracker.End()

	c.state = stateWaitUploadAck
	up.file.Close()
	c.upload = nil
}
