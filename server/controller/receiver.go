package controller

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

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
	stateDownloading
	stateWaitingForHash
)

// Connection materializes one sender's directories and files beneath
// the receive root, verifying every file end-to-end
type Connection struct {
	conn *networking.Conn
	peer string
	root string

	state    state
	download *download

	decompressor *fileio.Decompressor
	hasher       *xxhash.Digest
	tracker      *progress.Tracker
}

type download struct {
	file   *os.File
	writer *bufio.Writer

	virtualPath string
	fsPath      string

	size            uint64
	downloaded      uint64
	compressedBytes uint64
	compressed      bool
}

// NewConnection takes ownership of an accepted socket
func NewConnection(socket net.Conn, peer, root string) (*Connection, error) {
	decompressor, err := fileio.NewDecompressor()
	if err != nil {
		return nil, err
	}

	c := &Connection{
		conn:         networking.NewConn(socket),
		peer:         peer,
		root:         root,
		decompressor: decompressor,
		hasher:       xxhash.New(),
	}
	c.tracker = progress.NewTracker("downloading", func(message string) {
		c.logf("%s", message)
	})
	c.conn.SetHandler(c)

	return c, nil
}

// Alive reports whether the connection still processes packets
func (c *Connection) Alive() bool {
	return c.conn.Alive()
}

// Update performs one blocking receive/dispatch round
func (c *Connection) Update() {
	c.conn.Update()
}

// Close releases the socket and the decompressor. A download still in
// flight is aborted and its partial on-disk file removed.
func (c *Connection) Close() {
	if d := c.download; d != nil {
		c.decompressor.Abort()
		d.file.Close()
		os.Remove(d.fsPath)
		c.download = nil
	}
	c.decompressor.Close()
	c.conn.Close()
}

func (c *Connection) logf(format string, args ...any) {
	fmt.Printf("%s: %s\n", c.peer, fmt.Sprintf(format, args...))
}

// OnError implements networking.Handler
func (c *Connection) OnError(kind networking.ErrorKind, err error) {
	c.logf("error - %v", err)
}

// OnProtocolError implements networking.Handler
func (c *Connection) OnProtocolError(description string) {
	c.logf("error - %s", description)
}

// OnDisconnected implements networking.Handler
func (c *Connection) OnDisconnected() {
	if c.state != stateIdle {
		c.logf("disconnected unexpectedly")
	} else {
		c.logf("disconnected")
	}
}

// OnPacket implements networking.Handler
func (c *Connection) OnPacket(packet networking.Packet) {
	switch p := packet.(type) {
	case networking.SenderHello:
		c.onSenderHello()
	case networking.CreateDirectory:
		c.onCreateDirectory(p)
	case networking.CreateFile:
		c.onCreateFile(p)
	case networking.FileChunk:
		c.onFileChunk(p)
	case networking.VerifyFile:
		c.onVerifyFile(p)
	default:
		c.conn.ProtocolError(fmt.Sprintf("received unexpected %T packet", packet))
	}
}

func (c *Connection) onSenderHello() {
	if c.state != stateWaitingForHello {
		c.conn.ProtocolError("received unexpected SenderHello packet")
		return
	}
	c.conn.SendPacket(networking.ReceiverHello{})
	c.state = stateIdle
}

func (c *Connection) onCreateDirectory(p networking.CreateDirectory) {
	if c.state != stateIdle {
		c.conn.ProtocolError("received unexpected CreateDirectory packet")
		return
	}
	created := c.createDirectory(p.Path)
	c.conn.SendPacket(networking.Acknowledged{Accepted: created})
}

func (c *Connection) onCreateFile(p networking.CreateFile) {
	if c.state != stateIdle {
		c.conn.ProtocolError("received unexpected CreateFile packet")
		return
	}
	started := c.startDownload(p)
	c.conn.SendPacket(networking.Acknowledged{Accepted: started})
}

func (c *Connection) onFileChunk(p networking.FileChunk) {
	if c.state != stateDownloading {
		c.conn.ProtocolError("received unexpected FileChunk packet")
		return
	}

	d := c.download
	if d.compressed {
		d.compressedBytes += uint64(len(p.Data))
		if err := c.decompressor.Feed(p.Data); err != nil {
			c.conn.ProtocolError(fmt.Sprintf("failed to decompress chunk for `%s`: %v",
				d.virtualPath, err))
		}
		return
	}

	if err := c.writeFileData(p.Data, uint64(len(p.Data))); err != nil {
		c.conn.ProtocolError(err.Error())
		return
	}
	if d.downloaded == d.size {
		c.state = stateWaitingForHash
	}
}

func (c *Connection) onVerifyFile(p networking.VerifyFile) {
	switch {
	case c.state == stateWaitingForHash:
	case c.state == stateDownloading && c.download.compressed:
		// A zstd stream only drains fully at end-of-stream, so the
		// compressed close-out happens here.
		if err := c.decompressor.End(); err != nil {
			c.conn.ProtocolError(fmt.Sprintf("failed to decompress `%s`: %v",
				c.download.virtualPath, err))
			return
		}
		if c.download.downloaded != c.download.size {
			c.conn.ProtocolError(fmt.Sprintf("file data for `%s` is incomplete",
				c.download.virtualPath))
			return
		}
	default:
		c.conn.ProtocolError("received unexpected VerifyFile packet")
		return
	}

	c.finishDownload(p.Hash)
}

// toFsPath resolves a virtual path beneath the receive root. Any `..`
// is treated as a traversal attempt and kills the connection.
func (c *Connection) toFsPath(virtualPath string) (string, bool) {
	if strings.Contains(virtualPath, "..") {
		c.conn.ProtocolError(fmt.Sprintf("path `%s` contains `..`", virtualPath))
		return "", false
	}

	fsPath := filepath.Clean(c.root + "/" + virtualPath)
	if !strings.HasPrefix(fsPath, filepath.Clean(c.root)+string(os.PathSeparator)) {
		c.conn.ProtocolError(fmt.Sprintf("path `%s` escapes the receive root", virtualPath))
		return "", false
	}

	return fsPath, true
}

func (c *Connection) createDirectory(virtualPath string) bool {
	fsPath, ok := c.toFsPath(virtualPath)
	if !ok {
		return false
	}

	if info, err := os.Stat(fsPath); err == nil && info.IsDir() {
		return true
	}

	if err := os.MkdirAll(fsPath, 0o755); err != nil {
		c.logf("failed to create directory `%s`: %v", fsPath, err)
		return false
	}

	c.logf("created directory `%s`", virtualPath)
	return true
}

func (c *Connection) startDownload(p networking.CreateFile) bool {
	fsPath, ok := c.toFsPath(p.Path)
	if !ok {
		return false
	}

	if _, err := os.Stat(fsPath); err == nil {
		c.logf("rejecting `%s`: path already exists", fsPath)
		return false
	}

	file, err := os.OpenFile(fsPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		c.logf("failed to open file `%s` for writing: %v", fsPath, err)
		return false
	}

	compressed := p.Flags&networking.FlagCompressed != 0

	c.download = &download{
		file:        file,
		writer:      bufio.NewWriterSize(file, constants.FILE_WRITE_BUFFER),
		virtualPath: p.Path,
		fsPath:      fsPath,
		size:        p.Size,
		compressed:  compressed,
	}
	c.hasher.Reset()

	if compressed && p.Size > 0 {
		if err := c.decompressor.Begin(downloadSink{c}); err != nil {
			c.logf("failed to reset decompression for `%s`: %v", p.Path, err)
			file.Close()
			os.Remove(fsPath)
			c.download = nil
			return false
		}
	}

	c.tracker.Begin(p.Path, p.Size, compressed)

	if p.Size == 0 {
		c.state = stateWaitingForHash
	} else {
		c.state = stateDownloading
	}

	return true
}

// downloadSink funnels decoded bytes from the decompression pump into
// the active download
type downloadSink struct {
	c *Connection
}

func (s downloadSink) Write(data []byte) (int, error) {
	if err := s.c.writeFileData(data, 0); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (c *Connection) writeFileData(data []byte, compressedSize uint64) error {
	d := c.download

	if d.downloaded+uint64(len(data)) > d.size {
		return fmt.Errorf("got more file data for `%s` than expected", d.virtualPath)
	}

	if _, err := d.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write to file `%s`: %v", d.fsPath, err)
	}
	c.hasher.Write(data)

	d.downloaded += uint64(len(data))
	c.tracker.Progress(uint64(len(data)), compressedSize)

	return nil
}

func (c *Connection) finishDownload(expectedHash uint64) {
	d := c.download

	if err := d.writer.Flush(); err != nil {
		c.conn.ProtocolError(fmt.Sprintf("failed to write to file `%s`: %v", d.fsPath, err))
		return
	}
	if err := d.file.Close(); err != nil {
		c.conn.ProtocolError(fmt.Sprintf("failed to close file `%s`: %v", d.fsPath, err))
		return
	}

	if c.hasher.Sum64() != expectedHash {
		c.conn.SendPacket(networking.Acknowledged{Accepted: false})
		c.conn.ProtocolError(fmt.Sprintf("hash mismatch for `%s`", d.virtualPath))
		return
	}

	if d.compressed {
		c.tracker.Progress(0, d.compressedBytes)
	}
	c.tracker.End()

	c.download = nil
	c.state = stateIdle
	c.conn.SendPacket(networking.Acknowledged{Accepted: true})
}
